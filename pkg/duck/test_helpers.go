package duck

import (
	"context"
	"database/sql"
	"errors"
)

// failingDBConn is a mock connection that fails on all operations
type failingDBConn struct{}

func (f *failingDBConn) DB() DB {
	return &failingDB{}
}

func (f *failingDBConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, errors.New("database error")
}

func (f *failingDBConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, errors.New("database error")
}

func (f *failingDBConn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return nil
}

func (f *failingDBConn) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return nil, errors.New("failed to begin transaction")
}

func (f *failingDBConn) Close() error {
	return nil
}

// recordingConn is a mock connection that accepts statements and records them
type recordingConn struct {
	statements []string
}

func (r *recordingConn) DB() DB {
	return &failingDB{}
}

func (r *recordingConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	r.statements = append(r.statements, query)
	return nil, nil
}

func (r *recordingConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, errors.New("database error")
}

func (r *recordingConn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return nil
}

func (r *recordingConn) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return nil, errors.New("failed to begin transaction")
}

func (r *recordingConn) Close() error {
	return nil
}

// failingDB is a mock DB that fails on all operations
type failingDB struct{}

func (f *failingDB) Catalog() string {
	return "test"
}

func (f *failingDB) Schema() string {
	return "main"
}

func (f *failingDB) Close() error {
	return nil
}

func (f *failingDB) Conn(ctx context.Context) (Connection, error) {
	return &failingDBConn{}, nil
}
