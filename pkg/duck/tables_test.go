package duck

import (
	"context"
	"encoding/csv"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestLake_Duck_TableConfig_ColumnNames(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		want    []string
		wantErr bool
	}{
		{
			name:    "valid columns",
			columns: []string{"song_id:VARCHAR", "duration:DOUBLE", "year:INTEGER"},
			want:    []string{"song_id", "duration", "year"},
		},
		{
			name:    "whitespace trimmed",
			columns: []string{" start_time : TIMESTAMP "},
			want:    []string{"start_time"},
		},
		{
			name:    "missing type",
			columns: []string{"song_id"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := TableConfig{TableName: "songs", Columns: tt.columns}
			got, err := cfg.columnNames()
			if tt.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), "invalid column definition")
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestLake_Duck_OverwriteTableViaCSV_EmptyColumns(t *testing.T) {
	err := OverwriteTableViaCSV(context.Background(), testLogger(), &failingDBConn{}, TableConfig{
		TableName: "songs",
	}, 0, func(w *csv.Writer, i int) error { return nil })
	require.Error(t, err)
	require.Contains(t, err.Error(), "columns cannot be empty")
}

func TestLake_Duck_OverwriteTableViaCSV_InvalidColumnDef(t *testing.T) {
	err := OverwriteTableViaCSV(context.Background(), testLogger(), &failingDBConn{}, TableConfig{
		TableName: "songs",
		Columns:   []string{"song_id"},
	}, 0, func(w *csv.Writer, i int) error { return nil })
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid column definition")
}

func TestLake_Duck_OverwriteTableViaCSV_CreateFails(t *testing.T) {
	err := OverwriteTableViaCSV(context.Background(), testLogger(), &failingDBConn{}, TableConfig{
		TableName: "songs",
		Columns:   []string{"song_id:VARCHAR"},
	}, 1, func(w *csv.Writer, i int) error {
		return w.Write([]string{"S1"})
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to create table")
}

func TestLake_Duck_CreateTable_EmitsQualifiedCreate(t *testing.T) {
	conn := &recordingConn{}
	err := CreateTable(context.Background(), testLogger(), conn, TableConfig{
		TableName:   "songs",
		Columns:     []string{"song_id:VARCHAR", "year:INTEGER"},
		PartitionBy: []string{"year"},
	})
	require.NoError(t, err)
	require.Len(t, conn.statements, 1)
	require.Contains(t, conn.statements[0], "CREATE TABLE IF NOT EXISTS test.main.songs")
	require.Contains(t, conn.statements[0], "song_id VARCHAR")
	require.Contains(t, conn.statements[0], "year INTEGER")
}

func TestLake_Duck_OverwriteTableViaCSV_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := OverwriteTableViaCSV(ctx, testLogger(), &recordingConn{}, TableConfig{
		TableName: "songs",
		Columns:   []string{"song_id:VARCHAR"},
	}, 1, func(w *csv.Writer, i int) error {
		return w.Write([]string{"S1"})
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "context cancelled")
}
