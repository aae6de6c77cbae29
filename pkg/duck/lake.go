// Package duck wraps a DuckLake catalog used as the warehouse sink. Tables are
// written as partitioned parquet files under the storage URI, with the table
// metadata kept in a local SQLite catalog file.
package duck

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/duckdb/duckdb-go/v2"
)

// DB is the warehouse database handle handed to table writers.
type DB interface {
	Catalog() string
	Schema() string
	Conn(ctx context.Context) (Connection, error)
	Close() error
}

// Connection is a single database connection. Writes to one table must go
// through one connection; independent tables may use separate connections
// concurrently.
type Connection interface {
	DB() DB
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
}

type Lake struct {
	log     *slog.Logger
	db      *sql.DB
	catalog string
	schema  string
}

type LakeConnection struct {
	conn *sql.Conn
	db   *Lake
	mu   sync.Mutex
}

func (c *LakeConnection) DB() DB {
	return c.db
}

func (c *LakeConnection) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.conn.ExecContext(ctx, query, args...)
}

func (c *LakeConnection) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.conn.QueryContext(ctx, query, args...)
}

func (c *LakeConnection) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.conn.QueryRowContext(ctx, query, args...)
}

func (c *LakeConnection) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return c.conn.BeginTx(ctx, opts)
}

func (c *LakeConnection) Close() error {
	return c.conn.Close()
}

// S3Config holds configuration for S3-compatible storage (AWS S3, MinIO, etc.)
type S3Config struct {
	AccessKeyID     string // S3 access key ID
	SecretAccessKey string // S3 secret access key
	Endpoint        string // S3 endpoint URL (e.g., "http://localhost:9000" for MinIO, empty for AWS)
	Region          string // S3 region (e.g., "us-east-1")
	UseSSL          bool   // Whether to use SSL/TLS (typically false for MinIO, true for AWS)
	URLStyle        string // URL style: "path" (for MinIO) or "virtual" (for AWS S3)
}

// NewLake creates a DuckLake instance with the given catalog and storage.
//
// Catalog URI format:
//   - file://: local SQLite catalog file
//     Example: "file:///path/to/catalog.sqlite"
//
// Storage URI formats:
//   - file://: local file system storage
//     Example: "file:///path/to/storage"
//   - s3://: S3-compatible storage (AWS S3, MinIO, etc.)
//     Example: "s3://bucket-name/path/to/data"
//     S3Config is required when using s3:// storage. For MinIO use an explicit
//     Endpoint with UseSSL false and URLStyle "path"; for AWS leave Endpoint
//     empty to use the default endpoints and credential chain.
func NewLake(ctx context.Context, log *slog.Logger, catalogName, catalogURI, storageURI string, s3Config *S3Config) (*Lake, error) {
	if err := ValidateCatalogURI(catalogURI); err != nil {
		return nil, err
	}
	if err := ValidateStorageURI(storageURI); err != nil {
		return nil, err
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	catalogPath := strings.TrimPrefix(catalogURI, "file://")
	catalogPath, err = filepath.Abs(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for catalog file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(catalogPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	var storagePath string
	var useS3 bool
	if path, found := strings.CutPrefix(storageURI, "file://"); found {
		storagePath, err = filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for storage directory: %w", err)
		}
		if err := os.MkdirAll(storagePath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	} else {
		storagePath = storageURI
		useS3 = true
	}

	// Install DuckLake extension first, from nightly
	if _, err := db.Exec("FORCE INSTALL ducklake FROM core_nightly"); err != nil {
		return nil, fmt.Errorf("failed to install ducklake from nightly: %w", err)
	}
	if _, err := db.Exec("LOAD ducklake"); err != nil {
		return nil, fmt.Errorf("failed to load ducklake: %w", err)
	}

	extensions := []string{"sqlite"}
	if useS3 {
		extensions = append(extensions, "httpfs", "aws")
	}
	for _, ext := range extensions {
		if _, err := db.Exec(fmt.Sprintf("INSTALL '%s'", ext)); err != nil {
			return nil, fmt.Errorf("failed to install extension %s: %w", ext, err)
		}
		if _, err := db.Exec(fmt.Sprintf("LOAD '%s'", ext)); err != nil {
			return nil, fmt.Errorf("failed to load extension %s: %w", ext, err)
		}
	}

	if useS3 {
		if s3Config == nil {
			return nil, fmt.Errorf("S3 configuration is required when using s3:// storage URI")
		}
		if err := createS3Secret(db, s3Config); err != nil {
			return nil, err
		}
		log.Info("configured S3 storage", "endpoint", s3Config.Endpoint, "region", s3Config.Region)
	}

	attachSQL := fmt.Sprintf("ATTACH 'ducklake:sqlite:%s' AS %s (DATA_PATH '%s')", catalogPath, catalogName, storagePath)
	if _, err := db.Exec(attachSQL); err != nil {
		return nil, fmt.Errorf("failed to attach ducklake: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("USE %s", catalogName)); err != nil {
		return nil, fmt.Errorf("failed to use catalog: %w", err)
	}

	row := db.QueryRowContext(ctx, "SELECT current_database() AS catalog, current_schema() AS schema")
	var catalog, schema string
	if err := row.Scan(&catalog, &schema); err != nil {
		return nil, fmt.Errorf("failed to get current database and schema: %w", err)
	}

	return &Lake{
		log:     log,
		db:      db,
		catalog: catalogName,
		schema:  schema,
	}, nil
}

// createS3Secret registers the storage credentials with DuckDB. With empty
// credentials the secret falls back to the default AWS credential chain (IAM
// roles, env vars, config files).
func createS3Secret(db *sql.DB, cfg *S3Config) error {
	secretSQL := "CREATE SECRET IF NOT EXISTS s3_secret (TYPE s3"
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		secretSQL += fmt.Sprintf(", KEY_ID '%s'", strings.ReplaceAll(cfg.AccessKeyID, "'", "''"))
		secretSQL += fmt.Sprintf(", SECRET '%s'", strings.ReplaceAll(cfg.SecretAccessKey, "'", "''"))
	} else {
		secretSQL += ", PROVIDER credential_chain"
	}
	if cfg.Endpoint != "" {
		// DuckDB's S3 secret ENDPOINT expects host:port, not a full URL
		endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
		endpoint = strings.TrimPrefix(endpoint, "https://")
		secretSQL += fmt.Sprintf(", ENDPOINT '%s'", endpoint)
	}
	if cfg.Region != "" {
		secretSQL += fmt.Sprintf(", REGION '%s'", cfg.Region)
	}

	urlStyle := cfg.URLStyle
	if urlStyle == "" {
		urlStyle = "path"
	}
	useSSL := cfg.UseSSL
	isMinIO := cfg.Endpoint != "" && !strings.Contains(cfg.Endpoint, "amazonaws.com")
	if isMinIO {
		useSSL = false
	} else if cfg.Endpoint == "" {
		useSSL = true
	}
	secretSQL += fmt.Sprintf(", URL_STYLE '%s'", urlStyle)
	secretSQL += fmt.Sprintf(", USE_SSL %t", useSSL)
	secretSQL += ")"

	if _, err := db.Exec(secretSQL); err != nil {
		return fmt.Errorf("failed to create S3 secret: %w", err)
	}
	return nil
}

func (l *Lake) Catalog() string {
	return l.catalog
}

func (l *Lake) Schema() string {
	return l.schema
}

func (l *Lake) Close() error {
	return l.db.Close()
}

func (l *Lake) Conn(ctx context.Context) (Connection, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.ExecContext(ctx, "USE "+l.catalog); err != nil {
		return nil, fmt.Errorf("USE failed: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "SET schema = "+l.schema); err != nil {
		return nil, fmt.Errorf("SET schema failed: %w", err)
	}
	return &LakeConnection{
		conn: conn,
		db:   l,
	}, nil
}

func ValidateCatalogURI(uri string) error {
	if uri == "" {
		return fmt.Errorf("catalog URI is required")
	}

	if path, found := strings.CutPrefix(uri, "file://"); found {
		if path == "" {
			return fmt.Errorf("catalog URI file:// path cannot be empty")
		}
		return nil
	}

	return fmt.Errorf("catalog URI must start with file:// (got: %q)", uri)
}

func ValidateStorageURI(uri string) error {
	if uri == "" {
		return fmt.Errorf("storage URI is required")
	}

	if path, found := strings.CutPrefix(uri, "file://"); found {
		if path == "" {
			return fmt.Errorf("storage URI file:// path cannot be empty")
		}
		return nil
	}

	if strings.HasPrefix(uri, "s3://") {
		parsed, err := url.Parse(uri)
		if err != nil {
			return fmt.Errorf("invalid s3:// URI format: %w", err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("s3:// URI must include a bucket name (e.g., s3://bucket-name/path)")
		}
		bucket := parsed.Host
		if len(bucket) < 3 || len(bucket) > 63 {
			return fmt.Errorf("s3 bucket name must be between 3 and 63 characters")
		}
		return nil
	}

	return fmt.Errorf("storage URI must start with file:// or s3:// (got: %q)", uri)
}

// RedactedStorageURI redacts potentially sensitive query parameters from
// storage URIs for logging.
func RedactedStorageURI(uri string) string {
	if uri == "" {
		return uri
	}

	if strings.HasPrefix(uri, "s3://") {
		parsed, err := url.Parse(uri)
		if err != nil {
			return "[REDACTED: invalid URI]"
		}
		if parsed.RawQuery != "" {
			query, err := url.ParseQuery(parsed.RawQuery)
			if err == nil {
				sensitiveKeys := []string{"accesskey", "secretkey", "password", "token", "credential"}
				for key := range query {
					keyLower := strings.ToLower(key)
					for _, sensitive := range sensitiveKeys {
						if strings.Contains(keyLower, sensitive) {
							query[key] = []string{"REDACTED"}
						}
					}
				}
				parsed.RawQuery = query.Encode()
			}
		}
		return parsed.String()
	}

	return uri
}
