package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	defaultDBName = "meetline.db"
	workspaceDir  = ".meetline"

	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

type Config struct {
	Workspace string
	// Driver is sqlite (default) or pgx.
	Driver string
	// DSN overrides the workspace file for sqlite and is required for pgx.
	DSN string
}

// DB bundles a connection pool with the statement builder for its dialect.
type DB struct {
	*sql.DB
	Driver string
	SQ     sq.StatementBuilderType
}

func dbPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, workspaceDir, defaultDBName)
}

// EnsureWorkspace creates workspace directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	if workspace == "" {
		workspace = "."
	}
	path := filepath.Join(workspace, workspaceDir)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Open opens the configured database. SQLite gets foreign keys on and a
// single connection so writers never see SQLITE_BUSY.
func Open(cfg Config) (*DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	switch driver {
	case DriverSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
				return nil, err
			}
			dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dbPath(cfg.Workspace))
		}
		conn, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		conn.SetMaxOpenConns(1)
		return &DB{DB: conn, Driver: DriverSQLite, SQ: sq.StatementBuilder.PlaceholderFormat(sq.Question)}, nil
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("database dsn is required for driver %s", DriverPostgres)
		}
		conn, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, err
		}
		return &DB{DB: conn, Driver: DriverPostgres, SQ: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Ping verifies the connection.
func (d *DB) Ping(ctx context.Context) error {
	return d.DB.PingContext(ctx)
}

// TimeLayout is the stored text form of every timestamp column.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTime renders t in UTC with fixed-width nanoseconds so stored values sort.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime reads a stored timestamp.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}
