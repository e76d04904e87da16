package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"meetline/internal/db"
)

//go:embed sql/sqlite/*.sql sql/postgres/*.sql
var migrationsFS embed.FS

type Migration struct {
	Version int
	Name    string
	UpSQL   string
}

func dialectDir(driver string) (string, error) {
	switch driver {
	case db.DriverSQLite, "":
		return "sql/sqlite", nil
	case db.DriverPostgres:
		return "sql/postgres", nil
	default:
		return "", fmt.Errorf("no migrations for driver %q", driver)
	}
}

func loadMigrations(driver string) ([]Migration, error) {
	dir, err := dialectDir(driver)
	if err != nil {
		return nil, err
	}
	files, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return nil, err
	}
	var migrations []Migration
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		data, err := migrationsFS.ReadFile(path.Join(dir, f.Name()))
		if err != nil {
			return nil, err
		}
		var v int
		if _, err := fmt.Sscanf(f.Name(), "%d_", &v); err != nil {
			return nil, fmt.Errorf("invalid migration filename %s: %w", f.Name(), err)
		}
		migrations = append(migrations, Migration{
			Version: v,
			Name:    f.Name(),
			UpSQL:   string(data),
		})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// Migrate applies embedded migrations for the connection's dialect in order.
func Migrate(ctx context.Context, conn *db.DB) error {
	migrations, err := loadMigrations(conn.Driver)
	if err != nil {
		return err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var currentVersion int
	err = conn.SQ.Select("version").From("schema_version").Limit(1).
		RunWith(tx).QueryRowContext(ctx).Scan(&currentVersion)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := conn.SQ.Insert("schema_version").Columns("version").Values(0).
			RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("init schema_version: %w", err)
		}
		currentVersion = 0
	} else if err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			return fmt.Errorf("migration %s: %w", m.Name, err)
		}
		if _, err := conn.SQ.Update("schema_version").Set("version", m.Version).
			RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("update schema_version: %w", err)
		}
		currentVersion = m.Version
	}
	return tx.Commit()
}

// Version reports the applied schema version.
func Version(ctx context.Context, conn *db.DB) (int, error) {
	var v int
	err := conn.SQ.Select("version").From("schema_version").Limit(1).
		RunWith(conn.DB).QueryRowContext(ctx).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return v, err
}
