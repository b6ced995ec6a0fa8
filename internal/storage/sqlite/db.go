package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/sensei/internal/storage/migrations"
	_ "github.com/mattn/go-sqlite3"
)

// DB is a SQLite handle limited to one open connection, so writers are
// serialized by the pool rather than by SQLITE_BUSY retries.
type DB struct {
	*sql.DB
}

// Open opens the database at path in WAL mode with foreign keys enforced.
func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_txlock=immediate"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	return &DB{DB: conn}, nil
}

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
)`

// Migrate applies the embedded migrations newer than the recorded version,
// each in its own transaction.
func (db *DB) Migrate() error {
	if _, err := db.Exec(createMigrationsTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	current, err := db.Version()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	pending, err := migrations.Load(migrations.SQLite)
	if err != nil {
		return err
	}

	for _, m := range pending {
		if m.Version <= current {
			continue
		}
		if err := db.apply(m); err != nil {
			return err
		}
		slog.Info("applied migration", "driver", "sqlite", "name", m.Name, "version", m.Version)
	}
	return nil
}

func (db *DB) apply(m migrations.File) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", m.Name, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("apply migration %s: %w", m.Name, err)
	}
	if _, err = tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
		return fmt.Errorf("record migration %s: %w", m.Name, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", m.Name, err)
	}
	return nil
}

// Version returns the highest applied migration, or 0 for a fresh database.
func (db *DB) Version() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}
