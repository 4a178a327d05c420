// Package persistence journals simulation runs to SQLite or PostgreSQL.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Dialect selects the database backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ErrMissingDSN is returned when a dialect has nothing to connect to.
var ErrMissingDSN = errors.New("persistence: empty database path or DSN")

// DB wraps a journal connection.
type DB struct {
	conn    *sqlx.DB
	dialect Dialect
}

// Open connects to the journal database and creates its tables. For sqlite, dsn
// is a file path; for postgres, a connection string.
func Open(dialect Dialect, dsn string) (*DB, error) {
	if dsn == "" {
		return nil, ErrMissingDSN
	}

	var driver string
	switch dialect {
	case DialectSQLite:
		driver = "sqlite"
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	case DialectPostgres:
		driver = "pgx"
	default:
		return nil, fmt.Errorf("persistence: unsupported dialect %q", dialect)
	}

	conn, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s db: %w", dialect, err)
	}

	db := &DB{conn: conn, dialect: dialect}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("journal database ready", "dialect", string(dialect))
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Dialect reports the backend in use.
func (db *DB) Dialect() Dialect { return db.dialect }

func (db *DB) migrate() error {
	// Postgres rejects multi-statement Exec through pgx's extended protocol.
	schema := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			initial_age DOUBLE PRECISION NOT NULL,
			initial_cigarettes DOUBLE PRECISION NOT NULL,
			outcome TEXT NOT NULL DEFAULT '',
			final_age DOUBLE PRECISION NOT NULL DEFAULT 0,
			life_expectancy DOUBLE PRECISION NOT NULL DEFAULT 0,
			years_lost DOUBLE PRECISION NOT NULL DEFAULT 0,
			ticks BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS run_events (
			run_id TEXT NOT NULL,
			seq BIGINT NOT NULL,
			tick BIGINT NOT NULL,
			age DOUBLE PRECISION NOT NULL,
			category TEXT NOT NULL,
			description TEXT NOT NULL,
			meta_json TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS run_samples (
			run_id TEXT NOT NULL,
			tick BIGINT NOT NULL,
			age DOUBLE PRECISION NOT NULL,
			cigarettes_per_day DOUBLE PRECISION NOT NULL,
			life_expectancy DOUBLE PRECISION NOT NULL,
			heart_attack_risk DOUBLE PRECISION NOT NULL,
			stroke_risk DOUBLE PRECISION NOT NULL,
			cancer_risk DOUBLE PRECISION NOT NULL,
			tar_accumulation DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (run_id, tick)
		)`,
		`CREATE TABLE IF NOT EXISTS journal_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
	}
	for _, stmt := range schema {
		if _, err := db.conn.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(db.conn.Rebind(
		`INSERT INTO journal_meta (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`),
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, db.conn.Rebind("SELECT value FROM journal_meta WHERE key = ?"), key)
	return value, err
}
