package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	pkgerrors "github.com/pkg/errors"

	"github.com/Denni-Wild/Subs-bot-sub000/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS summary_runs (
    id TEXT PRIMARY KEY,
    caller_key TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL,
    model TEXT NOT NULL DEFAULT '',
    chunks INTEGER NOT NULL DEFAULT 0,
    processed_chunks INTEGER NOT NULL DEFAULT 0,
    original_length INTEGER NOT NULL DEFAULT 0,
    summary_length INTEGER NOT NULL DEFAULT 0,
    source_language TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS feedback (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL DEFAULT '',
    model TEXT NOT NULL DEFAULT '',
    satisfied INTEGER NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_summary_runs_model ON summary_runs(model);
CREATE INDEX IF NOT EXISTS idx_summary_runs_created_at ON summary_runs(created_at);
CREATE INDEX IF NOT EXISTS idx_feedback_model ON feedback(model);
`

type DBConfig struct {
	MaxRetries         int
	RetryDelay         time.Duration
	QueryTimeout       time.Duration
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

func DefaultDBConfig() DBConfig {
	return DBConfig{
		MaxRetries:         3,
		RetryDelay:         100 * time.Millisecond,
		QueryTimeout:       10 * time.Second,
		MaxConnections:     10,
		MaxIdleConnections: 5,
		ConnMaxLifetime:    time.Hour,
	}
}

// DB is an open run log with its prepared statements.
type DB struct {
	conn       *sql.DB
	statements *PreparedStatements
	config     DBConfig
}

// Open creates the database file if needed, applies the schema and
// prepares the statements.
func Open(ctx context.Context, dbPath string, config DBConfig) (*DB, error) {
	const op = "sqlite.Open"

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Internal(op, pkgerrors.Wrap(err, "mkdir"), "failed to create database directory")
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errors.Internal(op, err, "failed to open database")
	}
	configureDB(conn, config)

	if err := configurePragmas(conn); err != nil {
		conn.Close()
		return nil, err
	}
	if err := execSchema(conn); err != nil {
		conn.Close()
		return nil, err
	}

	stmts := &PreparedStatements{}
	if err := stmts.Prepare(ctx, conn); err != nil {
		stmts.Close()
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn, statements: stmts, config: config}, nil
}

func (d *DB) Close() error {
	stmtErr := d.statements.Close()
	if err := d.conn.Close(); err != nil {
		return pkgerrors.Wrap(err, "close database")
	}
	return stmtErr
}

func (d *DB) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

func configureDB(conn *sql.DB, config DBConfig) {
	if config.MaxConnections > 0 {
		conn.SetMaxOpenConns(config.MaxConnections)
	}
	if config.MaxIdleConnections > 0 {
		conn.SetMaxIdleConns(config.MaxIdleConnections)
	}
	if config.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
}

func configurePragmas(conn *sql.DB) error {
	const op = "sqlite.configurePragmas"

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			return errors.Internal(op, err, fmt.Sprintf("failed to set pragma: %s", pragma))
		}
	}
	return nil
}

func execSchema(conn *sql.DB) error {
	const op = "sqlite.execSchema"

	tx, err := conn.Begin()
	if err != nil {
		return errors.Internal(op, err, "failed to begin transaction")
	}
	defer tx.Rollback()

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.Exec(stmt); err != nil {
			return errors.Internal(op, err, fmt.Sprintf("failed to execute schema statement: %s", stmt))
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Internal(op, err, "failed to commit schema transaction")
	}
	return nil
}

// withRetry retries fn while SQLite reports a locked database.
func withRetry(ctx context.Context, config DBConfig, fn func(ctx context.Context) error) error {
	attempts := config.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	if config.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.QueryTimeout)
		defer cancel()
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !isLockError(err) {
			return err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return pkgerrors.Wrap(ctx.Err(), "waiting for database lock")
		case <-time.After(config.RetryDelay * time.Duration(i+1)):
		}
	}
	return pkgerrors.Wrapf(lastErr, "database still locked after %d attempts", attempts)
}

func isLockError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}
