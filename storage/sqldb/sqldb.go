// Package sqldb is a storage backend for PostgreSQL and SQLite databases.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"gitlab.com/henri.philipps/diffdetect"
	"gitlab.com/henri.philipps/diffdetect/storage"
	"golang.org/x/exp/slog"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// compiler check of interface implementation
var _ storage.Storage = &db{}

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

type dialect struct {
	name   string
	driver string
	schema []string
	// nowQuery is asking the database for the current time, the local clock is used if empty.
	nowQuery string
}

var postgresDialect = dialect{
	name:   "postgresql",
	driver: "postgres",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS intervals (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			period_seconds BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS resources (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL UNIQUE,
			categories TEXT NOT NULL DEFAULT '',
			enabled BOOLEAN NOT NULL DEFAULT FALSE,
			http_auth_login TEXT NOT NULL DEFAULT '',
			http_auth_password TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT 'generic',
			interval_id BIGINT,
			last_scan TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id BIGSERIAL PRIMARY KEY,
			url_id BIGINT NOT NULL,
			content BYTEA NOT NULL,
			createdate TIMESTAMPTZ NOT NULL,
			createuser TEXT NOT NULL DEFAULT '',
			checked BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS snapshots_url_id_createdate ON snapshots (url_id, createdate DESC, id DESC)`,
	},
	nowQuery: `SELECT now()`,
}

var sqliteDialect = dialect{
	name:   "sqlite",
	driver: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS intervals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			period_seconds INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS resources (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL UNIQUE,
			categories TEXT NOT NULL DEFAULT '',
			enabled BOOLEAN NOT NULL DEFAULT FALSE,
			http_auth_login TEXT NOT NULL DEFAULT '',
			http_auth_password TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT 'generic',
			interval_id INTEGER,
			last_scan DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			url_id INTEGER NOT NULL,
			content BLOB NOT NULL,
			createdate DATETIME NOT NULL,
			createuser TEXT NOT NULL DEFAULT '',
			checked BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS snapshots_url_id_createdate ON snapshots (url_id, createdate DESC, id DESC)`,
	},
}

type db struct {
	conn    *sqlx.DB
	dialect dialect
	logger  *slog.Logger
}

// OpenPostgres is connecting to a PostgreSQL database and creating missing tables.
func OpenPostgres(ctx context.Context, uri string, logger *slog.Logger) (*db, error) {
	return open(ctx, postgresDialect, uri, logger)
}

// OpenSQLite is opening or creating an SQLite database file and creating missing tables.
// Use ":memory:" for a database living as long as the returned storage.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*db, error) {
	return open(ctx, sqliteDialect, path, logger)
}

func open(ctx context.Context, d dialect, dsn string, logger *slog.Logger) (*db, error) {
	conn, err := sqlx.Open(d.driver, dsn)
	if err != nil {
		return nil, err
	}

	if d.driver == sqliteDialect.driver {
		// SQLite allows a single writer, and every connection to ":memory:" has its own database
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	db := &db{
		conn:    conn,
		dialect: d,
		logger:  logger.With(slog.String("driver", d.name)),
	}

	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *db) migrate(ctx context.Context) error {
	for _, stmt := range db.dialect.schema {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			db.logger.Error("schema migration failed", "error", err)
			return fmt.Errorf("migrating schema: %w", err)
		}
	}
	return nil
}

// Close is closing the connection pool.
func (db *db) Close() error {
	return db.conn.Close()
}

func (db *db) Now(ctx context.Context) (time.Time, error) {
	if db.dialect.nowQuery == "" {
		return dbTime(time.Now()), nil
	}

	var now time.Time
	if err := db.conn.GetContext(ctx, &now, db.dialect.nowQuery); err != nil {
		db.logger.Error("query failed", "error", err, slog.String("method", "Now"))
		return time.Time{}, wrapError(err)
	}

	return now.UTC(), nil
}

// dbTime is normalising a time to what every supported database can store.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// wrapError is mapping driver errors to the errors of the diffdetect package.
func wrapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", diffdetect.ErrNotExist, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %v", diffdetect.ErrAlreadyExists, err)
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return fmt.Errorf("%w: %v", diffdetect.ErrAlreadyExists, err)
	}

	return err
}
