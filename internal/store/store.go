// Package store persists stocks, orders, history snapshots, users and capital
// ledgers in SQLite. Every write method takes the txn.Tx of the firing it
// belongs to; a nil Tx runs the statement directly on the database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"MarketSession/internal/model"
	"MarketSession/internal/txn"

	_ "modernc.org/sqlite"
)

// ErrForeignTx is returned when a Tx not created by this Store is passed in.
var ErrForeignTx = errors.New("store: tx was not opened by this store")

// Store is the SQLite-backed implementation of every session collaborator.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Tx wraps a *sql.Tx as a txn.Tx.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens (or creates) the SQLite database at path and runs migrations.
// ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: SQLite has a single writer, and an in-memory database
	// only exists on the connection that created it.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite store opened: %s", path)
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS stocks (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			market        TEXT NOT NULL,
			name          TEXT NOT NULL,
			current_price REAL NOT NULL DEFAULT 0,
			start_price   REAL NOT NULL DEFAULT 0,
			end_price     REAL NOT NULL DEFAULT 0,
			highest_price REAL NOT NULL DEFAULT 0,
			lowest_price  REAL NOT NULL DEFAULT 0,
			change        REAL NOT NULL DEFAULT 0,
			total_hand    INTEGER NOT NULL DEFAULT 0,
			status        TEXT NOT NULL DEFAULT 'CLOSED',
			updated_at    INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS orders (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    INTEGER NOT NULL,
			stock_id   INTEGER NOT NULL,
			side       TEXT NOT NULL,
			price      REAL NOT NULL,
			hand       INTEGER NOT NULL,
			status     TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_stock_status ON orders(stock_id, status)`,

		`CREATE TABLE IF NOT EXISTS stock_history (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			stock_id      INTEGER NOT NULL,
			date          TEXT NOT NULL,
			market        TEXT,
			name          TEXT,
			current_price REAL,
			start_price   REAL,
			end_price     REAL,
			highest_price REAL,
			lowest_price  REAL,
			change        REAL,
			total_hand    INTEGER,
			created_at    INTEGER NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_history_stock_date ON stock_history(stock_id, date)`,

		`CREATE TABLE IF NOT EXISTS users (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			account       TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			is_robot      INTEGER NOT NULL DEFAULT 0,
			created_at    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_robot ON users(is_robot)`,

		`CREATE TABLE IF NOT EXISTS user_capital (
			user_id    INTEGER PRIMARY KEY,
			balance    REAL NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// Begin opens a transaction. It satisfies txn.Beginner.
func (s *Store) Begin(ctx context.Context) (txn.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	log.Println("[INFO] closing sqlite store")
	return s.db.Close()
}

func (s *Store) conn(tx txn.Tx) (querier, error) {
	if tx == nil {
		return s.db, nil
	}
	t, ok := tx.(*Tx)
	if !ok {
		return nil, ErrForeignTx
	}
	return t.tx, nil
}

func (s *Store) stamp() int64 {
	return s.now().Unix()
}

func mustAffect(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	return nil
}
