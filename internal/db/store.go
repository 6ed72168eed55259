// Package db implements the persistence capability: keyed row CRUD over
// instances and their dependent entities, with cascade-on-delete and a
// versioned migration list.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var ddl string

// DBTX is the subset of database/sql used by query methods, satisfied by
// both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries executes the entity queries against a DBTX.
type Queries struct {
	db DBTX
}

// New creates a Queries bound to the given DBTX.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Store defines all functions to interact with the database.
type Store interface {
	Querier
	// ExecTx executes fn within a transaction.
	ExecTx(ctx context.Context, fn func(*Queries) error) error
	// Ping checks database health.
	Ping(ctx context.Context) error
	// Close releases the underlying connection pool.
	Close() error
}

// SQLStore provides all functions to execute db queries and transactions.
type SQLStore struct {
	*Queries
	db *sql.DB
}

// Config holds database configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // seconds
}

// DefaultConfig returns default database configuration.
func DefaultConfig() *Config {
	return &Config{
		Path:            "/var/lib/ovpn-manager/ovpn-manager.db",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 300,
	}
}

// NewStore creates a new Store with automatic schema setup and migrations.
func NewStore(config *Config) (Store, error) {
	if config == nil {
		config = DefaultConfig()
	}

	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", config.Path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(config.ConnMaxLifetime) * time.Second)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLStore{
		Queries: New(db),
		db:      db,
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}

	return store, nil
}

// NewStoreFromDB creates a new Store from an existing database
// connection. Useful for testing.
func NewStoreFromDB(db *sql.DB) *SQLStore {
	return &SQLStore{
		Queries: New(db),
		db:      db,
	}
}

// Setup applies all pending migrations on the underlying connection.
func (s *SQLStore) Setup(_ context.Context) error {
	return runMigrations(s.db)
}

// ExecTx executes a function within a transaction.
func (s *SQLStore) ExecTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	q := New(tx)
	if err := fn(q); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx failed: %v, rollback failed: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
