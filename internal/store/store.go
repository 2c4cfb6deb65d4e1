package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// ErrUnknownTable is returned for a table with no schema file.
var ErrUnknownTable = errors.New("unknown table")

// Store provides durable storage for the staging tables of one run.
// Uses SQLite with WAL mode so the tables can be inspected while a run
// is in progress.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path.
// Tables are not created here; every stage recreates its own table.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// schemaFor returns the CREATE statement of a table.
func schemaFor(table Table) (string, error) {
	data, err := schemaFS.ReadFile("schema/" + string(table) + ".sql")
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return string(data), nil
}

// Recreate drops a table and creates it empty from its schema file.
// Both steps run in one transaction.
func (s *Store) Recreate(ctx context.Context, table Table) error {
	ddl, err := schemaFor(table)
	if err != nil {
		return fmt.Errorf("recreate table: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("recreate %s: begin tx: %w", table, err)
	}
	defer tx.Rollback()

	// The name comes from a schema file, never from input.
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+string(table)); err != nil {
		return fmt.Errorf("recreate %s: drop: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("recreate %s: create: %w", table, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("recreate %s: commit: %w", table, err)
	}
	return nil
}

// Ensure creates a table when it does not exist yet and leaves an
// existing one untouched.
func (s *Store) Ensure(ctx context.Context, table Table) error {
	exists, err := s.TableExists(ctx, table)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	ddl, err := schemaFor(table)
	if err != nil {
		return fmt.Errorf("ensure table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure %s: %w", table, err)
	}
	return nil
}

// TableExists reports whether a table is present in the database.
func (s *Store) TableExists(ctx context.Context, table Table) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
		string(table),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("table exists %s: %w", table, err)
	}
	return n > 0, nil
}

// CountRows returns the number of rows in a table.
func (s *Store) CountRows(ctx context.Context, table Table) (int, error) {
	if _, err := schemaFor(table); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+string(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows %s: %w", table, err)
	}
	return n, nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
