package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/digitorus/pdfreport"

	// Drivers selectable through Open.
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultTable is the table SQL reads from when none is configured.
const DefaultTable = "attachments"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQL reads attachments from a table with a text ref column and a blob data
// column.
type SQL struct {
	db     *sql.DB
	table  string
	driver string
}

// Open connects to a sqlite3 or postgres database.
func Open(driver, dsn, table string) (*SQL, error) {
	switch driver {
	case "sqlite3", "postgres":
	default:
		return nil, fmt.Errorf("unsupported attachment driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}
	s, err := NewSQL(db, driver, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQL wraps an open database. The driver name selects the placeholder
// syntax; an empty table means DefaultTable.
func NewSQL(db *sql.DB, driver, table string) (*SQL, error) {
	if db == nil {
		return nil, errors.New("database is nil")
	}
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &SQL{db: db, table: table, driver: driver}, nil
}

// EnsureSchema creates the attachment table if it does not exist.
func (s *SQL) EnsureSchema(ctx context.Context) error {
	blob := "BLOB"
	if s.driver == "postgres" {
		blob = "BYTEA"
	}
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  ref  TEXT PRIMARY KEY,
  data %s NOT NULL
)`, s.table, blob)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.table, err)
	}
	return nil
}

// Put inserts or replaces the attachment stored under ref.
func (s *SQL) Put(ctx context.Context, ref string, data []byte) error {
	q := fmt.Sprintf(`INSERT INTO %s (ref, data) VALUES (%s, %s)
ON CONFLICT (ref) DO UPDATE SET data = excluded.data`, s.table, s.arg(1), s.arg(2))
	if _, err := s.db.ExecContext(ctx, q, ref, data); err != nil {
		return fmt.Errorf("failed to store attachment %s: %w", ref, err)
	}
	return nil
}

// Fetch implements pdfreport.AttachmentSource.
func (s *SQL) Fetch(ctx context.Context, ref string) ([]byte, error) {
	q := fmt.Sprintf(`SELECT data FROM %s WHERE ref = %s`, s.table, s.arg(1))
	var data []byte
	err := s.db.QueryRowContext(ctx, q, ref).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("%w: %s", pdfreport.ErrAttachmentNotFound, ref)
	case err != nil:
		return nil, fmt.Errorf("failed to query attachment %s: %w", ref, err)
	}
	return data, nil
}

// Close closes the database.
func (s *SQL) Close() error {
	return s.db.Close()
}

func (s *SQL) arg(n int) string {
	if s.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}
