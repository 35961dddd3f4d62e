/*
Package sqlite provides a SQLite-backed implementation of library.Store.

PURPOSE:
  Durable Entity Store. Every method is a single statement that commits on
  its own; there are no multi-call transactions.

KEY TABLES:
  categories:    Named book groupings
  books:         Catalog with the stock triple (quantity, is_available, status)
  readers:       Borrowers with opaque upload keys
  issued_books:  Book/reader loans; return_date NULL while outstanding
  admins:        Staff accounts (bcrypt hashes)
  payments:      Membership fees

CONSTRAINTS:
  - UNIQUE columns give *library.ConflictError (serial number, CNIC, card
    number, email, category name, admin phone/CNIC). When a row collides
    on several columns, admins report email, phone, CNIC and readers
    report CNIC, card number, email, in that order.
  - idx_issued_books_one_outstanding: a partial unique index on
    (book_id, reader_id) WHERE return_date IS NULL. A second outstanding
    loan of the same pair is rejected by the database itself and reported
    as library.ErrDuplicateIssuance.
  - CHECK (quantity >= 0) backs the availability ledger.
  - issued_books has no foreign keys, so closed loans outlive their book
    or reader. The services refuse deletes while a loan is outstanding.

CONDITIONAL WRITES:
  SwapStock:     UPDATE ... WHERE id = ? AND quantity = ?
  CloseIssuance: UPDATE ... WHERE id = ? AND return_date IS NULL
  Zero rows affected on an existing row means the condition failed.

TIMESTAMPS:
  Stored as UTC TEXT in a fixed-width layout so string comparison orders
  them correctly (due_date < ? in overdue queries).

CONCURRENCY:
  sync.RWMutex around the handle plus a single open connection, which also
  keeps ":memory:" databases shared across calls.

USAGE:
  store, err := sqlite.New("./data/library.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - library/store.go: Interface definitions
  - library/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/library-engine/library"
)

// Store implements library.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ library.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE COLLATE NOCASE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS books (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		serial_number TEXT NOT NULL UNIQUE,
		edition TEXT NOT NULL DEFAULT '',
		price TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity >= 0),
		is_available INTEGER NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('available', 'assigned')),
		category_id TEXT NOT NULL REFERENCES categories(id),
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_books_category ON books(category_id);
	CREATE INDEX IF NOT EXISTS idx_books_created ON books(created_at);

	CREATE TABLE IF NOT EXISTS readers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		father_name TEXT NOT NULL,
		phone_number TEXT NOT NULL,
		cnic TEXT NOT NULL UNIQUE,
		card_number TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE COLLATE NOCASE,
		address TEXT NOT NULL,
		age INTEGER NOT NULL,
		image_key TEXT NOT NULL DEFAULT '',
		document_key TEXT NOT NULL DEFAULT '',
		is_blocked INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS issued_books (
		id TEXT PRIMARY KEY,
		book_id TEXT NOT NULL,
		reader_id TEXT NOT NULL,
		issued_date TEXT NOT NULL,
		due_date TEXT NOT NULL,
		return_date TEXT,
		fine TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: at most one outstanding loan per (book, reader)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_issued_books_one_outstanding
		ON issued_books(book_id, reader_id)
		WHERE return_date IS NULL;

	CREATE INDEX IF NOT EXISTS idx_issued_books_reader ON issued_books(reader_id, issued_date);
	CREATE INDEX IF NOT EXISTS idx_issued_books_due ON issued_books(due_date) WHERE return_date IS NULL;

	CREATE TABLE IF NOT EXISTS admins (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		father_name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE COLLATE NOCASE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('librarian', 'super-admin', 'manager')),
		address TEXT NOT NULL,
		phone TEXT NOT NULL UNIQUE,
		cnic TEXT NOT NULL UNIQUE,
		age INTEGER NOT NULL,
		is_blocked INTEGER NOT NULL DEFAULT 0,
		image_key TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		reader_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		duration TEXT NOT NULL CHECK (duration IN ('month', 'year')),
		payment_date TEXT NOT NULL,
		payment_expiry TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_reader ON payments(reader_id, payment_date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

// timeLayout is fixed width so TEXT comparison matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid stored decimal %q: %w", s, err)
	}
	return d, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// uniqueField maps "UNIQUE constraint failed: books.serial_number" to the
// field label used in ConflictError.
func uniqueField(err error, labels map[string]string) string {
	msg := err.Error()
	for column, label := range labels {
		if strings.Contains(msg, column) {
			return label
		}
	}
	return "id"
}

// conflictOrWrap turns unique violations into ConflictError.
func conflictOrWrap(err error, kind string, labels map[string]string, values map[string]string, op string) error {
	if isUniqueConstraintError(err) {
		field := uniqueField(err, labels)
		return &library.ConflictError{Kind: kind, Field: field, Value: values[field]}
	}
	return fmt.Errorf("failed to %s %s: %w", op, kind, err)
}

// uniqueColumn is one UNIQUE column checked by firstTaken.
type uniqueColumn struct {
	column string
	label  string
	value  string
}

// firstTaken returns the label and value of the first column in cols that
// another row already holds. SQLite names only one failing index per
// error, so records colliding on several columns are resolved here, in the
// same order the memory store checks them.
func (s *Store) firstTaken(ctx context.Context, table, id string, cols []uniqueColumn) (string, string, error) {
	for _, c := range cols {
		var one int
		err := s.db.QueryRowContext(ctx,
			"SELECT 1 FROM "+table+" WHERE "+c.column+" = ? AND id <> ? LIMIT 1", c.value, id,
		).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return "", "", err
		}
		return c.label, c.value, nil
	}
	return "", "", nil
}

// conflictIn reports a unique violation on a multi-column table with a
// deterministic field. Non-unique errors are wrapped.
func (s *Store) conflictIn(ctx context.Context, err error, kind, table, id string, cols []uniqueColumn, op string) error {
	if !isUniqueConstraintError(err) {
		return fmt.Errorf("failed to %s %s: %w", op, kind, err)
	}
	label, value, lookupErr := s.firstTaken(ctx, table, id, cols)
	if lookupErr != nil {
		return fmt.Errorf("failed to %s %s: %w", op, kind, lookupErr)
	}
	if label == "" {
		return &library.ConflictError{Kind: kind, Field: "id", Value: id}
	}
	return &library.ConflictError{Kind: kind, Field: label, Value: value}
}

// affected reports whether exec changed a row.
func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// exists checks a row by id in table. table is always a constant.
func (s *Store) exists(ctx context.Context, table, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
