package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/library-engine/library"
)

// =============================================================================
// ISSUANCE STORE (library.IssuanceStore interface)
// =============================================================================

const issuedColumns = `id, book_id, reader_id, issued_date, due_date, return_date, fine,
	created_at, updated_at`

func scanIssuance(row scanner) (library.IssuedBook, error) {
	var ib library.IssuedBook
	var issued, due, fine, createdAt, updatedAt string
	var returned sql.NullString
	if err := row.Scan(&ib.ID, &ib.BookID, &ib.ReaderID, &issued, &due, &returned, &fine,
		&createdAt, &updatedAt); err != nil {
		return library.IssuedBook{}, err
	}

	var err error
	if ib.IssuedDate, err = parseTime(issued); err != nil {
		return library.IssuedBook{}, err
	}
	if ib.DueDate, err = parseTime(due); err != nil {
		return library.IssuedBook{}, err
	}
	if ib.ReturnDate, err = parseNullTime(returned); err != nil {
		return library.IssuedBook{}, err
	}
	if ib.Fine, err = parseDecimal(fine); err != nil {
		return library.IssuedBook{}, err
	}
	if ib.CreatedAt, err = parseTime(createdAt); err != nil {
		return library.IssuedBook{}, err
	}
	if ib.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return library.IssuedBook{}, err
	}
	return ib, nil
}

// CreateIssuance inserts a record. The partial unique index rejects a
// second outstanding record for the same pair.
func (s *Store) CreateIssuance(ctx context.Context, ib library.IssuedBook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO issued_books (`+issuedColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ib.ID, ib.BookID, ib.ReaderID, formatTime(ib.IssuedDate), formatTime(ib.DueDate),
		nullTime(ib.ReturnDate), ib.Fine.String(),
		formatTime(ib.CreatedAt), formatTime(ib.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) && strings.Contains(err.Error(), "issued_books.book_id") {
			return fmt.Errorf("%w: book %q, reader %q", library.ErrDuplicateIssuance, ib.BookID, ib.ReaderID)
		}
		return conflictOrWrap(err, "issued book", map[string]string{"issued_books.id": "id"},
			map[string]string{"id": ib.ID}, "create")
	}
	return nil
}

// GetIssuance retrieves a record by ID.
func (s *Store) GetIssuance(ctx context.Context, id string) (library.IssuedBook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ib, err := scanIssuance(s.db.QueryRowContext(ctx, "SELECT "+issuedColumns+" FROM issued_books WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return library.IssuedBook{}, &library.NotFoundError{Kind: "issued book", ID: id}
	}
	if err != nil {
		return library.IssuedBook{}, fmt.Errorf("failed to get issued book: %w", err)
	}
	return ib, nil
}

// FindOutstanding returns the open record for the pair, or nil.
func (s *Store) FindOutstanding(ctx context.Context, bookID, readerID string) (*library.IssuedBook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ib, err := scanIssuance(s.db.QueryRowContext(ctx,
		"SELECT "+issuedColumns+" FROM issued_books WHERE book_id = ? AND reader_id = ? AND return_date IS NULL",
		bookID, readerID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find outstanding issued book: %w", err)
	}
	return &ib, nil
}

func issuanceWhere(filter library.IssuanceFilter) (string, []any) {
	where := " WHERE 1=1"
	var args []any
	if filter.BookID != "" {
		where += " AND book_id = ?"
		args = append(args, filter.BookID)
	}
	if filter.ReaderID != "" {
		where += " AND reader_id = ?"
		args = append(args, filter.ReaderID)
	}
	if filter.OutstandingOnly {
		where += " AND return_date IS NULL"
	}
	if !filter.DueBefore.IsZero() {
		where += " AND due_date < ?"
		args = append(args, formatTime(filter.DueBefore))
	}
	return where, args
}

// ListIssuances returns records matching filter.
func (s *Store) ListIssuances(ctx context.Context, filter library.IssuanceFilter) ([]library.IssuedBook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := issuanceWhere(filter)
	order := " ORDER BY issued_date DESC, id ASC"
	if filter.Sort == library.SortDueAsc {
		order = " ORDER BY due_date ASC, id ASC"
	}

	rows, err := s.db.QueryContext(ctx, "SELECT "+issuedColumns+" FROM issued_books"+where+order, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list issued books: %w", err)
	}
	defer rows.Close()

	records := []library.IssuedBook{}
	for rows.Next() {
		ib, err := scanIssuance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, ib)
	}
	return records, rows.Err()
}

// CountOutstanding counts open records matching filter.
func (s *Store) CountOutstanding(ctx context.Context, filter library.IssuanceFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filter.OutstandingOnly = true
	where, args := issuanceWhere(filter)
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM issued_books"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count issued books: %w", err)
	}
	return n, nil
}

// UpdateIssuance writes the correctable columns. return_date is left
// alone; only CloseIssuance sets it.
func (s *Store) UpdateIssuance(ctx context.Context, ib library.IssuedBook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE issued_books SET issued_date = ?, due_date = ?, fine = ?, updated_at = ?
		WHERE id = ?`,
		formatTime(ib.IssuedDate), formatTime(ib.DueDate), ib.Fine.String(), formatTime(ib.UpdatedAt),
		ib.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update issued book: %w", err)
	}
	if ok, err := affected(res); err != nil {
		return err
	} else if !ok {
		return &library.NotFoundError{Kind: "issued book", ID: ib.ID}
	}
	return nil
}

// CloseIssuance sets the return date only while the record is outstanding.
func (s *Store) CloseIssuance(ctx context.Context, id string, returnedAt time.Time, fine decimal.Decimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE issued_books SET return_date = ?, fine = ?, updated_at = ?
		WHERE id = ? AND return_date IS NULL`,
		formatTime(returnedAt), fine.String(), formatTime(returnedAt),
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to close issued book: %w", err)
	}
	ok, err := affected(res)
	if err != nil || ok {
		return ok, err
	}

	found, err := s.exists(ctx, "issued_books", id)
	if err != nil {
		return false, err
	}
	if !found {
		return false, &library.NotFoundError{Kind: "issued book", ID: id}
	}
	return false, nil
}

// DeleteIssuance removes a record and returns it.
func (s *Store) DeleteIssuance(ctx context.Context, id string) (library.IssuedBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ib, err := scanIssuance(s.db.QueryRowContext(ctx,
		"DELETE FROM issued_books WHERE id = ? RETURNING "+issuedColumns, id))
	if errors.Is(err, sql.ErrNoRows) {
		return library.IssuedBook{}, &library.NotFoundError{Kind: "issued book", ID: id}
	}
	if err != nil {
		return library.IssuedBook{}, fmt.Errorf("failed to delete issued book: %w", err)
	}
	return ib, nil
}
