package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/warp/library-engine/library"
)

// =============================================================================
// BOOK STORE (library.BookStore interface)
// =============================================================================

const bookColumns = `id, title, author, serial_number, edition, price, quantity,
	is_available, status, category_id, created_at, updated_at`

var bookUnique = map[string]string{
	"books.serial_number": "serial number",
	"books.id":            "id",
}

func bookValues(b library.Book) map[string]string {
	return map[string]string{"serial number": b.SerialNumber, "id": b.ID}
}

func scanBook(row scanner) (library.Book, error) {
	var b library.Book
	var price, status, createdAt, updatedAt string
	var available int
	if err := row.Scan(&b.ID, &b.Title, &b.Author, &b.SerialNumber, &b.Edition, &price,
		&b.Quantity, &available, &status, &b.CategoryID, &createdAt, &updatedAt); err != nil {
		return library.Book{}, err
	}

	var err error
	if b.Price, err = parseDecimal(price); err != nil {
		return library.Book{}, err
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return library.Book{}, err
	}
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return library.Book{}, err
	}
	b.IsAvailable = available == 1
	b.Status = library.BookStatus(status)
	return b, nil
}

// CreateBook inserts a book.
func (s *Store) CreateBook(ctx context.Context, b library.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO books (`+bookColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Title, b.Author, b.SerialNumber, b.Edition, b.Price.String(), b.Quantity,
		boolInt(b.IsAvailable), string(b.Status), b.CategoryID,
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
	)
	if err != nil {
		return conflictOrWrap(err, "book", bookUnique, bookValues(b), "create")
	}
	return nil
}

// GetBook retrieves a book by ID.
func (s *Store) GetBook(ctx context.Context, id string) (library.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := scanBook(s.db.QueryRowContext(ctx, "SELECT "+bookColumns+" FROM books WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return library.Book{}, &library.NotFoundError{Kind: "book", ID: id}
	}
	if err != nil {
		return library.Book{}, fmt.Errorf("failed to get book: %w", err)
	}
	return b, nil
}

// ListBooks returns books matching filter.
func (s *Store) ListBooks(ctx context.Context, filter library.BookFilter) ([]library.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + bookColumns + " FROM books WHERE 1=1"
	var args []any
	if filter.CategoryID != "" {
		query += " AND category_id = ?"
		args = append(args, filter.CategoryID)
	}
	if filter.AvailableOnly {
		query += " AND is_available = 1 AND quantity > 0"
	}
	if filter.Sort == library.BookSortTitle {
		query += " ORDER BY title ASC, id ASC"
	} else {
		query += " ORDER BY created_at DESC, id ASC"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	books := []library.Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// UpdateBook writes the descriptive columns of an existing book. Stock
// columns are written only by SwapStock.
func (s *Store) UpdateBook(ctx context.Context, b library.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE books SET title = ?, author = ?, serial_number = ?, edition = ?, price = ?,
			category_id = ?, updated_at = ?
		WHERE id = ?`,
		b.Title, b.Author, b.SerialNumber, b.Edition, b.Price.String(),
		b.CategoryID, formatTime(b.UpdatedAt),
		b.ID,
	)
	if err != nil {
		return conflictOrWrap(err, "book", bookUnique, bookValues(b), "update")
	}
	if ok, err := affected(res); err != nil {
		return err
	} else if !ok {
		return &library.NotFoundError{Kind: "book", ID: b.ID}
	}
	return nil
}

// DeleteBook removes a book.
func (s *Store) DeleteBook(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM books WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}
	if ok, err := affected(res); err != nil {
		return err
	} else if !ok {
		return &library.NotFoundError{Kind: "book", ID: id}
	}
	return nil
}

// SwapStock writes next only while the stored quantity equals expected.
func (s *Store) SwapStock(ctx context.Context, id string, expectedQuantity int, next library.Stock) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE books SET quantity = ?, is_available = ?, status = ?, updated_at = ?
		WHERE id = ? AND quantity = ?`,
		next.Quantity, boolInt(next.IsAvailable), string(next.Status), formatTime(time.Now()),
		id, expectedQuantity,
	)
	if err != nil {
		return false, fmt.Errorf("failed to swap stock: %w", err)
	}
	ok, err := affected(res)
	if err != nil || ok {
		return ok, err
	}

	found, err := s.exists(ctx, "books", id)
	if err != nil {
		return false, err
	}
	if !found {
		return false, &library.NotFoundError{Kind: "book", ID: id}
	}
	return false, nil
}
