package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/library-engine/library"
)

// =============================================================================
// READER STORE (library.ReaderStore interface)
// =============================================================================

const readerColumns = `id, name, father_name, phone_number, cnic, card_number, email,
	address, age, image_key, document_key, is_blocked, created_at, updated_at`

func readerUnique(r library.Reader) []uniqueColumn {
	return []uniqueColumn{
		{column: "cnic", label: "CNIC", value: r.CNIC},
		{column: "card_number", label: "card number", value: r.CardNumber},
		{column: "email", label: "email", value: r.Email},
	}
}

func scanReader(row scanner) (library.Reader, error) {
	var r library.Reader
	var blocked int
	var createdAt, updatedAt string
	if err := row.Scan(&r.ID, &r.Name, &r.FatherName, &r.PhoneNumber, &r.CNIC, &r.CardNumber,
		&r.Email, &r.Address, &r.Age, &r.ImageKey, &r.DocumentKey, &blocked,
		&createdAt, &updatedAt); err != nil {
		return library.Reader{}, err
	}

	var err error
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return library.Reader{}, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return library.Reader{}, err
	}
	r.IsBlocked = blocked == 1
	return r, nil
}

// CreateReader inserts a reader.
func (s *Store) CreateReader(ctx context.Context, r library.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO readers (`+readerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.FatherName, r.PhoneNumber, r.CNIC, r.CardNumber, r.Email,
		r.Address, r.Age, r.ImageKey, r.DocumentKey, boolInt(r.IsBlocked),
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		return s.conflictIn(ctx, err, "reader", "readers", r.ID, readerUnique(r), "create")
	}
	return nil
}

// GetReader retrieves a reader by ID.
func (s *Store) GetReader(ctx context.Context, id string) (library.Reader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := scanReader(s.db.QueryRowContext(ctx, "SELECT "+readerColumns+" FROM readers WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return library.Reader{}, &library.NotFoundError{Kind: "reader", ID: id}
	}
	if err != nil {
		return library.Reader{}, fmt.Errorf("failed to get reader: %w", err)
	}
	return r, nil
}

// ListReaders returns all readers, newest first.
func (s *Store) ListReaders(ctx context.Context) ([]library.Reader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+readerColumns+" FROM readers ORDER BY created_at DESC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list readers: %w", err)
	}
	defer rows.Close()

	readers := []library.Reader{}
	for rows.Next() {
		r, err := scanReader(rows)
		if err != nil {
			return nil, err
		}
		readers = append(readers, r)
	}
	return readers, rows.Err()
}

// UpdateReader replaces every column of an existing reader.
func (s *Store) UpdateReader(ctx context.Context, r library.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE readers SET name = ?, father_name = ?, phone_number = ?, cnic = ?, card_number = ?,
			email = ?, address = ?, age = ?, image_key = ?, document_key = ?, is_blocked = ?,
			updated_at = ?
		WHERE id = ?`,
		r.Name, r.FatherName, r.PhoneNumber, r.CNIC, r.CardNumber,
		r.Email, r.Address, r.Age, r.ImageKey, r.DocumentKey, boolInt(r.IsBlocked),
		formatTime(r.UpdatedAt),
		r.ID,
	)
	if err != nil {
		return s.conflictIn(ctx, err, "reader", "readers", r.ID, readerUnique(r), "update")
	}
	if ok, err := affected(res); err != nil {
		return err
	} else if !ok {
		return &library.NotFoundError{Kind: "reader", ID: r.ID}
	}
	return nil
}

// DeleteReader removes a reader.
func (s *Store) DeleteReader(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM readers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete reader: %w", err)
	}
	if ok, err := affected(res); err != nil {
		return err
	} else if !ok {
		return &library.NotFoundError{Kind: "reader", ID: id}
	}
	return nil
}
