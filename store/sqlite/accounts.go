package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/library-engine/library"
)

// =============================================================================
// CATEGORY STORE
// =============================================================================

var categoryUnique = map[string]string{"categories.name": "name", "categories.id": "id"}

func scanCategory(row scanner) (library.Category, error) {
	var c library.Category
	var createdAt, updatedAt string
	if err := row.Scan(&c.ID, &c.Name, &createdAt, &updatedAt); err != nil {
		return library.Category{}, err
	}
	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return library.Category{}, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return library.Category{}, err
	}
	return c, nil
}

func (s *Store) CreateCategory(ctx context.Context, c library.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO categories (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)",
		c.ID, c.Name, formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		return conflictOrWrap(err, "category", categoryUnique, map[string]string{"name": c.Name, "id": c.ID}, "create")
	}
	return nil
}

func (s *Store) getCategory(ctx context.Context, column, value string) (library.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := scanCategory(s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at, updated_at FROM categories WHERE "+column+" = ?", value))
	if errors.Is(err, sql.ErrNoRows) {
		return library.Category{}, &library.NotFoundError{Kind: "category", ID: value}
	}
	if err != nil {
		return library.Category{}, fmt.Errorf("failed to get category: %w", err)
	}
	return c, nil
}

func (s *Store) GetCategory(ctx context.Context, id string) (library.Category, error) {
	return s.getCategory(ctx, "id", id)
}

// GetCategoryByName matches case-insensitively (column collation).
func (s *Store) GetCategoryByName(ctx context.Context, name string) (library.Category, error) {
	return s.getCategory(ctx, "name", name)
}

func (s *Store) ListCategories(ctx context.Context) ([]library.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, created_at, updated_at FROM categories ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := []library.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *Store) UpdateCategory(ctx context.Context, c library.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE categories SET name = ?, updated_at = ? WHERE id = ?",
		c.Name, formatTime(c.UpdatedAt), c.ID,
	)
	if err != nil {
		return conflictOrWrap(err, "category", categoryUnique, map[string]string{"name": c.Name, "id": c.ID}, "update")
	}
	if ok, err := affected(res); err != nil {
		return err
	} else if !ok {
		return &library.NotFoundError{Kind: "category", ID: c.ID}
	}
	return nil
}

// =============================================================================
// ADMIN STORE
// =============================================================================

const adminColumns = `id, name, father_name, email, password_hash, role, address, phone,
	cnic, age, is_blocked, image_key, created_at, updated_at`

func adminUnique(a library.Admin) []uniqueColumn {
	return []uniqueColumn{
		{column: "email", label: "email", value: a.Email},
		{column: "phone", label: "phone", value: a.Phone},
		{column: "cnic", label: "CNIC", value: a.CNIC},
	}
}

func scanAdmin(row scanner) (library.Admin, error) {
	var a library.Admin
	var role, createdAt, updatedAt string
	var blocked int
	if err := row.Scan(&a.ID, &a.Name, &a.FatherName, &a.Email, &a.PasswordHash, &role,
		&a.Address, &a.Phone, &a.CNIC, &a.Age, &blocked, &a.ImageKey,
		&createdAt, &updatedAt); err != nil {
		return library.Admin{}, err
	}
	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return library.Admin{}, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return library.Admin{}, err
	}
	a.Role = library.Role(role)
	a.IsBlocked = blocked == 1
	return a, nil
}

func (s *Store) CreateAdmin(ctx context.Context, a library.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admins (`+adminColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.FatherName, a.Email, a.PasswordHash, string(a.Role), a.Address, a.Phone,
		a.CNIC, a.Age, boolInt(a.IsBlocked), a.ImageKey,
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		return s.conflictIn(ctx, err, "admin", "admins", a.ID, adminUnique(a), "create")
	}
	return nil
}

func (s *Store) getAdmin(ctx context.Context, column, value string) (library.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, err := scanAdmin(s.db.QueryRowContext(ctx,
		"SELECT "+adminColumns+" FROM admins WHERE "+column+" = ?", value))
	if errors.Is(err, sql.ErrNoRows) {
		return library.Admin{}, &library.NotFoundError{Kind: "admin", ID: value}
	}
	if err != nil {
		return library.Admin{}, fmt.Errorf("failed to get admin: %w", err)
	}
	return a, nil
}

func (s *Store) GetAdmin(ctx context.Context, id string) (library.Admin, error) {
	return s.getAdmin(ctx, "id", id)
}

func (s *Store) GetAdminByEmail(ctx context.Context, email string) (library.Admin, error) {
	return s.getAdmin(ctx, "email", email)
}

// =============================================================================
// PAYMENT STORE
// =============================================================================

func (s *Store) CreatePayment(ctx context.Context, p library.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, reader_id, amount, duration, payment_date, payment_expiry, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ReaderID, p.Amount.String(), string(p.Duration),
		formatTime(p.PaymentDate), formatTime(p.PaymentExpiry), formatTime(p.CreatedAt),
	)
	if err != nil {
		return conflictOrWrap(err, "payment", map[string]string{"payments.id": "id"}, map[string]string{"id": p.ID}, "create")
	}
	return nil
}

func (s *Store) ListPaymentsByReader(ctx context.Context, readerID string) ([]library.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reader_id, amount, duration, payment_date, payment_expiry, created_at
		FROM payments WHERE reader_id = ?
		ORDER BY payment_date DESC, id ASC`, readerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	payments := []library.Payment{}
	for rows.Next() {
		var p library.Payment
		var amount, duration, paidAt, expiry, createdAt string
		if err := rows.Scan(&p.ID, &p.ReaderID, &amount, &duration, &paidAt, &expiry, &createdAt); err != nil {
			return nil, err
		}
		if p.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		if p.PaymentDate, err = parseTime(paidAt); err != nil {
			return nil, err
		}
		if p.PaymentExpiry, err = parseTime(expiry); err != nil {
			return nil, err
		}
		if p.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		p.Duration = library.PaymentDuration(duration)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
