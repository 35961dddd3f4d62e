// Package store provides an in-memory library.Store.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/library-engine/library"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps every record in maps behind one lock. It enforces the same
// uniqueness rules and conditional writes as the SQLite store.
type Memory struct {
	mu         sync.RWMutex
	books      map[string]library.Book
	readers    map[string]library.Reader
	issued     map[string]library.IssuedBook
	categories map[string]library.Category
	admins     map[string]library.Admin
	payments   map[string]library.Payment
}

var _ library.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		books:      make(map[string]library.Book),
		readers:    make(map[string]library.Reader),
		issued:     make(map[string]library.IssuedBook),
		categories: make(map[string]library.Category),
		admins:     make(map[string]library.Admin),
		payments:   make(map[string]library.Payment),
	}
}

func notFound(kind, id string) error {
	return &library.NotFoundError{Kind: kind, ID: id}
}

func conflict(kind, field, value string) error {
	return &library.ConflictError{Kind: kind, Field: field, Value: value}
}

func sameText(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// =============================================================================
// BOOKS
// =============================================================================

func (m *Memory) checkBookLocked(b library.Book) error {
	for _, other := range m.books {
		if other.ID != b.ID && other.SerialNumber == b.SerialNumber {
			return conflict("book", "serial number", b.SerialNumber)
		}
	}
	return nil
}

func (m *Memory) CreateBook(_ context.Context, b library.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[b.ID]; ok {
		return conflict("book", "id", b.ID)
	}
	if err := m.checkBookLocked(b); err != nil {
		return err
	}
	m.books[b.ID] = b
	return nil
}

func (m *Memory) GetBook(_ context.Context, id string) (library.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	if !ok {
		return library.Book{}, notFound("book", id)
	}
	return b, nil
}

func (m *Memory) ListBooks(_ context.Context, filter library.BookFilter) ([]library.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]library.Book, 0, len(m.books))
	for _, b := range m.books {
		if filter.CategoryID != "" && b.CategoryID != filter.CategoryID {
			continue
		}
		if filter.AvailableOnly && !b.Issuable() {
			continue
		}
		result = append(result, b)
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if filter.Sort == library.BookSortTitle {
			if a.Title != b.Title {
				return a.Title < b.Title
			}
			return a.ID < b.ID
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return result, nil
}

// UpdateBook keeps the stored stock; SwapStock owns it.
func (m *Memory) UpdateBook(_ context.Context, b library.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.books[b.ID]
	if !ok {
		return notFound("book", b.ID)
	}
	if err := m.checkBookLocked(b); err != nil {
		return err
	}
	m.books[b.ID] = b.WithStock(current.Stock())
	return nil
}

func (m *Memory) DeleteBook(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[id]; !ok {
		return notFound("book", id)
	}
	delete(m.books, id)
	return nil
}

// SwapStock compares the quantity and writes under the same lock.
func (m *Memory) SwapStock(_ context.Context, id string, expectedQuantity int, next library.Stock) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return false, notFound("book", id)
	}
	if b.Quantity != expectedQuantity {
		return false, nil
	}
	b = b.WithStock(next)
	b.UpdatedAt = time.Now().UTC()
	m.books[id] = b
	return true, nil
}

// =============================================================================
// READERS
// =============================================================================

// checkReaderLocked reports the first taken column in the order CNIC,
// card number, email, whichever stored reader holds it.
func (m *Memory) checkReaderLocked(r library.Reader) error {
	taken := func(same func(library.Reader) bool) bool {
		for _, other := range m.readers {
			if other.ID != r.ID && same(other) {
				return true
			}
		}
		return false
	}
	switch {
	case taken(func(o library.Reader) bool { return o.CNIC == r.CNIC }):
		return conflict("reader", "CNIC", r.CNIC)
	case taken(func(o library.Reader) bool { return o.CardNumber == r.CardNumber }):
		return conflict("reader", "card number", r.CardNumber)
	case taken(func(o library.Reader) bool { return sameText(o.Email, r.Email) }):
		return conflict("reader", "email", r.Email)
	}
	return nil
}

func (m *Memory) CreateReader(_ context.Context, r library.Reader) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.readers[r.ID]; ok {
		return conflict("reader", "id", r.ID)
	}
	if err := m.checkReaderLocked(r); err != nil {
		return err
	}
	m.readers[r.ID] = r
	return nil
}

func (m *Memory) GetReader(_ context.Context, id string) (library.Reader, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.readers[id]
	if !ok {
		return library.Reader{}, notFound("reader", id)
	}
	return r, nil
}

func (m *Memory) ListReaders(_ context.Context) ([]library.Reader, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]library.Reader, 0, len(m.readers))
	for _, r := range m.readers {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *Memory) UpdateReader(_ context.Context, r library.Reader) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.readers[r.ID]; !ok {
		return notFound("reader", r.ID)
	}
	if err := m.checkReaderLocked(r); err != nil {
		return err
	}
	m.readers[r.ID] = r
	return nil
}

func (m *Memory) DeleteReader(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.readers[id]; !ok {
		return notFound("reader", id)
	}
	delete(m.readers, id)
	return nil
}

// =============================================================================
// ISSUED BOOKS
// =============================================================================

func (m *Memory) findOutstandingLocked(bookID, readerID string) *library.IssuedBook {
	for _, ib := range m.issued {
		if ib.BookID == bookID && ib.ReaderID == readerID && ib.Outstanding() {
			found := ib
			return &found
		}
	}
	return nil
}

// CreateIssuance rejects a second outstanding record for the same pair.
func (m *Memory) CreateIssuance(_ context.Context, ib library.IssuedBook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.issued[ib.ID]; ok {
		return conflict("issued book", "id", ib.ID)
	}
	if ib.Outstanding() {
		if open := m.findOutstandingLocked(ib.BookID, ib.ReaderID); open != nil {
			return fmt.Errorf("%w: issued book %q", library.ErrDuplicateIssuance, open.ID)
		}
	}
	m.issued[ib.ID] = ib
	return nil
}

func (m *Memory) GetIssuance(_ context.Context, id string) (library.IssuedBook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ib, ok := m.issued[id]
	if !ok {
		return library.IssuedBook{}, notFound("issued book", id)
	}
	return ib, nil
}

func (m *Memory) FindOutstanding(_ context.Context, bookID, readerID string) (*library.IssuedBook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findOutstandingLocked(bookID, readerID), nil
}

func (m *Memory) ListIssuances(_ context.Context, filter library.IssuanceFilter) ([]library.IssuedBook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []library.IssuedBook
	for _, ib := range m.issued {
		if filter.Match(ib) {
			result = append(result, ib)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if filter.Sort == library.SortDueAsc {
			if !a.DueDate.Equal(b.DueDate) {
				return a.DueDate.Before(b.DueDate)
			}
			return a.ID < b.ID
		}
		if !a.IssuedDate.Equal(b.IssuedDate) {
			return a.IssuedDate.After(b.IssuedDate)
		}
		return a.ID < b.ID
	})
	return result, nil
}

func (m *Memory) CountOutstanding(_ context.Context, filter library.IssuanceFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	filter.OutstandingOnly = true
	n := 0
	for _, ib := range m.issued {
		if filter.Match(ib) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) UpdateIssuance(_ context.Context, ib library.IssuedBook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.issued[ib.ID]; !ok {
		return notFound("issued book", ib.ID)
	}
	m.issued[ib.ID] = ib
	return nil
}

// CloseIssuance only closes a record that is still outstanding.
func (m *Memory) CloseIssuance(_ context.Context, id string, returnedAt time.Time, fine decimal.Decimal) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ib, ok := m.issued[id]
	if !ok {
		return false, notFound("issued book", id)
	}
	if !ib.Outstanding() {
		return false, nil
	}
	ib.ReturnDate = &returnedAt
	ib.Fine = fine
	ib.UpdatedAt = returnedAt
	m.issued[id] = ib
	return true, nil
}

func (m *Memory) DeleteIssuance(_ context.Context, id string) (library.IssuedBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ib, ok := m.issued[id]
	if !ok {
		return library.IssuedBook{}, notFound("issued book", id)
	}
	delete(m.issued, id)
	return ib, nil
}

// =============================================================================
// CATEGORIES
// =============================================================================

func (m *Memory) checkCategoryLocked(c library.Category) error {
	for _, other := range m.categories {
		if other.ID != c.ID && sameText(other.Name, c.Name) {
			return conflict("category", "name", c.Name)
		}
	}
	return nil
}

func (m *Memory) CreateCategory(_ context.Context, c library.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[c.ID]; ok {
		return conflict("category", "id", c.ID)
	}
	if err := m.checkCategoryLocked(c); err != nil {
		return err
	}
	m.categories[c.ID] = c
	return nil
}

func (m *Memory) GetCategory(_ context.Context, id string) (library.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.categories[id]
	if !ok {
		return library.Category{}, notFound("category", id)
	}
	return c, nil
}

func (m *Memory) GetCategoryByName(_ context.Context, name string) (library.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.categories {
		if sameText(c.Name, name) {
			return c, nil
		}
	}
	return library.Category{}, notFound("category", name)
}

func (m *Memory) ListCategories(_ context.Context) ([]library.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]library.Category, 0, len(m.categories))
	for _, c := range m.categories {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Memory) UpdateCategory(_ context.Context, c library.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[c.ID]; !ok {
		return notFound("category", c.ID)
	}
	if err := m.checkCategoryLocked(c); err != nil {
		return err
	}
	m.categories[c.ID] = c
	return nil
}

// =============================================================================
// ADMINS
// =============================================================================

func (m *Memory) CreateAdmin(_ context.Context, a library.Admin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.admins[a.ID]; ok {
		return conflict("admin", "id", a.ID)
	}
	taken := func(same func(library.Admin) bool) bool {
		for _, other := range m.admins {
			if same(other) {
				return true
			}
		}
		return false
	}
	switch {
	case taken(func(o library.Admin) bool { return sameText(o.Email, a.Email) }):
		return conflict("admin", "email", a.Email)
	case taken(func(o library.Admin) bool { return o.Phone == a.Phone }):
		return conflict("admin", "phone", a.Phone)
	case taken(func(o library.Admin) bool { return o.CNIC == a.CNIC }):
		return conflict("admin", "CNIC", a.CNIC)
	}
	m.admins[a.ID] = a
	return nil
}

func (m *Memory) GetAdmin(_ context.Context, id string) (library.Admin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.admins[id]
	if !ok {
		return library.Admin{}, notFound("admin", id)
	}
	return a, nil
}

func (m *Memory) GetAdminByEmail(_ context.Context, email string) (library.Admin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.admins {
		if sameText(a.Email, email) {
			return a, nil
		}
	}
	return library.Admin{}, notFound("admin", email)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (m *Memory) CreatePayment(_ context.Context, p library.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.ID]; ok {
		return conflict("payment", "id", p.ID)
	}
	m.payments[p.ID] = p
	return nil
}

func (m *Memory) ListPaymentsByReader(_ context.Context, readerID string) ([]library.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []library.Payment
	for _, p := range m.payments {
		if p.ReaderID == readerID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].PaymentDate.Equal(result[j].PaymentDate) {
			return result[i].PaymentDate.After(result[j].PaymentDate)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}
