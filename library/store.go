/*
store.go - Persistence interfaces for library records

PURPOSE:
  Defines the boundary between the engine and the database. One interface
  per record kind; Store composes them. Implementations are constructed
  explicitly at startup and injected into the services.

CONTRACT:
  - Create* fails with *ConflictError when a unique field is taken.
  - Get, Update and Delete calls fail with *NotFoundError for unknown ids.
  - Every call commits on its own. There are no multi-call transactions;
    the two conditional writes below are what keep the counters honest.

CONDITIONAL WRITES:
  UpdateBook never writes the stock columns, so a catalog edit cannot
  replay a stale quantity over a concurrent issue or return.

  SwapStock:     writes a new stock triple only if the stored quantity
                 still equals the one the caller read. (false, nil) means
                 another writer got there first.
  CloseIssuance: sets return date and fine only if the record is still
                 outstanding. (false, nil) means it was already closed.

IMPLEMENTATIONS:
  - store/sqlite: durable SQLite store
  - library/store: in-memory store for tests and development

SEE ALSO:
  - inventory.go: Uses SwapStock
  - issuance.go: Uses CloseIssuance
*/
package library

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FILTERS
// =============================================================================

// BookSort orders book listings.
type BookSort int

const (
	BookSortNewest BookSort = iota // created_at descending
	BookSortTitle                  // title ascending
)

// BookFilter narrows ListBooks.
type BookFilter struct {
	CategoryID    string
	AvailableOnly bool
	Sort          BookSort
}

// IssuanceSort orders issuance listings.
type IssuanceSort int

const (
	SortIssuedDesc IssuanceSort = iota // issued_date descending
	SortDueAsc                         // due_date ascending
)

// IssuanceFilter narrows ListIssuances and CountOutstanding.
type IssuanceFilter struct {
	BookID          string
	ReaderID        string
	OutstandingOnly bool
	DueBefore       time.Time // zero means no bound
	Sort            IssuanceSort
}

// Match reports whether ib passes the filter. Stores without a query
// language use it directly.
func (f IssuanceFilter) Match(ib IssuedBook) bool {
	if f.BookID != "" && ib.BookID != f.BookID {
		return false
	}
	if f.ReaderID != "" && ib.ReaderID != f.ReaderID {
		return false
	}
	if f.OutstandingOnly && !ib.Outstanding() {
		return false
	}
	if !f.DueBefore.IsZero() && !ib.DueDate.Before(f.DueBefore) {
		return false
	}
	return true
}

// =============================================================================
// STORES
// =============================================================================

// BookStore persists books.
type BookStore interface {
	CreateBook(ctx context.Context, b Book) error
	GetBook(ctx context.Context, id string) (Book, error)
	ListBooks(ctx context.Context, filter BookFilter) ([]Book, error)
	// UpdateBook writes the descriptive fields of b. The stored stock
	// triple is kept; only SwapStock changes it.
	UpdateBook(ctx context.Context, b Book) error
	DeleteBook(ctx context.Context, id string) error

	// SwapStock replaces the stock of book id if its quantity still equals
	// expectedQuantity.
	SwapStock(ctx context.Context, id string, expectedQuantity int, next Stock) (bool, error)
}

// ReaderStore persists readers.
type ReaderStore interface {
	CreateReader(ctx context.Context, r Reader) error
	GetReader(ctx context.Context, id string) (Reader, error)
	ListReaders(ctx context.Context) ([]Reader, error)
	UpdateReader(ctx context.Context, r Reader) error
	DeleteReader(ctx context.Context, id string) error
}

// IssuanceStore persists issued-book records.
type IssuanceStore interface {
	CreateIssuance(ctx context.Context, ib IssuedBook) error
	GetIssuance(ctx context.Context, id string) (IssuedBook, error)

	// FindOutstanding returns the open record for the pair, or nil.
	FindOutstanding(ctx context.Context, bookID, readerID string) (*IssuedBook, error)

	ListIssuances(ctx context.Context, filter IssuanceFilter) ([]IssuedBook, error)
	CountOutstanding(ctx context.Context, filter IssuanceFilter) (int, error)
	UpdateIssuance(ctx context.Context, ib IssuedBook) error

	// CloseIssuance marks id returned if it is still outstanding.
	CloseIssuance(ctx context.Context, id string, returnedAt time.Time, fine decimal.Decimal) (bool, error)

	// DeleteIssuance removes id and returns the removed record.
	DeleteIssuance(ctx context.Context, id string) (IssuedBook, error)
}

// CategoryStore persists categories.
type CategoryStore interface {
	CreateCategory(ctx context.Context, c Category) error
	GetCategory(ctx context.Context, id string) (Category, error)
	GetCategoryByName(ctx context.Context, name string) (Category, error)
	ListCategories(ctx context.Context) ([]Category, error)
	UpdateCategory(ctx context.Context, c Category) error
}

// AdminStore persists admins.
type AdminStore interface {
	CreateAdmin(ctx context.Context, a Admin) error
	GetAdmin(ctx context.Context, id string) (Admin, error)
	GetAdminByEmail(ctx context.Context, email string) (Admin, error)
}

// PaymentStore persists membership payments.
type PaymentStore interface {
	CreatePayment(ctx context.Context, p Payment) error
	ListPaymentsByReader(ctx context.Context, readerID string) ([]Payment, error)
}

// Store is the full entity store.
type Store interface {
	BookStore
	ReaderStore
	IssuanceStore
	CategoryStore
	AdminStore
	PaymentStore
}
