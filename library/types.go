/*
types.go - Core domain types for the library engine

PURPOSE:
  Defines the records the engine manages: books, readers, issued books,
  categories, admins and membership payments. Stores persist these types
  as-is; the API layer converts them to DTOs.

KEY TYPES:
  Book:        Inventory record. Quantity/IsAvailable/Status form its Stock.
  Reader:      Registered borrower. Blocked readers cannot borrow.
  IssuedBook:  Weak join of one Book and one Reader. Outstanding until
               ReturnDate is set.
  Category:    Named grouping referenced by books.
  Admin:       Staff account used by the access gate.
  Payment:     Membership fee paid by a reader.

STOCK INVARIANT:
  IsAvailable == (Quantity > 0)
  Status == StatusAvailable  <=>  IsAvailable

  Only StockFor() builds a Stock, so every writer goes through the same
  derivation.

SEE ALSO:
  - inventory.go: Availability ledger (the only issuance-driven stock writer)
  - issuance.go: Issuance state machine
  - store.go: Persistence interfaces
*/
package library

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NewID returns a fresh record identifier.
func NewID() string {
	return uuid.NewString()
}

// =============================================================================
// BOOK
// =============================================================================

// BookStatus mirrors IsAvailable as a label.
type BookStatus string

const (
	StatusAvailable BookStatus = "available"
	StatusAssigned  BookStatus = "assigned"
)

// Stock is the inventory triple of a book.
type Stock struct {
	Quantity    int
	IsAvailable bool
	Status      BookStatus
}

// StockFor derives a consistent stock triple from a quantity.
func StockFor(quantity int) Stock {
	if quantity > 0 {
		return Stock{Quantity: quantity, IsAvailable: true, Status: StatusAvailable}
	}
	return Stock{Quantity: quantity, IsAvailable: false, Status: StatusAssigned}
}

// Consistent reports whether the triple satisfies the stock invariant.
func (s Stock) Consistent() bool {
	return s.Quantity >= 0 &&
		s.IsAvailable == (s.Quantity > 0) &&
		(s.Status == StatusAvailable) == s.IsAvailable
}

// Book is a catalog entry with its inventory counters.
type Book struct {
	ID           string
	Title        string
	Author       string
	SerialNumber string
	Edition      string
	Price        decimal.Decimal
	Quantity     int
	Status       BookStatus
	IsAvailable  bool
	CategoryID   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Stock returns the book's inventory triple.
func (b Book) Stock() Stock {
	return Stock{Quantity: b.Quantity, IsAvailable: b.IsAvailable, Status: b.Status}
}

// WithStock returns a copy of b carrying s.
func (b Book) WithStock(s Stock) Book {
	b.Quantity = s.Quantity
	b.IsAvailable = s.IsAvailable
	b.Status = s.Status
	return b
}

// Issuable reports whether a new issuance may draw from this book.
func (b Book) Issuable() bool {
	return b.IsAvailable && b.Quantity > 0
}

// =============================================================================
// READER
// =============================================================================

// Reader is a registered library member.
type Reader struct {
	ID          string
	Name        string
	FatherName  string
	PhoneNumber string
	CNIC        string
	CardNumber  string
	Email       string
	Address     string
	Age         int
	ImageKey    string // opaque key owned by the upload provider
	DocumentKey string // opaque key owned by the upload provider
	IsBlocked   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// =============================================================================
// ISSUED BOOK
// =============================================================================

// IssuedBook records one book lent to one reader.
type IssuedBook struct {
	ID         string
	BookID     string
	ReaderID   string
	IssuedDate time.Time
	DueDate    time.Time
	ReturnDate *time.Time
	Fine       decimal.Decimal
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Outstanding reports whether the book has not been returned yet.
func (ib IssuedBook) Outstanding() bool {
	return ib.ReturnDate == nil
}

// OverdueAt reports whether the record is outstanding past its due date.
func (ib IssuedBook) OverdueAt(t time.Time) bool {
	return ib.Outstanding() && ib.DueDate.Before(t)
}

// =============================================================================
// CATEGORY, ADMIN, PAYMENT
// =============================================================================

// Category groups books.
type Category struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Role is an admin's authorization level.
type Role string

const (
	RoleLibrarian  Role = "librarian"
	RoleSuperAdmin Role = "super-admin"
	RoleManager    Role = "manager"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleLibrarian, RoleSuperAdmin, RoleManager:
		return true
	}
	return false
}

// Admin is a staff account.
type Admin struct {
	ID           string
	Name         string
	FatherName   string
	Email        string
	PasswordHash string
	Role         Role
	Address      string
	Phone        string
	CNIC         string
	Age          int
	IsBlocked    bool
	ImageKey     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PaymentDuration is the membership period a payment covers.
type PaymentDuration string

const (
	DurationMonth PaymentDuration = "month"
	DurationYear  PaymentDuration = "year"
)

// Valid reports whether d is a known duration.
func (d PaymentDuration) Valid() bool {
	return d == DurationMonth || d == DurationYear
}

// ExpiryFrom returns the end of the period starting at t.
func (d PaymentDuration) ExpiryFrom(t time.Time) time.Time {
	if d == DurationYear {
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}

// Payment is a membership fee paid by a reader.
type Payment struct {
	ID            string
	ReaderID      string
	Amount        decimal.Decimal
	Duration      PaymentDuration
	PaymentDate   time.Time
	PaymentExpiry time.Time
	CreatedAt     time.Time
}
