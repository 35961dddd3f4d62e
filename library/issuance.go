/*
issuance.go - Issuance state machine

PURPOSE:
  Governs the lifecycle of one IssuedBook and the cross-entity rules that
  tie it to Book stock and Reader status.

STATES (per book/reader pair):
  NONE      no outstanding record
  ISSUED    outstanding record exists (ReturnDate nil)
  RETURNED  record closed (ReturnDate set)
  DELETED   record removed

TRANSITIONS:
  Issue:  NONE -> ISSUED. Checks, first failure wins:
            book exists           else ErrNotFound
            book issuable         else ErrUnavailable
            reader exists         else ErrNotFound
            reader not blocked    else ErrBlocked
            no open record (pair) else ErrDuplicateIssuance
          Creates the record, then Inventory.Decrement. If the decrement
          fails the new record is deleted again and the ledger error returned.
  Return: ISSUED -> RETURNED. ErrNotFound / ErrAlreadyReturned. Sets the
          return date to now and the fine (negative clamps to zero), then
          Inventory.Increment.
  Update: patches issued date, due date and fine. Never touches stock, and
          cannot set the return date; Return is the only way to close.
  Delete: removes the record; an outstanding one gives its copy back.

KNOWN GAP:
  Return and Delete commit the record change before the stock change. If
  the stock write then fails the two disagree until someone edits the
  book. The error is returned, never swallowed.

SEE ALSO:
  - inventory.go: Availability ledger
  - store.go: IssuanceStore (CloseIssuance is conditional)
*/
package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// VIEWS
// =============================================================================

// BookSummary is the slice of a Book shown next to an issuance.
type BookSummary struct {
	ID           string
	Title        string
	Author       string
	SerialNumber string
	Edition      string
	Price        decimal.Decimal
}

// ReaderSummary is the slice of a Reader shown next to an issuance.
type ReaderSummary struct {
	ID          string
	Name        string
	Email       string
	CardNumber  string
	PhoneNumber string
}

// IssuedBookView is an IssuedBook joined with its book and reader.
// A summary is nil when its record no longer exists.
type IssuedBookView struct {
	IssuedBook
	Book   *BookSummary
	Reader *ReaderSummary
}

func summarizeBook(b Book) *BookSummary {
	return &BookSummary{
		ID:           b.ID,
		Title:        b.Title,
		Author:       b.Author,
		SerialNumber: b.SerialNumber,
		Edition:      b.Edition,
		Price:        b.Price,
	}
}

func summarizeReader(r Reader) *ReaderSummary {
	return &ReaderSummary{
		ID:          r.ID,
		Name:        r.Name,
		Email:       r.Email,
		CardNumber:  r.CardNumber,
		PhoneNumber: r.PhoneNumber,
	}
}

// =============================================================================
// REQUESTS
// =============================================================================

// IssueRequest carries the caller-supplied issuance fields. Both dates are
// taken as given, but DueDate may not precede IssuedDate.
type IssueRequest struct {
	BookID     string
	ReaderID   string
	IssuedDate time.Time
	DueDate    time.Time
}

// IssuancePatch lists the fields Update may change. Nil leaves a field alone.
type IssuancePatch struct {
	IssuedDate *time.Time
	DueDate    *time.Time
	Fine       *decimal.Decimal
}

// =============================================================================
// ISSUANCE SERVICE
// =============================================================================

// Issuance is the issuance state machine.
type Issuance struct {
	books     BookStore
	readers   ReaderStore
	issued    IssuanceStore
	inventory *Inventory
	log       logrus.FieldLogger

	// Now stamps return dates.
	Now Clock
}

// NewIssuance wires the state machine to its stores and ledger.
func NewIssuance(store Store, inventory *Inventory, log logrus.FieldLogger) *Issuance {
	return &Issuance{
		books:     store,
		readers:   store,
		issued:    store,
		inventory: inventory,
		log:       log,
		Now:       SystemClock,
	}
}

// Issue lends a book to a reader.
func (s *Issuance) Issue(ctx context.Context, req IssueRequest) (IssuedBookView, error) {
	if err := checkLoanDates(req.IssuedDate, req.DueDate); err != nil {
		return IssuedBookView{}, err
	}

	book, err := s.books.GetBook(ctx, req.BookID)
	if err != nil {
		return IssuedBookView{}, err
	}
	if !book.Issuable() {
		return IssuedBookView{}, fmt.Errorf("%w: book %q has quantity %d", ErrUnavailable, book.ID, book.Quantity)
	}

	reader, err := s.readers.GetReader(ctx, req.ReaderID)
	if err != nil {
		return IssuedBookView{}, err
	}
	if reader.IsBlocked {
		return IssuedBookView{}, fmt.Errorf("%w: reader %q", ErrBlocked, reader.ID)
	}

	open, err := s.issued.FindOutstanding(ctx, book.ID, reader.ID)
	if err != nil {
		return IssuedBookView{}, err
	}
	if open != nil {
		return IssuedBookView{}, fmt.Errorf("%w: issued book %q", ErrDuplicateIssuance, open.ID)
	}

	now := s.Now()
	record := IssuedBook{
		ID:         NewID(),
		BookID:     book.ID,
		ReaderID:   reader.ID,
		IssuedDate: req.IssuedDate,
		DueDate:    req.DueDate,
		Fine:       decimal.Zero,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.issued.CreateIssuance(ctx, record); err != nil {
		return IssuedBookView{}, err
	}

	updated, err := s.inventory.Decrement(ctx, book.ID)
	if err != nil {
		s.compensateIssue(ctx, record, err)
		return IssuedBookView{}, err
	}

	return IssuedBookView{
		IssuedBook: record,
		Book:       summarizeBook(updated),
		Reader:     summarizeReader(reader),
	}, nil
}

func checkLoanDates(issued, due time.Time) error {
	if due.Before(issued) {
		return NewValidationError("dueDate", "must not be before issuedDate")
	}
	return nil
}

// compensateIssue removes a record whose stock decrement failed.
func (s *Issuance) compensateIssue(ctx context.Context, record IssuedBook, cause error) {
	if _, err := s.issued.DeleteIssuance(ctx, record.ID); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"issued_book_id": record.ID,
			"book_id":        record.BookID,
			"cause":          cause.Error(),
		}).Error("failed to remove issued book after stock decrement failed")
	}
}

// Return closes an outstanding issuance and puts the copy back.
func (s *Issuance) Return(ctx context.Context, id string, fine decimal.Decimal) (IssuedBookView, error) {
	record, err := s.issued.GetIssuance(ctx, id)
	if err != nil {
		return IssuedBookView{}, err
	}
	if !record.Outstanding() {
		return IssuedBookView{}, fmt.Errorf("%w: issued book %q", ErrAlreadyReturned, id)
	}

	if fine.IsNegative() {
		fine = decimal.Zero
	}
	returnedAt := s.Now()

	closed, err := s.issued.CloseIssuance(ctx, id, returnedAt, fine)
	if err != nil {
		return IssuedBookView{}, err
	}
	if !closed {
		return IssuedBookView{}, fmt.Errorf("%w: issued book %q", ErrAlreadyReturned, id)
	}
	record.ReturnDate = &returnedAt
	record.Fine = fine
	record.UpdatedAt = returnedAt

	if _, err := s.inventory.Increment(ctx, record.BookID); err != nil {
		return IssuedBookView{}, fmt.Errorf("issued book %q returned but stock not restored: %w", id, err)
	}

	return s.view(ctx, record)
}

// Update applies a correction patch. Stock is never touched.
func (s *Issuance) Update(ctx context.Context, id string, patch IssuancePatch) (IssuedBookView, error) {
	record, err := s.issued.GetIssuance(ctx, id)
	if err != nil {
		return IssuedBookView{}, err
	}

	if patch.IssuedDate != nil {
		record.IssuedDate = *patch.IssuedDate
	}
	if patch.DueDate != nil {
		record.DueDate = *patch.DueDate
	}
	if patch.Fine != nil {
		if patch.Fine.IsNegative() {
			return IssuedBookView{}, NewValidationError("fine", "must be at least 0")
		}
		record.Fine = *patch.Fine
	}
	// fine-only corrections never re-judge the stored dates
	if patch.IssuedDate != nil || patch.DueDate != nil {
		if err := checkLoanDates(record.IssuedDate, record.DueDate); err != nil {
			return IssuedBookView{}, err
		}
	}
	record.UpdatedAt = s.Now()

	if err := s.issued.UpdateIssuance(ctx, record); err != nil {
		return IssuedBookView{}, err
	}
	return s.view(ctx, record)
}

// Delete removes an issuance. An outstanding one restores its copy.
func (s *Issuance) Delete(ctx context.Context, id string) error {
	removed, err := s.issued.DeleteIssuance(ctx, id)
	if err != nil {
		return err
	}
	if !removed.Outstanding() {
		return nil
	}
	if _, err := s.inventory.Increment(ctx, removed.BookID); err != nil {
		return fmt.Errorf("issued book %q deleted but stock not restored: %w", id, err)
	}
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Get returns one issuance.
func (s *Issuance) Get(ctx context.Context, id string) (IssuedBookView, error) {
	record, err := s.issued.GetIssuance(ctx, id)
	if err != nil {
		return IssuedBookView{}, err
	}
	return s.view(ctx, record)
}

// List returns every issuance, most recently issued first.
func (s *Issuance) List(ctx context.Context) ([]IssuedBookView, error) {
	return s.list(ctx, IssuanceFilter{Sort: SortIssuedDesc})
}

// ListOutstanding returns unreturned issuances, earliest due first.
func (s *Issuance) ListOutstanding(ctx context.Context) ([]IssuedBookView, error) {
	return s.list(ctx, IssuanceFilter{OutstandingOnly: true, Sort: SortDueAsc})
}

// ListByReader returns a reader's issuances, most recently issued first.
func (s *Issuance) ListByReader(ctx context.Context, readerID string) ([]IssuedBookView, error) {
	if _, err := s.readers.GetReader(ctx, readerID); err != nil {
		return nil, err
	}
	return s.list(ctx, IssuanceFilter{ReaderID: readerID, Sort: SortIssuedDesc})
}

// ListOverdue returns unreturned issuances due before asOf, earliest due first.
func (s *Issuance) ListOverdue(ctx context.Context, asOf time.Time) ([]IssuedBookView, error) {
	return s.list(ctx, IssuanceFilter{OutstandingOnly: true, DueBefore: asOf, Sort: SortDueAsc})
}

func (s *Issuance) list(ctx context.Context, filter IssuanceFilter) ([]IssuedBookView, error) {
	records, err := s.issued.ListIssuances(ctx, filter)
	if err != nil {
		return nil, err
	}

	books := make(map[string]*BookSummary)
	readers := make(map[string]*ReaderSummary)
	views := make([]IssuedBookView, 0, len(records))
	for _, record := range records {
		book, ok := books[record.BookID]
		if !ok {
			if book, err = s.bookSummary(ctx, record.BookID); err != nil {
				return nil, err
			}
			books[record.BookID] = book
		}
		reader, ok := readers[record.ReaderID]
		if !ok {
			if reader, err = s.readerSummary(ctx, record.ReaderID); err != nil {
				return nil, err
			}
			readers[record.ReaderID] = reader
		}
		views = append(views, IssuedBookView{IssuedBook: record, Book: book, Reader: reader})
	}
	return views, nil
}

func (s *Issuance) view(ctx context.Context, record IssuedBook) (IssuedBookView, error) {
	book, err := s.bookSummary(ctx, record.BookID)
	if err != nil {
		return IssuedBookView{}, err
	}
	reader, err := s.readerSummary(ctx, record.ReaderID)
	if err != nil {
		return IssuedBookView{}, err
	}
	return IssuedBookView{IssuedBook: record, Book: book, Reader: reader}, nil
}

// bookSummary tolerates a deleted book; closed issuances may outlive it.
func (s *Issuance) bookSummary(ctx context.Context, id string) (*BookSummary, error) {
	book, err := s.books.GetBook(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return summarizeBook(book), nil
}

func (s *Issuance) readerSummary(ctx context.Context, id string) (*ReaderSummary, error) {
	reader, err := s.readers.GetReader(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return summarizeReader(reader), nil
}
