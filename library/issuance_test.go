package library_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/library-engine/library"
	"github.com/warp/library-engine/library/store"
)

// =============================================================================
// ISSUE
// =============================================================================

func TestIssuance_IssueLastCopy_AndReturn_RestoresStock(t *testing.T) {
	// GIVEN: A book with quantity 1
	// WHEN: Issued, then returned
	// THEN: 0/unavailable/assigned after issue, 1/available/available after return

	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, 1)
	reader := f.reader(t, false)

	issued := f.issue(t, book.ID, reader.ID)
	assert.Equal(t, library.StockFor(0), f.stock(t, book.ID))
	assert.True(t, issued.Outstanding())
	assert.True(t, issued.Fine.IsZero())

	returned, err := f.issuance.Return(ctx, issued.ID, decimal.Zero)
	require.NoError(t, err)

	assert.Equal(t, library.StockFor(1), f.stock(t, book.ID))
	require.NotNil(t, returned.ReturnDate)
	assert.Equal(t, jan24, *returned.ReturnDate)
}

func TestIssuance_Issue_KeepsCallerDatesAndEnrichesView(t *testing.T) {
	f := newFixture(t)
	book := f.book(t, 3)
	reader := f.reader(t, false)

	view := f.issue(t, book.ID, reader.ID)

	assert.Equal(t, jan10, view.IssuedDate)
	assert.Equal(t, jan24, view.DueDate)
	require.NotNil(t, view.Book)
	assert.Equal(t, book.Title, view.Book.Title)
	assert.Equal(t, book.Author, view.Book.Author)
	assert.Equal(t, book.SerialNumber, view.Book.SerialNumber)
	require.NotNil(t, view.Reader)
	assert.Equal(t, reader.Name, view.Reader.Name)
	assert.Equal(t, reader.Email, view.Reader.Email)
	assert.Equal(t, reader.CardNumber, view.Reader.CardNumber)
	assert.Equal(t, library.StockFor(2), f.stock(t, book.ID))
}

func TestIssuance_DuplicatePair_Rejected(t *testing.T) {
	// GIVEN: Book already outstanding with a reader
	// WHEN: Issuing the same pair again
	// THEN: ErrDuplicateIssuance, stock decremented once only

	f := newFixture(t)
	book := f.book(t, 5)
	reader := f.reader(t, false)
	f.issue(t, book.ID, reader.ID)

	_, err := f.issuance.Issue(context.Background(), library.IssueRequest{
		BookID: book.ID, ReaderID: reader.ID, IssuedDate: jan10, DueDate: jan24,
	})

	assert.ErrorIs(t, err, library.ErrDuplicateIssuance)
	assert.Equal(t, 4, f.stock(t, book.ID).Quantity)
	assert.Equal(t, 1, f.issuanceCount(t))
}

func TestIssuance_SameBookDifferentReaders_Allowed(t *testing.T) {
	f := newFixture(t)
	book := f.book(t, 2)

	f.issue(t, book.ID, f.reader(t, false).ID)
	f.issue(t, book.ID, f.reader(t, false).ID)

	assert.Equal(t, library.StockFor(0), f.stock(t, book.ID))
}

func TestIssuance_BlockedReader_NoMutation(t *testing.T) {
	// GIVEN: A blocked reader
	// WHEN: Issuing
	// THEN: ErrBlocked, no record, no stock change

	f := newFixture(t)
	book := f.book(t, 2)
	reader := f.reader(t, true)

	_, err := f.issuance.Issue(context.Background(), library.IssueRequest{
		BookID: book.ID, ReaderID: reader.ID, IssuedDate: jan10, DueDate: jan24,
	})

	assert.ErrorIs(t, err, library.ErrBlocked)
	assert.Equal(t, library.StockFor(2), f.stock(t, book.ID))
	assert.Zero(t, f.issuanceCount(t))
}

func TestIssuance_NoCopies_Unavailable(t *testing.T) {
	// GIVEN: A book with quantity 0
	// WHEN: Issuing
	// THEN: ErrUnavailable and no record is created

	f := newFixture(t)
	book := f.book(t, 0)
	reader := f.reader(t, false)

	_, err := f.issuance.Issue(context.Background(), library.IssueRequest{
		BookID: book.ID, ReaderID: reader.ID, IssuedDate: jan10, DueDate: jan24,
	})

	assert.ErrorIs(t, err, library.ErrUnavailable)
	assert.Zero(t, f.issuanceCount(t))
}

func TestIssuance_PreconditionOrder(t *testing.T) {
	// GIVEN: Several preconditions fail at once
	// THEN: The first in order wins

	f := newFixture(t)
	ctx := context.Background()
	empty := f.book(t, 0)
	blocked := f.reader(t, true)

	// missing book beats missing reader
	_, err := f.issuance.Issue(ctx, library.IssueRequest{BookID: "nope", ReaderID: "nope"})
	var nf *library.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "book", nf.Kind)

	// unavailable book beats missing reader
	_, err = f.issuance.Issue(ctx, library.IssueRequest{BookID: empty.ID, ReaderID: "nope"})
	assert.ErrorIs(t, err, library.ErrUnavailable)

	// unavailable book beats blocked reader
	_, err = f.issuance.Issue(ctx, library.IssueRequest{BookID: empty.ID, ReaderID: blocked.ID})
	assert.ErrorIs(t, err, library.ErrUnavailable)

	// missing reader
	book := f.book(t, 1)
	_, err = f.issuance.Issue(ctx, library.IssueRequest{BookID: book.ID, ReaderID: "nope"})
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "reader", nf.Kind)
}

func TestIssuance_ReissueAfterReturn_Succeeds(t *testing.T) {
	// GIVEN: A pair that was issued and returned
	// WHEN: Issuing the same pair again
	// THEN: A new outstanding record

	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, 1)
	reader := f.reader(t, false)

	first := f.issue(t, book.ID, reader.ID)
	_, err := f.issuance.Return(ctx, first.ID, decimal.Zero)
	require.NoError(t, err)

	second := f.issue(t, book.ID, reader.ID)

	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, second.Outstanding())
	assert.Equal(t, library.StockFor(0), f.stock(t, book.ID))
}

// =============================================================================
// COMPENSATION
// =============================================================================

func TestIssuance_DecrementFails_RecordRemoved(t *testing.T) {
	// GIVEN: Stock writes fail
	// WHEN: Issuing
	// THEN: The ledger error is returned and the new record is gone

	backing := store.NewMemory()
	f := newFixtureWith(t, backing, brokenSwap{Memory: backing})
	book := f.book(t, 1)
	reader := f.reader(t, false)

	_, err := f.issuance.Issue(context.Background(), library.IssueRequest{
		BookID: book.ID, ReaderID: reader.ID, IssuedDate: jan10, DueDate: jan24,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Zero(t, f.issuanceCount(t))
	assert.Empty(t, f.logHook.AllEntries())
}

func TestIssuance_CompensationFails_Logged(t *testing.T) {
	backing := store.NewMemory()
	f := newFixtureWith(t, backing, brokenSwapAndDelete{brokenSwap{Memory: backing}})
	book := f.book(t, 1)
	reader := f.reader(t, false)

	_, err := f.issuance.Issue(context.Background(), library.IssueRequest{
		BookID: book.ID, ReaderID: reader.ID, IssuedDate: jan10, DueDate: jan24,
	})

	require.Error(t, err)
	require.Len(t, f.logHook.AllEntries(), 1)
	entry := f.logHook.LastEntry()
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, book.ID, entry.Data["book_id"])
}

// =============================================================================
// RETURN
// =============================================================================

func TestIssuance_ReturnTwice_NoDoubleIncrement(t *testing.T) {
	// GIVEN: A returned issuance
	// WHEN: Returning it again
	// THEN: ErrAlreadyReturned and stock unchanged

	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, 1)
	issued := f.issue(t, book.ID, f.reader(t, false).ID)

	_, err := f.issuance.Return(ctx, issued.ID, decimal.Zero)
	require.NoError(t, err)

	_, err = f.issuance.Return(ctx, issued.ID, decimal.Zero)

	assert.ErrorIs(t, err, library.ErrAlreadyReturned)
	assert.Equal(t, library.StockFor(1), f.stock(t, book.ID))
}

func TestIssuance_ConcurrentReturns_OneWins(t *testing.T) {
	f := newFixture(t)
	book := f.book(t, 1)
	issued := f.issue(t, book.ID, f.reader(t, false).ID)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.issuance.Return(context.Background(), issued.ID, decimal.Zero)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, library.ErrAlreadyReturned)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, library.StockFor(1), f.stock(t, book.ID))
}

func TestIssuance_Return_FineClampedAtZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, 2)
	first := f.issue(t, book.ID, f.reader(t, false).ID)
	second := f.issue(t, book.ID, f.reader(t, false).ID)

	negative, err := f.issuance.Return(ctx, first.ID, decimal.NewFromInt(-50))
	require.NoError(t, err)
	positive, err := f.issuance.Return(ctx, second.ID, decimal.RequireFromString("12.50"))
	require.NoError(t, err)

	assert.True(t, negative.Fine.IsZero())
	assert.True(t, positive.Fine.Equal(decimal.RequireFromString("12.5")))
}

func TestIssuance_ReturnUnknown_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.issuance.Return(context.Background(), "missing", decimal.Zero)

	assert.ErrorIs(t, err, library.ErrNotFound)
}

// =============================================================================
// UPDATE
// =============================================================================

func TestIssuance_Update_NoInventoryEffect(t *testing.T) {
	// GIVEN: An outstanding issuance
	// WHEN: Patching due date and fine
	// THEN: Fields change, stock and outstanding state do not

	f := newFixture(t)
	book := f.book(t, 2)
	issued := f.issue(t, book.ID, f.reader(t, false).ID)

	due := feb01
	fine := decimal.NewFromInt(20)
	updated, err := f.issuance.Update(context.Background(), issued.ID, library.IssuancePatch{DueDate: &due, Fine: &fine})
	require.NoError(t, err)

	assert.Equal(t, feb01, updated.DueDate)
	assert.True(t, updated.Fine.Equal(fine))
	assert.True(t, updated.Outstanding())
	assert.Equal(t, library.StockFor(1), f.stock(t, book.ID))
}

func TestIssuance_Update_RejectsBadValues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued := f.issue(t, f.book(t, 1).ID, f.reader(t, false).ID)

	fine := decimal.NewFromInt(-1)
	_, err := f.issuance.Update(ctx, issued.ID, library.IssuancePatch{Fine: &fine})
	assert.ErrorIs(t, err, library.ErrValidation)

	early := jan10.Add(-24 * time.Hour)
	_, err = f.issuance.Update(ctx, issued.ID, library.IssuancePatch{DueDate: &early})
	var ve *library.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "dueDate")
}

func TestIssuance_Issue_DueBeforeIssued_Rejected(t *testing.T) {
	// GIVEN: An available book and a reader
	// WHEN: Issuing with a due date a week before the issued date
	// THEN: Validation error on dueDate; no record, no stock change

	f := newFixture(t)
	book := f.book(t, 1)

	_, err := f.issuance.Issue(context.Background(), library.IssueRequest{
		BookID:     book.ID,
		ReaderID:   f.reader(t, false).ID,
		IssuedDate: jan10,
		DueDate:    jan10.AddDate(0, 0, -7),
	})

	var ve *library.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "dueDate")
	assert.Equal(t, 0, f.issuanceCount(t))
	assert.Equal(t, library.StockFor(1), f.stock(t, book.ID))
}

func TestIssuance_Update_FineOnly_KeepsStoredDates(t *testing.T) {
	// GIVEN: A stored record whose due date precedes its issued date
	// WHEN: Correcting only the fine
	// THEN: The fine is saved; a date patch is still checked

	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, 1)
	record := library.IssuedBook{
		ID:         library.NewID(),
		BookID:     book.ID,
		ReaderID:   f.reader(t, false).ID,
		IssuedDate: jan24,
		DueDate:    jan10,
		Fine:       decimal.Zero,
		CreatedAt:  jan24,
		UpdatedAt:  jan24,
	}
	require.NoError(t, f.store.CreateIssuance(ctx, record))

	fine := decimal.NewFromInt(15)
	updated, err := f.issuance.Update(ctx, record.ID, library.IssuancePatch{Fine: &fine})
	require.NoError(t, err)
	assert.True(t, updated.Fine.Equal(fine))
	assert.Equal(t, jan10, updated.DueDate)

	issued := jan24.AddDate(0, 0, 1)
	_, err = f.issuance.Update(ctx, record.ID, library.IssuancePatch{IssuedDate: &issued})
	assert.ErrorIs(t, err, library.ErrValidation)

	due := feb01
	updated, err = f.issuance.Update(ctx, record.ID, library.IssuancePatch{DueDate: &due})
	require.NoError(t, err)
	assert.Equal(t, feb01, updated.DueDate)
}

// =============================================================================
// DELETE
// =============================================================================

func TestIssuance_DeleteOutstanding_RestoresOneUnit(t *testing.T) {
	f := newFixture(t)
	book := f.book(t, 1)
	issued := f.issue(t, book.ID, f.reader(t, false).ID)

	require.NoError(t, f.issuance.Delete(context.Background(), issued.ID))

	assert.Equal(t, library.StockFor(1), f.stock(t, book.ID))
	assert.Zero(t, f.issuanceCount(t))
}

func TestIssuance_DeleteReturned_LeavesStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, 1)
	issued := f.issue(t, book.ID, f.reader(t, false).ID)
	_, err := f.issuance.Return(ctx, issued.ID, decimal.Zero)
	require.NoError(t, err)

	require.NoError(t, f.issuance.Delete(ctx, issued.ID))

	assert.Equal(t, library.StockFor(1), f.stock(t, book.ID))
}

func TestIssuance_DeleteUnknown_NotFound(t *testing.T) {
	f := newFixture(t)

	err := f.issuance.Delete(context.Background(), "missing")

	assert.True(t, library.IsNotFound(err))
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestIssuance_RaceForLastCopy_OneWinner(t *testing.T) {
	// GIVEN: One copy and many readers issuing at once
	// THEN: Exactly one outstanding record, quantity 0, never negative

	f := newFixture(t)
	book := f.book(t, 1)
	readers := make([]library.Reader, 10)
	for i := range readers {
		readers[i] = f.reader(t, false)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(readers))
	for i, r := range readers {
		wg.Add(1)
		go func(i int, readerID string) {
			defer wg.Done()
			_, errs[i] = f.issuance.Issue(context.Background(), library.IssueRequest{
				BookID: book.ID, ReaderID: readerID, IssuedDate: jan10, DueDate: jan24,
			})
		}(i, r.ID)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.True(t,
			errors.Is(err, library.ErrUnavailable) || errors.Is(err, library.ErrInsufficientInventory),
			"unexpected error: %v", err)
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, library.StockFor(0), f.stock(t, book.ID))
	assert.Equal(t, 1, f.issuanceCount(t))
}

func TestIssuance_StockInvariantHoldsThroughLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, 2)
	r1, r2 := f.reader(t, false), f.reader(t, false)

	a := f.issue(t, book.ID, r1.ID)
	assert.True(t, f.stock(t, book.ID).Consistent())
	b := f.issue(t, book.ID, r2.ID)
	assert.True(t, f.stock(t, book.ID).Consistent())

	_, err := f.issuance.Return(ctx, a.ID, decimal.Zero)
	require.NoError(t, err)
	assert.True(t, f.stock(t, book.ID).Consistent())

	require.NoError(t, f.issuance.Delete(ctx, b.ID))
	assert.True(t, f.stock(t, book.ID).Consistent())
	assert.Equal(t, 2, f.stock(t, book.ID).Quantity)
}

// =============================================================================
// QUERIES
// =============================================================================

func TestIssuance_Queries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, 5)
	alice, bob := f.reader(t, false), f.reader(t, false)

	early, err := f.issuance.Issue(ctx, library.IssueRequest{BookID: book.ID, ReaderID: alice.ID, IssuedDate: jan10, DueDate: feb01})
	require.NoError(t, err)
	late, err := f.issuance.Issue(ctx, library.IssueRequest{BookID: book.ID, ReaderID: bob.ID, IssuedDate: jan24, DueDate: jan24.Add(72 * time.Hour)})
	require.NoError(t, err)

	// list all: issued date descending
	all, err := f.issuance.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, late.ID, all[0].ID)

	// outstanding: due date ascending
	current, err := f.issuance.ListOutstanding(ctx)
	require.NoError(t, err)
	require.Len(t, current, 2)
	assert.Equal(t, late.ID, current[0].ID)

	// by reader
	mine, err := f.issuance.ListByReader(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, early.ID, mine[0].ID)

	_, err = f.issuance.ListByReader(ctx, "missing")
	assert.ErrorIs(t, err, library.ErrNotFound)

	// overdue as of Feb 1: only bob's (due Jan 27)
	overdue, err := f.issuance.ListOverdue(ctx, feb01)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, late.ID, overdue[0].ID)

	// returned records leave the outstanding list
	_, err = f.issuance.Return(ctx, late.ID, decimal.Zero)
	require.NoError(t, err)
	current, err = f.issuance.ListOutstanding(ctx)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, early.ID, current[0].ID)

	got, err := f.issuance.Get(ctx, early.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.Name, got.Reader.Name)
}
