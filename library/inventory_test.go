package library_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/library-engine/library"
	"github.com/warp/library-engine/library/store"
)

// =============================================================================
// STOCK DERIVATION
// =============================================================================

func TestStockFor_DerivesFlagsFromQuantity(t *testing.T) {
	cases := []struct {
		quantity  int
		available bool
		status    library.BookStatus
	}{
		{0, false, library.StatusAssigned},
		{1, true, library.StatusAvailable},
		{7, true, library.StatusAvailable},
	}
	for _, tc := range cases {
		s := library.StockFor(tc.quantity)
		assert.Equal(t, tc.quantity, s.Quantity)
		assert.Equal(t, tc.available, s.IsAvailable, "quantity %d", tc.quantity)
		assert.Equal(t, tc.status, s.Status, "quantity %d", tc.quantity)
		assert.True(t, s.Consistent())
	}
}

func TestStock_Consistent_DetectsDrift(t *testing.T) {
	assert.False(t, library.Stock{Quantity: 0, IsAvailable: true, Status: library.StatusAvailable}.Consistent())
	assert.False(t, library.Stock{Quantity: 2, IsAvailable: true, Status: library.StatusAssigned}.Consistent())
	assert.False(t, library.Stock{Quantity: -1, IsAvailable: false, Status: library.StatusAssigned}.Consistent())
}

// =============================================================================
// DECREMENT / INCREMENT
// =============================================================================

func TestInventory_DecrementLastCopy_MarksAssigned(t *testing.T) {
	// GIVEN: A book with one copy
	// WHEN: Decrementing
	// THEN: Quantity 0, unavailable, assigned

	f := newFixture(t)
	book := f.book(t, 1)

	updated, err := f.inventory.Decrement(context.Background(), book.ID)
	require.NoError(t, err)

	assert.Equal(t, library.StockFor(0), updated.Stock())
	assert.Equal(t, library.StockFor(0), f.stock(t, book.ID))
}

func TestInventory_DecrementAtZero_Fails(t *testing.T) {
	// GIVEN: A book with no copies
	// WHEN: Decrementing
	// THEN: ErrInsufficientInventory, stock untouched

	f := newFixture(t)
	book := f.book(t, 0)

	_, err := f.inventory.Decrement(context.Background(), book.ID)

	assert.ErrorIs(t, err, library.ErrInsufficientInventory)
	assert.Equal(t, library.StockFor(0), f.stock(t, book.ID))
}

func TestInventory_Increment_AlwaysRestoresAvailability(t *testing.T) {
	// GIVEN: A book with no copies
	// WHEN: Incrementing twice
	// THEN: Quantity grows without a cap and the book is available

	f := newFixture(t)
	book := f.book(t, 0)
	ctx := context.Background()

	_, err := f.inventory.Increment(ctx, book.ID)
	require.NoError(t, err)
	updated, err := f.inventory.Increment(ctx, book.ID)
	require.NoError(t, err)

	assert.Equal(t, library.StockFor(2), updated.Stock())
}

func TestInventory_UnknownBook_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.inventory.Decrement(context.Background(), "missing")

	assert.ErrorIs(t, err, library.ErrNotFound)
}

// =============================================================================
// CONDITIONAL WRITE
// =============================================================================

func TestInventory_LostSwapToDrain_ReportsInsufficient(t *testing.T) {
	// GIVEN: A book with one copy
	// AND: Another writer takes it between our read and our swap
	// WHEN: Decrementing
	// THEN: The retry sees quantity 0 and fails; no negative stock

	backing := store.NewMemory()
	f := newFixtureWith(t, backing, &drainedBeforeSwap{Memory: backing})
	book := f.book(t, 1)

	_, err := f.inventory.Decrement(context.Background(), book.ID)

	assert.ErrorIs(t, err, library.ErrInsufficientInventory)
	assert.Equal(t, library.StockFor(0), f.stock(t, book.ID))
}

func TestInventory_PersistentContention_GivesUp(t *testing.T) {
	// GIVEN: Every swap loses
	// WHEN: Decrementing
	// THEN: Three attempts, then ErrConcurrentModification

	backing := store.NewMemory()
	contended := &contendedSwap{Memory: backing}
	f := newFixtureWith(t, backing, contended)
	book := f.book(t, 5)

	_, err := f.inventory.Decrement(context.Background(), book.ID)

	assert.ErrorIs(t, err, library.ErrConcurrentModification)
	assert.Equal(t, 3, contended.attempts)
	assert.Equal(t, library.StockFor(5), f.stock(t, book.ID))
}

func TestInventory_StoreFailure_NotRetried(t *testing.T) {
	backing := store.NewMemory()
	f := newFixtureWith(t, backing, brokenSwap{Memory: backing})
	book := f.book(t, 2)

	_, err := f.inventory.Decrement(context.Background(), book.ID)

	require.Error(t, err)
	assert.NotErrorIs(t, err, library.ErrConcurrentModification)
	assert.Contains(t, err.Error(), "disk full")
}
