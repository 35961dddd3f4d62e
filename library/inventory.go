/*
inventory.go - Availability ledger for book stock

PURPOSE:
  Keeps a book's Quantity, IsAvailable and Status consistent whenever an
  issuance event moves a copy in or out. This is the only code path that
  changes stock as a side effect of issuing, returning or deleting.

OPERATIONS:
  Decrement: requires Quantity > 0, then Quantity-1 with the triple
             re-derived (last copy out => assigned, unavailable).
  Increment: Quantity+1, always available. There is no upper bound on
             Quantity, so a return never caps the count.
  Set:       the direct inventory edit from the catalog; the triple is
             re-derived from the new quantity.

CONCURRENCY:
  Each mutation is read, compute, conditional write (BookStore.SwapStock,
  guarded on the quantity that was read). Two callers racing for the last
  copy cannot both win: the loser's swap fails, it re-reads, and now sees
  Quantity == 0 and gets ErrInsufficientInventory.

  A swap lost to a writer that did not drain the stock is retried up to
  maxSwapAttempts times, then ErrConcurrentModification is returned. No
  other failure is retried.

SEE ALSO:
  - store.go: SwapStock contract
  - issuance.go: Decrement and Increment
  - catalog.go: Set
*/
package library

import (
	"context"
	"fmt"
)

const maxSwapAttempts = 3

// Inventory is the availability ledger over a BookStore.
type Inventory struct {
	books BookStore
}

// NewInventory creates a ledger writing through books.
func NewInventory(books BookStore) *Inventory {
	return &Inventory{books: books}
}

// Decrement takes one copy of bookID out of stock.
// Returns ErrInsufficientInventory if no copy is left.
func (inv *Inventory) Decrement(ctx context.Context, bookID string) (Book, error) {
	return inv.apply(ctx, bookID, func(current Stock) (Stock, error) {
		if current.Quantity <= 0 {
			return Stock{}, fmt.Errorf("%w: book %q has quantity %d", ErrInsufficientInventory, bookID, current.Quantity)
		}
		return StockFor(current.Quantity - 1), nil
	})
}

// Increment puts one copy of bookID back into stock.
func (inv *Inventory) Increment(ctx context.Context, bookID string) (Book, error) {
	return inv.apply(ctx, bookID, func(current Stock) (Stock, error) {
		return Stock{
			Quantity:    current.Quantity + 1,
			IsAvailable: true,
			Status:      StatusAvailable,
		}, nil
	})
}

// Set replaces the quantity of bookID. It is still a conditional write,
// so it cannot resurrect a quantity that changed after it was read.
func (inv *Inventory) Set(ctx context.Context, bookID string, quantity int) (Book, error) {
	if quantity < 0 {
		return Book{}, NewValidationError("quantity", "must be at least 0")
	}
	return inv.apply(ctx, bookID, func(Stock) (Stock, error) {
		return StockFor(quantity), nil
	})
}

func (inv *Inventory) apply(ctx context.Context, bookID string, next func(Stock) (Stock, error)) (Book, error) {
	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		book, err := inv.books.GetBook(ctx, bookID)
		if err != nil {
			return Book{}, err
		}

		stock, err := next(book.Stock())
		if err != nil {
			return Book{}, err
		}

		swapped, err := inv.books.SwapStock(ctx, bookID, book.Quantity, stock)
		if err != nil {
			return Book{}, fmt.Errorf("failed to update stock of book %q: %w", bookID, err)
		}
		if swapped {
			return book.WithStock(stock), nil
		}
	}
	return Book{}, fmt.Errorf("%w: stock of book %q", ErrConcurrentModification, bookID)
}
