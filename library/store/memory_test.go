package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/library-engine/library"
	"github.com/warp/library-engine/library/store"
)

var jan10 = time.Date(2025, time.January, 10, 9, 0, 0, 0, time.UTC)

// =============================================================================
// UNIQUENESS
// =============================================================================

func admin(email, phone, cnic string) library.Admin {
	return library.Admin{
		ID: library.NewID(), Name: "Sana", FatherName: "Imran", Email: email,
		PasswordHash: "$2a$hash", Role: library.RoleManager, Address: "Karachi",
		Phone: phone, CNIC: cnic, Age: 35, CreatedAt: jan10, UpdatedAt: jan10,
	}
}

func TestMemory_AdminConflict_FieldOrder(t *testing.T) {
	// GIVEN: Two stored admins
	// WHEN: A new admin collides on one or more unique columns
	// THEN: The first taken column in the order email, phone, CNIC is
	//       reported, whichever stored admin holds it

	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.CreateAdmin(ctx, admin("sana@example.com", "0321", "42101")))
	require.NoError(t, m.CreateAdmin(ctx, admin("ali@example.com", "0333", "42102")))

	for name, tc := range map[string]struct {
		admin library.Admin
		field string
	}{
		"email ignores case":          {admin("SANA@example.com", "0300", "42999"), "email"},
		"phone":                       {admin("new@example.com", "0321", "42999"), "phone"},
		"CNIC":                        {admin("new@example.com", "0300", "42101"), "CNIC"},
		"phone before CNIC":           {admin("new@example.com", "0321", "42101"), "phone"},
		"phone before CNIC elsewhere": {admin("new@example.com", "0333", "42101"), "phone"},
	} {
		t.Run(name, func(t *testing.T) {
			err := m.CreateAdmin(ctx, tc.admin)
			var ce *library.ConflictError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tc.field, ce.Field)
		})
	}
}

func reader(cnic, card, email string) library.Reader {
	return library.Reader{
		ID: library.NewID(), Name: "Reader", FatherName: "Father", PhoneNumber: "0300",
		CNIC: cnic, CardNumber: card, Email: email, Address: "Lahore", Age: 30,
		CreatedAt: jan10, UpdatedAt: jan10,
	}
}

func TestMemory_ReaderConflict_FieldOrder(t *testing.T) {
	// GIVEN: Two stored readers
	// WHEN: A new reader collides on one or more unique columns
	// THEN: The first taken column in the order CNIC, card number, email
	//       is reported

	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.CreateReader(ctx, reader("CNIC-1", "CARD-1", "reader1@example.com")))
	require.NoError(t, m.CreateReader(ctx, reader("CNIC-2", "CARD-2", "reader2@example.com")))

	for name, tc := range map[string]struct {
		reader library.Reader
		field  string
	}{
		"email ignores case":          {reader("CNIC-9", "CARD-9", "READER1@example.com"), "email"},
		"card before email":           {reader("CNIC-9", "CARD-1", "reader1@example.com"), "card number"},
		"CNIC before card":            {reader("CNIC-2", "CARD-1", "new@example.com"), "CNIC"},
		"card before email elsewhere": {reader("CNIC-9", "CARD-2", "reader1@example.com"), "card number"},
	} {
		t.Run(name, func(t *testing.T) {
			err := m.CreateReader(ctx, tc.reader)
			var ce *library.ConflictError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tc.field, ce.Field)
		})
	}
}

// =============================================================================
// CONDITIONAL WRITES
// =============================================================================

func TestMemory_UpdateBook_LeavesStock(t *testing.T) {
	// GIVEN: A book whose copy was issued after a caller read it
	// WHEN: The caller writes back its stale copy with a new title
	// THEN: The title changes and the stock stays as the swap left it

	ctx := context.Background()
	m := store.NewMemory()
	category := library.Category{ID: library.NewID(), Name: "Fiction", CreatedAt: jan10, UpdatedAt: jan10}
	require.NoError(t, m.CreateCategory(ctx, category))
	stale := library.Book{
		ID: library.NewID(), Title: "Dune", Author: "Herbert", SerialNumber: "SN-1",
		CategoryID: category.ID, CreatedAt: jan10, UpdatedAt: jan10,
	}.WithStock(library.StockFor(1))
	require.NoError(t, m.CreateBook(ctx, stale))

	ok, err := m.SwapStock(ctx, stale.ID, 1, library.StockFor(0))
	require.NoError(t, err)
	require.True(t, ok)

	stale.Title = "Dune Messiah"
	require.NoError(t, m.UpdateBook(ctx, stale))

	got, err := m.GetBook(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", got.Title)
	assert.Equal(t, library.StockFor(0), got.Stock())
}
