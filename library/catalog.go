/*
catalog.go - Categories and books

PURPOSE:
  Registration and maintenance of the catalog. Stock on create and on a
  direct quantity edit is derived with StockFor, so the stock invariant
  holds no matter which path wrote it.

RULES:
  - A book's category must exist.
  - Serial numbers and category names are unique (store-enforced).
  - A book cannot be deleted while outstanding issuances reference it.

SEE ALSO:
  - inventory.go: Issuance-driven stock changes
*/
package library

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const minCategoryNameLength = 3

// BookView is a book joined with its category.
type BookView struct {
	Book
	Category *Category
}

// BookInput carries the fields of a new book.
type BookInput struct {
	Title        string
	Author       string
	SerialNumber string
	Edition      string
	Price        decimal.Decimal
	Quantity     int
	CategoryID   string
}

// BookPatch lists the fields UpdateBook may change.
type BookPatch struct {
	Title        *string
	Author       *string
	SerialNumber *string
	Edition      *string
	Price        *decimal.Decimal
	Quantity     *int
	CategoryID   *string
}

// Catalog manages categories and books.
type Catalog struct {
	categories CategoryStore
	books      BookStore
	issued     IssuanceStore
	inventory  *Inventory
	Now        Clock
}

// NewCatalog creates a catalog over store.
func NewCatalog(store Store) *Catalog {
	return &Catalog{
		categories: store,
		books:      store,
		issued:     store,
		inventory:  NewInventory(store),
		Now:        SystemClock,
	}
}

// =============================================================================
// CATEGORIES
// =============================================================================

func validateCategoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) < minCategoryNameLength {
		return "", NewValidationError("name", fmt.Sprintf("must be at least %d characters", minCategoryNameLength))
	}
	return name, nil
}

// CreateCategory adds a category with a unique name.
func (c *Catalog) CreateCategory(ctx context.Context, name string) (Category, error) {
	name, err := validateCategoryName(name)
	if err != nil {
		return Category{}, err
	}
	now := c.Now()
	category := Category{ID: NewID(), Name: name, CreatedAt: now, UpdatedAt: now}
	if err := c.categories.CreateCategory(ctx, category); err != nil {
		return Category{}, err
	}
	return category, nil
}

// RenameCategory changes a category's name.
func (c *Catalog) RenameCategory(ctx context.Context, id, name string) (Category, error) {
	name, err := validateCategoryName(name)
	if err != nil {
		return Category{}, err
	}
	category, err := c.categories.GetCategory(ctx, id)
	if err != nil {
		return Category{}, err
	}
	category.Name = name
	category.UpdatedAt = c.Now()
	if err := c.categories.UpdateCategory(ctx, category); err != nil {
		return Category{}, err
	}
	return category, nil
}

// GetCategory returns one category.
func (c *Catalog) GetCategory(ctx context.Context, id string) (Category, error) {
	return c.categories.GetCategory(ctx, id)
}

// ListCategories returns all categories by name.
func (c *Catalog) ListCategories(ctx context.Context) ([]Category, error) {
	return c.categories.ListCategories(ctx)
}

// =============================================================================
// BOOKS
// =============================================================================

func validateBook(b Book) error {
	fields := make(map[string]string)
	if strings.TrimSpace(b.Title) == "" {
		fields["title"] = "is required"
	}
	if strings.TrimSpace(b.Author) == "" {
		fields["author"] = "is required"
	}
	if strings.TrimSpace(b.SerialNumber) == "" {
		fields["serialNumber"] = "is required"
	}
	if b.Price.IsNegative() {
		fields["price"] = "must be at least 0"
	}
	if b.Quantity < 0 {
		fields["quantity"] = "must be at least 0"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// CreateBook registers a book in an existing category.
func (c *Catalog) CreateBook(ctx context.Context, in BookInput) (BookView, error) {
	now := c.Now()
	book := Book{
		ID:           NewID(),
		Title:        strings.TrimSpace(in.Title),
		Author:       strings.TrimSpace(in.Author),
		SerialNumber: strings.TrimSpace(in.SerialNumber),
		Edition:      strings.TrimSpace(in.Edition),
		Price:        in.Price,
		CategoryID:   in.CategoryID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}.WithStock(StockFor(in.Quantity))
	if err := validateBook(book); err != nil {
		return BookView{}, err
	}

	category, err := c.categories.GetCategory(ctx, in.CategoryID)
	if err != nil {
		return BookView{}, err
	}
	if err := c.books.CreateBook(ctx, book); err != nil {
		return BookView{}, err
	}
	return BookView{Book: book, Category: &category}, nil
}

// GetBook returns one book with its category.
func (c *Catalog) GetBook(ctx context.Context, id string) (BookView, error) {
	book, err := c.books.GetBook(ctx, id)
	if err != nil {
		return BookView{}, err
	}
	return c.bookView(ctx, book, nil)
}

// ListBooks returns every book, newest first.
func (c *Catalog) ListBooks(ctx context.Context) ([]BookView, error) {
	return c.listBooks(ctx, BookFilter{Sort: BookSortNewest})
}

// ListAvailableBooks returns issuable books by title.
func (c *Catalog) ListAvailableBooks(ctx context.Context) ([]BookView, error) {
	return c.listBooks(ctx, BookFilter{AvailableOnly: true, Sort: BookSortTitle})
}

// ListBooksByCategory returns the books of an existing category, newest first.
func (c *Catalog) ListBooksByCategory(ctx context.Context, categoryID string) ([]BookView, error) {
	if _, err := c.categories.GetCategory(ctx, categoryID); err != nil {
		return nil, err
	}
	return c.listBooks(ctx, BookFilter{CategoryID: categoryID, Sort: BookSortNewest})
}

func (c *Catalog) listBooks(ctx context.Context, filter BookFilter) ([]BookView, error) {
	books, err := c.books.ListBooks(ctx, filter)
	if err != nil {
		return nil, err
	}
	cache := make(map[string]*Category)
	views := make([]BookView, 0, len(books))
	for _, book := range books {
		view, err := c.bookView(ctx, book, cache)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

func (c *Catalog) bookView(ctx context.Context, book Book, cache map[string]*Category) (BookView, error) {
	if category, ok := cache[book.CategoryID]; ok {
		return BookView{Book: book, Category: category}, nil
	}
	var category *Category
	found, err := c.categories.GetCategory(ctx, book.CategoryID)
	switch {
	case err == nil:
		category = &found
	case !IsNotFound(err):
		return BookView{}, err
	}
	if cache != nil {
		cache[book.CategoryID] = category
	}
	return BookView{Book: book, Category: category}, nil
}

// UpdateBook applies a patch. Descriptive fields are written as one row
// update that leaves the stock columns alone; a quantity change goes
// through the ledger's conditional write so a concurrent issue or return
// is never overwritten by a stale read.
func (c *Catalog) UpdateBook(ctx context.Context, id string, patch BookPatch) (BookView, error) {
	book, err := c.books.GetBook(ctx, id)
	if err != nil {
		return BookView{}, err
	}

	if patch.Title != nil {
		book.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Author != nil {
		book.Author = strings.TrimSpace(*patch.Author)
	}
	if patch.SerialNumber != nil {
		book.SerialNumber = strings.TrimSpace(*patch.SerialNumber)
	}
	if patch.Edition != nil {
		book.Edition = strings.TrimSpace(*patch.Edition)
	}
	if patch.Price != nil {
		book.Price = *patch.Price
	}
	candidate := book
	if patch.Quantity != nil {
		candidate = book.WithStock(StockFor(*patch.Quantity))
	}
	if err := validateBook(candidate); err != nil {
		return BookView{}, err
	}

	if patch.CategoryID != nil && *patch.CategoryID != book.CategoryID {
		if _, err := c.categories.GetCategory(ctx, *patch.CategoryID); err != nil {
			return BookView{}, err
		}
		book.CategoryID = *patch.CategoryID
	}

	book.UpdatedAt = c.Now()
	if err := c.books.UpdateBook(ctx, book); err != nil {
		return BookView{}, err
	}
	if patch.Quantity != nil {
		if _, err := c.inventory.Set(ctx, id, *patch.Quantity); err != nil {
			return BookView{}, err
		}
	}

	current, err := c.books.GetBook(ctx, id)
	if err != nil {
		return BookView{}, err
	}
	return c.bookView(ctx, current, nil)
}

// DeleteBook removes a book no outstanding issuance references.
func (c *Catalog) DeleteBook(ctx context.Context, id string) error {
	if _, err := c.books.GetBook(ctx, id); err != nil {
		return err
	}
	open, err := c.issued.CountOutstanding(ctx, IssuanceFilter{BookID: id, OutstandingOnly: true})
	if err != nil {
		return err
	}
	if open > 0 {
		return &OutstandingIssuancesError{Kind: "book", ID: id, Count: open}
	}
	return c.books.DeleteBook(ctx, id)
}
