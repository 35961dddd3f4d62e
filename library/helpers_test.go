package library_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/warp/library-engine/library"
	"github.com/warp/library-engine/library/store"
	"github.com/warp/library-engine/upload"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	jan10 = time.Date(2025, time.January, 10, 9, 0, 0, 0, time.UTC)
	jan24 = time.Date(2025, time.January, 24, 9, 0, 0, 0, time.UTC)
	feb01 = time.Date(2025, time.February, 1, 9, 0, 0, 0, time.UTC)
)

type fixture struct {
	store     *store.Memory
	inventory *library.Inventory
	issuance  *library.Issuance
	catalog   *library.Catalog
	logHook   *logtest.Hook

	seq int
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, store.NewMemory(), nil)
}

// newFixtureWith lets a test swap the store the ledger and state machine
// write through. backing is still used to arrange state directly.
func newFixtureWith(t *testing.T, backing *store.Memory, through library.Store) *fixture {
	t.Helper()
	if through == nil {
		through = backing
	}
	log, hook := logtest.NewNullLogger()
	inventory := library.NewInventory(through)
	issuance := library.NewIssuance(through, inventory, log)
	issuance.Now = library.FixedClock(jan24)
	catalog := library.NewCatalog(backing)
	catalog.Now = library.FixedClock(jan10)
	return &fixture{
		store:     backing,
		inventory: inventory,
		issuance:  issuance,
		catalog:   catalog,
		logHook:   hook,
	}
}

func (f *fixture) next() int {
	f.seq++
	return f.seq
}

func (f *fixture) category(t *testing.T) library.Category {
	t.Helper()
	c, err := f.catalog.CreateCategory(context.Background(), fmt.Sprintf("Category %d", f.next()))
	require.NoError(t, err)
	return c
}

func (f *fixture) book(t *testing.T, quantity int) library.Book {
	t.Helper()
	n := f.next()
	view, err := f.catalog.CreateBook(context.Background(), library.BookInput{
		Title:        fmt.Sprintf("Book %d", n),
		Author:       "Author",
		SerialNumber: fmt.Sprintf("SN-%04d", n),
		Edition:      "1st",
		Price:        decimal.NewFromInt(500),
		Quantity:     quantity,
		CategoryID:   f.category(t).ID,
	})
	require.NoError(t, err)
	return view.Book
}

func (f *fixture) reader(t *testing.T, blocked bool) library.Reader {
	t.Helper()
	n := f.next()
	r := library.Reader{
		ID:          library.NewID(),
		Name:        fmt.Sprintf("Reader %d", n),
		FatherName:  "Father",
		PhoneNumber: fmt.Sprintf("0300-%07d", n),
		CNIC:        fmt.Sprintf("35202-%07d-1", n),
		CardNumber:  fmt.Sprintf("CARD-%d", n),
		Email:       fmt.Sprintf("reader%d@example.com", n),
		Address:     "Lahore",
		Age:         30,
		IsBlocked:   blocked,
		CreatedAt:   jan10,
		UpdatedAt:   jan10,
	}
	require.NoError(t, f.store.CreateReader(context.Background(), r))
	return r
}

func (f *fixture) issue(t *testing.T, bookID, readerID string) library.IssuedBookView {
	t.Helper()
	view, err := f.issuance.Issue(context.Background(), library.IssueRequest{
		BookID:     bookID,
		ReaderID:   readerID,
		IssuedDate: jan10,
		DueDate:    jan24,
	})
	require.NoError(t, err)
	return view
}

func (f *fixture) stock(t *testing.T, bookID string) library.Stock {
	t.Helper()
	b, err := f.store.GetBook(context.Background(), bookID)
	require.NoError(t, err)
	return b.Stock()
}

func (f *fixture) issuanceCount(t *testing.T) int {
	t.Helper()
	all, err := f.store.ListIssuances(context.Background(), library.IssuanceFilter{})
	require.NoError(t, err)
	return len(all)
}

// =============================================================================
// STORE DOUBLES
// =============================================================================

// brokenSwap fails every stock write.
type brokenSwap struct {
	*store.Memory
}

func (b brokenSwap) SwapStock(context.Context, string, int, library.Stock) (bool, error) {
	return false, errors.New("disk full")
}

// brokenSwapAndDelete also fails the compensating delete.
type brokenSwapAndDelete struct {
	brokenSwap
}

func (b brokenSwapAndDelete) DeleteIssuance(context.Context, string) (library.IssuedBook, error) {
	return library.IssuedBook{}, errors.New("disk full")
}

// contendedSwap loses every swap as if another writer always got there first.
type contendedSwap struct {
	*store.Memory
	mu       sync.Mutex
	attempts int
}

func (c *contendedSwap) SwapStock(context.Context, string, int, library.Stock) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	return false, nil
}

// drainedBeforeSwap lets another writer take the last copy between the
// ledger's read and its first swap.
type drainedBeforeSwap struct {
	*store.Memory
	once sync.Once
}

func (d *drainedBeforeSwap) SwapStock(ctx context.Context, id string, expected int, next library.Stock) (bool, error) {
	d.once.Do(func() {
		_, _ = d.Memory.SwapStock(ctx, id, expected, library.StockFor(0))
	})
	return d.Memory.SwapStock(ctx, id, expected, next)
}

// interleavedBookUpdate runs during once, between the catalog's read of a
// book and its row write.
type interleavedBookUpdate struct {
	*store.Memory
	during func()
	once   sync.Once
}

func (u *interleavedBookUpdate) UpdateBook(ctx context.Context, b library.Book) error {
	u.once.Do(u.during)
	return u.Memory.UpdateBook(ctx, b)
}

// =============================================================================
// UPLOAD DOUBLE
// =============================================================================

type memoryFiles struct {
	mu      sync.Mutex
	objects map[string][]byte
	failIn  string // Store into this namespace fails
}

func newMemoryFiles() *memoryFiles {
	return &memoryFiles{objects: make(map[string][]byte)}
}

func (m *memoryFiles) Store(_ context.Context, f upload.File, namespace string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if namespace == m.failIn {
		return "", errors.New("bucket unreachable")
	}
	body, err := io.ReadAll(f.Body)
	if err != nil {
		return "", err
	}
	key := upload.NewKey(namespace, f.Name)
	m.objects[key] = body
	return key, nil
}

func (m *memoryFiles) SignedURL(_ context.Context, key string) (string, error) {
	return "https://files.test/" + key + "?sig=x", nil
}

func (m *memoryFiles) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryFiles) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

func (m *memoryFiles) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

func pngFile() *upload.File {
	return &upload.File{Name: "face.png", ContentType: "image/png", Body: bytes.NewReader([]byte("png"))}
}

func pdfFile() *upload.File {
	return &upload.File{Name: "cnic.pdf", ContentType: "application/pdf", Body: bytes.NewReader([]byte("%PDF"))}
}

func discardLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
