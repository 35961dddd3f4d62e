package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/warp/library-engine/access"
	"github.com/warp/library-engine/api"
	"github.com/warp/library-engine/library"
	"github.com/warp/library-engine/library/store"
	"github.com/warp/library-engine/upload"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	jan10 = time.Date(2025, time.January, 10, 9, 0, 0, 0, time.UTC)
	feb01 = time.Date(2025, time.February, 1, 9, 0, 0, 0, time.UTC)
)

type env struct {
	store    *store.Memory
	services api.Services
	tokens   *access.Tokens
	files    *upload.Local
	logger   *logrus.Logger
	logHook  *logtest.Hook
	router   http.Handler

	seq int
}

func newEnv(t *testing.T) *env {
	return newEnvWith(t, func(*api.Options) {})
}

func newEnvWith(t *testing.T, tune func(*api.Options)) *env {
	t.Helper()
	s := store.NewMemory()
	logger, hook := logtest.NewNullLogger()

	files, err := upload.NewLocal(upload.LocalOptions{
		Dir:        t.TempDir(),
		BaseURL:    "http://library.test",
		SigningKey: "signing-key",
		URLTTL:     time.Hour,
	})
	require.NoError(t, err)

	issuance := library.NewIssuance(s, library.NewInventory(s), logger)
	issuance.Now = library.FixedClock(feb01)
	services := api.Services{
		Issuance: issuance,
		Catalog:  library.NewCatalog(s),
		Readers:  library.NewReaders(s, files, logger),
		Admins:   library.NewAdmins(s, access.NewBcryptHasher(bcrypt.MinCost), files, logger),
		Payments: library.NewPayments(s),
	}
	tokens, err := access.NewTokens("test-secret", time.Hour)
	require.NoError(t, err)

	opts := api.Options{
		CORSOrigins: []string{"http://localhost:5173"},
		Files:       files.Handler(),
		MaxFileSize: 1 << 20,
	}
	tune(&opts)

	return &env{
		store:    s,
		services: services,
		tokens:   tokens,
		files:    files,
		logger:   logger,
		logHook:  hook,
		router:   api.NewRouter(api.NewHandler(services, tokens, logger, opts)),
	}
}

func (e *env) next() int {
	e.seq++
	return e.seq
}

// =============================================================================
// REQUESTS
// =============================================================================

type envelope struct {
	Success    bool              `json:"success"`
	StatusCode int               `json:"statusCode"`
	Message    string            `json:"message"`
	Data       json.RawMessage   `json:"data"`
	Errors     map[string]string `json:"errors"`
}

// sessionFor returns a signed session token for an admin with role.
func (e *env) sessionFor(t *testing.T, role library.Role) string {
	t.Helper()
	token, _, err := e.tokens.Issue(access.Principal{
		AdminID: "admin-" + string(role),
		Email:   string(role) + "@library.test",
		Role:    role,
	})
	require.NoError(t, err)
	return token
}

func (e *env) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// do sends a JSON request. An empty role sends no credential; a string body
// is sent verbatim.
func (e *env) do(t *testing.T, method, path string, body any, role library.Role) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.AddCookie(&http.Cookie{Name: "login", Value: e.sessionFor(t, role)})
	}
	return e.serve(req)
}

func parse(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

// data decodes the envelope's data into T, requiring status.
func data[T any](t *testing.T, rec *httptest.ResponseRecorder, status int) T {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	env := parse(t, rec)
	require.True(t, env.Success)
	require.Equal(t, status, env.StatusCode)
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

type part struct {
	field       string
	filename    string
	contentType string
	body        string
}

// multipartRequest builds a multipart form with text fields and file parts.
func multipartRequest(t *testing.T, method, path string, fields map[string]string, files ...part) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.filename))
		h.Set("Content-Type", f.contentType)
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = io.WriteString(pw, f.body)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

// =============================================================================
// ARRANGE HELPERS
// =============================================================================

type bookDTO struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	SerialNumber string `json:"serialNumber"`
	Quantity     int    `json:"quantity"`
	Status       string `json:"status"`
	IsAvailable  bool   `json:"isAvailable"`
	CategoryID   string `json:"categoryId"`
	Category     *struct {
		Name string `json:"name"`
	} `json:"category"`
}

type issuedDTO struct {
	ID         string     `json:"id"`
	BookID     string     `json:"bookId"`
	ReaderID   string     `json:"readerId"`
	ReturnDate *time.Time `json:"returnDate"`
	Fine       string     `json:"fine"`
	DueDate    time.Time  `json:"dueDate"`
	Book       *struct {
		Title        string `json:"title"`
		SerialNumber string `json:"serialNumber"`
	} `json:"book"`
	Reader *struct {
		Name       string `json:"name"`
		CardNumber string `json:"cardNumber"`
	} `json:"reader"`
}

func (e *env) category(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/categories/create-category",
		map[string]any{"name": fmt.Sprintf("Category %d", e.next())}, library.RoleLibrarian)
	return data[struct {
		ID string `json:"id"`
	}](t, rec, http.StatusCreated).ID
}

func (e *env) book(t *testing.T, quantity int) bookDTO {
	t.Helper()
	n := e.next()
	rec := e.do(t, http.MethodPost, "/api/books/create", map[string]any{
		"title":        fmt.Sprintf("Book %d", n),
		"author":       "Author",
		"serialNumber": fmt.Sprintf("SN-%04d", n),
		"edition":      "1st",
		"price":        "9.99",
		"quantity":     quantity,
		"categoryId":   e.category(t),
	}, library.RoleLibrarian)
	return data[bookDTO](t, rec, http.StatusCreated)
}

func (e *env) getBook(t *testing.T, id string) bookDTO {
	t.Helper()
	return data[bookDTO](t, e.do(t, http.MethodGet, "/api/books/get-book-by-id/"+id, nil, library.RoleManager), http.StatusOK)
}

// reader stores a reader directly; file handling is covered by the
// multipart tests.
func (e *env) reader(t *testing.T, blocked bool) library.Reader {
	t.Helper()
	n := e.next()
	r := library.Reader{
		ID:          library.NewID(),
		Name:        fmt.Sprintf("Reader %d", n),
		FatherName:  "Father",
		PhoneNumber: fmt.Sprintf("0300%07d", n),
		CNIC:        fmt.Sprintf("35202-%07d-1", n),
		CardNumber:  fmt.Sprintf("CARD-%d", n),
		Email:       fmt.Sprintf("reader%d@library.test", n),
		Address:     "1 Library Road",
		Age:         30,
		IsBlocked:   blocked,
		CreatedAt:   jan10,
		UpdatedAt:   jan10,
	}
	require.NoError(t, e.store.CreateReader(context.Background(), r))
	return r
}

func (e *env) issue(t *testing.T, bookID, readerID string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, http.MethodPost, "/api/issued-books/issue", map[string]any{
		"bookId":     bookID,
		"readerId":   readerID,
		"issuedDate": "2025-01-10",
		"dueDate":    "2025-01-24T09:00:00Z",
	}, library.RoleLibrarian)
}
