/*
handlers.go - HTTP API handlers for the library engine

PURPOSE:
  Exposes the library services over REST. Handles HTTP request/response,
  JSON and multipart decoding, and delegates to the library package.

ENDPOINTS:
  Auth (/api/v1/auth):
    POST   /login                                Issue session cookie + token
    POST   /logout                               Clear session cookie

  Admins (/api/v1/admins):
    POST   /create-admin                         Create staff account

  Categories (/api/v1/categories):
    POST   /create-category
    PUT    /update-category/{id}
    GET    /get-category/{id}
    GET    /all-categories

  Books (/api/books):             see books.go
  Readers (/api/readers):         see readers.go
  Issued books (/api/issued-books): see issued_books.go
  Payments (/api/payments):       see payments.go

ARCHITECTURE:
  Handler holds the services and the session token codec. Each handler:
  1. Decodes the body (decodeJSON / parseMultipart + decodeForm)
  2. Validates struct tags (h.validate)
  3. Calls one library service method
  4. Converts the result to a DTO and writes the envelope
  5. Maps errors through h.writeError

SEE ALSO:
  - dto.go: Request/response data structures
  - respond.go: Envelope and error mapping
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/warp/library-engine/access"
	"github.com/warp/library-engine/library"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Services are the library services the API exposes.
type Services struct {
	Issuance *library.Issuance
	Catalog  *library.Catalog
	Readers  *library.Readers
	Admins   *library.Admins
	Payments *library.Payments
}

// RateLimit configures the per-IP limiter.
type RateLimit struct {
	Enabled bool
	RPS     float64
	Burst   int
}

// Options tune the HTTP surface.
type Options struct {
	CookieName   string
	CookieSecure bool
	MaxFileSize  int64
	CORSOrigins  []string
	RateLimit    RateLimit

	// Files serves /files/* when uploads live on the local filesystem.
	Files http.Handler

	// Ping reports storage health for /health. Nil means always healthy.
	Ping func(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Services

	tokens    *access.Tokens
	log       logrus.FieldLogger
	opts      Options
	validator *validator.Validate
}

// NewHandler creates a handler. Zero options get defaults.
func NewHandler(svc Services, tokens *access.Tokens, log logrus.FieldLogger, opts Options) *Handler {
	if opts.CookieName == "" {
		opts.CookieName = "login"
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = 5 << 20
	}
	return &Handler{
		Services:  svc,
		tokens:    tokens,
		log:       log,
		opts:      opts,
		validator: newValidator(),
	}
}

// Health reports liveness and storage reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"status": "ok", "timestamp": time.Now().UTC()}
	if h.opts.Ping != nil {
		if err := h.opts.Ping(r.Context()); err != nil {
			h.log.WithError(err).Warn("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, errorEnvelope{
				StatusCode: http.StatusServiceUnavailable,
				Message:    "storage unavailable",
			})
			return
		}
	}
	writeData(w, http.StatusOK, "server is running", data)
}

// =============================================================================
// AUTH
// =============================================================================

// Login checks credentials and issues a session token, both as the
// session cookie and in the body for bearer clients.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.validate(req); err != nil {
		h.writeError(w, r, err)
		return
	}

	admin, err := h.Admins.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	token, expiresAt, err := h.tokens.Issue(access.Principal{
		AdminID: admin.ID,
		Email:   admin.Email,
		Role:    admin.Role,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.opts.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.opts.CookieSecure,
		SameSite: h.sameSite(),
	})
	writeData(w, http.StatusOK, "logged in successfully", LoginDTO{
		Admin:     toAdminDTO(admin),
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// Logout clears the session cookie. Tokens are stateless, so a copied
// bearer token stays valid until it expires.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.opts.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.opts.CookieSecure,
		SameSite: h.sameSite(),
	})
	writeData(w, http.StatusOK, "logged out successfully", nil)
}

func (h *Handler) sameSite() http.SameSite {
	if h.opts.CookieSecure {
		return http.SameSiteStrictMode
	}
	return http.SameSiteLaxMode
}

// =============================================================================
// ADMINS
// =============================================================================

// CreateAdmin accepts JSON, or a multipart form with an optional "image".
func (h *Handler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req CreateAdminRequest
	in := library.AdminInput{}

	if isMultipart(r) {
		if err := h.parseMultipart(w, r); err != nil {
			h.writeError(w, r, err)
			return
		}
		if err := decodeForm(r.MultipartForm.Value, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
		image, closeImage, err := h.formFile(r, "image")
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		defer closeImage()
		in.Image = image
	} else if err := decodeJSON(w, r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.validate(req); err != nil {
		h.writeError(w, r, err)
		return
	}

	in.Name = req.Name
	in.FatherName = req.FatherName
	in.Email = req.Email
	in.Password = req.Password
	in.Role = library.Role(req.Role)
	in.Address = req.Address
	in.Phone = req.Phone
	in.CNIC = req.CNIC
	in.Age = req.Age

	admin, err := h.Admins.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "admin created successfully", toAdminDTO(admin))
}

// =============================================================================
// CATEGORIES
// =============================================================================

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.validate(req); err != nil {
		h.writeError(w, r, err)
		return
	}
	category, err := h.Catalog.CreateCategory(r.Context(), req.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "category created successfully", toCategoryDTO(category))
}

func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.validate(req); err != nil {
		h.writeError(w, r, err)
		return
	}
	category, err := h.Catalog.RenameCategory(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "category updated successfully", toCategoryDTO(category))
}

func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	category, err := h.Catalog.GetCategory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "category fetched successfully", toCategoryDTO(category))
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Catalog.ListCategories(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]CategoryDTO, len(categories))
	for i, c := range categories {
		dtos[i] = toCategoryDTO(c)
	}
	writeData(w, http.StatusOK, "categories fetched successfully", dtos)
}
