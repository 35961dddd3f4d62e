/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack, and the route table
  with the roles each route admits.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Access log: logrus entry per request (method, path, status, bytes)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the admin frontend
  5. Rate limit: Per-IP token bucket (when enabled)

ROUTE GROUPS:
  /health                 Liveness + storage ping
  /api/v1/auth/*          Login (public), logout
  /api/v1/admins/*        Admin accounts (super-admin)
  /api/v1/categories/*    Categories
  /api/books/*            Catalog
  /api/readers/*          Readers (multipart)
  /api/issued-books/*     Issuance lifecycle
  /api/payments/*         Membership payments
  /files/*                Signed local uploads (local storage backend only)

ROLES:
  Staff       librarian, super-admin, manager
  Management  super-admin, manager
  Desk        librarian, super-admin
  (none)      any authenticated admin

SEE ALSO:
  - handlers.go: Handler implementations
  - access/access.go: Role sets
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/library-engine/access"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(accessLog(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	if h.opts.RateLimit.Enabled {
		r.Use(newIPLimiter(h.opts.RateLimit.RPS, h.opts.RateLimit.Burst).middleware)
	}

	r.Get("/health", h.Health)

	if h.opts.Files != nil {
		r.Handle("/files/*", http.StripPrefix("/files/", h.opts.Files))
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Route("/auth", func(r chi.Router) {
				r.Post("/login", h.Login)
				r.With(h.authenticate).Post("/logout", h.Logout)
			})

			r.Route("/admins", func(r chi.Router) {
				r.Use(h.authenticate)
				r.With(h.requireRoles(access.SuperAdmin...)).Post("/create-admin", h.CreateAdmin)
			})

			r.Route("/categories", func(r chi.Router) {
				r.Use(h.authenticate)
				r.With(h.requireRoles(access.Staff...)).Post("/create-category", h.CreateCategory)
				r.With(h.requireRoles(access.Staff...)).Put("/update-category/{id}", h.UpdateCategory)
				r.Get("/get-category/{id}", h.GetCategory)
				r.Get("/all-categories", h.ListCategories)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)

			// Book routes
			r.Route("/books", func(r chi.Router) {
				r.With(h.requireRoles(access.Staff...)).Post("/create", h.CreateBook)
				r.Get("/get-all-books", h.ListBooks)
				r.Get("/get-available-books", h.ListAvailableBooks)
				r.Get("/get-book-by-id/{id}", h.GetBook)
				r.Get("/get-books-by-category/{categoryId}", h.ListBooksByCategory)
				r.With(h.requireRoles(access.Staff...)).Put("/update-book/{id}", h.UpdateBook)
				r.With(h.requireRoles(access.Management...)).Delete("/delete-book/{id}", h.DeleteBook)
			})

			// Reader routes
			r.Route("/readers", func(r chi.Router) {
				r.With(h.requireRoles(access.Librarians...)).Post("/create", h.CreateReader)
				r.Group(func(r chi.Router) {
					r.Use(h.requireRoles(access.Desk...))
					r.Get("/get-all-readers", h.ListReaders)
					r.Get("/get-by-id/{id}", h.GetReader)
					r.Put("/update-reader/{id}", h.UpdateReader)
					r.Patch("/toggle-block-status/{id}/block", h.ToggleReaderBlock)
				})
				r.With(h.requireRoles(access.SuperAdmin...)).Delete("/delete-reader/{id}", h.DeleteReader)
			})

			// Issued book routes
			r.Route("/issued-books", func(r chi.Router) {
				r.With(h.requireRoles(access.Staff...)).Post("/issue", h.IssueBook)
				r.Get("/get-all-issued-books", h.ListIssuedBooks)
				r.Get("/get-current-issued-books", h.ListCurrentIssuedBooks)
				r.Get("/get-overdue-issued-books", h.ListOverdueIssuedBooks)
				r.Get("/get-issued-book/{id}", h.GetIssuedBook)
				r.Get("/get-issued-books-by-reader/{readerId}", h.ListIssuedBooksByReader)
				r.With(h.requireRoles(access.Staff...)).Patch("/return-book/{id}/return", h.ReturnBook)
				r.With(h.requireRoles(access.Staff...)).Put("/update-issued-book/{id}", h.UpdateIssuedBook)
				r.With(h.requireRoles(access.Management...)).Delete("/delete-issued-book/{id}", h.DeleteIssuedBook)
			})

			// Payment routes
			r.Route("/payments", func(r chi.Router) {
				r.Use(h.requireRoles(access.Staff...))
				r.Post("/create", h.RecordPayment)
				r.Get("/get-payments-by-reader/{readerId}", h.ListReaderPayments)
			})
		})
	})

	return r
}
