package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/library-engine/library"
)

// =============================================================================
// BOOK HANDLERS (/api/books)
// =============================================================================

func (h *Handler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req CreateBookRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.validate(req); err != nil {
		h.writeError(w, r, err)
		return
	}
	book, err := h.Catalog.CreateBook(r.Context(), library.BookInput{
		Title:        req.Title,
		Author:       req.Author,
		SerialNumber: req.SerialNumber,
		Edition:      req.Edition,
		Price:        *req.Price,
		Quantity:     *req.Quantity,
		CategoryID:   req.CategoryID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "book created successfully", toBookDTO(book))
}

func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.Catalog.GetBook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "book fetched successfully", toBookDTO(book))
}

func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.Catalog.ListBooks(r.Context())
	h.writeBooks(w, r, books, err)
}

func (h *Handler) ListAvailableBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.Catalog.ListAvailableBooks(r.Context())
	h.writeBooks(w, r, books, err)
}

func (h *Handler) ListBooksByCategory(w http.ResponseWriter, r *http.Request) {
	books, err := h.Catalog.ListBooksByCategory(r.Context(), chi.URLParam(r, "categoryId"))
	h.writeBooks(w, r, books, err)
}

func (h *Handler) writeBooks(w http.ResponseWriter, r *http.Request, books []library.BookView, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]BookDTO, len(books))
	for i, b := range books {
		dtos[i] = toBookDTO(b)
	}
	writeData(w, http.StatusOK, "books fetched successfully", dtos)
}

// UpdateBook patches a book. A quantity edit re-derives availability.
func (h *Handler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	var req UpdateBookRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.validate(req); err != nil {
		h.writeError(w, r, err)
		return
	}
	book, err := h.Catalog.UpdateBook(r.Context(), chi.URLParam(r, "id"), library.BookPatch{
		Title:        req.Title,
		Author:       req.Author,
		SerialNumber: req.SerialNumber,
		Edition:      req.Edition,
		Price:        req.Price,
		Quantity:     req.Quantity,
		CategoryID:   req.CategoryID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "book updated successfully", toBookDTO(book))
}

func (h *Handler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeleteBook(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "book deleted successfully", nil)
}
