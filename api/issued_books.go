package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/library-engine/library"
)

// =============================================================================
// ISSUED BOOK HANDLERS (/api/issued-books)
// =============================================================================
//
//   POST   /issue                                  201
//   GET    /get-all-issued-books
//   GET    /get-current-issued-books               outstanding, due date asc
//   GET    /get-overdue-issued-books               outstanding past due
//   GET    /get-issued-book/{id}
//   GET    /get-issued-books-by-reader/{readerId}  issued date desc
//   PATCH  /return-book/{id}/return                body {fine?}
//   PUT    /update-issued-book/{id}                issuedDate, dueDate, fine
//   DELETE /delete-issued-book/{id}                restores stock if outstanding

func (h *Handler) IssueBook(w http.ResponseWriter, r *http.Request) {
	var req IssueRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.validate(req); err != nil {
		h.writeError(w, r, err)
		return
	}
	issued, err := h.Issuance.Issue(r.Context(), library.IssueRequest{
		BookID:     req.BookID,
		ReaderID:   req.ReaderID,
		IssuedDate: req.IssuedDate.Time,
		DueDate:    req.DueDate.Time,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "book issued successfully", toIssuedBookDTO(issued))
}

func (h *Handler) ListIssuedBooks(w http.ResponseWriter, r *http.Request) {
	views, err := h.Issuance.List(r.Context())
	h.writeIssuedBooks(w, r, views, err)
}

func (h *Handler) ListCurrentIssuedBooks(w http.ResponseWriter, r *http.Request) {
	views, err := h.Issuance.ListOutstanding(r.Context())
	h.writeIssuedBooks(w, r, views, err)
}

func (h *Handler) ListOverdueIssuedBooks(w http.ResponseWriter, r *http.Request) {
	views, err := h.Issuance.ListOverdue(r.Context(), h.Issuance.Now())
	h.writeIssuedBooks(w, r, views, err)
}

func (h *Handler) ListIssuedBooksByReader(w http.ResponseWriter, r *http.Request) {
	views, err := h.Issuance.ListByReader(r.Context(), chi.URLParam(r, "readerId"))
	h.writeIssuedBooks(w, r, views, err)
}

func (h *Handler) writeIssuedBooks(w http.ResponseWriter, r *http.Request, views []library.IssuedBookView, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "issued books fetched successfully", toIssuedBookDTOs(views))
}

func (h *Handler) GetIssuedBook(w http.ResponseWriter, r *http.Request) {
	view, err := h.Issuance.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "issued book fetched successfully", toIssuedBookDTO(view))
}

// ReturnBook closes an issuance. The body is optional; a missing fine is 0.
func (h *Handler) ReturnBook(w http.ResponseWriter, r *http.Request) {
	var req ReturnRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		h.writeError(w, r, err)
		return
	}
	fine := decimal.Zero
	if req.Fine != nil {
		fine = *req.Fine
	}
	view, err := h.Issuance.Return(r.Context(), chi.URLParam(r, "id"), fine)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "book returned successfully", toIssuedBookDTO(view))
}

func (h *Handler) UpdateIssuedBook(w http.ResponseWriter, r *http.Request) {
	var req UpdateIssuedBookRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := h.Issuance.Update(r.Context(), chi.URLParam(r, "id"), library.IssuancePatch{
		IssuedDate: req.IssuedDate.timePtr(),
		DueDate:    req.DueDate.timePtr(),
		Fine:       req.Fine,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "issued book updated successfully", toIssuedBookDTO(view))
}

func (h *Handler) DeleteIssuedBook(w http.ResponseWriter, r *http.Request) {
	if err := h.Issuance.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "issued book deleted successfully", nil)
}
