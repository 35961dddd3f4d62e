package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/library-engine/library"
)

// =============================================================================
// PAYMENT HANDLERS (/api/payments)
// =============================================================================

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.validate(req); err != nil {
		h.writeError(w, r, err)
		return
	}
	in := library.PaymentInput{
		ReaderID: req.ReaderID,
		Amount:   *req.Amount,
		Duration: library.PaymentDuration(req.Duration),
	}
	if req.PaymentDate != nil {
		in.PaymentDate = req.PaymentDate.Time
	}
	payment, err := h.Payments.Record(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "payment recorded successfully", toPaymentDTO(payment))
}

func (h *Handler) ListReaderPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Payments.ListByReader(r.Context(), chi.URLParam(r, "readerId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	writeData(w, http.StatusOK, "payments fetched successfully", dtos)
}
