package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/library-engine/library"
)

// =============================================================================
// READER HANDLERS (/api/readers)
// =============================================================================
//
// Create and update take multipart forms: text fields plus "image" (image/*)
// and "document" (application/pdf) file parts.

func (h *Handler) CreateReader(w http.ResponseWriter, r *http.Request) {
	if !isMultipart(r) {
		h.writeError(w, r, library.NewValidationError("body", "must be multipart/form-data"))
		return
	}
	if err := h.parseMultipart(w, r); err != nil {
		h.writeError(w, r, err)
		return
	}
	var form ReaderForm
	if err := decodeForm(r.MultipartForm.Value, &form); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.validate(form); err != nil {
		h.writeError(w, r, err)
		return
	}

	image, closeImage, err := h.formFile(r, "image")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer closeImage()
	document, closeDocument, err := h.formFile(r, "document")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer closeDocument()

	reader, err := h.Readers.Register(r.Context(), library.ReaderInput{
		Name:        form.Name,
		FatherName:  form.FatherName,
		PhoneNumber: form.PhoneNumber,
		CNIC:        form.CNIC,
		CardNumber:  form.CardNumber,
		Email:       form.Email,
		Address:     form.Address,
		Age:         form.Age,
		Image:       image,
		Document:    document,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "reader created successfully", toReaderDTO(reader))
}

func (h *Handler) ListReaders(w http.ResponseWriter, r *http.Request) {
	readers, err := h.Readers.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]ReaderDTO, len(readers))
	for i, reader := range readers {
		dtos[i] = toReaderDTO(reader)
	}
	writeData(w, http.StatusOK, "readers fetched successfully", dtos)
}

func (h *Handler) GetReader(w http.ResponseWriter, r *http.Request) {
	reader, err := h.Readers.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "reader fetched successfully", toReaderDTO(reader))
}

func (h *Handler) UpdateReader(w http.ResponseWriter, r *http.Request) {
	if !isMultipart(r) {
		h.writeError(w, r, library.NewValidationError("body", "must be multipart/form-data"))
		return
	}
	if err := h.parseMultipart(w, r); err != nil {
		h.writeError(w, r, err)
		return
	}
	var form ReaderPatchForm
	if err := decodeForm(r.MultipartForm.Value, &form); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.validate(form); err != nil {
		h.writeError(w, r, err)
		return
	}

	image, closeImage, err := h.formFile(r, "image")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer closeImage()
	document, closeDocument, err := h.formFile(r, "document")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer closeDocument()

	reader, err := h.Readers.Update(r.Context(), chi.URLParam(r, "id"), library.ReaderPatch{
		Name:        form.Name,
		FatherName:  form.FatherName,
		PhoneNumber: form.PhoneNumber,
		CNIC:        form.CNIC,
		CardNumber:  form.CardNumber,
		Email:       form.Email,
		Address:     form.Address,
		Age:         form.Age,
		Image:       image,
		Document:    document,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "reader updated successfully", toReaderDTO(reader))
}

func (h *Handler) ToggleReaderBlock(w http.ResponseWriter, r *http.Request) {
	reader, err := h.Readers.ToggleBlock(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	message := "reader unblocked successfully"
	if reader.IsBlocked {
		message = "reader blocked successfully"
	}
	writeData(w, http.StatusOK, message, toReaderDTO(reader))
}

func (h *Handler) DeleteReader(w http.ResponseWriter, r *http.Request) {
	if err := h.Readers.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "reader deleted successfully", nil)
}
