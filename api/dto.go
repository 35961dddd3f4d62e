/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the
  library package's types from the wire contract.

NAMING CONVENTION:
  - *DTO:     Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry validator/v10 struct tags. Handlers call h.validate
  after decoding; the library services re-check their own invariants.

DATES:
  Date accepts "2006-01-02" or RFC3339 on input.

SEE ALSO:
  - respond.go: Envelope and validation plumbing
*/
package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/library-engine/library"
)

// =============================================================================
// DATE
// =============================================================================

// Date is a request timestamp given as a calendar day or RFC3339.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("date must be a string")
	}
	t, err := parseDate(raw)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD or RFC3339)", raw)
}

func (d *Date) timePtr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

// =============================================================================
// AUTH AND ADMINS
// =============================================================================

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginDTO struct {
	Admin     AdminDTO  `json:"admin"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type CreateAdminRequest struct {
	Name       string `json:"name" form:"name" validate:"required,min=3"`
	FatherName string `json:"fatherName" form:"fatherName" validate:"required,min=3"`
	Email      string `json:"email" form:"email" validate:"required,email"`
	Password   string `json:"password" form:"password" validate:"required,min=6"`
	Role       string `json:"role" form:"role" validate:"omitempty,oneof=librarian super-admin manager"`
	Address    string `json:"address" form:"address" validate:"required,min=5"`
	Phone      string `json:"phone" form:"phone" validate:"required,pkphone"`
	CNIC       string `json:"cnic" form:"cnic" validate:"required,cnic"`
	Age        int    `json:"age" form:"age" validate:"required,min=1"`
}

type AdminDTO struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	FatherName string       `json:"fatherName"`
	Email      string       `json:"email"`
	Role       library.Role `json:"role"`
	Address    string       `json:"address"`
	Phone      string       `json:"phone"`
	CNIC       string       `json:"cnic"`
	Age        int          `json:"age"`
	IsBlocked  bool         `json:"isBlocked"`
	ImageURL   string       `json:"imageUrl,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

func toAdminDTO(a library.AdminView) AdminDTO {
	return AdminDTO{
		ID:         a.ID,
		Name:       a.Name,
		FatherName: a.FatherName,
		Email:      a.Email,
		Role:       a.Role,
		Address:    a.Address,
		Phone:      a.Phone,
		CNIC:       a.CNIC,
		Age:        a.Age,
		IsBlocked:  a.IsBlocked,
		ImageURL:   a.ImageURL,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

// =============================================================================
// CATEGORIES AND BOOKS
// =============================================================================

type CategoryRequest struct {
	Name string `json:"name" validate:"required,min=3"`
}

type CategoryDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toCategoryDTO(c library.Category) CategoryDTO {
	return CategoryDTO{ID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt}
}

type CreateBookRequest struct {
	Title        string           `json:"title" validate:"required"`
	Author       string           `json:"author" validate:"required"`
	SerialNumber string           `json:"serialNumber" validate:"required"`
	Edition      string           `json:"edition" validate:"required"`
	Price        *decimal.Decimal `json:"price" validate:"required"`
	Quantity     *int             `json:"quantity" validate:"required,min=0"`
	CategoryID   string           `json:"categoryId" validate:"required"`
}

type UpdateBookRequest struct {
	Title        *string          `json:"title" validate:"omitempty,min=1"`
	Author       *string          `json:"author" validate:"omitempty,min=1"`
	SerialNumber *string          `json:"serialNumber" validate:"omitempty,min=1"`
	Edition      *string          `json:"edition" validate:"omitempty,min=1"`
	Price        *decimal.Decimal `json:"price"`
	Quantity     *int             `json:"quantity" validate:"omitempty,min=0"`
	CategoryID   *string          `json:"categoryId" validate:"omitempty,min=1"`
}

type BookDTO struct {
	ID           string             `json:"id"`
	Title        string             `json:"title"`
	Author       string             `json:"author"`
	SerialNumber string             `json:"serialNumber"`
	Edition      string             `json:"edition"`
	Price        decimal.Decimal    `json:"price"`
	Quantity     int                `json:"quantity"`
	Status       library.BookStatus `json:"status"`
	IsAvailable  bool               `json:"isAvailable"`
	CategoryID   string             `json:"categoryId"`
	Category     *CategoryDTO       `json:"category,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

func toBookDTO(b library.BookView) BookDTO {
	dto := BookDTO{
		ID:           b.ID,
		Title:        b.Title,
		Author:       b.Author,
		SerialNumber: b.SerialNumber,
		Edition:      b.Edition,
		Price:        b.Price,
		Quantity:     b.Quantity,
		Status:       b.Status,
		IsAvailable:  b.IsAvailable,
		CategoryID:   b.CategoryID,
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
	}
	if b.Category != nil {
		c := toCategoryDTO(*b.Category)
		dto.Category = &c
	}
	return dto
}

// =============================================================================
// READERS
// =============================================================================

// ReaderForm is the text part of a reader multipart form. Update uses the
// same fields, each optional.
type ReaderForm struct {
	Name        string `form:"name" validate:"required,min=3"`
	FatherName  string `form:"fatherName" validate:"required,min=3"`
	PhoneNumber string `form:"phoneNumber" validate:"required,pkphone"`
	CNIC        string `form:"CNIC" validate:"required,cnic"`
	CardNumber  string `form:"cardNumber" validate:"required"`
	Address     string `form:"address" validate:"required,min=5"`
	Email       string `form:"email" validate:"required,email"`
	Age         int    `form:"age" validate:"required,min=1"`
}

type ReaderPatchForm struct {
	Name        *string `form:"name" validate:"omitempty,min=3"`
	FatherName  *string `form:"fatherName" validate:"omitempty,min=3"`
	PhoneNumber *string `form:"phoneNumber" validate:"omitempty,pkphone"`
	CNIC        *string `form:"CNIC" validate:"omitempty,cnic"`
	CardNumber  *string `form:"cardNumber" validate:"omitempty,min=1"`
	Address     *string `form:"address" validate:"omitempty,min=5"`
	Email       *string `form:"email" validate:"omitempty,email"`
	Age         *int    `form:"age" validate:"omitempty,min=1"`
}

type ReaderDTO struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	FatherName  string    `json:"fatherName"`
	PhoneNumber string    `json:"phoneNumber"`
	CNIC        string    `json:"CNIC"`
	CardNumber  string    `json:"cardNumber"`
	Email       string    `json:"email"`
	Address     string    `json:"address"`
	Age         int       `json:"age"`
	IsBlocked   bool      `json:"isBlocked"`
	ImageURL    string    `json:"imageUrl"`
	DocumentURL string    `json:"documentUrl"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toReaderDTO(r library.ReaderView) ReaderDTO {
	return ReaderDTO{
		ID:          r.ID,
		Name:        r.Name,
		FatherName:  r.FatherName,
		PhoneNumber: r.PhoneNumber,
		CNIC:        r.CNIC,
		CardNumber:  r.CardNumber,
		Email:       r.Email,
		Address:     r.Address,
		Age:         r.Age,
		IsBlocked:   r.IsBlocked,
		ImageURL:    r.ImageURL,
		DocumentURL: r.DocumentURL,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// =============================================================================
// ISSUED BOOKS
// =============================================================================

type IssueRequest struct {
	BookID     string `json:"bookId" validate:"required"`
	ReaderID   string `json:"readerId" validate:"required"`
	IssuedDate *Date  `json:"issuedDate" validate:"required"`
	DueDate    *Date  `json:"dueDate" validate:"required"`
}

type ReturnRequest struct {
	Fine *decimal.Decimal `json:"fine"`
}

// UpdateIssuedBookRequest has no returnDate: returns go through the return
// endpoint so inventory follows.
type UpdateIssuedBookRequest struct {
	IssuedDate *Date            `json:"issuedDate"`
	DueDate    *Date            `json:"dueDate"`
	Fine       *decimal.Decimal `json:"fine"`
}

type BookSummaryDTO struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Author       string          `json:"author"`
	SerialNumber string          `json:"serialNumber"`
	Edition      string          `json:"edition"`
	Price        decimal.Decimal `json:"price"`
}

type ReaderSummaryDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	CardNumber  string `json:"cardNumber"`
	PhoneNumber string `json:"phoneNumber"`
}

type IssuedBookDTO struct {
	ID         string            `json:"id"`
	BookID     string            `json:"bookId"`
	ReaderID   string            `json:"readerId"`
	Book       *BookSummaryDTO   `json:"book"`
	Reader     *ReaderSummaryDTO `json:"reader"`
	IssuedDate time.Time         `json:"issuedDate"`
	DueDate    time.Time         `json:"dueDate"`
	ReturnDate *time.Time        `json:"returnDate"`
	Fine       decimal.Decimal   `json:"fine"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

func toIssuedBookDTO(v library.IssuedBookView) IssuedBookDTO {
	dto := IssuedBookDTO{
		ID:         v.ID,
		BookID:     v.BookID,
		ReaderID:   v.ReaderID,
		IssuedDate: v.IssuedDate,
		DueDate:    v.DueDate,
		ReturnDate: v.ReturnDate,
		Fine:       v.Fine,
		CreatedAt:  v.CreatedAt,
		UpdatedAt:  v.UpdatedAt,
	}
	if b := v.Book; b != nil {
		dto.Book = &BookSummaryDTO{
			ID: b.ID, Title: b.Title, Author: b.Author,
			SerialNumber: b.SerialNumber, Edition: b.Edition, Price: b.Price,
		}
	}
	if r := v.Reader; r != nil {
		dto.Reader = &ReaderSummaryDTO{
			ID: r.ID, Name: r.Name, Email: r.Email,
			CardNumber: r.CardNumber, PhoneNumber: r.PhoneNumber,
		}
	}
	return dto
}

func toIssuedBookDTOs(views []library.IssuedBookView) []IssuedBookDTO {
	dtos := make([]IssuedBookDTO, len(views))
	for i, v := range views {
		dtos[i] = toIssuedBookDTO(v)
	}
	return dtos
}

// =============================================================================
// PAYMENTS
// =============================================================================

type PaymentRequest struct {
	ReaderID    string           `json:"readerId" validate:"required"`
	Amount      *decimal.Decimal `json:"amount" validate:"required"`
	Duration    string           `json:"duration" validate:"omitempty,oneof=month year"`
	PaymentDate *Date            `json:"paymentDate"`
}

type PaymentDTO struct {
	ID            string                  `json:"id"`
	ReaderID      string                  `json:"readerId"`
	Amount        decimal.Decimal         `json:"amount"`
	Duration      library.PaymentDuration `json:"duration"`
	PaymentDate   time.Time               `json:"paymentDate"`
	PaymentExpiry time.Time               `json:"paymentExpiry"`
	CreatedAt     time.Time               `json:"createdAt"`
}

func toPaymentDTO(p library.Payment) PaymentDTO {
	return PaymentDTO{
		ID:            p.ID,
		ReaderID:      p.ReaderID,
		Amount:        p.Amount,
		Duration:      p.Duration,
		PaymentDate:   p.PaymentDate,
		PaymentExpiry: p.PaymentExpiry,
		CreatedAt:     p.CreatedAt,
	}
}
