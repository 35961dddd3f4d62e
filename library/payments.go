package library

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentInput carries a membership payment. A zero PaymentDate means now;
// an empty Duration means a month.
type PaymentInput struct {
	ReaderID    string
	Amount      decimal.Decimal
	Duration    PaymentDuration
	PaymentDate time.Time
}

// Payments records membership fees.
type Payments struct {
	payments PaymentStore
	readers  ReaderStore
	Now      Clock
}

// NewPayments creates the payment service.
func NewPayments(store Store) *Payments {
	return &Payments{payments: store, readers: store, Now: SystemClock}
}

// Record stores a payment for an existing reader.
func (s *Payments) Record(ctx context.Context, in PaymentInput) (Payment, error) {
	if in.Amount.IsNegative() {
		return Payment{}, NewValidationError("amount", "must be at least 0")
	}
	duration := in.Duration
	if duration == "" {
		duration = DurationMonth
	}
	if !duration.Valid() {
		return Payment{}, NewValidationError("duration", "must be month or year")
	}
	if _, err := s.readers.GetReader(ctx, in.ReaderID); err != nil {
		return Payment{}, err
	}

	now := s.Now()
	paidAt := in.PaymentDate
	if paidAt.IsZero() {
		paidAt = now
	}
	payment := Payment{
		ID:            NewID(),
		ReaderID:      in.ReaderID,
		Amount:        in.Amount,
		Duration:      duration,
		PaymentDate:   paidAt,
		PaymentExpiry: duration.ExpiryFrom(paidAt),
		CreatedAt:     now,
	}
	if err := s.payments.CreatePayment(ctx, payment); err != nil {
		return Payment{}, err
	}
	return payment, nil
}

// ListByReader returns a reader's payments, newest first.
func (s *Payments) ListByReader(ctx context.Context, readerID string) ([]Payment, error) {
	if _, err := s.readers.GetReader(ctx, readerID); err != nil {
		return nil, err
	}
	return s.payments.ListPaymentsByReader(ctx, readerID)
}
