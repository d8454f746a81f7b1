package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// GetByIDForUpdate locks the payment row for the rest of the
	// transaction. The advance-credit remaining count is only trustworthy
	// under this lock.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Payment, error)

	ReceiptExists(ctx context.Context, receipt string) (bool, error)
	MarkVoided(ctx context.Context, id uuid.UUID) (bool, error)

	CreateLink(ctx context.Context, l *PaymentSession) error
	CountLinks(ctx context.Context, paymentID uuid.UUID) (int, error)
	LinkExistsForSession(ctx context.Context, sessionID uuid.UUID) (bool, error)
	ListLinks(ctx context.Context, paymentID uuid.UUID) ([]*PaymentSession, error)

	ListAdvanceByClient(ctx context.Context, clientID uuid.UUID) ([]*AdvanceCredit, error)
	SumCompletedForRange(ctx context.Context, clinicID uuid.UUID, from, to time.Time) (decimal.Decimal, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Payment, int, error)

	// HasLinkedPaymentForDay reports whether any completed payment links to
	// a session for the client at the clinic scheduled on the given day.
	HasLinkedPaymentForDay(ctx context.Context, clientID, clinicID uuid.UUID, day time.Time) (bool, error)
}

type RateRepository interface {
	Create(ctx context.Context, r *SessionRate) error
	ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]*SessionRate, error)

	// Resolve returns the effective rate for (clinic, role) at asOf, or
	// zero when no row matches.
	Resolve(ctx context.Context, clinicID uuid.UUID, role string, asOf time.Time) (decimal.Decimal, error)
}
