package attendance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("attendance log not found")

type Repository interface {
	Create(ctx context.Context, l *Log) error
	GetByID(ctx context.Context, id uuid.UUID) (*Log, error)

	// GetByIDForUpdate locks the log row for the rest of the transaction so
	// a concurrent mark-paid cannot create a second payment.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Log, error)

	// MarkPaid flips an UNPAID log to PAID. Returns false when the log is
	// missing or already PAID.
	MarkPaid(ctx context.Context, id uuid.UUID, paymentID *uuid.UUID, at time.Time) (bool, error)

	ListUnpaidForRange(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]*Log, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Log, int, error)
}
