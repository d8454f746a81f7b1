package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)

	// HasConflict reports whether a session with a blocking status
	// (scheduled or completed) occupies the therapist's slot.
	HasConflict(ctx context.Context, therapistID uuid.UUID, date time.Time, timeOfDay string) (bool, error)

	// The Mark* methods are single-row conditional updates. They return
	// false when the row was not in the expected state.
	MarkStarted(ctx context.Context, id, by uuid.UUID, at time.Time) (bool, error)
	MarkVerified(ctx context.Context, id, by uuid.UUID, at time.Time) (bool, error)
	MarkCancelled(ctx context.Context, id, by uuid.UUID, at time.Time, reason string) (bool, error)

	ListPendingConfirmations(ctx context.Context, clinicID *uuid.UUID, limit, offset int) ([]*Session, int, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Session, int, error)
}
