package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

type Service struct {
	entries Repository
}

func NewService(entries Repository) *Service {
	return &Service{entries: entries}
}

// Record persists one audit entry. Runs inside the caller's transaction when
// one is active, so a rolled-back use case leaves no trace.
func (s *Service) Record(ctx context.Context, e *Entry) error {
	if e.Action == "" || e.EntityType == "" {
		return fmt.Errorf("action and entity_type are required")
	}
	if e.ActorID == uuid.Nil {
		actor := auth.ActorFromContext(ctx)
		e.ActorID = actor.ID
		e.ActorEmail = actor.Email
		e.ActorRole = actor.Role
	}
	return s.entries.Create(ctx, e)
}

func (s *Service) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Entry, int, error) {
	return s.entries.Search(ctx, params, limit, offset)
}
