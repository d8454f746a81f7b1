package clinic

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c *Clinic) error
	GetByID(ctx context.Context, id uuid.UUID) (*Clinic, error)
	GetByCode(ctx context.Context, code string) (*Clinic, error)
	List(ctx context.Context, limit, offset int) ([]*Clinic, int, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}
