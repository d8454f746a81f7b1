package staff

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *StaffActor) error
	GetByID(ctx context.Context, id uuid.UUID) (*StaffActor, error)
	List(ctx context.Context, limit, offset int) ([]*StaffActor, int, error)
	ListTherapists(ctx context.Context, clinicID *uuid.UUID, limit, offset int) ([]*StaffActor, int, error)
	RoleOf(ctx context.Context, id uuid.UUID) (string, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}
