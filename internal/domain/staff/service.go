package staff

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

var validRoles = map[string]bool{
	auth.RoleOwner:               true,
	auth.RoleSecretary:           true,
	auth.RoleLicensedTherapist:   true,
	auth.RoleUnlicensedTherapist: true,
	auth.RoleSpeechTherapist:     true,
}

type Service struct {
	actors Repository
}

func NewService(actors Repository) *Service {
	return &Service{actors: actors}
}

func (s *Service) Create(ctx context.Context, a *StaffActor) error {
	if strings.TrimSpace(a.FirstName) == "" || strings.TrimSpace(a.LastName) == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	if !validRoles[a.Role] {
		return fmt.Errorf("invalid role: %s", a.Role)
	}
	// Only the owner works across clinics; everyone else needs a home.
	if a.Role != auth.RoleOwner && a.HomeClinicID == nil {
		return fmt.Errorf("home_clinic_id is required for role %s", a.Role)
	}
	a.Active = true
	return s.actors.Create(ctx, a)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*StaffActor, error) {
	return s.actors.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*StaffActor, int, error) {
	return s.actors.List(ctx, limit, offset)
}

func (s *Service) ListTherapists(ctx context.Context, clinicID *uuid.UUID, limit, offset int) ([]*StaffActor, int, error) {
	return s.actors.ListTherapists(ctx, clinicID, limit, offset)
}

// RoleOf reports the directory role for a staff actor. Rate resolution for
// attendance payments goes through here.
func (s *Service) RoleOf(ctx context.Context, id uuid.UUID) (string, error) {
	return s.actors.RoleOf(ctx, id)
}

func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return s.actors.SetActive(ctx, id, active)
}
