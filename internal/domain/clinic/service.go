package clinic

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Service struct {
	clinics Repository
}

func NewService(clinics Repository) *Service {
	return &Service{clinics: clinics}
}

func (s *Service) Create(ctx context.Context, c *Clinic) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(c.Code) == "" {
		return fmt.Errorf("code is required")
	}
	if existing, err := s.clinics.GetByCode(ctx, c.Code); err == nil && existing != nil {
		return fmt.Errorf("clinic code %s already in use", c.Code)
	}
	c.Active = true
	return s.clinics.Create(ctx, c)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	return s.clinics.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Clinic, int, error) {
	return s.clinics.List(ctx, limit, offset)
}

func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return s.clinics.SetActive(ctx, id, active)
}
