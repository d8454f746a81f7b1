package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var validStatuses = map[string]bool{
	StatusActive: true, StatusInactive: true, StatusDischarged: true,
}

type Service struct {
	clients Repository
}

func NewService(clients Repository) *Service {
	return &Service{clients: clients}
}

func (s *Service) Create(ctx context.Context, c *Client) error {
	if strings.TrimSpace(c.FirstName) == "" || strings.TrimSpace(c.LastName) == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	if c.MainClinicID == uuid.Nil {
		return fmt.Errorf("main_clinic_id is required")
	}
	if c.Status == "" {
		c.Status = StatusActive
	}
	if !validStatuses[c.Status] {
		return fmt.Errorf("invalid client status: %s", c.Status)
	}
	if err := validateBackups(c.PrimaryTherapistID, c.BackupTherapists); err != nil {
		return err
	}
	return s.clients.Create(ctx, c)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Client, error) {
	return s.clients.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, c *Client) error {
	if strings.TrimSpace(c.FirstName) == "" || strings.TrimSpace(c.LastName) == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	if err := validateBackups(c.PrimaryTherapistID, c.BackupTherapists); err != nil {
		return err
	}
	if err := s.clients.Update(ctx, c); err != nil {
		return err
	}
	return s.clients.ReplaceBackups(ctx, c.ID, c.BackupTherapists)
}

func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	if !validStatuses[status] {
		return fmt.Errorf("invalid client status: %s", status)
	}
	return s.clients.SetStatus(ctx, id, status)
}

func (s *Service) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Client, int, error) {
	return s.clients.Search(ctx, params, limit, offset)
}

// PrimaryTherapist is the fallback used by attendance payment resolution when
// a log carries no therapist snapshot.
func (s *Service) PrimaryTherapist(ctx context.Context, clientID uuid.UUID) (*uuid.UUID, error) {
	return s.clients.PrimaryTherapist(ctx, clientID)
}

// validateBackups enforces the backup-list shape: priorities form a total
// order, no therapist appears twice, and the primary therapist is excluded.
func validateBackups(primary *uuid.UUID, backups []BackupTherapist) error {
	seenPriority := make(map[int]bool, len(backups))
	seenTherapist := make(map[uuid.UUID]bool, len(backups))
	for _, b := range backups {
		if b.TherapistID == uuid.Nil {
			return fmt.Errorf("backup therapist_id is required")
		}
		if seenPriority[b.Priority] {
			return fmt.Errorf("duplicate backup priority %d", b.Priority)
		}
		if seenTherapist[b.TherapistID] {
			return fmt.Errorf("therapist %s listed twice as backup", b.TherapistID)
		}
		if primary != nil && b.TherapistID == *primary {
			return fmt.Errorf("primary therapist cannot also be a backup")
		}
		seenPriority[b.Priority] = true
		seenTherapist[b.TherapistID] = true
	}
	return nil
}
