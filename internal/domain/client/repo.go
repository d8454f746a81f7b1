package client

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c *Client) error
	GetByID(ctx context.Context, id uuid.UUID) (*Client, error)
	Update(ctx context.Context, c *Client) error
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Client, int, error)
	ReplaceBackups(ctx context.Context, clientID uuid.UUID, backups []BackupTherapist) error
	PrimaryTherapist(ctx context.Context, clientID uuid.UUID) (*uuid.UUID, error)
}
