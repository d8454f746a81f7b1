package client

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusActive     = "active"
	StatusInactive   = "inactive"
	StatusDischarged = "discharged"
)

// Client maps to the client table.
type Client struct {
	ID                 uuid.UUID         `db:"id" json:"id"`
	FirstName          string            `db:"first_name" json:"first_name"`
	LastName           string            `db:"last_name" json:"last_name"`
	GuardianName       *string           `db:"guardian_name" json:"guardian_name,omitempty"`
	GuardianRelation   *string           `db:"guardian_relation" json:"guardian_relation,omitempty"`
	GuardianPhone      *string           `db:"guardian_phone" json:"guardian_phone,omitempty"`
	MainClinicID       uuid.UUID         `db:"main_clinic_id" json:"main_clinic_id"`
	PrimaryTherapistID *uuid.UUID        `db:"primary_therapist_id" json:"primary_therapist_id,omitempty"`
	Status             string            `db:"status" json:"status"`
	BackupTherapists   []BackupTherapist `json:"backup_therapists,omitempty"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time         `db:"updated_at" json:"updated_at"`
}

// BackupTherapist is one row of the ordered fallback list. Priority is a
// total order per client.
type BackupTherapist struct {
	TherapistID uuid.UUID `db:"therapist_id" json:"therapist_id"`
	Priority    int       `db:"priority" json:"priority"`
}

func (c *Client) FullName() string {
	return c.FirstName + " " + c.LastName
}
