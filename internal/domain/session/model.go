package session

import (
	"time"

	"github.com/google/uuid"
)

// Session types.
const (
	TypeRegular    = "regular"
	TypeEvaluation = "evaluation"
	TypeMakeUp     = "make_up"
)

// Lifecycle states. scheduled is the initial state; completed, cancelled and
// no_show are terminal.
const (
	StatusScheduled  = "scheduled"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusNoShow     = "no_show"
)

// Session maps to the session table. Rows are never deleted; cancellation is
// a terminal status.
type Session struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	ClinicID        uuid.UUID  `db:"clinic_id" json:"clinic_id"`
	ClientID        *uuid.UUID `db:"client_id" json:"client_id,omitempty"`
	ClientName      *string    `db:"client_name" json:"client_name,omitempty"`
	TherapistID     uuid.UUID  `db:"therapist_id" json:"therapist_id"`
	SessionType     string     `db:"session_type" json:"session_type"`
	ScheduledDate   time.Time  `db:"scheduled_date" json:"scheduled_date"`
	ScheduledTime   string     `db:"scheduled_time" json:"scheduled_time"`
	DurationMinutes int        `db:"duration_minutes" json:"duration_minutes"`
	Status          string     `db:"status" json:"status"`
	StartedAt       *time.Time `db:"started_at" json:"started_at,omitempty"`
	StartedBy       *uuid.UUID `db:"started_by" json:"started_by,omitempty"`
	VerifiedAt      *time.Time `db:"verified_at" json:"verified_at,omitempty"`
	VerifiedBy      *uuid.UUID `db:"verified_by" json:"verified_by,omitempty"`
	CancelledAt     *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelledBy     *uuid.UUID `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancelReason    *string    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}
