package attendance

import (
	"time"

	"github.com/google/uuid"
)

// Payment statuses for a visit record.
const (
	PaymentUnpaid = "UNPAID"
	PaymentPaid   = "PAID"
)

// Log maps to the attendance_log table. It records a walk-in visit
// independent of any scheduled session. Client and guardian details are
// snapshotted at logging time so later edits to the client record do not
// rewrite history.
type Log struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	ClinicID         uuid.UUID  `db:"clinic_id" json:"clinic_id"`
	ClientID         uuid.UUID  `db:"client_id" json:"client_id"`
	ClientName       string     `db:"client_name" json:"client_name"`
	GuardianName     *string    `db:"guardian_name" json:"guardian_name,omitempty"`
	GuardianRelation *string    `db:"guardian_relation" json:"guardian_relation,omitempty"`
	GuardianPhone    *string    `db:"guardian_phone" json:"guardian_phone,omitempty"`
	TherapistID      *uuid.UUID `db:"therapist_id" json:"therapist_id,omitempty"`
	LoggedBy         uuid.UUID  `db:"logged_by" json:"logged_by"`
	LoggedAt         time.Time  `db:"logged_at" json:"logged_at"`
	Notes            *string    `db:"notes" json:"notes,omitempty"`
	PaymentStatus    string     `db:"payment_status" json:"payment_status"`
	PaymentID        *uuid.UUID `db:"payment_id" json:"payment_id,omitempty"`
	PaidAt           *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}
