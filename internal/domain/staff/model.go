package staff

import (
	"time"

	"github.com/google/uuid"
)

// StaffActor maps to the staff_actor table. Identity lives in the auth
// provider; this is the directory row the scheduling side reads roles and
// clinic assignments from.
type StaffActor struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	FirstName    string     `db:"first_name" json:"first_name"`
	LastName     string     `db:"last_name" json:"last_name"`
	Email        string     `db:"email" json:"email"`
	Role         string     `db:"role" json:"role"`
	HomeClinicID *uuid.UUID `db:"home_clinic_id" json:"home_clinic_id,omitempty"`
	Active       bool       `db:"active" json:"active"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

func (s *StaffActor) FullName() string {
	return s.FirstName + " " + s.LastName
}
