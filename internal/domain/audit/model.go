package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Actions recorded by the scheduling and payment services.
const (
	ActionCreate   = "create"
	ActionUpdate   = "update"
	ActionStart    = "start"
	ActionConfirm  = "confirm"
	ActionCancel   = "cancel"
	ActionVoid     = "void"
	ActionLink     = "link"
	ActionMarkPaid = "mark_paid"
)

// Entry maps to the audit_entry table. Write-once; the only read path is the
// admin query endpoint.
type Entry struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	ActorID     uuid.UUID       `db:"actor_id" json:"actor_id"`
	ActorEmail  string          `db:"actor_email" json:"actor_email"`
	ActorRole   string          `db:"actor_role" json:"actor_role"`
	Action      string          `db:"action" json:"action"`
	EntityType  string          `db:"entity_type" json:"entity_type"`
	EntityID    uuid.UUID       `db:"entity_id" json:"entity_id"`
	OldValue    json.RawMessage `db:"old_value" json:"old_value,omitempty"`
	NewValue    json.RawMessage `db:"new_value" json:"new_value,omitempty"`
	Description string          `db:"description" json:"description"`
	IPAddress   string          `db:"ip_address" json:"ip_address,omitempty"`
	ClinicID    *uuid.UUID      `db:"clinic_id" json:"clinic_id,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}
