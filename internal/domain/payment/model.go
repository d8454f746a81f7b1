package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment methods.
const (
	MethodCash         = "cash"
	MethodElectronic   = "electronic"
	MethodBankTransfer = "bank_transfer"
	MethodNone         = "none"
)

// Payment sources.
const (
	SourceClient      = "client"
	SourceGovNational = "gov_national"
	SourceGovLocal    = "gov_local"
	SourceGovOther    = "gov_other"
)

// Credit types. An advance purchases a block of future sessions; regular pays
// for exactly one delivered session; no_payment records a zero-value entry
// for subsidized visits.
const (
	CreditRegular   = "regular"
	CreditAdvance   = "advance"
	CreditNoPayment = "no_payment"
)

// Payment statuses. Completed payments are only ever voided, never edited.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusVoided    = "voided"
)

// Payment maps to the payment table.
type Payment struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	ClinicID      uuid.UUID       `db:"clinic_id" json:"clinic_id"`
	ClientID      uuid.UUID       `db:"client_id" json:"client_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Method        string          `db:"method" json:"method"`
	Source        string          `db:"source" json:"source"`
	CreditType    string          `db:"credit_type" json:"credit_type"`
	SessionsPaid  int             `db:"sessions_paid" json:"sessions_paid"`
	ReceiptNumber *string         `db:"receipt_number" json:"receipt_number,omitempty"`
	RecordedBy    uuid.UUID       `db:"recorded_by" json:"recorded_by"`
	Status        string          `db:"status" json:"status"`
	Notes         *string         `db:"notes" json:"notes,omitempty"`
	PaymentDate   time.Time       `db:"payment_date" json:"payment_date"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// PerSessionAmount is the even split of the payment across the sessions it
// covers.
func (p *Payment) PerSessionAmount() decimal.Decimal {
	if p.SessionsPaid <= 0 {
		return decimal.Zero
	}
	return p.Amount.Div(decimal.NewFromInt(int64(p.SessionsPaid)))
}

// PaymentSession maps to the payment_session table. Links are created once
// and never removed.
type PaymentSession struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	PaymentID uuid.UUID       `db:"payment_id" json:"payment_id"`
	SessionID uuid.UUID       `db:"session_id" json:"session_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// SessionRate maps to the session_rate table. Rows form a time-versioned
// history per (clinic, role); nothing enforces exclusivity at write time.
type SessionRate struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	ClinicID      uuid.UUID       `db:"clinic_id" json:"clinic_id"`
	Role          string          `db:"role" json:"role"`
	Rate          decimal.Decimal `db:"rate" json:"rate"`
	EffectiveFrom time.Time       `db:"effective_from" json:"effective_from"`
	EffectiveTo   *time.Time      `db:"effective_to" json:"effective_to,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// AdvanceCredit is the read-side summary of an advance payment's pool.
type AdvanceCredit struct {
	Payment           *Payment `json:"payment"`
	SessionsUsed      int      `json:"sessions_used"`
	SessionsRemaining int      `json:"sessions_remaining"`
}
