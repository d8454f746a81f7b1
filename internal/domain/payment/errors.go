package payment

import "errors"

var (
	// ErrDuplicateReceipt means the receipt number is already taken.
	ErrDuplicateReceipt = errors.New("receipt number already used")

	// ErrCreditExhausted means the advance payment has no sessions left in
	// its pool.
	ErrCreditExhausted = errors.New("advance credit exhausted")

	// ErrSessionAlreadyLinked means the session is already billed through
	// another payment.
	ErrSessionAlreadyLinked = errors.New("session already linked to a payment")

	// ErrNoRateConfigured means rate resolution produced no positive rate
	// for the clinic and role.
	ErrNoRateConfigured = errors.New("no session rate configured")

	// ErrNotVoidable means the payment is not in the completed state.
	ErrNotVoidable = errors.New("only completed payments can be voided")

	ErrNotFound = errors.New("payment not found")
)
