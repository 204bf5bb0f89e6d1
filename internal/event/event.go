// Package event carries typed admission events from the finalization path
// to in-transaction listeners and post-commit subscribers.
package event

import "time"

// Event names, also used as subscriber routing keys.
const (
	NamePaymentSettled         = "payment.settled"
	NameReconciliationRequired = "reconciliation.required"
)

// Event is implemented by every payload published on the Bus.
type Event interface {
	Name() string
}

// PaymentSettled is emitted exactly once per payment, on its first
// transition to VALIDATED.
type PaymentSettled struct {
	PaymentID     uint64    `json:"payment_id"`
	TranID        string    `json:"tran_id"`
	ApplicationID uint64    `json:"application_id"`
	BatchID       uint64    `json:"batch_id"`
	AmountMinor   int64     `json:"amount_minor"`
	Currency      string    `json:"currency"`
	HoldToken     string    `json:"hold_token,omitempty"`
	SettledAt     time.Time `json:"settled_at"`
}

func (PaymentSettled) Name() string { return NamePaymentSettled }

// ReconciliationRequired is emitted after commit when validated funds could
// not be turned into a seat.
type ReconciliationRequired struct {
	CaseID        uint64    `json:"case_id"`
	PaymentID     uint64    `json:"payment_id"`
	TranID        string    `json:"tran_id"`
	ApplicationID uint64    `json:"application_id"`
	BatchID       uint64    `json:"batch_id"`
	Reason        string    `json:"reason"`
	CreatedAt     time.Time `json:"created_at"`
}

func (ReconciliationRequired) Name() string { return NameReconciliationRequired }
