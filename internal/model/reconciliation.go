package model

import "time"

// ReconciliationStatus tracks whether an operator has dealt with a case.
type ReconciliationStatus string

const (
	ReconciliationOpen     ReconciliationStatus = "OPEN"
	ReconciliationResolved ReconciliationStatus = "RESOLVED"
)

// Reconciliation reasons.
const (
	ReasonCapacityRace     = "CAPACITY_RACE"
	ReasonDuplicatePayment = "DUPLICATE_PAYMENT"
)

// ReconciliationCase records validated funds that could not be turned into
// a seat: either the batch was full, or the application had already been
// paid by another payment. An operator refunds or allocates by hand.
type ReconciliationCase struct {
	ID            uint64
	PaymentID     uint64
	TranID        string
	ApplicationID uint64
	BatchID       uint64
	Reason        string
	Status        ReconciliationStatus
	Note          string
	CreatedAt     time.Time
	ResolvedAt    *time.Time
}
