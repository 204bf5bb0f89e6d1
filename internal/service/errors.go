package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/batch-admission/internal/model"
	"github.com/iliyamo/batch-admission/internal/repository"
)

var (
	// ErrCapacityExhausted means the batch had no seat left at reservation
	// time. Nothing was written.
	ErrCapacityExhausted = errors.New("capacity exhausted")
	// ErrGatewayUnavailable wraps transport failures and timeouts. On
	// session init the hold has been rolled back; on validation the
	// payment is untouched and a later notification may still succeed.
	ErrGatewayUnavailable = errors.New("gateway unavailable")
	// ErrGatewayRejected means the provider refused to open a session.
	ErrGatewayRejected = errors.New("gateway rejected")
	// ErrValidationMismatch means the validator's answer did not satisfy
	// the cross-checks against the stored payment.
	ErrValidationMismatch = errors.New("validation mismatch")
	// ErrValidationPending means the provider has not reached a verdict.
	ErrValidationPending = errors.New("validation pending")
	// ErrMissingReference means no validation handle was supplied or
	// previously recorded for the payment.
	ErrMissingReference = errors.New("missing validation reference")
	// ErrCapacityRaceOnSettlement means funds were validated but no seat
	// could be allocated. A reconciliation case has been recorded.
	ErrCapacityRaceOnSettlement = errors.New("capacity race on settlement")
	// ErrDuplicatePayment means a second payment for an already paid
	// application validated. A reconciliation case has been recorded.
	ErrDuplicatePayment = errors.New("duplicate payment for paid application")
	ErrAlreadyPaid      = errors.New("application already paid")
	ErrActiveHoldExists = errors.New("application already holds a seat")

	ErrPaymentNotFound     = repository.ErrPaymentNotFound
	ErrHoldNotFound        = repository.ErrHoldNotFound
	ErrApplicationNotFound = repository.ErrApplicationNotFound
	ErrBatchNotFound       = repository.ErrBatchNotFound
)

// ReconciliationError carries the case written when validated funds found
// no seat. It unwraps to ErrCapacityRaceOnSettlement or ErrDuplicatePayment
// according to the case reason.
type ReconciliationError struct {
	Case model.ReconciliationCase
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("%s: payment %s for application %d (case %d)",
		e.Unwrap(), e.Case.TranID, e.Case.ApplicationID, e.Case.ID)
}

func (e *ReconciliationError) Unwrap() error {
	if e.Case.Reason == model.ReasonDuplicatePayment {
		return ErrDuplicatePayment
	}
	return ErrCapacityRaceOnSettlement
}
