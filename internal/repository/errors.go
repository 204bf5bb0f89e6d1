// Package repository holds the persistence layer of the admission core.
// Sentinel errors below let services and handlers distinguish failure
// scenarios without knowing which store backs them.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own. Handlers translate it into 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an update cannot be applied because the row
// is no longer in the expected state.
var ErrConflict = errors.New("conflict")

var (
	ErrBatchNotFound          = errors.New("batch not found")
	ErrApplicationNotFound    = errors.New("application not found")
	ErrHoldNotFound           = errors.New("seat hold not found")
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrReconciliationNotFound = errors.New("reconciliation case not found")

	// ErrBatchFull is returned by the guarded ledger increment when the
	// batch has no unconfirmed capacity left.
	ErrBatchFull = errors.New("batch ledger at capacity")
	// ErrDuplicateHold is returned when an application already owns a HELD
	// hold or a hold token collides.
	ErrDuplicateHold = errors.New("duplicate seat hold")
	// ErrDuplicateTranID is returned when a merchant transaction id is reused.
	ErrDuplicateTranID = errors.New("duplicate transaction id")
)
