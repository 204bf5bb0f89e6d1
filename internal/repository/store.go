package repository

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/batch-admission/internal/model"
)

// Store is the transactional datastore behind the admission core. All
// capacity decisions run inside WithTx; the plain read methods are advisory
// and never used to admit a seat.
//
// Row locks must be taken in the order payment, application, batch, hold.
type Store interface {
	// WithTx runs fn in one transaction. It commits when fn returns nil
	// and rolls back otherwise. Use Commit to keep the work of a function
	// that also reports an error.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	PaymentByTranID(ctx context.Context, tranID string) (*model.Payment, error)
	ApplicationByID(ctx context.Context, id uint64) (*model.Application, error)
	HoldByToken(ctx context.Context, token string) (*model.SeatHold, error)
	// BatchAvailability returns the batch and its unexpired HELD hold count
	// without locking.
	BatchAvailability(ctx context.Context, batchID uint64, now time.Time) (*model.Batch, int, error)

	ListReconciliations(ctx context.Context, status model.ReconciliationStatus, limit int) ([]model.ReconciliationCase, error)
	ResolveReconciliation(ctx context.Context, id uint64, note string, now time.Time) error
}

// Tx is the set of operations available inside a transaction. Lock*
// methods take exclusive row locks held until the transaction ends.
type Tx interface {
	LockPayment(ctx context.Context, tranID string) (*model.Payment, error)
	LockApplication(ctx context.Context, id uint64) (*model.Application, error)
	LockBatch(ctx context.Context, id uint64) (*model.Batch, error)

	// SweepExpiredHolds moves HELD holds with expires_at <= now to EXPIRED.
	// A zero batchID sweeps every batch.
	SweepExpiredHolds(ctx context.Context, batchID uint64, now time.Time) (int64, error)
	ActiveHoldCount(ctx context.Context, batchID uint64, now time.Time) (int, error)
	// HeldHoldForApplication returns the application's HELD hold, expired
	// or not, or ErrHoldNotFound.
	HeldHoldForApplication(ctx context.Context, applicationID uint64) (*model.SeatHold, error)
	LockHoldByToken(ctx context.Context, token string) (*model.SeatHold, error)
	CreateHold(ctx context.Context, h *model.SeatHold) error
	// TransitionHold moves hold id from one status to another and reports
	// whether the row was still in from.
	TransitionHold(ctx context.Context, id uint64, from, to model.HoldStatus, now time.Time) (bool, error)

	// IncrementConfirmed bumps the ledger by one unless it is at capacity,
	// in which case ErrBatchFull is returned.
	IncrementConfirmed(ctx context.Context, batchID uint64, now time.Time) error
	MarkApplicationPaid(ctx context.Context, applicationID, paymentID uint64, now time.Time) error

	CreatePayment(ctx context.Context, p *model.Payment) error
	UpdatePayment(ctx context.Context, p *model.Payment) error

	CreateReconciliation(ctx context.Context, c *model.ReconciliationCase) error
}

// Commit wraps an error returned from a WithTx function so the transaction
// is committed while the error still reaches the caller.
func Commit(err error) error {
	if err == nil {
		return nil
	}
	return &commitError{err: err}
}

type commitError struct{ err error }

func (e *commitError) Error() string { return e.err.Error() }
func (e *commitError) Unwrap() error { return e.err }

// ShouldCommit reports whether a WithTx function error was wrapped with
// Commit. errors.Is and errors.As still see the wrapped error.
func ShouldCommit(err error) bool {
	var ce *commitError
	return errors.As(err, &ce)
}
