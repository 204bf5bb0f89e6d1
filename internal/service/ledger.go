package service

import (
	"context"
	"time"

	"github.com/iliyamo/batch-admission/internal/model"
	"github.com/iliyamo/batch-admission/internal/repository"
)

// Ledger answers the capacity question for a batch:
//
//	available = total_seats - confirmed_seats - active_holds
//
// Available must be called with the batch row locked in tx; the number is
// only a decision basis while that lock is held.
type Ledger struct {
	sweeper *ExpirySweeper
	clock   Clock
}

func NewLedger(sweeper *ExpirySweeper, clock Clock) *Ledger {
	return &Ledger{sweeper: sweeper, clock: clock}
}

// Available sweeps lapsed holds of the batch and returns the seats left.
func (l *Ledger) Available(ctx context.Context, tx repository.Tx, b *model.Batch) (int, error) {
	if _, err := l.sweeper.SweepTx(ctx, tx, b.ID); err != nil {
		return 0, err
	}
	active, err := tx.ActiveHoldCount(ctx, b.ID, l.clock.Now())
	if err != nil {
		return 0, err
	}
	return b.Available(active), nil
}

// Availability is an advisory snapshot, never used to admit anyone.
type Availability struct {
	BatchID        uint64    `json:"batch_id"`
	Name           string    `json:"name"`
	TotalSeats     int       `json:"total_seats"`
	ConfirmedSeats int       `json:"confirmed_seats"`
	ActiveHolds    int       `json:"active_holds"`
	Available      int       `json:"available"`
	AsOf           time.Time `json:"as_of"`
}

// Snapshot reads availability without locking.
func (l *Ledger) Snapshot(ctx context.Context, store repository.Store, batchID uint64) (*Availability, error) {
	now := l.clock.Now()
	b, active, err := store.BatchAvailability(ctx, batchID, now)
	if err != nil {
		return nil, err
	}
	return &Availability{
		BatchID:        b.ID,
		Name:           b.Name,
		TotalSeats:     b.TotalSeats,
		ConfirmedSeats: b.ConfirmedSeats,
		ActiveHolds:    active,
		Available:      b.Available(active),
		AsOf:           now,
	}, nil
}
