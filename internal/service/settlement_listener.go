package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/iliyamo/batch-admission/internal/event"
	"github.com/iliyamo/batch-admission/internal/model"
	"github.com/iliyamo/batch-admission/internal/repository"
)

// SettlementListener converts a validated payment into a confirmed seat. It
// runs inside the finalize transaction with the payment row locked, and
// takes the application and batch locks in that order.
type SettlementListener struct {
	ledger   *Ledger
	clock    Clock
	settings Settings
	log      *zap.Logger
}

func NewSettlementListener(ledger *Ledger, clock Clock, settings Settings, log *zap.Logger) *SettlementListener {
	if log == nil {
		log = zap.NewNop()
	}
	return &SettlementListener{ledger: ledger, clock: clock, settings: settings, log: log}
}

var _ event.SettlementListener = (*SettlementListener)(nil)

func (l *SettlementListener) HandleSettlement(ctx context.Context, tx repository.Tx, ev event.PaymentSettled) (err error) {
	ctx, span := startSpan(ctx, "SettlementListener.HandleSettlement",
		attribute.String("payment.tran_id", ev.TranID),
		attribute.Int64("batch.id", int64(ev.BatchID)))
	defer func() { endSpan(span, err) }()

	app, err := tx.LockApplication(ctx, ev.ApplicationID)
	if err != nil {
		return err
	}
	now := l.clock.Now()
	if app.IsPaid {
		if app.PaidPaymentID != nil && *app.PaidPaymentID == ev.PaymentID {
			return nil
		}
		// A second payment raced the first one through the gateway. The
		// money is real, so it needs an operator.
		if _, err := tx.LockBatch(ctx, ev.BatchID); err != nil {
			return err
		}
		span.SetAttributes(attribute.String("settlement.path", "duplicate"))
		return l.openCase(ctx, tx, ev, model.ReasonDuplicatePayment, now)
	}
	if !l.settings.feeMatches(ev.AmountMinor, ev.Currency) {
		l.log.Error("settled amount does not match admission fee",
			zap.String("tran_id", ev.TranID),
			zap.Int64("amount_minor", ev.AmountMinor),
			zap.String("currency", ev.Currency))
		return nil
	}
	batch, err := tx.LockBatch(ctx, ev.BatchID)
	if err != nil {
		return err
	}

	hold, err := l.activeHold(ctx, tx, ev.HoldToken, now)
	if err != nil {
		return err
	}
	if hold != nil {
		// The hold was counted when it was taken, but the ledger may have
		// been corrected by hand since.
		if batch.Full() {
			return l.openCase(ctx, tx, ev, model.ReasonCapacityRace, now)
		}
		span.SetAttributes(attribute.String("settlement.path", "hold"))
	} else {
		// Late allocation: the hold lapsed or was released before the
		// money arrived. Only a free seat under the same lock may be used.
		available, err := l.ledger.Available(ctx, tx, batch)
		if err != nil {
			return err
		}
		if available <= 0 {
			return l.openCase(ctx, tx, ev, model.ReasonCapacityRace, now)
		}
		span.SetAttributes(attribute.String("settlement.path", "late_allocation"))
		l.log.Info("late seat allocation", zap.String("tran_id", ev.TranID), zap.Uint64("batch_id", batch.ID))
	}

	if err := tx.IncrementConfirmed(ctx, batch.ID, now); err != nil {
		if errors.Is(err, repository.ErrBatchFull) {
			return l.openCase(ctx, tx, ev, model.ReasonCapacityRace, now)
		}
		return err
	}
	if hold != nil {
		moved, err := tx.TransitionHold(ctx, hold.ID, model.HoldHeld, model.HoldConfirmed, now)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("confirm hold %s: %w", hold.HoldToken, model.ErrHoldNotHeld)
		}
	}
	return tx.MarkApplicationPaid(ctx, app.ID, ev.PaymentID, now)
}

// activeHold locks the bound hold and returns it if it is HELD and
// unexpired at now, nil otherwise.
func (l *SettlementListener) activeHold(ctx context.Context, tx repository.Tx, token string, now time.Time) (*model.SeatHold, error) {
	if token == "" {
		return nil, nil
	}
	h, err := tx.LockHoldByToken(ctx, token)
	if errors.Is(err, repository.ErrHoldNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !h.IsActive(now) {
		return nil, nil
	}
	return h, nil
}

// openCase records validated funds that could not become a seat. A hold
// still HELD for the payment is cancelled so it stops counting against
// capacity. The batch row must be locked.
func (l *SettlementListener) openCase(ctx context.Context, tx repository.Tx, ev event.PaymentSettled, reason string, now time.Time) error {
	if ev.HoldToken != "" {
		h, err := tx.LockHoldByToken(ctx, ev.HoldToken)
		switch {
		case err == nil:
			if _, err := tx.TransitionHold(ctx, h.ID, model.HoldHeld, model.HoldCancelled, now); err != nil {
				return err
			}
		case !errors.Is(err, repository.ErrHoldNotFound):
			return err
		}
	}
	c := &model.ReconciliationCase{
		PaymentID:     ev.PaymentID,
		TranID:        ev.TranID,
		ApplicationID: ev.ApplicationID,
		BatchID:       ev.BatchID,
		Reason:        reason,
		Status:        model.ReconciliationOpen,
		CreatedAt:     now,
	}
	if err := tx.CreateReconciliation(ctx, c); err != nil {
		return err
	}
	return &ReconciliationError{Case: *c}
}
