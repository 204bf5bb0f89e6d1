package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/iliyamo/batch-admission/internal/repository"
)

// ExpirySweeper moves lapsed HELD holds to EXPIRED. The reservation path
// sweeps lazily under the batch lock; Run is for the CLI and periodic jobs.
type ExpirySweeper struct {
	store repository.Store
	clock Clock
	log   *zap.Logger
}

func NewExpirySweeper(store repository.Store, clock Clock, log *zap.Logger) *ExpirySweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &ExpirySweeper{store: store, clock: clock, log: log}
}

// SweepTx expires the lapsed holds of one batch, or of every batch when
// batchID is zero, inside tx. The caller must already hold, or be allowed
// to take, the batch lock.
func (s *ExpirySweeper) SweepTx(ctx context.Context, tx repository.Tx, batchID uint64) (int64, error) {
	return tx.SweepExpiredHolds(ctx, batchID, s.clock.Now())
}

// Run sweeps in its own transaction and returns the number of holds
// expired.
func (s *ExpirySweeper) Run(ctx context.Context, batchID uint64) (int64, error) {
	ctx, span := startSpan(ctx, "ExpirySweeper.Run", attribute.Int64("batch.id", int64(batchID)))
	var n int64
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		n, err = s.SweepTx(ctx, tx, batchID)
		return err
	})
	endSpan(span, err)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("expired seat holds", zap.Uint64("batch_id", batchID), zap.Int64("count", n))
	}
	return n, nil
}
