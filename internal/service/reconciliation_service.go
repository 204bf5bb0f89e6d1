package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/iliyamo/batch-admission/internal/model"
	"github.com/iliyamo/batch-admission/internal/repository"
)

// ReconciliationService lets operators work through validated payments
// that could not be seated. Resolution is bookkeeping only; any refund or
// manual seat assignment happens outside this system.
type ReconciliationService struct {
	store repository.Store
	clock Clock
	log   *zap.Logger
}

func NewReconciliationService(store repository.Store, clock Clock, log *zap.Logger) *ReconciliationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReconciliationService{store: store, clock: clock, log: log}
}

func (s *ReconciliationService) List(ctx context.Context, status model.ReconciliationStatus, limit int) ([]model.ReconciliationCase, error) {
	return s.store.ListReconciliations(ctx, status, limit)
}

// Resolve closes an OPEN case with an operator note.
func (s *ReconciliationService) Resolve(ctx context.Context, id uint64, note string) error {
	if err := s.store.ResolveReconciliation(ctx, id, note, s.clock.Now()); err != nil {
		return err
	}
	s.log.Info("reconciliation case resolved", zap.Uint64("case_id", id))
	return nil
}
