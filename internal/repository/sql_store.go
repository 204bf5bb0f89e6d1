package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/batch-admission/internal/model"
)

// SQLStore implements Store on MySQL with InnoDB row locks.
type SQLStore struct {
	db       *sql.DB
	batches  *BatchRepo
	apps     *ApplicationRepo
	holds    *SeatHoldRepo
	payments *PaymentRepo
	recon    *ReconciliationRepo
}

// NewSQLStore wires the table repositories over db.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{
		db:       db,
		batches:  NewBatchRepo(db),
		apps:     NewApplicationRepo(db),
		holds:    NewSeatHoldRepo(db),
		payments: NewPaymentRepo(db),
		recon:    NewReconciliationRepo(db),
	}
}

// DB exposes the underlying handle for migrations and health checks.
func (s *SQLStore) DB() *sql.DB { return s.db }

// WithTx runs fn under READ COMMITTED so every count taken after a row lock
// sees the latest committed holds rather than a transaction snapshot.
func (s *SQLStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	fnErr := fn(ctx, &sqlTx{s: s, tx: tx})
	if fnErr != nil && !ShouldCommit(fnErr) {
		return fnErr
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return fnErr
}

func (s *SQLStore) PaymentByTranID(ctx context.Context, tranID string) (*model.Payment, error) {
	return s.payments.GetByTranID(ctx, tranID)
}

func (s *SQLStore) ApplicationByID(ctx context.Context, id uint64) (*model.Application, error) {
	return s.apps.GetByID(ctx, id)
}

func (s *SQLStore) HoldByToken(ctx context.Context, token string) (*model.SeatHold, error) {
	return s.holds.GetByToken(ctx, token)
}

func (s *SQLStore) BatchAvailability(ctx context.Context, batchID uint64, now time.Time) (*model.Batch, int, error) {
	b, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, 0, err
	}
	n, err := s.holds.ActiveCount(ctx, s.db, batchID, now)
	if err != nil {
		return nil, 0, err
	}
	return b, n, nil
}

func (s *SQLStore) ListReconciliations(ctx context.Context, status model.ReconciliationStatus, limit int) ([]model.ReconciliationCase, error) {
	return s.recon.List(ctx, status, limit)
}

func (s *SQLStore) ResolveReconciliation(ctx context.Context, id uint64, note string, now time.Time) error {
	return s.recon.Resolve(ctx, id, note, now)
}

// sqlTx adapts the table repositories to the Tx interface.
type sqlTx struct {
	s  *SQLStore
	tx *sql.Tx
}

func (t *sqlTx) LockPayment(ctx context.Context, tranID string) (*model.Payment, error) {
	return t.s.payments.LockByTranIDTx(ctx, t.tx, tranID)
}

func (t *sqlTx) LockApplication(ctx context.Context, id uint64) (*model.Application, error) {
	return t.s.apps.LockTx(ctx, t.tx, id)
}

func (t *sqlTx) LockBatch(ctx context.Context, id uint64) (*model.Batch, error) {
	return t.s.batches.LockTx(ctx, t.tx, id)
}

func (t *sqlTx) SweepExpiredHolds(ctx context.Context, batchID uint64, now time.Time) (int64, error) {
	return t.s.holds.ExpireHoldsTx(ctx, t.tx, batchID, now)
}

func (t *sqlTx) ActiveHoldCount(ctx context.Context, batchID uint64, now time.Time) (int, error) {
	return t.s.holds.ActiveCount(ctx, t.tx, batchID, now)
}

func (t *sqlTx) HeldHoldForApplication(ctx context.Context, applicationID uint64) (*model.SeatHold, error) {
	return t.s.holds.HeldForApplicationTx(ctx, t.tx, applicationID)
}

func (t *sqlTx) LockHoldByToken(ctx context.Context, token string) (*model.SeatHold, error) {
	return t.s.holds.LockByTokenTx(ctx, t.tx, token)
}

func (t *sqlTx) CreateHold(ctx context.Context, h *model.SeatHold) error {
	return t.s.holds.CreateTx(ctx, t.tx, h)
}

func (t *sqlTx) TransitionHold(ctx context.Context, id uint64, from, to model.HoldStatus, now time.Time) (bool, error) {
	return t.s.holds.TransitionTx(ctx, t.tx, id, from, to, now)
}

func (t *sqlTx) IncrementConfirmed(ctx context.Context, batchID uint64, now time.Time) error {
	return t.s.batches.IncrementConfirmedTx(ctx, t.tx, batchID, now)
}

func (t *sqlTx) MarkApplicationPaid(ctx context.Context, applicationID, paymentID uint64, now time.Time) error {
	return t.s.apps.MarkPaidTx(ctx, t.tx, applicationID, paymentID, now)
}

func (t *sqlTx) CreatePayment(ctx context.Context, p *model.Payment) error {
	return t.s.payments.CreateTx(ctx, t.tx, p)
}

func (t *sqlTx) UpdatePayment(ctx context.Context, p *model.Payment) error {
	return t.s.payments.UpdateTx(ctx, t.tx, p)
}

func (t *sqlTx) CreateReconciliation(ctx context.Context, c *model.ReconciliationCase) error {
	return t.s.recon.CreateTx(ctx, t.tx, c)
}

var (
	_ Store = (*SQLStore)(nil)
	_ Tx    = (*sqlTx)(nil)
)
