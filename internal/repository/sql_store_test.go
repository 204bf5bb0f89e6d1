package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/batch-admission/internal/model"
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewSQLStore(db), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestWithTxCommitsOnSuccess(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE batches SET confirmed_seats = confirmed_seats + 1")).
		WithArgs(testNow, uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.IncrementConfirmed(ctx, 7, testNow)
	})
	assert.NoError(t, err)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE batches SET confirmed_seats")).
		WithArgs(testNow, uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.IncrementConfirmed(ctx, 7, testNow)
	})
	assert.ErrorIs(t, err, ErrBatchFull)
}

func TestWithTxCommitsMarkedError(t *testing.T) {
	s, mock := newMockStore(t)
	pending := errors.New("pending")
	mock.ExpectBegin()
	mock.ExpectCommit()

	err := s.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return Commit(pending)
	})
	assert.ErrorIs(t, err, pending)
}

func TestLockPaymentNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM payments WHERE tran_id = ? FOR UPDATE")).
		WithArgs("ADM-missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
		_, err := tx.LockPayment(ctx, "ADM-missing")
		return err
	})
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestLockPaymentDecodesRow(t *testing.T) {
	s, mock := newMockStore(t)
	cols := []string{"id", "tran_id", "application_id", "amount_minor", "currency", "gateway", "status", "creation_context",
		"session_key", "gateway_url", "val_id", "bank_tran_id", "risk_level", "init_response", "callback_payload",
		"validation_response", "created_at", "updated_at", "validated_at"}
	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM payments WHERE tran_id = ? FOR UPDATE")).
		WithArgs("ADM-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			3, "ADM-1", 9, 462500, "BDT", "mock", "REDIRECTED", []byte(`{"batch_id":2,"hold_token":"tok"}`),
			"SK", "https://pay", "", "", "", []byte(`{"status":"SUCCESS"}`), nil,
			nil, testNow, testNow, nil,
		))
	mock.ExpectCommit()

	var p *model.Payment
	err := s.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
		var err error
		p, err = tx.LockPayment(ctx, "ADM-1")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRedirected, p.Status)
	assert.Equal(t, uint64(2), p.Context.BatchID)
	assert.Equal(t, "tok", p.Context.HoldToken)
	assert.Nil(t, p.ValidatedAt)
}

func TestCreatePaymentDuplicateTranID(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO payments")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.CreatePayment(ctx, &model.Payment{TranID: "ADM-1", Status: model.PaymentInitiated})
	})
	assert.ErrorIs(t, err, ErrDuplicateTranID)
}

func TestCreateHold(t *testing.T) {
	t.Run("sets id", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(q("INSERT INTO seat_holds")).
			WithArgs(uint64(9), uint64(2), "tok", testNow.Add(10*time.Minute), "HELD", testNow, testNow).
			WillReturnResult(sqlmock.NewResult(41, 1))
		mock.ExpectCommit()

		h := &model.SeatHold{ApplicationID: 9, BatchID: 2, HoldToken: "tok", ExpiresAt: testNow.Add(10 * time.Minute),
			Status: model.HoldHeld, CreatedAt: testNow, UpdatedAt: testNow}
		err := s.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
			return tx.CreateHold(ctx, h)
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(41), h.ID)
	})
	t.Run("second held hold", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(q("INSERT INTO seat_holds")).
			WillReturnError(&mysql.MySQLError{Number: 1062})
		mock.ExpectRollback()

		err := s.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
			return tx.CreateHold(ctx, &model.SeatHold{Status: model.HoldHeld})
		})
		assert.ErrorIs(t, err, ErrDuplicateHold)
	})
}

func TestSweepAndCount(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE seat_holds SET status = 'EXPIRED'")).
		WithArgs(testNow, uint64(2), testNow).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectQuery(q("SELECT COUNT(*) FROM seat_holds WHERE batch_id = ? AND status = 'HELD' AND expires_at > ?")).
		WithArgs(uint64(2), testNow).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(4))
	mock.ExpectCommit()

	var swept int64
	var active int
	err := s.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
		var err error
		if swept, err = tx.SweepExpiredHolds(ctx, 2, testNow); err != nil {
			return err
		}
		active, err = tx.ActiveHoldCount(ctx, 2, testNow)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), swept)
	assert.Equal(t, 4, active)
}

func TestTransitionHoldReportsNoop(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE seat_holds SET status = ?, updated_at = ? WHERE id = ? AND status = ?")).
		WithArgs("CANCELLED", testNow, uint64(5), "HELD").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	var moved bool
	err := s.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
		var err error
		moved, err = tx.TransitionHold(ctx, 5, model.HoldHeld, model.HoldCancelled, testNow)
		return err
	})
	require.NoError(t, err)
	assert.False(t, moved)
}

func TestTransitionHoldOnlyFromHeld(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
		_, err := tx.TransitionHold(ctx, 5, model.HoldConfirmed, model.HoldCancelled, testNow)
		return err
	})
	assert.ErrorIs(t, err, model.ErrHoldNotHeld)
}

func TestResolveReconciliation(t *testing.T) {
	update := q("UPDATE reconciliation_cases SET status = 'RESOLVED'")
	exists := q("SELECT COUNT(*) FROM reconciliation_cases WHERE id = ?")

	t.Run("open case", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(update).WithArgs("refunded", testNow, uint64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, s.ResolveReconciliation(context.Background(), 1, "refunded", testNow))
	})
	t.Run("already resolved", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(exists).WithArgs(uint64(1)).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
		assert.ErrorIs(t, s.ResolveReconciliation(context.Background(), 1, "again", testNow), ErrConflict)
	})
	t.Run("unknown case", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(exists).WithArgs(uint64(9)).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
		assert.ErrorIs(t, s.ResolveReconciliation(context.Background(), 9, "x", testNow), ErrReconciliationNotFound)
	})
}

func TestListReconciliations(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(q("FROM reconciliation_cases WHERE status = ? ORDER BY id LIMIT ?")).
		WithArgs("OPEN", 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "payment_id", "tran_id", "application_id", "batch_id", "reason", "status", "note", "created_at", "resolved_at"}).
			AddRow(1, 3, "ADM-1", 9, 2, "CAPACITY_RACE", "OPEN", "", testNow, nil))

	cases, err := s.ListReconciliations(context.Background(), model.ReconciliationOpen, 0)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, "ADM-1", cases[0].TranID)
	assert.Nil(t, cases[0].ResolvedAt)
}
