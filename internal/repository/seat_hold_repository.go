package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/batch-admission/internal/model"
)

// SeatHoldRepo provides data access to the seat_holds table. All timestamps
// are compared in UTC; callers pass the clock's now so expiry decisions use
// one time source.
type SeatHoldRepo struct {
	db *sql.DB
}

// NewSeatHoldRepo returns a new SeatHoldRepo bound to the provided database.
func NewSeatHoldRepo(db *sql.DB) *SeatHoldRepo { return &SeatHoldRepo{db: db} }

const holdColumns = `id, application_id, batch_id, hold_token, expires_at, status, created_at, updated_at`

func scanHold(s rowScanner) (*model.SeatHold, error) {
	var (
		h      model.SeatHold
		status string
	)
	if err := s.Scan(&h.ID, &h.ApplicationID, &h.BatchID, &h.HoldToken, &h.ExpiresAt, &status, &h.CreatedAt, &h.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrHoldNotFound
		}
		return nil, err
	}
	h.Status = model.HoldStatus(status)
	return &h, nil
}

// ExpireHoldsTx transitions every HELD hold whose expires_at is at or before
// now to EXPIRED in one statement and returns how many rows moved. A zero
// batchID sweeps all batches. Re-running it is a no-op.
func (r *SeatHoldRepo) ExpireHoldsTx(ctx context.Context, tx *sql.Tx, batchID uint64, now time.Time) (int64, error) {
	now = now.UTC()
	var (
		res sql.Result
		err error
	)
	if batchID == 0 {
		res, err = tx.ExecContext(ctx,
			`UPDATE seat_holds SET status = 'EXPIRED', updated_at = ?
			 WHERE status = 'HELD' AND expires_at <= ?`,
			now, now,
		)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE seat_holds SET status = 'EXPIRED', updated_at = ?
			 WHERE batch_id = ? AND status = 'HELD' AND expires_at <= ?`,
			now, batchID, now,
		)
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ActiveCount counts HELD holds of a batch that have not expired at now.
// Inside a transaction it must run after the batch row is locked.
func (r *SeatHoldRepo) ActiveCount(ctx context.Context, q querier, batchID uint64, now time.Time) (int, error) {
	if q == nil {
		q = r.db
	}
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM seat_holds WHERE batch_id = ? AND status = 'HELD' AND expires_at > ?`,
		batchID, now.UTC(),
	).Scan(&n)
	return n, err
}

// HeldForApplicationTx returns the application's HELD hold, locking it.
func (r *SeatHoldRepo) HeldForApplicationTx(ctx context.Context, tx *sql.Tx, applicationID uint64) (*model.SeatHold, error) {
	return scanHold(tx.QueryRowContext(ctx,
		`SELECT `+holdColumns+` FROM seat_holds WHERE application_id = ? AND status = 'HELD' LIMIT 1 FOR UPDATE`,
		applicationID,
	))
}

// LockByTokenTx reads a hold by token and locks it.
func (r *SeatHoldRepo) LockByTokenTx(ctx context.Context, tx *sql.Tx, token string) (*model.SeatHold, error) {
	return scanHold(tx.QueryRowContext(ctx, `SELECT `+holdColumns+` FROM seat_holds WHERE hold_token = ? FOR UPDATE`, token))
}

// GetByToken reads a hold by token without locking.
func (r *SeatHoldRepo) GetByToken(ctx context.Context, token string) (*model.SeatHold, error) {
	return scanHold(r.db.QueryRowContext(ctx, `SELECT `+holdColumns+` FROM seat_holds WHERE hold_token = ?`, token))
}

// CreateTx inserts h and sets its ID. The one-HELD-per-application unique
// index turns a second concurrent hold into ErrDuplicateHold.
func (r *SeatHoldRepo) CreateTx(ctx context.Context, tx *sql.Tx, h *model.SeatHold) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO seat_holds (application_id, batch_id, hold_token, expires_at, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.ApplicationID, h.BatchID, h.HoldToken, h.ExpiresAt.UTC(), string(h.Status), h.CreatedAt.UTC(), h.UpdatedAt.UTC(),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateHold
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	h.ID = uint64(id)
	return nil
}

// TransitionTx moves a hold from one status to another. It reports false
// when the hold was no longer in from, which callers treat as a no-op.
// Only HELD holds move; every other status is final.
func (r *SeatHoldRepo) TransitionTx(ctx context.Context, tx *sql.Tx, id uint64, from, to model.HoldStatus, now time.Time) (bool, error) {
	if from != model.HoldHeld {
		return false, model.ErrHoldNotHeld
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE seat_holds SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), now.UTC(), id, string(from),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
