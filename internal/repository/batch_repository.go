package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/batch-admission/internal/model"
)

// BatchRepo provides access to the batches table, which carries the
// capacity ledger.
type BatchRepo struct {
	db *sql.DB
}

// NewBatchRepo returns a BatchRepo bound to db.
func NewBatchRepo(db *sql.DB) *BatchRepo { return &BatchRepo{db: db} }

const batchColumns = `id, name, total_seats, confirmed_seats, created_at, updated_at`

func scanBatch(s rowScanner) (*model.Batch, error) {
	var b model.Batch
	if err := s.Scan(&b.ID, &b.Name, &b.TotalSeats, &b.ConfirmedSeats, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBatchNotFound
		}
		return nil, err
	}
	return &b, nil
}

// GetByID reads a batch without locking.
func (r *BatchRepo) GetByID(ctx context.Context, id uint64) (*model.Batch, error) {
	return scanBatch(r.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = ?`, id))
}

// LockTx reads a batch and takes an exclusive lock on its row.
func (r *BatchRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Batch, error) {
	return scanBatch(tx.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = ? FOR UPDATE`, id))
}

// IncrementConfirmedTx adds one confirmed seat. The WHERE guard keeps the
// ledger from exceeding total_seats even if a caller skipped the capacity
// check.
func (r *BatchRepo) IncrementConfirmedTx(ctx context.Context, tx *sql.Tx, id uint64, now time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE batches SET confirmed_seats = confirmed_seats + 1, updated_at = ?
		 WHERE id = ? AND confirmed_seats < total_seats`,
		now.UTC(), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrBatchFull
	}
	return nil
}
