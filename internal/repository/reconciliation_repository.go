package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/batch-admission/internal/model"
)

// ReconciliationRepo stores cases where validated funds found no seat or
// duplicated an earlier payment.
type ReconciliationRepo struct {
	db *sql.DB
}

// NewReconciliationRepo returns a ReconciliationRepo bound to db.
func NewReconciliationRepo(db *sql.DB) *ReconciliationRepo { return &ReconciliationRepo{db: db} }

// CreateTx inserts c and sets its ID.
func (r *ReconciliationRepo) CreateTx(ctx context.Context, tx *sql.Tx, c *model.ReconciliationCase) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO reconciliation_cases (payment_id, tran_id, application_id, batch_id, reason, status, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.PaymentID, c.TranID, c.ApplicationID, c.BatchID, c.Reason, string(c.Status), c.Note, c.CreatedAt.UTC(),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = uint64(id)
	return nil
}

// List returns cases in creation order. An empty status lists all.
func (r *ReconciliationRepo) List(ctx context.Context, status model.ReconciliationStatus, limit int) ([]model.ReconciliationCase, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT id, payment_id, tran_id, application_id, batch_id, reason, status, note, created_at, resolved_at
	      FROM reconciliation_cases`
	args := []any{}
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, string(status))
	}
	q += ` ORDER BY id LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ReconciliationCase
	for rows.Next() {
		var (
			c        model.ReconciliationCase
			st       string
			resolved sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.PaymentID, &c.TranID, &c.ApplicationID, &c.BatchID, &c.Reason, &st, &c.Note, &c.CreatedAt, &resolved); err != nil {
			return nil, err
		}
		c.Status = model.ReconciliationStatus(st)
		if resolved.Valid {
			t := resolved.Time
			c.ResolvedAt = &t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Resolve closes an OPEN case with an operator note. Resolving twice
// returns ErrConflict.
func (r *ReconciliationRepo) Resolve(ctx context.Context, id uint64, note string, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE reconciliation_cases SET status = 'RESOLVED', note = ?, resolved_at = ? WHERE id = ? AND status = 'OPEN'`,
		note, now.UTC(), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reconciliation_cases WHERE id = ?`, id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrReconciliationNotFound
	}
	return ErrConflict
}
