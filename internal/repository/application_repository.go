package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/batch-admission/internal/model"
)

// ApplicationRepo reads admission applications and flips their paid flag.
type ApplicationRepo struct {
	db *sql.DB
}

// NewApplicationRepo returns an ApplicationRepo bound to db.
func NewApplicationRepo(db *sql.DB) *ApplicationRepo { return &ApplicationRepo{db: db} }

const applicationColumns = `id, batch_id, user_id, student_name, email, mobile, address, city,
	postcode, country, is_paid, paid_payment_id, created_at, updated_at`

func scanApplication(s rowScanner) (*model.Application, error) {
	var (
		a      model.Application
		paidID sql.NullInt64
	)
	err := s.Scan(&a.ID, &a.BatchID, &a.UserID, &a.StudentName, &a.Email, &a.Mobile, &a.Address,
		&a.City, &a.Postcode, &a.Country, &a.IsPaid, &paidID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrApplicationNotFound
		}
		return nil, err
	}
	if paidID.Valid {
		id := uint64(paidID.Int64)
		a.PaidPaymentID = &id
	}
	return &a, nil
}

// GetByID reads an application without locking.
func (r *ApplicationRepo) GetByID(ctx context.Context, id uint64) (*model.Application, error) {
	return scanApplication(r.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id))
}

// LockTx reads an application and locks its row.
func (r *ApplicationRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Application, error) {
	return scanApplication(tx.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = ? FOR UPDATE`, id))
}

// MarkPaidTx records the settling payment on the application. The row must
// already be locked by the caller.
func (r *ApplicationRepo) MarkPaidTx(ctx context.Context, tx *sql.Tx, id, paymentID uint64, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE applications SET is_paid = 1, paid_payment_id = ?, updated_at = ? WHERE id = ?`,
		paymentID, now.UTC(), id,
	)
	return err
}
