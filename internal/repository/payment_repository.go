package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iliyamo/batch-admission/internal/model"
)

// PaymentRepo provides access to the payments table.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo returns a PaymentRepo bound to db.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

const paymentColumns = `id, tran_id, application_id, amount_minor, currency, gateway, status, creation_context,
	session_key, gateway_url, val_id, bank_tran_id, risk_level, init_response, callback_payload,
	validation_response, created_at, updated_at, validated_at`

func scanPayment(s rowScanner) (*model.Payment, error) {
	var (
		p                       model.Payment
		status                  string
		ctxJSON                 []byte
		initResp, cb, validResp []byte
		validatedAt             sql.NullTime
	)
	err := s.Scan(&p.ID, &p.TranID, &p.ApplicationID, &p.AmountMinor, &p.Currency, &p.Gateway, &status, &ctxJSON,
		&p.SessionKey, &p.GatewayURL, &p.ValID, &p.BankTranID, &p.RiskLevel, &initResp, &cb,
		&validResp, &p.CreatedAt, &p.UpdatedAt, &validatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	p.Status = model.PaymentStatus(status)
	if len(ctxJSON) > 0 {
		if err := json.Unmarshal(ctxJSON, &p.Context); err != nil {
			return nil, fmt.Errorf("decode creation_context of %s: %w", p.TranID, err)
		}
	}
	p.InitResponse = json.RawMessage(initResp)
	p.CallbackPayload = json.RawMessage(cb)
	p.ValidationResponse = json.RawMessage(validResp)
	if validatedAt.Valid {
		t := validatedAt.Time
		p.ValidatedAt = &t
	}
	return &p, nil
}

// GetByTranID reads a payment by merchant transaction id without locking.
func (r *PaymentRepo) GetByTranID(ctx context.Context, tranID string) (*model.Payment, error) {
	return scanPayment(r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE tran_id = ?`, tranID))
}

// LockByTranIDTx reads a payment and locks its row.
func (r *PaymentRepo) LockByTranIDTx(ctx context.Context, tx *sql.Tx, tranID string) (*model.Payment, error) {
	return scanPayment(tx.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE tran_id = ? FOR UPDATE`, tranID))
}

// CreateTx inserts p and sets its ID.
func (r *PaymentRepo) CreateTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
	ctxJSON, err := json.Marshal(p.Context)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO payments (tran_id, application_id, amount_minor, currency, gateway, status, creation_context,
			created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.TranID, p.ApplicationID, p.AmountMinor, p.Currency, p.Gateway, string(p.Status), string(ctxJSON),
		p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateTranID
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// UpdateTx writes every mutable column of p. The row should be locked.
func (r *PaymentRepo) UpdateTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
	var validatedAt any
	if p.ValidatedAt != nil {
		validatedAt = p.ValidatedAt.UTC()
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE payments SET status = ?, session_key = ?, gateway_url = ?, val_id = ?, bank_tran_id = ?,
			risk_level = ?, init_response = ?, callback_payload = ?, validation_response = ?,
			updated_at = ?, validated_at = ?
		 WHERE id = ?`,
		string(p.Status), p.SessionKey, p.GatewayURL, p.ValID, p.BankTranID,
		p.RiskLevel, nullableJSON(p.InitResponse), nullableJSON(p.CallbackPayload), nullableJSON(p.ValidationResponse),
		p.UpdatedAt.UTC(), validatedAt, p.ID,
	)
	return err
}
