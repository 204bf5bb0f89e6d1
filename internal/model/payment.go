package model

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"
)

// PaymentStatus is the lifecycle state of a Payment.
type PaymentStatus string

const (
	PaymentInitiated      PaymentStatus = "INITIATED"
	PaymentRedirected     PaymentStatus = "REDIRECTED"
	PaymentBrowserSuccess PaymentStatus = "BROWSER_SUCCESS"
	PaymentBrowserFail    PaymentStatus = "BROWSER_FAIL"
	PaymentBrowserCancel  PaymentStatus = "BROWSER_CANCEL"
	PaymentValidated      PaymentStatus = "VALIDATED"
	PaymentFailed         PaymentStatus = "FAILED"
	PaymentCancelled      PaymentStatus = "CANCELLED"
	PaymentExpired        PaymentStatus = "EXPIRED"
)

var (
	// ErrPaymentValidated is returned for any transition out of VALIDATED.
	ErrPaymentValidated = errors.New("payment already validated")
	// ErrPaymentTerminal is returned when a pre-terminal only transition
	// is attempted on a terminal payment.
	ErrPaymentTerminal = errors.New("payment is in a terminal state")
)

// CreationContext is the opaque blob stored with a payment at creation. It
// binds the payment to the hold it was opened for.
type CreationContext struct {
	HoldToken     string `json:"hold_token,omitempty"`
	ApplicationID uint64 `json:"application_id"`
	BatchID       uint64 `json:"batch_id"`
	ProductName   string `json:"product_name,omitempty"`
}

// Payment is one funds-movement attempt for an application. TranID is the
// merchant transaction id and the idempotency key for every callback.
type Payment struct {
	ID                 uint64
	TranID             string
	ApplicationID      uint64
	AmountMinor        int64
	Currency           string
	Gateway            string
	Status             PaymentStatus
	Context            CreationContext
	SessionKey         string
	GatewayURL         string
	ValID              string
	BankTranID         string
	RiskLevel          string
	InitResponse       json.RawMessage
	CallbackPayload    json.RawMessage
	ValidationResponse json.RawMessage
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ValidatedAt        *time.Time
}

// NewTranID returns a fresh merchant transaction id of the form
// ADM-<16 hex chars>.
func NewTranID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "ADM-" + hex.EncodeToString(b), nil
}

// IsValidated reports whether the payment reached its success state.
func (p *Payment) IsValidated() bool { return p.Status == PaymentValidated }

// IsTerminal reports whether the payment can no longer change state through
// browser returns.
func (p *Payment) IsTerminal() bool {
	switch p.Status {
	case PaymentValidated, PaymentFailed, PaymentCancelled, PaymentExpired:
		return true
	}
	return false
}

// MarkRedirected stores the gateway session and moves INITIATED to
// REDIRECTED.
func (p *Payment) MarkRedirected(sessionKey, url string, raw json.RawMessage, now time.Time) error {
	if p.Status != PaymentInitiated {
		return ErrPaymentTerminal
	}
	p.SessionKey = sessionKey
	p.GatewayURL = url
	p.InitResponse = raw
	p.Status = PaymentRedirected
	p.UpdatedAt = now.UTC()
	return nil
}

// RecordBrowserReturn stores the raw redirect payload and, while the
// payment is still pre-terminal, moves it to the informational browser
// status. It reports whether the status changed.
func (p *Payment) RecordBrowserReturn(status PaymentStatus, payload json.RawMessage, now time.Time) bool {
	if p.IsTerminal() {
		return false
	}
	p.CallbackPayload = payload
	changed := p.Status != status
	p.Status = status
	p.UpdatedAt = now.UTC()
	return changed
}

// MarkValidated enters VALIDATED. It is the single success transition and
// may happen at most once.
func (p *Payment) MarkValidated(now time.Time) error {
	if p.IsValidated() {
		return ErrPaymentValidated
	}
	now = now.UTC()
	p.Status = PaymentValidated
	p.ValidatedAt = &now
	p.UpdatedAt = now
	return nil
}

// MarkFailed moves a not yet validated payment to FAILED, CANCELLED or
// EXPIRED.
func (p *Payment) MarkFailed(status PaymentStatus, now time.Time) error {
	if p.IsValidated() {
		return ErrPaymentValidated
	}
	switch status {
	case PaymentFailed, PaymentCancelled, PaymentExpired:
	default:
		status = PaymentFailed
	}
	p.Status = status
	p.UpdatedAt = now.UTC()
	return nil
}
