// Package gateway wraps the external payment provider behind a small
// synchronous contract: open a hosted checkout session, and validate a
// completed transaction server to server.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrUnavailable covers transport failures, timeouts and 5xx answers.
	// Callers may retry.
	ErrUnavailable = errors.New("payment gateway unavailable")
	// ErrRejected means the gateway answered but refused the request.
	ErrRejected = errors.New("payment gateway rejected request")
)

// Status is the gateway's verdict on a transaction, normalized across
// providers.
type Status string

const (
	StatusValid     Status = "VALID"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
	StatusPending   Status = "PENDING"
)

// Customer carries the applicant contact fields passed to the hosted page.
type Customer struct {
	Name     string
	Email    string
	Phone    string
	Address  string
	City     string
	Postcode string
	Country  string
}

// SessionRequest describes one checkout. Amount and currency always come
// from server configuration.
type SessionRequest struct {
	TranID          string
	AmountMinor     int64
	Currency        string
	ProductName     string
	ProductCategory string
	Customer        Customer
}

// Session is an opened checkout.
type Session struct {
	URL        string
	SessionKey string
	Raw        json.RawMessage
}

// Validation is the parsed answer of a server-side validation call.
type Validation struct {
	Status      Status
	TranID      string
	AmountMinor int64
	Currency    string
	ValID       string
	BankTranID  string
	RiskLevel   string
	LowRisk     bool
	Raw         json.RawMessage
}

// Client is implemented by every provider adapter.
type Client interface {
	Name() string
	OpenSession(ctx context.Context, req SessionRequest) (*Session, error)
	// Validate asks the provider about a transaction. reference is the
	// provider's validation handle (val_id, checkout session id).
	Validate(ctx context.Context, reference string) (*Validation, error)
}
