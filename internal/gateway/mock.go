package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// Mock is an in-process gateway for local development and tests. Every
// opened session validates as VALID for the requested amount unless a
// scripted result is installed with SetValidation.
type Mock struct {
	CallbackBase string

	mu          sync.Mutex
	sessions    map[string]SessionRequest // by reference
	scripted    map[string]*Validation
	openErr     error
	validateErr error
	opens       int
	validations int
}

// NewMock returns a Mock whose hosted page URLs point back at callbackBase.
func NewMock(callbackBase string) *Mock {
	return &Mock{
		CallbackBase: strings.TrimRight(callbackBase, "/"),
		sessions:     map[string]SessionRequest{},
		scripted:     map[string]*Validation{},
	}
}

// Reference returns the validation handle the mock issues for tranID.
func (m *Mock) Reference(tranID string) string { return "mock-" + tranID }

func (m *Mock) Name() string { return "mock" }

// FailOpen makes the next OpenSession calls return err until cleared with
// nil.
func (m *Mock) FailOpen(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr = err
}

// FailValidate makes Validate return err until cleared with nil.
func (m *Mock) FailValidate(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validateErr = err
}

// SetValidation scripts the answer for a reference.
func (m *Mock) SetValidation(reference string, v *Validation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripted[reference] = v
}

// Calls reports how many OpenSession and Validate calls were made.
func (m *Mock) Calls() (opens, validations int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens, m.validations
}

func (m *Mock) OpenSession(ctx context.Context, req SessionRequest) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	if m.openErr != nil {
		return nil, m.openErr
	}
	ref := m.Reference(req.TranID)
	m.sessions[ref] = req
	raw, _ := json.Marshal(map[string]string{"status": "SUCCESS", "sessionkey": ref})
	q := url.Values{"tran_id": {req.TranID}, "val_id": {ref}}
	return &Session{
		URL:        m.CallbackBase + "/v1/payments/ssl/success?" + q.Encode(),
		SessionKey: ref,
		Raw:        raw,
	}, nil
}

func (m *Mock) Validate(ctx context.Context, reference string) (*Validation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validations++
	if m.validateErr != nil {
		return nil, m.validateErr
	}
	if v, ok := m.scripted[reference]; ok {
		cp := *v
		return &cp, nil
	}
	req, ok := m.sessions[reference]
	if !ok {
		return nil, fmt.Errorf("%w: unknown reference %q", ErrRejected, reference)
	}
	raw, _ := json.Marshal(map[string]any{"status": "VALID", "tran_id": req.TranID, "amount_minor": req.AmountMinor})
	return &Validation{
		Status:      StatusValid,
		TranID:      req.TranID,
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		ValID:       reference,
		LowRisk:     true,
		RiskLevel:   "0",
		Raw:         raw,
	}, nil
}
