package model

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTranID(t *testing.T) {
	id, err := NewTranID()
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^ADM-[0-9a-f]{16}$`), id)

	other, err := NewTranID()
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
}

func TestPaymentTransitions(t *testing.T) {
	now := time.Now()
	p := &Payment{Status: PaymentInitiated}

	require.NoError(t, p.MarkRedirected("sess", "https://pay.example/x", json.RawMessage(`{}`), now))
	assert.Equal(t, PaymentRedirected, p.Status)
	assert.ErrorIs(t, p.MarkRedirected("again", "", nil, now), ErrPaymentTerminal)

	assert.True(t, p.RecordBrowserReturn(PaymentBrowserFail, json.RawMessage(`{"status":"FAILED"}`), now))
	assert.False(t, p.RecordBrowserReturn(PaymentBrowserFail, nil, now), "same status is not a change")

	// browser statuses are informational, validation may still succeed
	require.NoError(t, p.MarkValidated(now))
	assert.NotNil(t, p.ValidatedAt)
	assert.ErrorIs(t, p.MarkValidated(now), ErrPaymentValidated)
	assert.ErrorIs(t, p.MarkFailed(PaymentFailed, now), ErrPaymentValidated)
	assert.False(t, p.RecordBrowserReturn(PaymentBrowserCancel, nil, now))
	assert.Equal(t, PaymentValidated, p.Status)
}

func TestPaymentMarkFailedNormalizesStatus(t *testing.T) {
	p := &Payment{Status: PaymentRedirected}
	require.NoError(t, p.MarkFailed(PaymentBrowserSuccess, time.Now()))
	assert.Equal(t, PaymentFailed, p.Status)

	q := &Payment{Status: PaymentRedirected}
	require.NoError(t, q.MarkFailed(PaymentExpired, time.Now()))
	assert.Equal(t, PaymentExpired, q.Status)
	assert.True(t, q.IsTerminal())
}
