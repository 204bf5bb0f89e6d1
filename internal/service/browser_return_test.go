package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/batch-admission/internal/gateway"
	"github.com/iliyamo/batch-admission/internal/model"
)

func TestBrowserFailReleasesHoldIdempotently(t *testing.T) {
	f := newFixture(t, 1)
	res := f.reserve(t, f.addApplicant("A").ID)
	payload := json.RawMessage(`{"status":"FAILED"}`)

	for i := 0; i < 2; i++ {
		p, err := f.svc.Finalization.RecordBrowserReturn(context.Background(), ReturnFail, res.Payment.TranID, "", payload)
		require.NoError(t, err)
		assert.Equal(t, model.PaymentBrowserFail, p.Status)
	}
	h, err := f.store.HoldByToken(context.Background(), res.Hold.HoldToken)
	require.NoError(t, err)
	assert.Equal(t, model.HoldCancelled, h.Status)

	// The seat went back to the pool.
	f.reserve(t, f.addApplicant("B").ID)
}

func TestBrowserCancelAfterValidationKeepsSeat(t *testing.T) {
	f := newFixture(t, 1)
	res := f.reserve(t, f.addApplicant("A").ID)
	ok, err := f.finalize(t, res.Payment.TranID)
	require.NoError(t, err)
	require.True(t, ok)

	p, err := f.svc.Finalization.RecordBrowserReturn(context.Background(), ReturnCancel, res.Payment.TranID, "", nil)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentValidated, p.Status)
	h, err := f.store.HoldByToken(context.Background(), res.Hold.HoldToken)
	require.NoError(t, err)
	assert.Equal(t, model.HoldConfirmed, h.Status)
}

func TestBrowserSuccessFinalizesOpportunistically(t *testing.T) {
	f := newFixture(t, 1)
	res := f.reserve(t, f.addApplicant("A").ID)
	tran := res.Payment.TranID

	p, err := f.svc.Finalization.RecordBrowserReturn(context.Background(), ReturnSuccess, tran, f.gw.Reference(tran), json.RawMessage(`{"status":"VALID"}`))
	require.NoError(t, err)
	assert.Equal(t, model.PaymentValidated, p.Status)
	assert.JSONEq(t, `{"status":"VALID"}`, string(p.CallbackPayload))
	assert.Equal(t, 1, f.confirmed(t))
}

func TestBrowserSuccessWithFailingValidatorIsInformational(t *testing.T) {
	f := newFixture(t, 1)
	res := f.reserve(t, f.addApplicant("A").ID)
	tran := res.Payment.TranID
	f.gw.FailValidate(gateway.ErrUnavailable)

	p, err := f.svc.Finalization.RecordBrowserReturn(context.Background(), ReturnSuccess, tran, f.gw.Reference(tran), nil)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentBrowserSuccess, p.Status)
	assert.Equal(t, f.gw.Reference(tran), p.ValID)

	// A later IPN without val_id reuses the one recorded on return.
	f.gw.FailValidate(nil)
	ok, err := f.svc.Finalization.Finalize(context.Background(), tran, Assertion{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBrowserReturnUnknownPayment(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.svc.Finalization.RecordBrowserReturn(context.Background(), ReturnFail, "ADM-missing", "", nil)
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestPaymentStatusIncludesHold(t *testing.T) {
	f := newFixture(t, 1)
	res := f.reserve(t, f.addApplicant("A").ID)

	view, err := f.svc.Finalization.PaymentStatus(context.Background(), res.Payment.TranID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRedirected, view.Payment.Status)
	require.NotNil(t, view.Hold)
	assert.Equal(t, res.Hold.HoldToken, view.Hold.HoldToken)
}

func TestExpirySweeperRun(t *testing.T) {
	f := newFixture(t, 3)
	f.reserve(t, f.addApplicant("A").ID)
	f.reserve(t, f.addApplicant("B").ID)

	n, err := f.svc.Sweeper.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(testSettings.HoldDuration)
	n, err = f.svc.Sweeper.Run(context.Background(), f.batch.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = f.svc.Sweeper.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}
