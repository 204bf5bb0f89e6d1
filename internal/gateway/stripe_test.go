package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

// newTestStripe points the SDK's API backend at h for the duration of the
// test.
func newTestStripe(t *testing.T, h http.HandlerFunc) *Stripe {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	prev := stripe.GetBackend(stripe.APIBackend)
	stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}))
	t.Cleanup(func() { stripe.SetBackend(stripe.APIBackend, prev) })

	g, err := NewStripe(StripeConfig{SecretKey: "sk_test_123", CallbackBase: "https://admission.example/"})
	require.NoError(t, err)
	return g
}

func TestStripeOpenSession(t *testing.T) {
	var form url.Values
	g := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		form = r.PostForm
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_1"}`))
	})

	sess, err := g.OpenSession(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", sess.URL)
	assert.Equal(t, "cs_test_1", sess.SessionKey)
	assert.NotEmpty(t, sess.Raw)

	assert.Equal(t, "ADM-0011223344556677", form.Get("client_reference_id"))
	assert.Equal(t, "462500", form.Get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "bdt", form.Get("line_items[0][price_data][currency]"))
	assert.Equal(t, "rahim@example.com", form.Get("customer_email"))
	assert.Contains(t, form.Get("success_url"), "https://admission.example/v1/payments/ssl/success?tran_id=ADM-0011223344556677")
}

func TestStripeOpenSessionHonoursDeadline(t *testing.T) {
	g := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		_, _ = w.Write([]byte(`{"id":"cs_slow","url":"https://checkout.stripe.com/x"}`))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := g.OpenSession(ctx, sampleRequest())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestStripeValidate(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		status  Status
		lowRisk bool
	}{
		{
			name: "paid",
			body: `{"id":"cs_1","object":"checkout.session","status":"complete","payment_status":"paid",
				"amount_total":462500,"currency":"bdt","client_reference_id":"ADM-1",
				"payment_intent":{"id":"pi_1","object":"payment_intent","status":"succeeded",
					"latest_charge":{"id":"ch_1","object":"charge","outcome":{"risk_level":"normal"}}}}`,
			status:  StatusValid,
			lowRisk: true,
		},
		{
			name: "not assessed counts as low risk",
			body: `{"id":"cs_1","status":"complete","payment_status":"paid","amount_total":462500,"currency":"bdt",
				"client_reference_id":"ADM-1","payment_intent":{"id":"pi_1","status":"succeeded",
					"latest_charge":{"id":"ch_1","outcome":{"risk_level":"not_assessed"}}}}`,
			status:  StatusValid,
			lowRisk: true,
		},
		{
			name: "elevated risk",
			body: `{"id":"cs_1","status":"complete","payment_status":"paid","amount_total":462500,"currency":"bdt",
				"client_reference_id":"ADM-1","payment_intent":{"id":"pi_1","status":"succeeded",
					"latest_charge":{"id":"ch_1","outcome":{"risk_level":"elevated"}}}}`,
			status:  StatusValid,
			lowRisk: false,
		},
		{
			name: "cancelled intent",
			body: `{"id":"cs_1","status":"open","payment_status":"unpaid","amount_total":462500,"currency":"bdt",
				"client_reference_id":"ADM-1","payment_intent":{"id":"pi_1","status":"canceled"}}`,
			status:  StatusCancelled,
			lowRisk: true,
		},
		{
			name: "expired session",
			body: `{"id":"cs_1","status":"expired","payment_status":"unpaid","amount_total":462500,"currency":"bdt",
				"client_reference_id":"ADM-1"}`,
			status:  StatusExpired,
			lowRisk: true,
		},
		{
			name: "unpaid is pending",
			body: `{"id":"cs_1","status":"open","payment_status":"unpaid","amount_total":462500,"currency":"bdt",
				"client_reference_id":"ADM-1"}`,
			status:  StatusPending,
			lowRisk: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/checkout/sessions/cs_1", r.URL.Path)
				assert.Equal(t, "payment_intent.latest_charge", r.URL.Query().Get("expand[0]"))
				_, _ = w.Write([]byte(tc.body))
			})

			v, err := g.Validate(context.Background(), "cs_1")
			require.NoError(t, err)
			assert.Equal(t, tc.status, v.Status)
			assert.Equal(t, tc.lowRisk, v.LowRisk)
			assert.Equal(t, "ADM-1", v.TranID)
			assert.Equal(t, int64(462500), v.AmountMinor)
			assert.Equal(t, "BDT", v.Currency)
			assert.Equal(t, "cs_1", v.ValID)
		})
	}
}

func TestStripeErrorMapping(t *testing.T) {
	t.Run("unknown session is a rejection", func(t *testing.T) {
		g := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"No such checkout.session: cs_x"}}`))
		})
		_, err := g.Validate(context.Background(), "cs_x")
		assert.ErrorIs(t, err, ErrRejected)
	})
	t.Run("server error is unavailability", func(t *testing.T) {
		g := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"boom"}}`))
		})
		_, err := g.Validate(context.Background(), "cs_x")
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.False(t, errors.Is(err, ErrRejected))
	})
}

func TestNewStripeRequiresKey(t *testing.T) {
	_, err := NewStripe(StripeConfig{})
	assert.Error(t, err)
}
