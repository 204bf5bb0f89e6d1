package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSSL(t *testing.T, h http.HandlerFunc) *SSLCommerz {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	g, err := NewSSLCommerz(SSLCommerzConfig{
		StoreID:      "teststore",
		StorePass:    "secret",
		BaseURL:      srv.URL,
		CallbackBase: "https://admission.example/",
		Timeout:      2 * time.Second,
	})
	require.NoError(t, err)
	return g
}

func sampleRequest() SessionRequest {
	return SessionRequest{
		TranID:      "ADM-0011223344556677",
		AmountMinor: 462500,
		Currency:    "BDT",
		ProductName: "Admission Fee",
		Customer:    Customer{Name: "Rahim Uddin", Email: "rahim@example.com"},
	}
}

func TestSSLCommerzOpenSession(t *testing.T) {
	var form url.Values
	g := newTestSSL(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, sslInitPath, r.URL.Path)
		assert.NoError(t, r.ParseForm())
		form = r.PostForm
		_, _ = w.Write([]byte(`{"status":"SUCCESS","sessionkey":"SK1","GatewayPageURL":"https://pay.example/SK1"}`))
	})

	sess, err := g.OpenSession(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/SK1", sess.URL)
	assert.Equal(t, "SK1", sess.SessionKey)
	assert.JSONEq(t, `{"status":"SUCCESS","sessionkey":"SK1","GatewayPageURL":"https://pay.example/SK1"}`, string(sess.Raw))

	assert.Equal(t, "4625.00", form.Get("total_amount"))
	assert.Equal(t, "BDT", form.Get("currency"))
	assert.Equal(t, "ADM-0011223344556677", form.Get("tran_id"))
	assert.Equal(t, "https://admission.example/v1/payments/ipn", form.Get("ipn_url"))
	assert.Equal(t, "https://admission.example/v1/payments/ssl/success", form.Get("success_url"))
	assert.Equal(t, "Dhaka", form.Get("cus_city"), "missing contact fields fall back to defaults")
	assert.Equal(t, "NO", form.Get("shipping_method"))
}

func TestSSLCommerzOpenSessionErrors(t *testing.T) {
	t.Run("init refused", func(t *testing.T) {
		g := newTestSSL(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"FAILED","failedreason":"Store Credential Error"}`))
		})
		_, err := g.OpenSession(context.Background(), sampleRequest())
		assert.ErrorIs(t, err, ErrRejected)
	})
	t.Run("server error", func(t *testing.T) {
		g := newTestSSL(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := g.OpenSession(context.Background(), sampleRequest())
		assert.ErrorIs(t, err, ErrUnavailable)
	})
	t.Run("garbage body", func(t *testing.T) {
		g := newTestSSL(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>maintenance</html>`))
		})
		_, err := g.OpenSession(context.Background(), sampleRequest())
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestSSLCommerzValidate(t *testing.T) {
	g := newTestSSL(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, sslValidatePath, r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "VAL1", q.Get("val_id"))
		assert.Equal(t, "teststore", q.Get("store_id"))
		assert.Equal(t, "json", q.Get("format"))
		_, _ = w.Write([]byte(`{"status":"VALID","tran_id":"ADM-0011223344556677","val_id":"VAL1",
			"amount":"4625.00","currency":"BDT","bank_tran_id":"B1","risk_level":"0","store_id":"teststore"}`))
	})

	v, err := g.Validate(context.Background(), "VAL1")
	require.NoError(t, err)
	assert.Equal(t, StatusValid, v.Status)
	assert.Equal(t, int64(462500), v.AmountMinor)
	assert.Equal(t, "ADM-0011223344556677", v.TranID)
	assert.Equal(t, "B1", v.BankTranID)
	assert.True(t, v.LowRisk)
}

func TestSSLCommerzValidateMapsStatusAndRisk(t *testing.T) {
	body := `{"status":"VALIDATED","tran_id":"T","amount":"bogus","currency":"BDT","risk_level":"1","store_id":"teststore"}`
	g := newTestSSL(t, func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(body)) })

	v, err := g.Validate(context.Background(), "VAL2")
	require.NoError(t, err)
	assert.Equal(t, StatusValid, v.Status)
	assert.False(t, v.LowRisk)
	assert.Equal(t, int64(-1), v.AmountMinor, "unparsable amount never matches a fee")
	assert.Equal(t, "VAL2", v.ValID)

	for in, want := range map[string]Status{
		"FAILED":              StatusFailed,
		"INVALID_TRANSACTION": StatusFailed,
		"CANCELLED":           StatusCancelled,
		"EXPIRED":             StatusExpired,
		"UNATTEMPTED":         StatusPending,
	} {
		assert.Equal(t, want, sslStatus(in), in)
	}
}

func TestSSLCommerzValidateRejectsForeignStore(t *testing.T) {
	for name, store := range map[string]string{
		"other store":   `"store_id":"other",`,
		"case mismatch": `"store_id":"TESTSTORE",`,
		"empty":         `"store_id":"",`,
		"missing":       ``,
	} {
		t.Run(name, func(t *testing.T) {
			g := newTestSSL(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{` + store + `"status":"VALID","tran_id":"T","amount":"4625.00","currency":"BDT"}`))
			})
			_, err := g.Validate(context.Background(), "VAL3")
			assert.ErrorIs(t, err, ErrRejected)
		})
	}
}

func TestNewSSLCommerzRequiresCredentials(t *testing.T) {
	_, err := NewSSLCommerz(SSLCommerzConfig{StoreID: "x"})
	assert.Error(t, err)
}
