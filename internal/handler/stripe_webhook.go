package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
)

const maxWebhookBody = 64 << 10

// StripeWebhook handles POST /v1/payments/ipn/stripe. The signed event only
// tells us which checkout session to look at; the session is then read back
// through the gateway by Finalize like any other IPN.
func (h *PaymentHandler) StripeWebhook(secret string) echo.HandlerFunc {
	return func(c echo.Context) error {
		payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "failed to read request body"})
		}
		sig := c.Request().Header.Get("Stripe-Signature")
		if sig == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing Stripe-Signature header"})
		}
		ev, err := webhook.ConstructEventWithOptions(payload, sig, secret, webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			h.Log.Warn("stripe webhook signature rejected", zap.Error(err))
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid signature"})
		}

		switch ev.Type {
		case stripe.EventTypeCheckoutSessionCompleted,
			stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
			stripe.EventTypeCheckoutSessionAsyncPaymentFailed,
			stripe.EventTypeCheckoutSessionExpired:
		default:
			return c.JSON(http.StatusOK, echo.Map{"received": true, "handled": false})
		}

		var sess stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "failed to parse event data"})
		}
		if sess.ClientReferenceID == "" {
			h.Log.Warn("stripe checkout session without tran_id", zap.String("session", sess.ID))
			return c.JSON(http.StatusOK, echo.Map{"received": true, "handled": false})
		}
		h.Log.Info("stripe webhook", zap.String("type", string(ev.Type)), zap.String("tran_id", sess.ClientReferenceID))
		return h.finalize(c, sess.ClientReferenceID, sess.ID)
	}
}
