package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
)

// StripeConfig configures the Stripe Checkout adapter.
type StripeConfig struct {
	SecretKey    string
	CallbackBase string
}

// Stripe opens Stripe Checkout sessions and validates them by reading the
// session back with its latest charge.
type Stripe struct {
	cfg StripeConfig
}

// NewStripe returns a Stripe adapter and sets the global API key. Calls
// carry the caller's context, so its deadline bounds each request.
func NewStripe(cfg StripeConfig) (*Stripe, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	stripe.Key = cfg.SecretKey
	return &Stripe{cfg: cfg}, nil
}

func (g *Stripe) Name() string { return "stripe" }

// OpenSession creates a one-item Checkout session. The success URL carries
// the session id as val_id so the browser return can trigger validation
// like any other provider.
func (g *Stripe) OpenSession(ctx context.Context, req SessionRequest) (*Session, error) {
	callback := strings.TrimRight(g.cfg.CallbackBase, "/")
	tran := url.QueryEscape(req.TranID)

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.TranID),
		SuccessURL:        stripe.String(callback + "/v1/payments/ssl/success?tran_id=" + tran + "&val_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(callback + "/v1/payments/ssl/cancel?tran_id=" + tran),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.AmountMinor),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.ProductName),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	if req.Customer.Email != "" {
		params.CustomerEmail = stripe.String(req.Customer.Email)
	}
	params.AddMetadata("tran_id", req.TranID)
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		return nil, stripeErr("create checkout session", err)
	}
	return &Session{URL: sess.URL, SessionKey: sess.ID, Raw: stripeRaw(sess)}, nil
}

// Validate reads the checkout session identified by reference.
func (g *Stripe) Validate(ctx context.Context, reference string) (*Validation, error) {
	params := &stripe.CheckoutSessionParams{}
	params.AddExpand("payment_intent.latest_charge")
	params.Context = ctx
	sess, err := session.Get(reference, params)
	if err != nil {
		return nil, stripeErr("get checkout session", err)
	}

	v := &Validation{
		Status:      StatusPending,
		TranID:      sess.ClientReferenceID,
		AmountMinor: sess.AmountTotal,
		Currency:    strings.ToUpper(string(sess.Currency)),
		ValID:       sess.ID,
		LowRisk:     true,
		Raw:         stripeRaw(sess),
	}
	switch {
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		v.Status = StatusExpired
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		v.Status = StatusValid
	}
	if pi := sess.PaymentIntent; pi != nil {
		v.BankTranID = pi.ID
		if pi.Status == stripe.PaymentIntentStatusCanceled {
			v.Status = StatusCancelled
		}
		if ch := pi.LatestCharge; ch != nil && ch.Outcome != nil {
			v.RiskLevel = ch.Outcome.RiskLevel
			v.LowRisk = v.RiskLevel == "" || v.RiskLevel == "normal" || v.RiskLevel == "not_assessed"
		}
	}
	return v, nil
}

func stripeRaw(sess *stripe.CheckoutSession) json.RawMessage {
	if sess.LastResponse != nil && len(sess.LastResponse.RawJSON) > 0 {
		return json.RawMessage(sess.LastResponse.RawJSON)
	}
	b, err := json.Marshal(sess)
	if err != nil {
		return nil
	}
	return b
}

// stripeErr maps Stripe client errors onto the gateway taxonomy: 4xx are
// rejections, everything else is treated as unavailability.
func stripeErr(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.HTTPStatusCode >= 400 && se.HTTPStatusCode < 500 && se.HTTPStatusCode != 429 {
		return fmt.Errorf("%w: stripe %s: %s", ErrRejected, op, se.Msg)
	}
	return fmt.Errorf("%w: stripe %s: %v", ErrUnavailable, op, err)
}
