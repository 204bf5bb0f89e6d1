package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/batch-admission/internal/handler"
	"github.com/iliyamo/batch-admission/internal/service"
)

// RegisterPayments registers the gateway-facing callbacks. They carry no
// JWT and are not rate limited.
func RegisterPayments(e *echo.Echo, p *handler.PaymentHandler, stripeWebhookSecret string) {
	g := e.Group("/v1/payments")
	for path, kind := range map[string]service.ReturnKind{
		"/ssl/success": service.ReturnSuccess,
		"/ssl/fail":    service.ReturnFail,
		"/ssl/cancel":  service.ReturnCancel,
	} {
		h := p.BrowserReturn(kind)
		g.GET(path, h)
		g.POST(path, h)
	}
	g.POST("/ipn", p.IPN)
	if stripeWebhookSecret != "" {
		g.POST("/ipn/stripe", p.StripeWebhook(stripeWebhookSecret))
	}
}
