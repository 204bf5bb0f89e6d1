package gateway

import (
	"fmt"

	"github.com/iliyamo/batch-admission/internal/config"
)

// New builds the adapter selected by cfg.Provider.
func New(cfg config.GatewayConfig) (Client, error) {
	switch cfg.Provider {
	case "sslcommerz":
		return NewSSLCommerz(SSLCommerzConfig{
			StoreID:      cfg.StoreID,
			StorePass:    cfg.StorePass,
			Sandbox:      cfg.Sandbox,
			CallbackBase: cfg.PublicURL,
			Timeout:      cfg.Timeout,
		})
	case "stripe":
		return NewStripe(StripeConfig{SecretKey: cfg.StripeSecret, CallbackBase: cfg.PublicURL})
	case "mock":
		return NewMock(cfg.PublicURL), nil
	default:
		return nil, fmt.Errorf("unknown gateway provider %q", cfg.Provider)
	}
}
