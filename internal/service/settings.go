package service

import (
	"time"

	"github.com/iliyamo/batch-admission/internal/config"
)

// Settings are the fixed, server-side parameters of an admission payment.
// They are never taken from request input.
type Settings struct {
	FeeMinor        int64
	Currency        string
	HoldDuration    time.Duration
	ProductName     string
	ProductCategory string
	GatewayTimeout  time.Duration
}

// SettingsFromConfig derives Settings from validated configuration.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	fee, err := cfg.Admission.FeeMinor()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		FeeMinor:        fee,
		Currency:        cfg.Admission.Currency,
		HoldDuration:    cfg.Admission.HoldDuration,
		ProductName:     cfg.Admission.ProductName,
		ProductCategory: cfg.Admission.Category,
		GatewayTimeout:  cfg.Gateway.Timeout,
	}, nil
}

func (s Settings) feeMatches(amountMinor int64, currency string) bool {
	return amountMinor == s.FeeMinor && currency == s.Currency
}
