package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidAmount is returned by ParseMinor for malformed amounts.
var ErrInvalidAmount = errors.New("invalid amount")

// ParseMinor converts a decimal string with at most two fractional digits
// ("4625.00", "4625", "4625.5") into minor units. Comparisons against the
// configured fee are done on the result so "4625.0" and "4625.00" agree.
func ParseMinor(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return 0, ErrInvalidAmount
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		// allow trailing zeros beyond cents, e.g. "4625.0000"
		if strings.Trim(frac[2:], "0") != "" {
			return 0, ErrInvalidAmount
		}
		frac = frac[:2]
	}
	for len(frac) < 2 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return w*100 + f, nil
}

// FormatMinor renders minor units as a two-decimal string.
func FormatMinor(v int64) string {
	sign := ""
	if v < 0 {
		sign, v = "-", -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
