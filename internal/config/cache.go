package config

import (
	"strings"
	"time"
)

// CacheConfig defines settings for the response cache middleware. When
// Enabled is false or no Redis client is configured, caching is disabled.
// The cache only fronts advisory read endpoints such as batch availability;
// admission decisions never read from it.
type CacheConfig struct {
	Enabled      bool            `mapstructure:"enabled"`
	Methods      map[string]bool `mapstructure:"-"`
	TTL          time.Duration   `mapstructure:"ttl"`
	KeyStrategy  string          `mapstructure:"key_strategy"`
	Prefix       string          `mapstructure:"prefix"`
	MaxBodyBytes int             `mapstructure:"max_body_bytes"`
}

func parseMethods(s string) map[string]bool {
	m := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}
