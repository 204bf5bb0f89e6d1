package config

// Redis backs distributed rate limiting and the availability response cache.
// If the server cannot be reached at startup NewRedisClient returns nil and
// callers degrade by disabling both.

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection settings. Addr takes precedence over
// Host and Port when both are set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TLS      bool   `mapstructure:"tls"`
}

// Address resolves the host:port to dial.
func (r RedisConfig) Address() string {
	if r.Addr != "" {
		return r.Addr
	}
	if r.Host != "" && r.Port != "" {
		return r.Host + ":" + r.Port
	}
	return "localhost:6379"
}

// NewRedisClient instantiates a Redis client. The returned client is nil if
// a connection cannot be established.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	var tlsConf *tls.Config
	if cfg.TLS {
		tlsConf = &tls.Config{InsecureSkipVerify: true}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      cfg.Address(),
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
