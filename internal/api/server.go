// Package api implements HTTP handlers and helpers for the fleetops service.
package api

import (
	"strings"
	"time"

	"fleetops/internal/auth"
	"fleetops/internal/config"
	"fleetops/internal/store"
)

type Server struct {
	Store     store.Store
	Auth      *auth.Verifier
	Broker    EventBroker
	Locations *LocationCache
	TokenTTL  time.Duration
}

// NewServer creates a Server from config. Without a database URL the
// in-memory store is used; without a Redis URL the in-process broker is used.
func NewServer(cfg config.Config) (*Server, error) {
	var s store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		// Run migrations (dev helper)
		if cfg.Migrate {
			_ = sp.MigrateDir("db/migrations")
		}
		s = sp
	}
	var broker EventBroker
	if cfg.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}
	ttl := cfg.Auth.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Server{
		Store:     s,
		Auth:      auth.NewVerifier(cfg.Auth.Mode, cfg.Auth.HMACSecret, cfg.Auth.JWKSURL),
		Broker:    broker,
		Locations: NewLocationCache(),
		TokenTTL:  ttl,
	}, nil
}
