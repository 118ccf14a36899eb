package cache

import (
	"time"
)

// Config holds snapshot store settings.
type Config struct {
	// Enabled determines whether snapshots are retained at all.
	// Fingerprint tracking works regardless.
	Enabled bool

	// DefaultTTL applies when a kind-specific TTL is unset.
	DefaultTTL time.Duration

	// MarketDataTTL bounds how stale a served ticker snapshot can be.
	MarketDataTTL time.Duration

	// OrderBookTTL bounds how stale a served book snapshot can be.
	OrderBookTTL time.Duration

	// MaxEntries caps the number of snapshots (0 = unlimited).
	MaxEntries int

	// CleanupInterval is how often expired snapshots are removed.
	CleanupInterval time.Duration
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		DefaultTTL:      time.Minute,
		MarketDataTTL:   5 * time.Second,
		OrderBookTTL:    2 * time.Second,
		MaxEntries:      10000,
		CleanupInterval: time.Minute,
	}
}
