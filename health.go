package gogateway

import (
	"sync"
	"time"

	"github.com/evdnx/gogateway/exchange"
)

// PlatformStatus represents the observed health of a platform
type PlatformStatus string

const (
	// PlatformStatusUp indicates the platform is operational
	PlatformStatusUp PlatformStatus = "UP"
	// PlatformStatusDegraded indicates recent failures below the down threshold
	PlatformStatusDegraded PlatformStatus = "DEGRADED"
	// PlatformStatusDown indicates consecutive failures at or above the down threshold
	PlatformStatusDown PlatformStatus = "DOWN"
)

// PlatformHealthInfo contains health information about a platform.
// It is observational only: routing never consults it.
type PlatformHealthInfo struct {
	Status           PlatformStatus `json:"status"`
	FailureCount     int            `json:"failureCount"`
	ConsecutiveFails int            `json:"consecutiveFails"`
	LastError        string         `json:"lastError,omitempty"`
	LastSuccess      time.Time      `json:"lastSuccess,omitempty"`
	LastFailure      time.Time      `json:"lastFailure,omitempty"`
}

// HealthConfig contains thresholds for the health tracker
type HealthConfig struct {
	// DegradedThreshold is the number of consecutive failures before DEGRADED
	DegradedThreshold int
	// DownThreshold is the number of consecutive failures before DOWN
	DownThreshold int
}

// DefaultHealthConfig returns the default health thresholds
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		DegradedThreshold: 1,
		DownThreshold:     3,
	}
}

// HealthTracker records per-platform call outcomes
type HealthTracker struct {
	mu      sync.RWMutex
	config  HealthConfig
	entries map[exchange.Platform]*PlatformHealthInfo
}

// NewHealthTracker creates a tracker with an UP entry per platform
func NewHealthTracker(config HealthConfig) *HealthTracker {
	entries := make(map[exchange.Platform]*PlatformHealthInfo, len(exchange.AllPlatforms()))
	for _, p := range exchange.AllPlatforms() {
		entries[p] = &PlatformHealthInfo{Status: PlatformStatusUp}
	}
	return &HealthTracker{config: config, entries: entries}
}

// RecordSuccess marks a successful call against a platform
func (t *HealthTracker) RecordSuccess(platform exchange.Platform) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.entries[platform]
	if !ok {
		return
	}
	info.ConsecutiveFails = 0
	info.Status = PlatformStatusUp
	info.LastSuccess = time.Now()
}

// RecordFailure marks a failed call against a platform
func (t *HealthTracker) RecordFailure(platform exchange.Platform, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.entries[platform]
	if !ok {
		return
	}
	info.FailureCount++
	info.ConsecutiveFails++
	info.LastFailure = time.Now()
	if err != nil {
		info.LastError = err.Error()
	}

	switch {
	case info.ConsecutiveFails >= t.config.DownThreshold:
		info.Status = PlatformStatusDown
	case info.ConsecutiveFails >= t.config.DegradedThreshold:
		info.Status = PlatformStatusDegraded
	}
}

// Status returns the current status for a platform
func (t *HealthTracker) Status(platform exchange.Platform) PlatformStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if info, ok := t.entries[platform]; ok {
		return info.Status
	}
	return PlatformStatusDown
}

// Snapshot returns a copy of all platform health entries
func (t *HealthTracker) Snapshot() map[string]PlatformHealthInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]PlatformHealthInfo, len(t.entries))
	for p, info := range t.entries {
		out[string(p)] = *info
	}
	return out
}
