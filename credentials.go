package gogateway

import (
	"sync"

	"github.com/evdnx/gogateway/exchange"
)

// credentialEntry holds one platform's credentials together with the
// memoized outcome of the last validation. Each entry has its own lock
// so a slow validation on one platform never blocks another.
type credentialEntry struct {
	mu        sync.RWMutex
	apiKey    string
	apiSecret string
	validated bool
	isValid   bool
}

// CredentialStore keeps API credentials for the fixed platform set.
// Entries exist for every known platform from construction; unknown
// platforms are rejected at the router boundary before reaching here.
type CredentialStore struct {
	entries map[exchange.Platform]*credentialEntry
}

// NewCredentialStore creates a store with an empty entry per platform.
func NewCredentialStore() *CredentialStore {
	entries := make(map[exchange.Platform]*credentialEntry, len(exchange.AllPlatforms()))
	for _, p := range exchange.AllPlatforms() {
		entries[p] = &credentialEntry{}
	}
	return &CredentialStore{entries: entries}
}

// Set stores credentials for a platform and discards any previous
// validation result.
func (s *CredentialStore) Set(platform exchange.Platform, apiKey, apiSecret string) {
	e, ok := s.entries[platform]
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.apiKey = apiKey
	e.apiSecret = apiSecret
	e.validated = false
	e.isValid = false
}

// Get returns the stored credentials for a platform.
func (s *CredentialStore) Get(platform exchange.Platform) (apiKey, apiSecret string, ok bool) {
	e, found := s.entries[platform]
	if !found {
		return "", "", false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.apiKey, e.apiSecret, e.apiKey != "" && e.apiSecret != ""
}

// HasCredentials reports whether non-empty credentials are stored.
func (s *CredentialStore) HasCredentials(platform exchange.Platform) bool {
	_, _, ok := s.Get(platform)
	return ok
}

// ValidationState returns the memoized validation outcome. validated is
// false until a validation has run since the credentials last changed.
func (s *CredentialStore) ValidationState(platform exchange.Platform) (validated, isValid bool) {
	e, found := s.entries[platform]
	if !found {
		return false, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.validated, e.isValid
}

// MarkValidated records a validation outcome for later reuse.
func (s *CredentialStore) MarkValidated(platform exchange.Platform, isValid bool) {
	e, found := s.entries[platform]
	if !found {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.validated = true
	e.isValid = isValid
}
