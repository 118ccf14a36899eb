package cache

import (
	"math"
	"sync"
	"time"

	"github.com/evdnx/gogateway/models"
)

type entry struct {
	value      interface{}
	expiration int64
}

// Store caches recent market snapshots per platform and symbol, and
// remembers the last payload fingerprint emitted on each stream so
// pollers can suppress unchanged ticks.
type Store struct {
	mu           sync.RWMutex
	entries      map[string]entry
	fingerprints map[string]string
	cfg          Config
	stopJanitor  chan struct{}
}

// NewStore creates a store and starts its cleanup goroutine.
func NewStore(cfg Config) *Store {
	s := &Store{
		entries:      make(map[string]entry),
		fingerprints: make(map[string]string),
		cfg:          cfg,
		stopJanitor:  make(chan struct{}),
	}
	go s.janitor()
	return s
}

func snapshotKey(kind, platform, symbol string) string {
	return kind + ":" + platform + ":" + symbol
}

// SetMarketData caches a market data snapshot.
func (s *Store) SetMarketData(platform, symbol string, data models.MarketData) {
	s.set(snapshotKey("md", platform, symbol), data, s.cfg.MarketDataTTL)
}

// MarketData returns the cached snapshot for a platform and symbol.
func (s *Store) MarketData(platform, symbol string) (models.MarketData, bool) {
	v, ok := s.get(snapshotKey("md", platform, symbol))
	if !ok {
		return models.MarketData{}, false
	}
	data, ok := v.(models.MarketData)
	return data, ok
}

// SetOrderBook caches an order book snapshot.
func (s *Store) SetOrderBook(platform, symbol string, book *models.OrderBook) {
	s.set(snapshotKey("ob", platform, symbol), book, s.cfg.OrderBookTTL)
}

// OrderBook returns the cached order book for a platform and symbol.
func (s *Store) OrderBook(platform, symbol string) (*models.OrderBook, bool) {
	v, ok := s.get(snapshotKey("ob", platform, symbol))
	if !ok {
		return nil, false
	}
	book, ok := v.(*models.OrderBook)
	return book, ok
}

// Changed records the fingerprint for a stream and reports whether it
// differs from the previous one. The first fingerprint on a stream
// always counts as changed.
func (s *Store) Changed(stream, fingerprint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, seen := s.fingerprints[stream]
	s.fingerprints[stream] = fingerprint
	return !seen || prev != fingerprint
}

// Forget drops the remembered fingerprint for a stream, so the next
// tick emits unconditionally.
func (s *Store) Forget(stream string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fingerprints, stream)
}

func (s *Store) set(key string, value interface{}, ttl time.Duration) {
	if !s.cfg.Enabled {
		return
	}
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var expiration int64
	if ttl > 0 {
		expiration = time.Now().Add(ttl).UnixNano()
	}
	s.entries[key] = entry{value: value, expiration: expiration}

	if s.cfg.MaxEntries > 0 && len(s.entries) > s.cfg.MaxEntries {
		s.removeOldest()
	}
}

func (s *Store) get(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, found := s.entries[key]
	if !found {
		return nil, false
	}
	if e.expiration > 0 && time.Now().UnixNano() > e.expiration {
		return nil, false
	}
	return e.value, true
}

// removeOldest evicts the entry closest to expiry. Caller holds the lock.
func (s *Store) removeOldest() {
	var oldestKey string
	var oldestTime int64 = math.MaxInt64

	for key, e := range s.entries {
		if e.expiration > 0 && e.expiration < oldestTime {
			oldestKey = key
			oldestTime = e.expiration
		}
	}
	if oldestKey != "" {
		delete(s.entries, oldestKey)
	}
}

// Clear drops all snapshots and fingerprints.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]entry)
	s.fingerprints = make(map[string]string)
}

// Close stops the cleanup goroutine.
func (s *Store) Close() {
	close(s.stopJanitor)
}

func (s *Store) janitor() {
	interval := s.cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.deleteExpired()
		case <-s.stopJanitor:
			return
		}
	}
}

func (s *Store) deleteExpired() {
	now := time.Now().UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.entries {
		if e.expiration > 0 && now > e.expiration {
			delete(s.entries, key)
		}
	}
}
