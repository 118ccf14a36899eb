package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/evdnx/gogateway/models"
)

// Adapter is the capability contract every exchange backend implements.
// An adapter is responsible only for symbol translation, shaping the
// vendor's responses into the canonical models, and reporting failures as
// typed errors. It never decides simulation-vs-live itself; that decision
// belongs to the gateway router.
type Adapter interface {
	// Name returns the human-readable exchange name.
	Name() string

	// Platform returns the platform this adapter serves.
	Platform() Platform

	// SupportsLive reports whether the adapter has a live vendor
	// integration at all. Platforms without one are served from
	// simulation regardless of credentials or mode.
	SupportsLive() bool

	// SetCredentials installs the API key pair used for signed calls.
	SetCredentials(apiKey, apiSecret string)

	// ValidateCredentials performs exactly one live call to check the
	// installed credentials.
	ValidateCredentials(ctx context.Context) (bool, error)

	// GetMarketData fetches the canonical 24h ticker for a symbol.
	GetMarketData(ctx context.Context, symbol string) (models.MarketData, error)

	// GetOrderBook fetches up to depth levels per side, bids descending
	// and asks ascending.
	GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error)

	// PlaceOrder submits an order and returns the resulting record.
	PlaceOrder(ctx context.Context, req OrderRequest) (*models.Order, error)

	// CancelOrder cancels an order by ID. A missing order yields
	// (false, nil), not an error.
	CancelOrder(ctx context.Context, orderID string) (bool, error)

	// GetBalance returns all asset balances keyed by asset symbol.
	GetBalance(ctx context.Context) (map[string]models.Balance, error)

	// GetOpenOrders returns the currently resting orders.
	GetOpenOrders(ctx context.Context) ([]models.Order, error)
}

// BaseAdapter carries the state shared by every concrete adapter:
// identity, credentials, and the bounded-call-timeout policy.
type BaseAdapter struct {
	name     string
	platform Platform

	credMu    sync.RWMutex
	apiKey    string
	apiSecret string

	callTimeout time.Duration
}

// NewBaseAdapter creates the shared adapter base.
func NewBaseAdapter(name string, platform Platform) *BaseAdapter {
	return &BaseAdapter{
		name:        name,
		platform:    platform,
		callTimeout: DefaultCallTimeout,
	}
}

// Name returns the exchange name.
func (a *BaseAdapter) Name() string { return a.name }

// Platform returns the platform identifier.
func (a *BaseAdapter) Platform() Platform { return a.platform }

// SetCredentials installs the API key pair.
func (a *BaseAdapter) SetCredentials(apiKey, apiSecret string) {
	a.credMu.Lock()
	a.apiKey = apiKey
	a.apiSecret = apiSecret
	a.credMu.Unlock()
}

// APIKey returns the configured API key.
func (a *BaseAdapter) APIKey() string {
	a.credMu.RLock()
	defer a.credMu.RUnlock()
	return a.apiKey
}

// APISecret returns the configured API secret.
func (a *BaseAdapter) APISecret() string {
	a.credMu.RLock()
	defer a.credMu.RUnlock()
	return a.apiSecret
}

// HasCredentials reports whether both key and secret are set.
func (a *BaseAdapter) HasCredentials() bool {
	a.credMu.RLock()
	defer a.credMu.RUnlock()
	return a.apiKey != "" && a.apiSecret != ""
}

// CallContext derives a context with the adapter's bounded timeout unless
// the caller already supplied a deadline.
func (a *BaseAdapter) CallContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	timeout := a.callTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
