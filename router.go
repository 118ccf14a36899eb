package gogateway

import (
	"context"
	"strconv"
	"sync"

	"github.com/evdnx/gogateway/cache"
	"github.com/evdnx/gogateway/common"
	"github.com/evdnx/gogateway/config"
	"github.com/evdnx/gogateway/exchange"
	"github.com/evdnx/gogateway/models"
	"github.com/evdnx/golog"
	metrics "github.com/evdnx/gotrademetrics"
)

const routerComponent = "gateway_router"

// GatewayRouter is the single entry point for all exchange operations.
// It owns the adapter registry, the shared simulation engine, the
// credential store, and the live-versus-simulation decision. The
// registry is fixed at construction; the only mutable routing input is
// the global simulation mode flag and the per-platform credentials.
type GatewayRouter struct {
	logger  *golog.Logger
	metrics *metrics.Metrics

	adapters map[exchange.Platform]exchange.Adapter
	sim      *exchange.SimulationEngine
	creds    *CredentialStore
	health   *HealthTracker
	store    *cache.Store

	simMu   sync.RWMutex
	simMode bool
}

// RouterOptions carries construction-time settings for the router.
type RouterOptions struct {
	SimulationMode bool
	SimulationSeed int64
	BinanceTestnet bool
	Cache          cache.Config
	Metrics        *metrics.Metrics

	// Adapters overrides individual registry entries. Platforms not
	// present keep their default adapter.
	Adapters map[exchange.Platform]exchange.Adapter
}

// RouterOptionsFromConfig derives router options from the loaded
// gateway configuration.
func RouterOptionsFromConfig(cfg *config.Config, metricsClient *metrics.Metrics) RouterOptions {
	opts := RouterOptions{
		SimulationMode: cfg.SimulationMode,
		SimulationSeed: cfg.SimulationSeed,
		Cache:          cache.DefaultConfig(),
		Metrics:        metricsClient,
	}
	if cfg.Cache.MarketDataTTL > 0 {
		opts.Cache.MarketDataTTL = cfg.Cache.MarketDataTTL
	}
	if cfg.Cache.OrderBookTTL > 0 {
		opts.Cache.OrderBookTTL = cfg.Cache.OrderBookTTL
	}
	if cfg.Cache.MaxEntries > 0 {
		opts.Cache.MaxEntries = cfg.Cache.MaxEntries
	}
	if cfg.Cache.CleanupInterval > 0 {
		opts.Cache.CleanupInterval = cfg.Cache.CleanupInterval
	}
	opts.Cache.Enabled = cfg.Cache.Enabled

	for _, exch := range cfg.Exchanges {
		if p, ok := exchange.PlatformFromString(exch.Name); ok && p == exchange.PlatformBinance {
			opts.BinanceTestnet = exch.Testnet
		}
	}
	return opts
}

// NewGatewayRouter creates a router with one adapter per platform and a
// shared simulation engine.
func NewGatewayRouter(opts RouterOptions) *GatewayRouter {
	sim := exchange.NewSimulationEngine(opts.SimulationSeed)

	adapters := map[exchange.Platform]exchange.Adapter{
		exchange.PlatformBinance:  exchange.NewBinanceAdapter(opts.BinanceTestnet, opts.Metrics),
		exchange.PlatformKraken:   exchange.NewKrakenAdapter(opts.Metrics),
		exchange.PlatformCoinbase: exchange.NewCoinbaseAdapter(sim),
		exchange.PlatformBitforex: exchange.NewBitforexAdapter(sim),
	}
	for platform, adapter := range opts.Adapters {
		adapters[platform] = adapter
	}

	return &GatewayRouter{
		logger:   common.DefaultLogger(),
		metrics:  opts.Metrics,
		adapters: adapters,
		sim:      sim,
		creds:    NewCredentialStore(),
		health:   NewHealthTracker(DefaultHealthConfig()),
		store:    cache.NewStore(opts.Cache),
		simMode:  opts.SimulationMode,
	}
}

// Close releases router resources.
func (r *GatewayRouter) Close() {
	r.store.Close()
}

// Store exposes the snapshot store so the streaming layer can share its
// change tracking.
func (r *GatewayRouter) Store() *cache.Store {
	return r.store
}

// SetSimulationMode switches the global simulation flag. The change is
// synchronous: once this returns, every subsequent call routes under
// the new mode.
func (r *GatewayRouter) SetSimulationMode(enabled bool) {
	r.simMu.Lock()
	r.simMode = enabled
	r.simMu.Unlock()

	r.logger.Info("simulation mode changed",
		golog.String("component", routerComponent),
		golog.String("enabled", strconv.FormatBool(enabled)))
}

// SimulationMode reports the current global simulation flag.
func (r *GatewayRouter) SimulationMode() bool {
	r.simMu.RLock()
	defer r.simMu.RUnlock()
	return r.simMode
}

// Health returns a snapshot of per-platform health. Observational only.
func (r *GatewayRouter) Health() map[string]PlatformHealthInfo {
	return r.health.Snapshot()
}

// adapter resolves a platform to its adapter or an unknown-platform error.
func (r *GatewayRouter) adapter(platform exchange.Platform) (exchange.Adapter, error) {
	a, ok := r.adapters[platform]
	if !ok {
		return nil, exchange.NewUnknownPlatformError(string(platform))
	}
	return a, nil
}

// useSimulation makes the routing decision for one call. The decision
// is taken once here and never re-evaluated mid-call.
func (r *GatewayRouter) useSimulation(platform exchange.Platform, a exchange.Adapter) bool {
	if r.SimulationMode() {
		return true
	}
	if !a.SupportsLive() {
		return true
	}
	return !r.creds.HasCredentials(platform)
}

// SetCredentials stores credentials for a platform and forwards them to
// its adapter. Setting credentials always discards the previous
// validation result.
func (r *GatewayRouter) SetCredentials(platform exchange.Platform, apiKey, apiSecret string) error {
	a, err := r.adapter(platform)
	if err != nil {
		return err
	}

	r.creds.Set(platform, apiKey, apiSecret)
	a.SetCredentials(apiKey, apiSecret)

	r.logger.Info("credentials updated",
		golog.String("component", routerComponent),
		golog.String("platform", string(platform)))
	return nil
}

// ValidateCredentials checks the stored credentials against the live
// platform. It fails closed: missing credentials, failed checks, and
// transport failures all report invalid rather than erroring. Auth
// verdicts are memoized until the credentials change; a transport
// failure is not, so the next call retries the live check.
func (r *GatewayRouter) ValidateCredentials(ctx context.Context, platform exchange.Platform) (bool, error) {
	a, err := r.adapter(platform)
	if err != nil {
		return false, err
	}
	if !r.creds.HasCredentials(platform) {
		return false, nil
	}
	if validated, isValid := r.creds.ValidationState(platform); validated {
		return isValid, nil
	}

	valid, err := a.ValidateCredentials(ctx)
	if err != nil {
		if exchange.IsAuthenticationError(err) {
			r.creds.MarkValidated(platform, false)
			return false, nil
		}
		r.logger.Warn("credential validation could not reach platform",
			golog.String("component", routerComponent),
			golog.String("platform", string(platform)),
			golog.String("error", err.Error()))
		return false, nil
	}

	r.creds.MarkValidated(platform, valid)
	return valid, nil
}

func (r *GatewayRouter) recordOp(platform exchange.Platform, op string, err error) {
	if err != nil {
		r.health.RecordFailure(platform, err)
		if r.metrics != nil {
			r.metrics.RecordAPIError("gateway", failureReasonForError(err))
		}
		return
	}
	r.health.RecordSuccess(platform)
	if r.metrics != nil {
		r.metrics.RecordAPIRequest("gateway", op)
	}
}

func failureReasonForError(err error) metrics.Reason {
	switch {
	case exchange.IsRateLimitError(err):
		return metrics.ReasonRateLimit
	case exchange.IsNetworkError(err):
		return metrics.ReasonNetworkError
	default:
		return metrics.ReasonAPIError
	}
}

// GetMarketData returns the 24h market snapshot for a symbol.
func (r *GatewayRouter) GetMarketData(ctx context.Context, platform exchange.Platform, symbol string) (models.MarketData, error) {
	a, err := r.adapter(platform)
	if err != nil {
		return models.MarketData{}, err
	}
	if err := exchange.ValidateCanonicalSymbol(symbol); err != nil {
		return models.MarketData{}, err
	}

	if r.useSimulation(platform, a) {
		return r.sim.GetMarketData(platform, symbol)
	}

	if data, ok := r.store.MarketData(string(platform), symbol); ok {
		return data, nil
	}

	data, err := a.GetMarketData(ctx, symbol)
	r.recordOp(platform, "get_market_data", err)
	if err != nil {
		return models.MarketData{}, err
	}
	r.store.SetMarketData(string(platform), symbol, data)
	return data, nil
}

// GetOrderBook returns bids and asks to the requested depth.
func (r *GatewayRouter) GetOrderBook(ctx context.Context, platform exchange.Platform, symbol string, depth int) (*models.OrderBook, error) {
	a, err := r.adapter(platform)
	if err != nil {
		return nil, err
	}
	if err := exchange.ValidateCanonicalSymbol(symbol); err != nil {
		return nil, err
	}

	if r.useSimulation(platform, a) {
		return r.sim.GetOrderBook(platform, symbol, depth)
	}

	// A cached book serves shallower requests; deeper ones go live.
	if book, ok := r.store.OrderBook(string(platform), symbol); ok {
		if len(book.Bids) >= depth && len(book.Asks) >= depth {
			return &models.OrderBook{
				Symbol:    book.Symbol,
				Bids:      book.Bids[:depth],
				Asks:      book.Asks[:depth],
				Timestamp: book.Timestamp,
			}, nil
		}
	}

	book, err := a.GetOrderBook(ctx, symbol, depth)
	r.recordOp(platform, "get_order_book", err)
	if err != nil {
		return nil, err
	}
	r.store.SetOrderBook(string(platform), symbol, book)
	return book, nil
}

// PlaceOrder submits an order on the chosen platform.
func (r *GatewayRouter) PlaceOrder(ctx context.Context, platform exchange.Platform, req exchange.OrderRequest) (*models.Order, error) {
	a, err := r.adapter(platform)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if r.useSimulation(platform, a) {
		return r.sim.PlaceOrder(platform, req)
	}

	order, err := a.PlaceOrder(ctx, req)
	r.recordOp(platform, "place_order", err)
	return order, err
}

// CancelOrder cancels an order. A cleanly-refused cancel (unknown or
// already terminal order) reports false with a nil error.
func (r *GatewayRouter) CancelOrder(ctx context.Context, platform exchange.Platform, orderID string) (bool, error) {
	a, err := r.adapter(platform)
	if err != nil {
		return false, err
	}

	if r.useSimulation(platform, a) {
		return r.sim.CancelOrder(platform, orderID)
	}

	ok, err := a.CancelOrder(ctx, orderID)
	r.recordOp(platform, "cancel_order", err)
	return ok, err
}

// GetBalance returns account balances keyed by asset.
func (r *GatewayRouter) GetBalance(ctx context.Context, platform exchange.Platform) (map[string]models.Balance, error) {
	a, err := r.adapter(platform)
	if err != nil {
		return nil, err
	}

	if r.useSimulation(platform, a) {
		return r.sim.GetBalance(platform)
	}

	balances, err := a.GetBalance(ctx)
	r.recordOp(platform, "get_balance", err)
	return balances, err
}

// GetOpenOrders returns the resting orders on a platform.
func (r *GatewayRouter) GetOpenOrders(ctx context.Context, platform exchange.Platform) ([]models.Order, error) {
	a, err := r.adapter(platform)
	if err != nil {
		return nil, err
	}

	if r.useSimulation(platform, a) {
		return r.sim.GetOpenOrders(platform)
	}

	orders, err := a.GetOpenOrders(ctx)
	r.recordOp(platform, "get_open_orders", err)
	return orders, err
}
