package exchange

import (
	"context"

	"github.com/evdnx/gogateway/models"
)

// CoinbaseAdapter is a simulation-only adapter. It keeps Coinbase in the
// platform set so clients can subscribe and trade against it, but every
// call is served by the shared simulation engine.
type CoinbaseAdapter struct {
	*BaseAdapter
	sim *SimulationEngine
}

// NewCoinbaseAdapter creates a Coinbase adapter backed by sim.
func NewCoinbaseAdapter(sim *SimulationEngine) *CoinbaseAdapter {
	return &CoinbaseAdapter{
		BaseAdapter: NewBaseAdapter("Coinbase", PlatformCoinbase),
		sim:         sim,
	}
}

// SupportsLive reports that Coinbase has no live integration.
func (a *CoinbaseAdapter) SupportsLive() bool { return false }

// ValidateCredentials always fails: there is no live endpoint to
// validate against.
func (a *CoinbaseAdapter) ValidateCredentials(ctx context.Context) (bool, error) {
	return false, nil
}

func (a *CoinbaseAdapter) GetMarketData(ctx context.Context, symbol string) (models.MarketData, error) {
	return a.sim.GetMarketData(a.Platform(), symbol)
}

func (a *CoinbaseAdapter) GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	return a.sim.GetOrderBook(a.Platform(), symbol, depth)
}

func (a *CoinbaseAdapter) PlaceOrder(ctx context.Context, req OrderRequest) (*models.Order, error) {
	return a.sim.PlaceOrder(a.Platform(), req)
}

func (a *CoinbaseAdapter) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	return a.sim.CancelOrder(a.Platform(), orderID)
}

func (a *CoinbaseAdapter) GetBalance(ctx context.Context) (map[string]models.Balance, error) {
	return a.sim.GetBalance(a.Platform())
}

func (a *CoinbaseAdapter) GetOpenOrders(ctx context.Context) ([]models.Order, error) {
	return a.sim.GetOpenOrders(a.Platform())
}
