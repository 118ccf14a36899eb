package exchange

import (
	"context"

	"github.com/evdnx/gogateway/models"
)

// BitforexAdapter is a simulation-only adapter, structured like
// CoinbaseAdapter.
type BitforexAdapter struct {
	*BaseAdapter
	sim *SimulationEngine
}

// NewBitforexAdapter creates a Bitforex adapter backed by sim.
func NewBitforexAdapter(sim *SimulationEngine) *BitforexAdapter {
	return &BitforexAdapter{
		BaseAdapter: NewBaseAdapter("Bitforex", PlatformBitforex),
		sim:         sim,
	}
}

// SupportsLive reports that Bitforex has no live integration.
func (a *BitforexAdapter) SupportsLive() bool { return false }

func (a *BitforexAdapter) ValidateCredentials(ctx context.Context) (bool, error) {
	return false, nil
}

func (a *BitforexAdapter) GetMarketData(ctx context.Context, symbol string) (models.MarketData, error) {
	return a.sim.GetMarketData(a.Platform(), symbol)
}

func (a *BitforexAdapter) GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	return a.sim.GetOrderBook(a.Platform(), symbol, depth)
}

func (a *BitforexAdapter) PlaceOrder(ctx context.Context, req OrderRequest) (*models.Order, error) {
	return a.sim.PlaceOrder(a.Platform(), req)
}

func (a *BitforexAdapter) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	return a.sim.CancelOrder(a.Platform(), orderID)
}

func (a *BitforexAdapter) GetBalance(ctx context.Context) (map[string]models.Balance, error) {
	return a.sim.GetBalance(a.Platform())
}

func (a *BitforexAdapter) GetOpenOrders(ctx context.Context) ([]models.Order, error) {
	return a.sim.GetOpenOrders(a.Platform())
}
