package gogateway

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/evdnx/gogateway/exchange"
	"github.com/evdnx/gogateway/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spyAdapter is a live-capable adapter that records calls and returns
// canned results.
type spyAdapter struct {
	*exchange.BaseAdapter

	calls         int32
	validateCalls int32

	marketData  models.MarketData
	orderBook   *models.OrderBook
	err         error
	validateOK  bool
	validateErr error
}

func newSpyAdapter(platform exchange.Platform) *spyAdapter {
	return &spyAdapter{
		BaseAdapter: exchange.NewBaseAdapter("Spy", platform),
		marketData: models.MarketData{
			Symbol: "BTC/USDT",
			Price:  45000,
		},
		orderBook: &models.OrderBook{
			Symbol: "BTC/USDT",
			Bids:   []models.OrderBookEntry{{Price: 44990, Quantity: 1}},
			Asks:   []models.OrderBookEntry{{Price: 45010, Quantity: 1}},
		},
		validateOK: true,
	}
}

func (s *spyAdapter) SupportsLive() bool { return true }

func (s *spyAdapter) Calls() int { return int(atomic.LoadInt32(&s.calls)) }

func (s *spyAdapter) ValidateCredentials(ctx context.Context) (bool, error) {
	atomic.AddInt32(&s.validateCalls, 1)
	if s.validateErr != nil {
		return false, s.validateErr
	}
	return s.validateOK, nil
}

func (s *spyAdapter) GetMarketData(ctx context.Context, symbol string) (models.MarketData, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return models.MarketData{}, s.err
	}
	return s.marketData, nil
}

func (s *spyAdapter) GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	return s.orderBook, nil
}

func (s *spyAdapter) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*models.Order, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	return &models.Order{ID: "live-1", Symbol: req.Symbol, Status: exchange.OrderStatusNew.String()}, nil
}

func (s *spyAdapter) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.err == nil, s.err
}

func (s *spyAdapter) GetBalance(ctx context.Context) (map[string]models.Balance, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	return map[string]models.Balance{"BTC": {Asset: "BTC", Free: 1, Total: 1}}, nil
}

func (s *spyAdapter) GetOpenOrders(ctx context.Context) ([]models.Order, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	return nil, nil
}

func newTestRouter(spy *spyAdapter) *GatewayRouter {
	return NewGatewayRouter(RouterOptions{
		SimulationSeed: 1,
		Adapters: map[exchange.Platform]exchange.Adapter{
			spy.Platform(): spy,
		},
	})
}

func TestRouterUnknownPlatform(t *testing.T) {
	router := NewGatewayRouter(RouterOptions{SimulationSeed: 1})
	defer router.Close()

	_, err := router.GetMarketData(context.Background(), exchange.Platform("FTX"), "BTC/USDT")
	require.Error(t, err)
	assert.True(t, IsUnknownPlatformError(err))

	err = router.SetCredentials(exchange.Platform("FTX"), "k", "s")
	require.Error(t, err)
	assert.True(t, IsUnknownPlatformError(err))

	_, err = router.ValidateCredentials(context.Background(), exchange.Platform("FTX"))
	require.Error(t, err)
	assert.True(t, IsUnknownPlatformError(err))
}

func TestRouterMissingCredentialsRoutesToSimulation(t *testing.T) {
	spy := newSpyAdapter(exchange.PlatformKraken)
	router := newTestRouter(spy)
	defer router.Close()

	data, err := router.GetMarketData(context.Background(), exchange.PlatformKraken, "BTC/USDT")
	require.NoError(t, err)

	assert.Zero(t, spy.Calls(), "live adapter must not be touched without credentials")
	assert.GreaterOrEqual(t, data.Price, 28500.0)
	assert.LessOrEqual(t, data.Price, 31500.0)

	order, err := router.PlaceOrder(context.Background(), exchange.PlatformKraken, exchange.OrderRequest{
		Symbol:   "BTC/USDT",
		Side:     exchange.OrderSideBuy,
		Type:     exchange.OrderTypeMarket,
		Quantity: 0.1,
	})
	require.NoError(t, err)
	assert.True(t, order.Simulated)
	assert.Zero(t, spy.Calls())
}

func TestRouterWithCredentialsUsesLiveAdapter(t *testing.T) {
	spy := newSpyAdapter(exchange.PlatformKraken)
	router := newTestRouter(spy)
	defer router.Close()

	require.NoError(t, router.SetCredentials(exchange.PlatformKraken, "key", "secret"))

	data, err := router.GetMarketData(context.Background(), exchange.PlatformKraken, "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, 45000.0, data.Price)
	assert.Equal(t, 1, spy.Calls())
}

func TestRouterServesRepeatCallsFromCache(t *testing.T) {
	spy := newSpyAdapter(exchange.PlatformKraken)
	router := newTestRouter(spy)
	defer router.Close()

	require.NoError(t, router.SetCredentials(exchange.PlatformKraken, "key", "secret"))

	for i := 0; i < 3; i++ {
		data, err := router.GetMarketData(context.Background(), exchange.PlatformKraken, "BTC/USDT")
		require.NoError(t, err)
		assert.Equal(t, 45000.0, data.Price)
	}
	assert.Equal(t, 1, spy.Calls(), "repeat calls within the snapshot TTL stay off the wire")

	book, err := router.GetOrderBook(context.Background(), exchange.PlatformKraken, "BTC/USDT", 1)
	require.NoError(t, err)
	require.Len(t, book.Bids, 1)
	assert.Equal(t, 2, spy.Calls())

	_, err = router.GetOrderBook(context.Background(), exchange.PlatformKraken, "BTC/USDT", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, spy.Calls())

	// The depth-1 snapshot is too shallow for a depth-2 request.
	_, err = router.GetOrderBook(context.Background(), exchange.PlatformKraken, "BTC/USDT", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, spy.Calls())
}

func TestRouterSimulationModeOverridesCredentials(t *testing.T) {
	spy := newSpyAdapter(exchange.PlatformKraken)
	router := newTestRouter(spy)
	defer router.Close()

	require.NoError(t, router.SetCredentials(exchange.PlatformKraken, "key", "secret"))
	router.SetSimulationMode(true)

	order, err := router.PlaceOrder(context.Background(), exchange.PlatformKraken, exchange.OrderRequest{
		Symbol:   "BTC/USDT",
		Side:     exchange.OrderSideBuy,
		Type:     exchange.OrderTypeMarket,
		Quantity: 0.1,
	})
	require.NoError(t, err)
	assert.True(t, order.Simulated)
	assert.Zero(t, spy.Calls())

	router.SetSimulationMode(false)
	assert.False(t, router.SimulationMode())

	_, err = router.GetMarketData(context.Background(), exchange.PlatformKraken, "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, 1, spy.Calls())
}

func TestRouterSimulatedOnlyPlatformNeverGoesLive(t *testing.T) {
	router := NewGatewayRouter(RouterOptions{SimulationSeed: 1})
	defer router.Close()

	require.NoError(t, router.SetCredentials(exchange.PlatformCoinbase, "key", "secret"))

	order, err := router.PlaceOrder(context.Background(), exchange.PlatformCoinbase, exchange.OrderRequest{
		Symbol:   "ETH/USDT",
		Side:     exchange.OrderSideSell,
		Type:     exchange.OrderTypeMarket,
		Quantity: 1,
	})
	require.NoError(t, err)
	assert.True(t, order.Simulated)
}

func TestRouterValidateCredentials(t *testing.T) {
	spy := newSpyAdapter(exchange.PlatformKraken)
	router := newTestRouter(spy)
	defer router.Close()

	// No credentials: invalid without error, adapter untouched.
	valid, err := router.ValidateCredentials(context.Background(), exchange.PlatformKraken)
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Zero(t, atomic.LoadInt32(&spy.validateCalls))

	// Valid credentials; outcome is memoized.
	require.NoError(t, router.SetCredentials(exchange.PlatformKraken, "key", "secret"))
	valid, err = router.ValidateCredentials(context.Background(), exchange.PlatformKraken)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = router.ValidateCredentials(context.Background(), exchange.PlatformKraken)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Equal(t, int32(1), atomic.LoadInt32(&spy.validateCalls), "second call must reuse the memoized result")

	// Setting credentials again discards the memoized result.
	require.NoError(t, router.SetCredentials(exchange.PlatformKraken, "key2", "secret2"))
	_, err = router.ValidateCredentials(context.Background(), exchange.PlatformKraken)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&spy.validateCalls))
}

func TestRouterValidateCredentialsFailsClosed(t *testing.T) {
	spy := newSpyAdapter(exchange.PlatformKraken)
	spy.validateErr = exchange.NewAuthenticationError("authentication_failed", "bad key")
	router := newTestRouter(spy)
	defer router.Close()

	require.NoError(t, router.SetCredentials(exchange.PlatformKraken, "key", "secret"))

	valid, err := router.ValidateCredentials(context.Background(), exchange.PlatformKraken)
	require.NoError(t, err, "authentication rejection is a definitive answer, not an error")
	assert.False(t, valid)

	// Definitive rejection is memoized.
	valid, err = router.ValidateCredentials(context.Background(), exchange.PlatformKraken)
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Equal(t, int32(1), atomic.LoadInt32(&spy.validateCalls))
}

func TestRouterValidateCredentialsTransportErrorNotMemoized(t *testing.T) {
	spy := newSpyAdapter(exchange.PlatformKraken)
	spy.validateErr = exchange.NewNetworkError("request_failed", "timeout", nil, true)
	router := newTestRouter(spy)
	defer router.Close()

	require.NoError(t, router.SetCredentials(exchange.PlatformKraken, "key", "secret"))

	valid, err := router.ValidateCredentials(context.Background(), exchange.PlatformKraken)
	require.NoError(t, err)
	assert.False(t, valid)

	// The failure was transient; the next call tries again.
	spy.validateErr = nil
	valid, err = router.ValidateCredentials(context.Background(), exchange.PlatformKraken)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Equal(t, int32(2), atomic.LoadInt32(&spy.validateCalls))
}

func TestRouterRejectsMalformedSymbol(t *testing.T) {
	router := NewGatewayRouter(RouterOptions{SimulationSeed: 1})
	defer router.Close()

	_, err := router.GetMarketData(context.Background(), exchange.PlatformBinance, "BTCUSDT")
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	_, err = router.GetOrderBook(context.Background(), exchange.PlatformBinance, "btc/usdt", 10)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestRouterCancelUnknownSimulatedOrder(t *testing.T) {
	router := NewGatewayRouter(RouterOptions{SimulationSeed: 1})
	defer router.Close()

	canceled, err := router.CancelOrder(context.Background(), exchange.PlatformBitforex, "missing")
	require.NoError(t, err)
	assert.False(t, canceled)
}

func TestRouterHealthTracksFailures(t *testing.T) {
	spy := newSpyAdapter(exchange.PlatformKraken)
	spy.err = exchange.NewNetworkError("request_failed", "connection refused", nil, true)
	router := newTestRouter(spy)
	defer router.Close()

	require.NoError(t, router.SetCredentials(exchange.PlatformKraken, "key", "secret"))

	for i := 0; i < 3; i++ {
		_, err := router.GetMarketData(context.Background(), exchange.PlatformKraken, "BTC/USDT")
		require.Error(t, err)
	}

	health := router.Health()
	require.Contains(t, health, string(exchange.PlatformKraken))
	assert.Equal(t, PlatformStatusDown, health[string(exchange.PlatformKraken)].Status)
	assert.Equal(t, 3, health[string(exchange.PlatformKraken)].ConsecutiveFails)

	// Recovery flips the platform back to UP.
	spy.err = nil
	_, err := router.GetMarketData(context.Background(), exchange.PlatformKraken, "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, PlatformStatusUp, router.Health()[string(exchange.PlatformKraken)].Status)
}
