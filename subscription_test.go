package gogateway

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/evdnx/gogateway/exchange"
	"github.com/evdnx/gogateway/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEmitter struct {
	mu         sync.Mutex
	marketData []models.MarketData
	books      []*models.OrderBook
	errs       []error
}

func (e *recordingEmitter) EmitMarketData(key SubscriptionKey, data models.MarketData) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.marketData = append(e.marketData, data)
}

func (e *recordingEmitter) EmitOrderBook(key SubscriptionKey, book *models.OrderBook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.books = append(e.books, book)
}

func (e *recordingEmitter) EmitStreamError(key SubscriptionKey, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = append(e.errs, err)
}

func (e *recordingEmitter) marketDataCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.marketData)
}

func (e *recordingEmitter) errCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.errs)
}

// waitFor polls a condition with real time while the poll loop runs off
// a mock clock tick.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func newTestManager(t *testing.T, router *GatewayRouter, mock *clock.Mock) *SubscriptionManager {
	t.Helper()
	manager := NewSubscriptionManager(router, SubscriptionOptions{
		PollInterval: time.Second,
		FetchTimeout: time.Second,
		BookDepth:    5,
		Clock:        mock,
	})
	t.Cleanup(manager.Close)
	return manager
}

func TestSubscribeEmitsImmediately(t *testing.T) {
	router := NewGatewayRouter(RouterOptions{SimulationMode: true, SimulationSeed: 1})
	defer router.Close()
	mock := clock.NewMock()
	manager := newTestManager(t, router, mock)

	emitter := &recordingEmitter{}
	key := SubscriptionKey{
		ClientID: "c1",
		Symbol:   "BTC/USDT",
		Platform: exchange.PlatformBinance,
		Channel:  ChannelMarketData,
	}
	require.NoError(t, manager.Subscribe(key, emitter, 0))

	// The first payload arrives before any clock tick.
	assert.Equal(t, 1, emitter.marketDataCount())
	assert.Equal(t, 1, manager.ActiveCount())
}

func TestSubscriptionPollsOnInterval(t *testing.T) {
	router := NewGatewayRouter(RouterOptions{SimulationMode: true, SimulationSeed: 1})
	defer router.Close()
	mock := clock.NewMock()
	manager := newTestManager(t, router, mock)

	emitter := &recordingEmitter{}
	key := SubscriptionKey{
		ClientID: "c1",
		Symbol:   "ETH/USDT",
		Platform: exchange.PlatformKraken,
		Channel:  ChannelMarketData,
	}
	require.NoError(t, manager.Subscribe(key, emitter, 0))
	require.Equal(t, 1, emitter.marketDataCount())

	// Let the poll goroutine set up its ticker before advancing.
	time.Sleep(20 * time.Millisecond)
	mock.Add(time.Second)
	waitFor(t, func() bool { return emitter.marketDataCount() >= 2 })

	mock.Add(time.Second)
	waitFor(t, func() bool { return emitter.marketDataCount() >= 3 })
}

func TestSubscriptionIntervalOverride(t *testing.T) {
	router := NewGatewayRouter(RouterOptions{SimulationMode: true, SimulationSeed: 1})
	defer router.Close()
	mock := clock.NewMock()
	manager := newTestManager(t, router, mock)

	emitter := &recordingEmitter{}
	key := SubscriptionKey{
		ClientID: "c1",
		Symbol:   "ETH/USDT",
		Platform: exchange.PlatformKraken,
		Channel:  ChannelMarketData,
	}
	// 250ms beats the manager's 1s default.
	require.NoError(t, manager.Subscribe(key, emitter, 250*time.Millisecond))
	require.Equal(t, 1, emitter.marketDataCount())

	time.Sleep(20 * time.Millisecond)
	mock.Add(250 * time.Millisecond)
	waitFor(t, func() bool { return emitter.marketDataCount() >= 2 })

	mock.Add(250 * time.Millisecond)
	waitFor(t, func() bool { return emitter.marketDataCount() >= 3 })
}

func TestSubscribeDuplicateIsNoOp(t *testing.T) {
	router := NewGatewayRouter(RouterOptions{SimulationMode: true, SimulationSeed: 1})
	defer router.Close()
	manager := newTestManager(t, router, clock.NewMock())

	emitter := &recordingEmitter{}
	key := SubscriptionKey{
		ClientID: "c1",
		Symbol:   "BTC/USDT",
		Platform: exchange.PlatformBinance,
		Channel:  ChannelMarketData,
	}
	require.NoError(t, manager.Subscribe(key, emitter, 0))
	require.NoError(t, manager.Subscribe(key, emitter, 0))

	assert.Equal(t, 1, manager.ActiveCount())
	assert.Equal(t, 1, emitter.marketDataCount())
}

func TestSubscribeValidation(t *testing.T) {
	router := NewGatewayRouter(RouterOptions{SimulationMode: true, SimulationSeed: 1})
	defer router.Close()
	manager := newTestManager(t, router, clock.NewMock())
	emitter := &recordingEmitter{}

	err := manager.Subscribe(SubscriptionKey{
		ClientID: "c1", Symbol: "BTC/USDT", Platform: exchange.Platform("FTX"), Channel: ChannelMarketData,
	}, emitter, 0)
	require.Error(t, err)
	assert.True(t, IsUnknownPlatformError(err))

	err = manager.Subscribe(SubscriptionKey{
		ClientID: "c1", Symbol: "BTCUSDT", Platform: exchange.PlatformBinance, Channel: ChannelMarketData,
	}, emitter, 0)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	err = manager.Subscribe(SubscriptionKey{
		ClientID: "c1", Symbol: "BTC/USDT", Platform: exchange.PlatformBinance, Channel: Channel("trades"),
	}, emitter, 0)
	require.Error(t, err)

	err = manager.Subscribe(SubscriptionKey{
		Symbol: "BTC/USDT", Platform: exchange.PlatformBinance, Channel: ChannelMarketData,
	}, emitter, 0)
	require.Error(t, err)

	assert.Equal(t, 0, manager.ActiveCount())
}

func TestUnsubscribeExactMatch(t *testing.T) {
	router := NewGatewayRouter(RouterOptions{SimulationMode: true, SimulationSeed: 1})
	defer router.Close()
	mock := clock.NewMock()
	manager := newTestManager(t, router, mock)

	emitter := &recordingEmitter{}
	key := SubscriptionKey{
		ClientID: "c1",
		Symbol:   "BTC/USDT",
		Platform: exchange.PlatformBinance,
		Channel:  ChannelMarketData,
	}
	require.NoError(t, manager.Subscribe(key, emitter, 0))

	// Any differing field is a different subscription.
	other := key
	other.Channel = ChannelOrderBook
	assert.False(t, manager.Unsubscribe(other))

	other = key
	other.Platform = exchange.PlatformKraken
	assert.False(t, manager.Unsubscribe(other))

	assert.True(t, manager.Unsubscribe(key))
	assert.Equal(t, 0, manager.ActiveCount())
	assert.False(t, manager.Unsubscribe(key), "second unsubscribe finds nothing")

	// No further events after unsubscribe.
	count := emitter.marketDataCount()
	time.Sleep(20 * time.Millisecond)
	mock.Add(3 * time.Second)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, count, emitter.marketDataCount())
}

func TestDisconnectClientStopsAllSubscriptions(t *testing.T) {
	router := NewGatewayRouter(RouterOptions{SimulationMode: true, SimulationSeed: 1})
	defer router.Close()
	mock := clock.NewMock()
	manager := newTestManager(t, router, mock)

	emitter := &recordingEmitter{}
	keys := []SubscriptionKey{
		{ClientID: "c1", Symbol: "BTC/USDT", Platform: exchange.PlatformBinance, Channel: ChannelMarketData},
		{ClientID: "c1", Symbol: "ETH/USDT", Platform: exchange.PlatformKraken, Channel: ChannelMarketData},
		{ClientID: "c1", Symbol: "BTC/USDT", Platform: exchange.PlatformKraken, Channel: ChannelOrderBook},
		{ClientID: "c2", Symbol: "BTC/USDT", Platform: exchange.PlatformBinance, Channel: ChannelMarketData},
	}
	for _, key := range keys {
		require.NoError(t, manager.Subscribe(key, emitter, 0))
	}
	require.Equal(t, 4, manager.ActiveCount())

	stopped := manager.DisconnectClient("c1")
	assert.Equal(t, 3, stopped)
	assert.Equal(t, 1, manager.ActiveCount(), "the other client's subscription survives")

	assert.Equal(t, 0, manager.DisconnectClient("c1"), "disconnect is idempotent")
}

func TestSubscriptionSurvivesFetchErrors(t *testing.T) {
	spy := newSpyAdapter(exchange.PlatformKraken)
	spy.err = exchange.NewNetworkError("request_failed", "connection refused", nil, true)
	router := newTestRouter(spy)
	defer router.Close()
	require.NoError(t, router.SetCredentials(exchange.PlatformKraken, "key", "secret"))

	mock := clock.NewMock()
	manager := newTestManager(t, router, mock)

	emitter := &recordingEmitter{}
	key := SubscriptionKey{
		ClientID: "c1",
		Symbol:   "BTC/USDT",
		Platform: exchange.PlatformKraken,
		Channel:  ChannelMarketData,
	}
	require.NoError(t, manager.Subscribe(key, emitter, 0))

	// The failing first fetch emits an error event, not a payload.
	assert.Equal(t, 1, emitter.errCount())
	assert.Equal(t, 0, emitter.marketDataCount())
	assert.Equal(t, 1, manager.ActiveCount(), "errors do not tear the subscription down")

	// Once the platform recovers, data flows again.
	spy.err = nil
	time.Sleep(20 * time.Millisecond)
	mock.Add(time.Second)
	waitFor(t, func() bool { return emitter.marketDataCount() >= 1 })
}

func TestSubscriptionSuppressesUnchangedPayloads(t *testing.T) {
	spy := newSpyAdapter(exchange.PlatformKraken)
	router := newTestRouter(spy)
	defer router.Close()
	require.NoError(t, router.SetCredentials(exchange.PlatformKraken, "key", "secret"))

	mock := clock.NewMock()
	manager := NewSubscriptionManager(router, SubscriptionOptions{
		PollInterval:       time.Second,
		FetchTimeout:       time.Second,
		BookDepth:          5,
		SuppressDuplicates: true,
		Clock:              mock,
	})
	t.Cleanup(manager.Close)

	emitter := &recordingEmitter{}
	key := SubscriptionKey{
		ClientID: "c1",
		Symbol:   "BTC/USDT",
		Platform: exchange.PlatformKraken,
		Channel:  ChannelMarketData,
	}
	require.NoError(t, manager.Subscribe(key, emitter, 0))
	require.Equal(t, 1, emitter.marketDataCount())

	// The spy returns the same quote every tick; nothing new to emit.
	time.Sleep(20 * time.Millisecond)
	for i := 0; i < 3; i++ {
		mock.Add(time.Second)
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, 1, emitter.marketDataCount())
}

func TestSubscriptionEmitsEveryTickByDefault(t *testing.T) {
	spy := newSpyAdapter(exchange.PlatformKraken)
	router := newTestRouter(spy)
	defer router.Close()
	require.NoError(t, router.SetCredentials(exchange.PlatformKraken, "key", "secret"))

	mock := clock.NewMock()
	manager := newTestManager(t, router, mock)

	emitter := &recordingEmitter{}
	key := SubscriptionKey{
		ClientID: "c1",
		Symbol:   "BTC/USDT",
		Platform: exchange.PlatformKraken,
		Channel:  ChannelMarketData,
	}
	require.NoError(t, manager.Subscribe(key, emitter, 0))
	require.Equal(t, 1, emitter.marketDataCount())

	// Without suppression an unchanged quote is still delivered on
	// every tick.
	time.Sleep(20 * time.Millisecond)
	mock.Add(time.Second)
	waitFor(t, func() bool { return emitter.marketDataCount() >= 2 })
	mock.Add(time.Second)
	waitFor(t, func() bool { return emitter.marketDataCount() >= 3 })
}

func TestOrderBookSubscription(t *testing.T) {
	router := NewGatewayRouter(RouterOptions{SimulationMode: true, SimulationSeed: 1})
	defer router.Close()
	manager := newTestManager(t, router, clock.NewMock())

	emitter := &recordingEmitter{}
	key := SubscriptionKey{
		ClientID: "c1",
		Symbol:   "BTC/USDT",
		Platform: exchange.PlatformBitforex,
		Channel:  ChannelOrderBook,
	}
	require.NoError(t, manager.Subscribe(key, emitter, 0))

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	require.Len(t, emitter.books, 1)
	book := emitter.books[0]
	require.Len(t, book.Bids, 5)
	require.Len(t, book.Asks, 5)
	assert.Less(t, book.Bids[0].Price, book.Asks[0].Price)
}
