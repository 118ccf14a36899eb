package gogateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/evdnx/gogateway/common"
	"github.com/evdnx/gogateway/exchange"
	"github.com/evdnx/gogateway/models"
	"github.com/evdnx/golog"
)

const subscriptionComponent = "subscription_manager"

// Channel identifies a streamable data kind
type Channel string

const (
	// ChannelMarketData streams 24h ticker snapshots
	ChannelMarketData Channel = "market_data"
	// ChannelOrderBook streams order book snapshots
	ChannelOrderBook Channel = "order_book"
)

// ChannelFromString converts a string to a Channel
func ChannelFromString(s string) (Channel, bool) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	return c, c == ChannelMarketData || c == ChannelOrderBook
}

// SubscriptionKey identifies one subscription exactly. Two keys are the
// same subscription only when all four fields match.
type SubscriptionKey struct {
	ClientID string
	Symbol   string
	Platform exchange.Platform
	Channel  Channel
}

// String renders the key as a stream identifier.
func (k SubscriptionKey) String() string {
	return k.ClientID + "|" + string(k.Platform) + "|" + k.Symbol + "|" + string(k.Channel)
}

// Emitter receives streamed payloads for a subscription. The WebSocket
// client implements this.
type Emitter interface {
	EmitMarketData(key SubscriptionKey, data models.MarketData)
	EmitOrderBook(key SubscriptionKey, book *models.OrderBook)
	EmitStreamError(key SubscriptionKey, err error)
}

type subscriptionTask struct {
	key       SubscriptionKey
	emitter   Emitter
	interval  time.Duration
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

// SubscriptionManager polls the router on behalf of subscribed clients
// and fans results out to their emitters. One goroutine runs per
// subscription; a failing platform delays only its own subscriptions.
type SubscriptionManager struct {
	logger             *golog.Logger
	router             *GatewayRouter
	clock              clock.Clock
	pollInterval       time.Duration
	fetchTimeout       time.Duration
	bookDepth          int
	suppressDuplicates bool

	mu    sync.Mutex
	tasks map[SubscriptionKey]*subscriptionTask
}

// SubscriptionOptions carries streaming settings.
type SubscriptionOptions struct {
	PollInterval time.Duration
	FetchTimeout time.Duration
	BookDepth    int
	// SuppressDuplicates skips emits whose payload matches the previous
	// tick. Off by default: every poll produces a frame.
	SuppressDuplicates bool
	// Clock defaults to the wall clock; tests inject a mock.
	Clock clock.Clock
}

// NewSubscriptionManager creates a manager polling through the router.
func NewSubscriptionManager(router *GatewayRouter, opts SubscriptionOptions) *SubscriptionManager {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 5 * time.Second
	}
	if opts.BookDepth <= 0 {
		opts.BookDepth = 10
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &SubscriptionManager{
		logger:             common.DefaultLogger(),
		router:             router,
		clock:              opts.Clock,
		pollInterval:       opts.PollInterval,
		fetchTimeout:       opts.FetchTimeout,
		bookDepth:          opts.BookDepth,
		suppressDuplicates: opts.SuppressDuplicates,
		tasks:              make(map[SubscriptionKey]*subscriptionTask),
	}
}

// Subscribe registers a subscription, performs the first fetch-and-emit
// synchronously, then polls on the given interval (the manager default
// when interval is zero). Subscribing to an already-active key is a
// no-op.
func (m *SubscriptionManager) Subscribe(key SubscriptionKey, emitter Emitter, interval time.Duration) error {
	if key.ClientID == "" {
		return exchange.NewValidationError("missing_client", "subscription requires a client id")
	}
	if _, ok := exchange.PlatformFromString(string(key.Platform)); !ok {
		return exchange.NewUnknownPlatformError(string(key.Platform))
	}
	if err := exchange.ValidateCanonicalSymbol(key.Symbol); err != nil {
		return err
	}
	if _, ok := ChannelFromString(string(key.Channel)); !ok {
		return exchange.NewValidationError("invalid_channel", "channel must be market_data or order_book")
	}

	if interval <= 0 {
		interval = m.pollInterval
	}

	m.mu.Lock()
	if _, exists := m.tasks[key]; exists {
		m.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	task := &subscriptionTask{key: key, emitter: emitter, interval: interval, cancel: cancel}
	m.tasks[key] = task
	m.mu.Unlock()

	// Drop any remembered payload so the first emit is unconditional.
	m.router.Store().Forget(key.String())
	m.poll(task)

	go m.run(ctx, task)

	m.logger.Info("subscription started",
		golog.String("component", subscriptionComponent),
		golog.String("stream", key.String()))
	return nil
}

func (m *SubscriptionManager) run(ctx context.Context, task *subscriptionTask) {
	ticker := m.clock.Ticker(task.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll(task)
		}
	}
}

// poll performs one fetch for a subscription and emits the payload. With
// duplicate suppression on, a payload matching the previous tick is
// dropped. A cancelled task never emits.
func (m *SubscriptionManager) poll(task *subscriptionTask) {
	if task.cancelled.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.fetchTimeout)
	defer cancel()

	key := task.key
	switch key.Channel {
	case ChannelMarketData:
		data, err := m.router.GetMarketData(ctx, key.Platform, key.Symbol)
		if err != nil {
			m.emitError(task, err)
			return
		}
		if m.suppressDuplicates && !m.router.Store().Changed(key.String(), marketDataFingerprint(data)) {
			return
		}
		if task.cancelled.Load() {
			return
		}
		task.emitter.EmitMarketData(key, data)

	case ChannelOrderBook:
		book, err := m.router.GetOrderBook(ctx, key.Platform, key.Symbol, m.bookDepth)
		if err != nil {
			m.emitError(task, err)
			return
		}
		if m.suppressDuplicates && !m.router.Store().Changed(key.String(), orderBookFingerprint(book)) {
			return
		}
		if task.cancelled.Load() {
			return
		}
		task.emitter.EmitOrderBook(key, book)
	}
}

func (m *SubscriptionManager) emitError(task *subscriptionTask, err error) {
	if task.cancelled.Load() {
		return
	}
	m.logger.Warn("subscription fetch failed",
		golog.String("component", subscriptionComponent),
		golog.String("stream", task.key.String()),
		golog.String("error", err.Error()))
	task.emitter.EmitStreamError(task.key, err)
}

// Unsubscribe removes exactly the given subscription. It reports false
// when no such subscription exists.
func (m *SubscriptionManager) Unsubscribe(key SubscriptionKey) bool {
	m.mu.Lock()
	task, ok := m.tasks[key]
	if ok {
		delete(m.tasks, key)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	m.stopTask(task)
	return true
}

// DisconnectClient removes every subscription belonging to a client and
// returns how many were stopped. Called on every WebSocket close.
func (m *SubscriptionManager) DisconnectClient(clientID string) int {
	m.mu.Lock()
	var stopped []*subscriptionTask
	for key, task := range m.tasks {
		if key.ClientID == clientID {
			stopped = append(stopped, task)
			delete(m.tasks, key)
		}
	}
	m.mu.Unlock()

	for _, task := range stopped {
		m.stopTask(task)
	}

	if len(stopped) > 0 {
		m.logger.Info("client disconnected",
			golog.String("component", subscriptionComponent),
			golog.String("client", clientID),
			golog.Int("subscriptions", len(stopped)))
	}
	return len(stopped)
}

func (m *SubscriptionManager) stopTask(task *subscriptionTask) {
	task.cancelled.Store(true)
	task.cancel()
	m.router.Store().Forget(task.key.String())
}

// ActiveCount returns the number of live subscriptions.
func (m *SubscriptionManager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Close stops every subscription.
func (m *SubscriptionManager) Close() {
	m.mu.Lock()
	tasks := make([]*subscriptionTask, 0, len(m.tasks))
	for _, task := range m.tasks {
		tasks = append(tasks, task)
	}
	m.tasks = make(map[SubscriptionKey]*subscriptionTask)
	m.mu.Unlock()

	for _, task := range tasks {
		m.stopTask(task)
	}
}

// marketDataFingerprint summarizes the fields clients see. Timestamp is
// excluded so an unchanged quote is suppressed across ticks.
func marketDataFingerprint(d models.MarketData) string {
	return strings.Join([]string{
		strconv.FormatFloat(d.Price, 'g', -1, 64),
		strconv.FormatFloat(d.High24h, 'g', -1, 64),
		strconv.FormatFloat(d.Low24h, 'g', -1, 64),
		strconv.FormatFloat(d.Volume24h, 'g', -1, 64),
		strconv.FormatFloat(d.ChangePercent24h, 'g', -1, 64),
	}, "|")
}

func orderBookFingerprint(b *models.OrderBook) string {
	var sb strings.Builder
	for _, level := range b.Bids {
		fmt.Fprintf(&sb, "b%g@%g|", level.Quantity, level.Price)
	}
	for _, level := range b.Asks {
		fmt.Fprintf(&sb, "a%g@%g|", level.Quantity, level.Price)
	}
	return sb.String()
}
