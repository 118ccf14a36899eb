package exchange

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/evdnx/gogateway/models"
)

// Base price table for simulated symbols; anything not listed simulates
// around simDefaultBasePrice.
var simBasePrices = map[string]float64{
	"BTC":  30000,
	"ETH":  2000,
	"SOL":  40,
	"BNB":  300,
	"XRP":  0.5,
	"ADA":  0.35,
	"DOGE": 0.07,
}

const (
	simDefaultBasePrice = 100.0

	// simJitterFraction bounds the simulated price to
	// [(1-j)*base, (1+j)*base].
	simJitterFraction = 0.05

	// simBookStep is the per-level offset from mid: level k sits at
	// mid*(1 -/+ simBookStep*k).
	simBookStep  = 0.001
	simBookDepth = 10
)

// SimulationEngine fabricates plausible market data, order books, fills,
// and balances for platforms that are in simulation mode or lack
// credentials. Seeded construction makes the output reproducible.
//
// Simulated orders fill immediately with no partial fills or latency
// modeling; that is a deliberate simplification.
type SimulationEngine struct {
	mu     sync.Mutex
	rng    *rand.Rand
	orders map[string]*models.Order
	nextID int64
}

// NewSimulationEngine creates an engine seeded for reproducible output.
func NewSimulationEngine(seed int64) *SimulationEngine {
	return &SimulationEngine{
		rng:    rand.New(rand.NewSource(seed)),
		orders: make(map[string]*models.Order),
	}
}

// BasePrice returns the table price for a canonical symbol's base asset.
func BasePrice(symbol string) float64 {
	base, _, ok := strings.Cut(symbol, "/")
	if !ok {
		base = symbol
	}
	if price, ok := simBasePrices[strings.ToUpper(base)]; ok {
		return price
	}
	return simDefaultBasePrice
}

// price draws the next simulated price for a symbol, within the jitter
// bound of its base price.
func (e *SimulationEngine) price(symbol string) float64 {
	base := BasePrice(symbol)
	jitter := (e.rng.Float64()*2 - 1) * simJitterFraction
	return base * (1 + jitter)
}

// GetMarketData fabricates a canonical 24h ticker.
func (e *SimulationEngine) GetMarketData(platform Platform, symbol string) (models.MarketData, error) {
	if err := ValidateCanonicalSymbol(symbol); err != nil {
		return models.MarketData{}, err
	}

	e.mu.Lock()
	price := e.price(symbol)
	open := BasePrice(symbol)
	volume := 500 + e.rng.Float64()*9500
	e.mu.Unlock()

	change := price - open
	changePercent, err := ChangePercent24h(symbol, open, price)
	if err != nil {
		return models.MarketData{}, err
	}

	high := price
	low := open
	if open > price {
		high, low = open, price
	}

	return models.MarketData{
		Symbol:           symbol,
		Price:            price,
		High24h:          high * (1 + simBookStep*simBookDepth),
		Low24h:           low * (1 - simBookStep*simBookDepth),
		Volume24h:        volume,
		Change24h:        change,
		ChangePercent24h: changePercent,
		Timestamp:        time.Now(),
	}, nil
}

// GetOrderBook fabricates a book around the simulated mid price. Bids
// descend and asks ascend by construction, and every bid sits below every
// ask.
func (e *SimulationEngine) GetOrderBook(platform Platform, symbol string, depth int) (*models.OrderBook, error) {
	if err := ValidateCanonicalSymbol(symbol); err != nil {
		return nil, err
	}
	if depth <= 0 || depth > simBookDepth {
		depth = simBookDepth
	}

	e.mu.Lock()
	mid := e.price(symbol)
	book := &models.OrderBook{
		Symbol:    symbol,
		Bids:      make([]models.OrderBookEntry, 0, depth),
		Asks:      make([]models.OrderBookEntry, 0, depth),
		Timestamp: time.Now(),
	}
	for k := 1; k <= depth; k++ {
		step := simBookStep * float64(k)
		book.Bids = append(book.Bids, models.OrderBookEntry{
			Price:    mid * (1 - step),
			Quantity: 0.1 + e.rng.Float64()*2,
		})
		book.Asks = append(book.Asks, models.OrderBookEntry{
			Price:    mid * (1 + step),
			Quantity: 0.1 + e.rng.Float64()*2,
		})
	}
	e.mu.Unlock()

	return book, nil
}

// PlaceOrder records and immediately fills a simulated order.
func (e *SimulationEngine) PlaceOrder(platform Platform, req OrderRequest) (*models.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	price := req.Price
	if req.Type == OrderTypeMarket {
		price = e.price(req.Symbol)
	}

	e.nextID++
	order := &models.Order{
		ID:        fmt.Sprintf("sim-%s-%d", strings.ToLower(string(platform)), e.nextID),
		Symbol:    req.Symbol,
		Side:      req.Side.String(),
		Type:      req.Type.String(),
		Quantity:  req.Quantity,
		Price:     price,
		Status:    OrderStatusFilled.String(),
		Timestamp: time.Now(),
		Platform:  string(platform),
		Simulated: true,
	}
	e.orders[order.ID] = order

	copied := *order
	return &copied, nil
}

// CancelOrder cancels a previously placed simulated order. It reports
// false, with no error, when the ID was never placed or is already
// canceled.
func (e *SimulationEngine) CancelOrder(platform Platform, orderID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.orders[orderID]
	if !ok || order.Status == OrderStatusCanceled.String() {
		return false, nil
	}
	order.Status = OrderStatusCanceled.String()
	return true, nil
}

// GetOrder returns a copy of a recorded simulated order.
func (e *SimulationEngine) GetOrder(orderID string) (*models.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	order, ok := e.orders[orderID]
	if !ok {
		return nil, false
	}
	copied := *order
	return &copied, true
}

// GetOpenOrders fabricates resting limit orders straddling the simulated
// mid for a few liquid symbols. Placed orders never appear here: they fill
// immediately.
func (e *SimulationEngine) GetOpenOrders(platform Platform) ([]models.Order, error) {
	symbols := []string{"BTC/USDT", "ETH/USDT"}

	e.mu.Lock()
	defer e.mu.Unlock()

	orders := make([]models.Order, 0, len(symbols)*2)
	for _, symbol := range symbols {
		mid := e.price(symbol)
		for i, side := range []OrderSide{OrderSideBuy, OrderSideSell} {
			offset := 1 - 0.01
			if side == OrderSideSell {
				offset = 1 + 0.01
			}
			e.nextID++
			orders = append(orders, models.Order{
				ID:        fmt.Sprintf("sim-%s-open-%d", strings.ToLower(string(platform)), e.nextID),
				Symbol:    symbol,
				Side:      side.String(),
				Type:      OrderTypeLimit.String(),
				Quantity:  0.5 / float64(i+1),
				Price:     mid * offset,
				Status:    OrderStatusNew.String(),
				Timestamp: time.Now(),
				Platform:  string(platform),
				Simulated: true,
			})
		}
	}
	return orders, nil
}

// GetBalance fabricates a deterministic multi-asset balance map.
func (e *SimulationEngine) GetBalance(platform Platform) (map[string]models.Balance, error) {
	balances := map[string]models.Balance{
		"USDT": {Asset: "USDT", Free: 10000, Locked: 500},
		"BTC":  {Asset: "BTC", Free: 0.5, Locked: 0.05},
		"ETH":  {Asset: "ETH", Free: 4, Locked: 0},
		"SOL":  {Asset: "SOL", Free: 120, Locked: 10},
	}
	for asset, b := range balances {
		b.Total = b.Free + b.Locked
		balances[asset] = b
	}
	return balances, nil
}

// ChangePercent24h computes (close-open)/open*100. A zero open is an
// error, never a silent Infinity.
func ChangePercent24h(symbol string, open, close float64) (float64, error) {
	if open == 0 {
		return 0, NewDivisionByZeroError(symbol)
	}
	return (close - open) / open * 100, nil
}
