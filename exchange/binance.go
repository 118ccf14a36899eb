package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/evdnx/gogateway/common"
	"github.com/evdnx/gogateway/models"
	"github.com/evdnx/gohttpcl"
	"github.com/evdnx/golog"
	metrics "github.com/evdnx/gotrademetrics"
)

const binanceHTTPTimeout = 10 * time.Second

// BinanceAdapter implements the Adapter contract against the Binance spot
// REST API.
type BinanceAdapter struct {
	*BaseAdapter
	httpClient  *gohttpcl.Client
	httpTimeout time.Duration
	baseURL     string
	mapper      BinanceSymbolMapper

	// Binance's cancel endpoint requires the symbol alongside the order
	// ID, so symbols of orders placed through this adapter are remembered
	// for the session.
	orderMu      sync.RWMutex
	orderSymbols map[string]string
}

// binanceEnvelope carries the error fields Binance mixes into payloads.
type binanceEnvelope struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"msg,omitempty"`
}

// NewBinanceAdapter creates a Binance adapter. Testnet mode targets the
// public testnet endpoints.
func NewBinanceAdapter(testnet bool, metricsClient *metrics.Metrics) *BinanceAdapter {
	baseURL := "https://api.binance.com"
	if testnet {
		baseURL = "https://testnet.binance.vision"
	}

	a := &BinanceAdapter{
		BaseAdapter:  NewBaseAdapter("Binance", PlatformBinance),
		baseURL:      baseURL,
		httpTimeout:  binanceHTTPTimeout,
		orderSymbols: make(map[string]string),
	}
	a.httpClient = createBinanceHTTPClient(metricsClient)
	return a
}

func createBinanceHTTPClient(metricsClient *metrics.Metrics) *gohttpcl.Client {
	opts := []gohttpcl.Option{
		gohttpcl.WithMaxRetries(4),
		gohttpcl.WithMinBackoff(150 * time.Millisecond),
		gohttpcl.WithMaxBackoff(15 * time.Second),
		gohttpcl.WithBackoffFactor(2.0),
		gohttpcl.WithBackoffStrategy(gohttpcl.BackoffExponential),
		gohttpcl.WithRetryBudget(0.2, time.Minute),
		gohttpcl.WithTimeout(binanceHTTPTimeout),
	}
	if collector := common.NewHTTPMetricsCollector(metricsClient, "Binance"); collector != nil {
		opts = append(opts, gohttpcl.WithMetrics(collector))
	}
	return gohttpcl.New(opts...)
}

// SupportsLive reports that Binance has a live integration.
func (a *BinanceAdapter) SupportsLive() bool { return true }

func (a *BinanceAdapter) headers() map[string]string {
	return map[string]string{"X-MBX-APIKEY": a.APIKey()}
}

// sign adds the timestamp and HMAC SHA256 signature Binance expects on
// private endpoints.
func (a *BinanceAdapter) sign(params url.Values) url.Values {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	payload := params.Encode()
	h := hmac.New(sha256.New, []byte(a.APISecret()))
	h.Write([]byte(payload))
	params.Set("signature", hex.EncodeToString(h.Sum(nil)))
	return params
}

func (a *BinanceAdapter) doRequest(ctx context.Context, method, target string, body []byte) ([]byte, error) {
	ctx, cancel := a.CallContext(ctx)
	defer cancel()

	timeout := a.httpTimeout
	if timeout <= 0 {
		timeout = binanceHTTPTimeout
	}
	options := headerOptions(a.headers())

	var (
		resp *http.Response
		err  error
	)
	switch method {
	case http.MethodGet:
		resp, err = a.httpClient.Get(ctx, target, timeout, nil, options...)
	case http.MethodPost:
		resp, err = a.httpClient.Post(ctx, target, bytes.NewReader(body), timeout, nil, options...)
	case http.MethodDelete:
		resp, err = a.httpClient.Delete(ctx, target, timeout, nil, options...)
	default:
		return nil, fmt.Errorf("unsupported HTTP method %s", method)
	}
	if err != nil {
		return nil, NewNetworkError("request_failed", fmt.Sprintf("%s %s failed", method, target), err, true)
	}
	defer resp.Body.Close()

	payload, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, NewNetworkError("read_failed", "failed to read response body", readErr, true)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defaultLogger().Warn("binance request failed",
			golog.String("component", "binance_adapter"),
			golog.Int("status", resp.StatusCode))
		return nil, NewHTTPError(resp.StatusCode, payload, string(payload))
	}
	return payload, nil
}

func headerOptions(headers map[string]string) []gohttpcl.ReqOption {
	if len(headers) == 0 {
		return nil
	}
	options := make([]gohttpcl.ReqOption, 0, len(headers))
	for k, v := range headers {
		options = append(options, gohttpcl.WithHeader(k, v))
	}
	return options
}

// GetMarketData fetches the 24hr ticker for a symbol.
func (a *BinanceAdapter) GetMarketData(ctx context.Context, symbol string) (models.MarketData, error) {
	native, err := a.mapper.Format(symbol)
	if err != nil {
		return models.MarketData{}, err
	}

	params := url.Values{}
	params.Set("symbol", native)
	response, err := a.doRequest(ctx, http.MethodGet, fmt.Sprintf("%s/api/v3/ticker/24hr?%s", a.baseURL, params.Encode()), nil)
	if err != nil {
		return models.MarketData{}, err
	}

	var ticker struct {
		Symbol      string `json:"symbol"`
		LastPrice   string `json:"lastPrice"`
		OpenPrice   string `json:"openPrice"`
		HighPrice   string `json:"highPrice"`
		LowPrice    string `json:"lowPrice"`
		Volume      string `json:"volume"`
		PriceChange string `json:"priceChange"`
		CloseTime   int64  `json:"closeTime"`
		binanceEnvelope
	}
	if err := json.Unmarshal(response, &ticker); err != nil {
		return models.MarketData{}, NewParsingError("failed to parse 24hr ticker", err, response)
	}
	if ticker.Code != 0 {
		return models.MarketData{}, NewGatewayError(ErrorTypeExchange, "binance_error", ticker.Message, nil)
	}

	last, _ := strconv.ParseFloat(ticker.LastPrice, 64)
	open, _ := strconv.ParseFloat(ticker.OpenPrice, 64)
	high, _ := strconv.ParseFloat(ticker.HighPrice, 64)
	low, _ := strconv.ParseFloat(ticker.LowPrice, 64)
	volume, _ := strconv.ParseFloat(ticker.Volume, 64)

	changePercent, err := ChangePercent24h(symbol, open, last)
	if err != nil {
		return models.MarketData{}, err
	}

	return models.MarketData{
		Symbol:           symbol,
		Price:            last,
		High24h:          high,
		Low24h:           low,
		Volume24h:        volume,
		Change24h:        last - open,
		ChangePercent24h: changePercent,
		Timestamp:        time.UnixMilli(ticker.CloseTime),
	}, nil
}

// GetOrderBook fetches up to depth levels per side. Binance already
// orders bids descending and asks ascending.
func (a *BinanceAdapter) GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	native, err := a.mapper.Format(symbol)
	if err != nil {
		return nil, err
	}
	if depth <= 0 {
		depth = 10
	}

	params := url.Values{}
	params.Set("symbol", native)
	params.Set("limit", strconv.Itoa(depth))
	response, err := a.doRequest(ctx, http.MethodGet, fmt.Sprintf("%s/api/v3/depth?%s", a.baseURL, params.Encode()), nil)
	if err != nil {
		return nil, err
	}

	var book struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	if err := json.Unmarshal(response, &book); err != nil {
		return nil, NewParsingError("failed to parse order book", err, response)
	}

	return &models.OrderBook{
		Symbol:    symbol,
		Bids:      parseBookLevels(book.Bids),
		Asks:      parseBookLevels(book.Asks),
		Timestamp: time.Now(),
	}, nil
}

func parseBookLevels(levels [][]string) []models.OrderBookEntry {
	out := make([]models.OrderBookEntry, 0, len(levels))
	for _, level := range levels {
		if len(level) < 2 {
			continue
		}
		price, _ := strconv.ParseFloat(level[0], 64)
		qty, _ := strconv.ParseFloat(level[1], 64)
		out = append(out, models.OrderBookEntry{Price: price, Quantity: qty})
	}
	return out
}

// PlaceOrder submits a new spot order.
func (a *BinanceAdapter) PlaceOrder(ctx context.Context, req OrderRequest) (*models.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !a.HasCredentials() {
		return nil, NewAuthenticationError(CodeCredentialsMissing, "Binance credentials are not set")
	}
	native, err := a.mapper.Format(req.Symbol)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbol", native)
	params.Set("side", map[OrderSide]string{OrderSideBuy: "BUY", OrderSideSell: "SELL"}[req.Side])
	params.Set("quantity", strconv.FormatFloat(req.Quantity, 'f', -1, 64))
	switch req.Type {
	case OrderTypeMarket:
		params.Set("type", "MARKET")
	case OrderTypeLimit:
		params.Set("type", "LIMIT")
		params.Set("timeInForce", "GTC")
		params.Set("price", strconv.FormatFloat(req.Price, 'f', -1, 64))
	}
	params = a.sign(params)

	response, err := a.doRequest(ctx, http.MethodPost, fmt.Sprintf("%s/api/v3/order?%s", a.baseURL, params.Encode()), nil)
	if err != nil {
		return nil, err
	}

	var placed struct {
		OrderID      int64  `json:"orderId"`
		Status       string `json:"status"`
		Price        string `json:"price"`
		ExecutedQty  string `json:"executedQty"`
		TransactTime int64  `json:"transactTime"`
		binanceEnvelope
	}
	if err := json.Unmarshal(response, &placed); err != nil {
		return nil, NewParsingError("failed to parse order response", err, response)
	}
	if placed.Code != 0 {
		return nil, NewGatewayError(ErrorTypeExchange, "binance_error", placed.Message, nil)
	}

	orderID := strconv.FormatInt(placed.OrderID, 10)
	a.orderMu.Lock()
	a.orderSymbols[orderID] = native
	a.orderMu.Unlock()

	price := req.Price
	if parsed, err := strconv.ParseFloat(placed.Price, 64); err == nil && parsed > 0 {
		price = parsed
	}

	return &models.Order{
		ID:        orderID,
		Symbol:    req.Symbol,
		Side:      req.Side.String(),
		Type:      req.Type.String(),
		Quantity:  req.Quantity,
		Price:     price,
		Status:    normalizeBinanceStatus(placed.Status),
		Timestamp: time.UnixMilli(placed.TransactTime),
		Platform:  string(PlatformBinance),
	}, nil
}

func normalizeBinanceStatus(status string) string {
	switch status {
	case "NEW", "PARTIALLY_FILLED", "FILLED", "CANCELED", "REJECTED":
		return status
	case "EXPIRED", "EXPIRED_IN_MATCH":
		return string(OrderStatusCanceled)
	default:
		return string(OrderStatusNew)
	}
}

// CancelOrder cancels an order by ID. Binance requires the symbol
// alongside the ID; orders placed in this session are remembered, and
// anything else is looked up in the open order list. An order found in
// neither reports (false, nil).
func (a *BinanceAdapter) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	if !a.HasCredentials() {
		return false, NewAuthenticationError(CodeCredentialsMissing, "Binance credentials are not set")
	}

	a.orderMu.RLock()
	native, ok := a.orderSymbols[orderID]
	a.orderMu.RUnlock()
	if !ok {
		var err error
		native, ok, err = a.findOrderSymbol(ctx, orderID)
		if err != nil {
			return false, err
		}
	}
	if !ok {
		return false, nil
	}

	params := url.Values{}
	params.Set("symbol", native)
	params.Set("orderId", orderID)
	params = a.sign(params)

	_, err := a.doRequest(ctx, http.MethodDelete, fmt.Sprintf("%s/api/v3/order?%s", a.baseURL, params.Encode()), nil)
	if err != nil {
		if gwErr, ok := asGatewayError(err); ok && gwErr.StatusCode == http.StatusBadRequest {
			// Binance answers 400 with code -2011 for unknown orders.
			return false, nil
		}
		return false, err
	}

	a.orderMu.Lock()
	delete(a.orderSymbols, orderID)
	a.orderMu.Unlock()
	return true, nil
}

// findOrderSymbol recovers the native symbol for an order that is not
// in the session map, e.g. one placed before a restart.
func (a *BinanceAdapter) findOrderSymbol(ctx context.Context, orderID string) (string, bool, error) {
	orders, err := a.GetOpenOrders(ctx)
	if err != nil {
		return "", false, err
	}
	for _, o := range orders {
		if o.ID != orderID {
			continue
		}
		if native, err := a.mapper.Format(o.Symbol); err == nil {
			return native, true, nil
		}
		// Normalize failed on the way in and kept the native form.
		return o.Symbol, true, nil
	}
	return "", false, nil
}

// GetBalance fetches all non-zero spot balances.
func (a *BinanceAdapter) GetBalance(ctx context.Context) (map[string]models.Balance, error) {
	if !a.HasCredentials() {
		return nil, NewAuthenticationError(CodeCredentialsMissing, "Binance credentials are not set")
	}

	params := a.sign(url.Values{})
	response, err := a.doRequest(ctx, http.MethodGet, fmt.Sprintf("%s/api/v3/account?%s", a.baseURL, params.Encode()), nil)
	if err != nil {
		return nil, err
	}

	var account struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
		binanceEnvelope
	}
	if err := json.Unmarshal(response, &account); err != nil {
		return nil, NewParsingError("failed to parse account", err, response)
	}
	if account.Code != 0 {
		return nil, NewGatewayError(ErrorTypeExchange, "binance_error", account.Message, nil)
	}

	balances := make(map[string]models.Balance)
	for _, b := range account.Balances {
		free, _ := strconv.ParseFloat(b.Free, 64)
		locked, _ := strconv.ParseFloat(b.Locked, 64)
		if free == 0 && locked == 0 {
			continue
		}
		balances[b.Asset] = models.Balance{
			Asset:  b.Asset,
			Free:   free,
			Locked: locked,
			Total:  free + locked,
		}
	}
	return balances, nil
}

// GetOpenOrders fetches every resting order on the account.
func (a *BinanceAdapter) GetOpenOrders(ctx context.Context) ([]models.Order, error) {
	if !a.HasCredentials() {
		return nil, NewAuthenticationError(CodeCredentialsMissing, "Binance credentials are not set")
	}

	params := a.sign(url.Values{})
	response, err := a.doRequest(ctx, http.MethodGet, fmt.Sprintf("%s/api/v3/openOrders?%s", a.baseURL, params.Encode()), nil)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		OrderID  int64  `json:"orderId"`
		Symbol   string `json:"symbol"`
		Side     string `json:"side"`
		Type     string `json:"type"`
		OrigQty  string `json:"origQty"`
		Price    string `json:"price"`
		Status   string `json:"status"`
		OrderTme int64  `json:"time"`
	}
	if err := json.Unmarshal(response, &raw); err != nil {
		return nil, NewParsingError("failed to parse open orders", err, response)
	}

	orders := make([]models.Order, 0, len(raw))
	for _, o := range raw {
		symbol, err := a.mapper.Normalize(o.Symbol)
		if err != nil {
			symbol = o.Symbol
		}
		qty, _ := strconv.ParseFloat(o.OrigQty, 64)
		price, _ := strconv.ParseFloat(o.Price, 64)
		orders = append(orders, models.Order{
			ID:        strconv.FormatInt(o.OrderID, 10),
			Symbol:    symbol,
			Side:      strings.ToLower(o.Side),
			Type:      strings.ToLower(o.Type),
			Quantity:  qty,
			Price:     price,
			Status:    normalizeBinanceStatus(o.Status),
			Timestamp: time.UnixMilli(o.OrderTme),
			Platform:  string(PlatformBinance),
		})
	}
	return orders, nil
}

// ValidateCredentials performs exactly one signed account call.
func (a *BinanceAdapter) ValidateCredentials(ctx context.Context) (bool, error) {
	if !a.HasCredentials() {
		return false, nil
	}
	if _, err := a.GetBalance(ctx); err != nil {
		return false, err
	}
	return true, nil
}
