package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/evdnx/gogateway/common"
	"github.com/evdnx/gogateway/models"
	"github.com/evdnx/gohttpcl"
	"github.com/evdnx/golog"
	metrics "github.com/evdnx/gotrademetrics"
)

const krakenHTTPTimeout = 12 * time.Second

// KrakenAdapter implements the Adapter contract against the Kraken REST
// API. Kraken renames a few assets (BTC is XBT) and wraps every payload
// in an {error, result} envelope.
type KrakenAdapter struct {
	*BaseAdapter
	httpClient  *gohttpcl.Client
	httpTimeout time.Duration
	baseURL     string
	mapper      KrakenSymbolMapper
}

type krakenEnvelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

// NewKrakenAdapter creates a Kraken adapter.
func NewKrakenAdapter(metricsClient *metrics.Metrics) *KrakenAdapter {
	a := &KrakenAdapter{
		BaseAdapter: NewBaseAdapter("Kraken", PlatformKraken),
		baseURL:     "https://api.kraken.com",
		httpTimeout: krakenHTTPTimeout,
	}
	a.httpClient = createKrakenHTTPClient(metricsClient)
	return a
}

func createKrakenHTTPClient(metricsClient *metrics.Metrics) *gohttpcl.Client {
	opts := []gohttpcl.Option{
		gohttpcl.WithMaxRetries(3),
		gohttpcl.WithMinBackoff(200 * time.Millisecond),
		gohttpcl.WithMaxBackoff(10 * time.Second),
		gohttpcl.WithBackoffFactor(2.0),
		gohttpcl.WithBackoffStrategy(gohttpcl.BackoffExponential),
		gohttpcl.WithRetryBudget(0.2, time.Minute),
		gohttpcl.WithTimeout(krakenHTTPTimeout),
	}
	if collector := common.NewHTTPMetricsCollector(metricsClient, "Kraken"); collector != nil {
		opts = append(opts, gohttpcl.WithMetrics(collector))
	}
	return gohttpcl.New(opts...)
}

// SupportsLive reports that Kraken has a live integration.
func (a *KrakenAdapter) SupportsLive() bool { return true }

// signRequest produces Kraken's API-Sign header: base64 HMAC-SHA512 over
// the URI path and SHA256(nonce + POST data), keyed by the decoded secret.
func (a *KrakenAdapter) signRequest(path string, nonce string, postData string) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(a.APISecret())
	if err != nil {
		return "", NewAuthenticationError("invalid_secret", "Kraken API secret is not valid base64")
	}
	digest := sha256.Sum256([]byte(nonce + postData))
	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(digest[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

func (a *KrakenAdapter) public(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	target := a.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	ctx, cancel := a.CallContext(ctx)
	defer cancel()

	resp, err := a.httpClient.Get(ctx, target, a.httpTimeout, nil)
	if err != nil {
		return nil, NewNetworkError("request_failed", fmt.Sprintf("GET %s failed", path), err, true)
	}
	defer resp.Body.Close()
	return a.decodeEnvelope(resp)
}

func (a *KrakenAdapter) private(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	if !a.HasCredentials() {
		return nil, NewAuthenticationError(CodeCredentialsMissing, "Kraken credentials are not set")
	}
	if params == nil {
		params = url.Values{}
	}
	nonce := strconv.FormatInt(time.Now().UnixNano(), 10)
	params.Set("nonce", nonce)
	postData := params.Encode()

	signature, err := a.signRequest(path, nonce, postData)
	if err != nil {
		return nil, err
	}

	ctx, cancel := a.CallContext(ctx)
	defer cancel()

	resp, err := a.httpClient.Post(ctx, a.baseURL+path, strings.NewReader(postData), a.httpTimeout, nil,
		gohttpcl.WithHeader("API-Key", a.APIKey()),
		gohttpcl.WithHeader("API-Sign", signature),
		gohttpcl.WithHeader("Content-Type", "application/x-www-form-urlencoded"),
	)
	if err != nil {
		return nil, NewNetworkError("request_failed", fmt.Sprintf("POST %s failed", path), err, true)
	}
	defer resp.Body.Close()
	return a.decodeEnvelope(resp)
}

func (a *KrakenAdapter) decodeEnvelope(resp *http.Response) (json.RawMessage, error) {
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewNetworkError("read_failed", "failed to read response body", err, true)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, NewHTTPError(resp.StatusCode, payload, string(payload))
	}

	var envelope krakenEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, NewParsingError("failed to parse Kraken envelope", err, payload)
	}
	if len(envelope.Error) > 0 {
		message := strings.Join(envelope.Error, "; ")
		defaultLogger().Warn("kraken reported an error",
			golog.String("component", "kraken_adapter"),
			golog.String("error", message))
		if strings.Contains(message, "Invalid key") || strings.Contains(message, "Invalid signature") {
			return nil, NewAuthenticationError("authentication_failed", message)
		}
		return nil, NewGatewayError(ErrorTypeExchange, "kraken_error", message, nil)
	}
	return envelope.Result, nil
}

// GetMarketData fetches the public Ticker for a symbol.
func (a *KrakenAdapter) GetMarketData(ctx context.Context, symbol string) (models.MarketData, error) {
	native, err := a.mapper.Format(symbol)
	if err != nil {
		return models.MarketData{}, err
	}

	params := url.Values{}
	params.Set("pair", native)
	result, err := a.public(ctx, "/0/public/Ticker", params)
	if err != nil {
		return models.MarketData{}, err
	}

	// Ticker results are keyed by Kraken's internal pair name, which may
	// differ from the requested one; the single-pair request makes the
	// first entry the right one.
	var pairs map[string]struct {
		Close  []string `json:"c"`
		High   []string `json:"h"`
		Low    []string `json:"l"`
		Volume []string `json:"v"`
		Open   string   `json:"o"`
	}
	if err := json.Unmarshal(result, &pairs); err != nil {
		return models.MarketData{}, NewParsingError("failed to parse ticker", err, result)
	}

	for _, t := range pairs {
		if len(t.Close) == 0 || len(t.High) < 2 || len(t.Low) < 2 || len(t.Volume) < 2 {
			return models.MarketData{}, NewParsingError("ticker payload is incomplete", nil, result)
		}
		last, _ := strconv.ParseFloat(t.Close[0], 64)
		open, _ := strconv.ParseFloat(t.Open, 64)
		high, _ := strconv.ParseFloat(t.High[1], 64)
		low, _ := strconv.ParseFloat(t.Low[1], 64)
		volume, _ := strconv.ParseFloat(t.Volume[1], 64)

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
			Timestamp:        time.Now(),
		}, nil
	}
	return models.MarketData{}, NewGatewayError(ErrorTypeExchange, "no_data", "Kraken returned no ticker for "+symbol, nil)
}

// GetOrderBook fetches the public Depth for a symbol. Ordering is
// enforced after parse rather than trusted.
func (a *KrakenAdapter) GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	native, err := a.mapper.Format(symbol)
	if err != nil {
		return nil, err
	}
	if depth <= 0 {
		depth = 10
	}

	params := url.Values{}
	params.Set("pair", native)
	params.Set("count", strconv.Itoa(depth))
	result, err := a.public(ctx, "/0/public/Depth", params)
	if err != nil {
		return nil, err
	}

	var pairs map[string]struct {
		Bids [][]json.Number `json:"bids"`
		Asks [][]json.Number `json:"asks"`
	}
	if err := json.Unmarshal(result, &pairs); err != nil {
		return nil, NewParsingError("failed to parse depth", err, result)
	}

	for _, book := range pairs {
		out := &models.OrderBook{
			Symbol:    symbol,
			Bids:      parseKrakenLevels(book.Bids),
			Asks:      parseKrakenLevels(book.Asks),
			Timestamp: time.Now(),
		}
		sort.Slice(out.Bids, func(i, j int) bool { return out.Bids[i].Price > out.Bids[j].Price })
		sort.Slice(out.Asks, func(i, j int) bool { return out.Asks[i].Price < out.Asks[j].Price })
		return out, nil
	}
	return nil, NewGatewayError(ErrorTypeExchange, "no_data", "Kraken returned no depth for "+symbol, nil)
}

func parseKrakenLevels(levels [][]json.Number) []models.OrderBookEntry {
	out := make([]models.OrderBookEntry, 0, len(levels))
	for _, level := range levels {
		if len(level) < 2 {
			continue
		}
		price, _ := level[0].Float64()
		qty, _ := level[1].Float64()
		out = append(out, models.OrderBookEntry{Price: price, Quantity: qty})
	}
	return out
}

// PlaceOrder submits an AddOrder request.
func (a *KrakenAdapter) PlaceOrder(ctx context.Context, req OrderRequest) (*models.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	native, err := a.mapper.Format(req.Symbol)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("pair", native)
	params.Set("type", req.Side.String())
	params.Set("ordertype", req.Type.String())
	params.Set("volume", strconv.FormatFloat(req.Quantity, 'f', -1, 64))
	if req.Type == OrderTypeLimit {
		params.Set("price", strconv.FormatFloat(req.Price, 'f', -1, 64))
	}

	result, err := a.private(ctx, "/0/private/AddOrder", params)
	if err != nil {
		return nil, err
	}

	var placed struct {
		TxID []string `json:"txid"`
	}
	if err := json.Unmarshal(result, &placed); err != nil {
		return nil, NewParsingError("failed to parse AddOrder result", err, result)
	}
	if len(placed.TxID) == 0 {
		return nil, NewGatewayError(ErrorTypeExchange, "no_txid", "Kraken accepted order without a txid", nil)
	}

	status := OrderStatusNew
	if req.Type == OrderTypeMarket {
		status = OrderStatusFilled
	}
	return &models.Order{
		ID:        placed.TxID[0],
		Symbol:    req.Symbol,
		Side:      req.Side.String(),
		Type:      req.Type.String(),
		Quantity:  req.Quantity,
		Price:     req.Price,
		Status:    status.String(),
		Timestamp: time.Now(),
		Platform:  string(PlatformKraken),
	}, nil
}

// CancelOrder cancels an order by transaction ID. Kraken's "Unknown
// order" error maps to (false, nil).
func (a *KrakenAdapter) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	params := url.Values{}
	params.Set("txid", orderID)

	result, err := a.private(ctx, "/0/private/CancelOrder", params)
	if err != nil {
		if gwErr, ok := asGatewayError(err); ok && strings.Contains(gwErr.Message, "Unknown order") {
			return false, nil
		}
		return false, err
	}

	var canceled struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(result, &canceled); err != nil {
		return false, NewParsingError("failed to parse CancelOrder result", err, result)
	}
	return canceled.Count > 0, nil
}

// Kraken prefixes fiat assets with Z and a few crypto assets with X.
var krakenBalanceNames = map[string]string{
	"XXBT": "BTC",
	"XETH": "ETH",
	"XXDG": "DOGE",
	"ZUSD": "USD",
	"ZEUR": "EUR",
	"ZGBP": "GBP",
}

func normalizeKrakenAsset(asset string) string {
	if name, ok := krakenBalanceNames[asset]; ok {
		return name
	}
	return asset
}

// GetBalance fetches account balances. Kraken reports only free amounts
// here; locked amounts would need the extended balance endpoint.
func (a *KrakenAdapter) GetBalance(ctx context.Context) (map[string]models.Balance, error) {
	result, err := a.private(ctx, "/0/private/Balance", nil)
	if err != nil {
		return nil, err
	}

	var raw map[string]string
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, NewParsingError("failed to parse balances", err, result)
	}

	balances := make(map[string]models.Balance, len(raw))
	for asset, amount := range raw {
		free, _ := strconv.ParseFloat(amount, 64)
		if free == 0 {
			continue
		}
		name := normalizeKrakenAsset(asset)
		balances[name] = models.Balance{Asset: name, Free: free, Total: free}
	}
	return balances, nil
}

// GetOpenOrders fetches the resting orders on the account.
func (a *KrakenAdapter) GetOpenOrders(ctx context.Context) ([]models.Order, error) {
	result, err := a.private(ctx, "/0/private/OpenOrders", nil)
	if err != nil {
		return nil, err
	}

	var open struct {
		Open map[string]struct {
			Status string `json:"status"`
			Vol    string `json:"vol"`
			Descr  struct {
				Pair      string `json:"pair"`
				Type      string `json:"type"`
				OrderType string `json:"ordertype"`
				Price     string `json:"price"`
			} `json:"descr"`
			OpenTm float64 `json:"opentm"`
		} `json:"open"`
	}
	if err := json.Unmarshal(result, &open); err != nil {
		return nil, NewParsingError("failed to parse open orders", err, result)
	}

	orders := make([]models.Order, 0, len(open.Open))
	for txid, o := range open.Open {
		symbol, err := a.mapper.Normalize(o.Descr.Pair)
		if err != nil {
			symbol = o.Descr.Pair
		}
		qty, _ := strconv.ParseFloat(o.Vol, 64)
		price, _ := strconv.ParseFloat(o.Descr.Price, 64)
		orders = append(orders, models.Order{
			ID:        txid,
			Symbol:    symbol,
			Side:      strings.ToLower(o.Descr.Type),
			Type:      strings.ToLower(o.Descr.OrderType),
			Quantity:  qty,
			Price:     price,
			Status:    string(OrderStatusNew),
			Timestamp: time.Unix(int64(o.OpenTm), 0),
			Platform:  string(PlatformKraken),
		})
	}
	return orders, nil
}

// ValidateCredentials performs exactly one signed balance call.
func (a *KrakenAdapter) ValidateCredentials(ctx context.Context) (bool, error) {
	if !a.HasCredentials() {
		return false, nil
	}
	if _, err := a.GetBalance(ctx); err != nil {
		return false, err
	}
	return true, nil
}
