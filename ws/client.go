package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/evdnx/gogateway"
	"github.com/evdnx/gogateway/exchange"
	"github.com/evdnx/gogateway/models"
	"github.com/evdnx/golog"
	"github.com/gorilla/websocket"
)

// Client is one WebSocket connection. It implements
// gogateway.Emitter so subscription payloads flow straight to its
// send queue.
type Client struct {
	id     string
	conn   *websocket.Conn
	server *Server
	send   chan []byte

	closeOnce sync.Once
}

func newClient(s *Server, conn *websocket.Conn, id string) *Client {
	return &Client{
		id:     id,
		conn:   conn,
		server: s,
		send:   make(chan []byte, 256),
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.server.unregisterClient(c)
		close(c.send)
		c.conn.Close()
	})
}

func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(c.server.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.server.config.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.server.config.PongTimeout))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.server.logger.Warn("websocket read error",
					golog.String("component", serverComponent),
					golog.String("client", c.id),
					golog.String("error", err.Error()))
			}
			return
		}
		c.handleMessage(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.server.config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.server.config.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.server.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) enqueue(data []byte) {
	defer func() {
		// Sending on a closed channel means the client raced a
		// disconnect; drop the message.
		recover()
	}()
	select {
	case c.send <- data:
	default:
		c.server.logger.Warn("client send queue full, dropping connection",
			golog.String("component", serverComponent),
			golog.String("client", c.id))
		go c.close()
	}
}

func (c *Client) sendResponse(resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *Client) sendEvent(event StreamEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	c.enqueue(data)
}

// respondError answers a request with a failure. The error code from a
// typed gateway error is surfaced so clients can branch on it.
func (c *Client) respondError(req Request, err error) {
	resp := Response{
		Type:      req.Type,
		RequestID: req.RequestID,
		Success:   false,
		Message:   err.Error(),
		Timestamp: now(),
	}
	var gwErr *exchange.GatewayError
	if errors.As(err, &gwErr) {
		resp.Code = gwErr.Code
		resp.Message = gwErr.Message
	}
	c.sendResponse(resp)
}

func (c *Client) respondReject(req Request, code, message string) {
	c.sendResponse(Response{
		Type:      req.Type,
		RequestID: req.RequestID,
		Success:   false,
		Code:      code,
		Message:   message,
		Timestamp: now(),
	})
}

func (c *Client) respondData(req Request, data interface{}) {
	c.sendResponse(Response{
		Type:      req.Type,
		RequestID: req.RequestID,
		Success:   true,
		Data:      data,
		Timestamp: now(),
	})
}

func (c *Client) handleMessage(raw []byte) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		c.respondReject(Request{Type: "error"}, "malformed_request", "request is not valid JSON")
		return
	}
	if req.Type == "" {
		c.respondReject(Request{Type: "error"}, "missing_type", "request has no type")
		return
	}

	switch req.Type {
	case "ping":
		c.respondData(req, map[string]interface{}{"pong": true})
	case "subscribe":
		c.handleSubscribe(req)
	case "unsubscribe":
		c.handleUnsubscribe(req)
	case "get_market_data":
		c.handleGetMarketData(req)
	case "get_order_book":
		c.handleGetOrderBook(req)
	case "place_order":
		c.handlePlaceOrder(req)
	case "cancel_order":
		c.handleCancelOrder(req)
	case "get_balance":
		c.handleGetBalance(req)
	case "get_open_orders":
		c.handleGetOpenOrders(req)
	case "set_credentials":
		c.handleSetCredentials(req)
	case "validate_credentials":
		c.handleValidateCredentials(req)
	case "set_simulation_mode":
		c.handleSetSimulationMode(req)
	case "get_status":
		c.handleGetStatus(req)
	default:
		c.respondReject(req, "unknown_type", "unknown request type: "+req.Type)
	}
}

// platform resolves the request's platform field, rejecting unknown
// values before any work happens.
func (c *Client) platform(req Request) (exchange.Platform, bool) {
	p, ok := exchange.PlatformFromString(req.Platform)
	if !ok {
		c.respondError(req, exchange.NewUnknownPlatformError(req.Platform))
		return "", false
	}
	return p, true
}

func (c *Client) subscriptionKey(req Request, platform exchange.Platform) gogateway.SubscriptionKey {
	channel, _ := gogateway.ChannelFromString(req.Channel)
	return gogateway.SubscriptionKey{
		ClientID: c.id,
		Symbol:   req.Symbol,
		Platform: platform,
		Channel:  channel,
	}
}

func (c *Client) handleSubscribe(req Request) {
	platform, ok := c.platform(req)
	if !ok {
		return
	}
	if _, ok := gogateway.ChannelFromString(req.Channel); !ok {
		c.respondReject(req, "invalid_channel", "channel must be market_data or order_book")
		return
	}

	key := c.subscriptionKey(req, platform)
	interval := time.Duration(req.IntervalMs) * time.Millisecond
	if err := c.server.subs.Subscribe(key, c, interval); err != nil {
		c.respondError(req, err)
		return
	}
	c.respondData(req, map[string]interface{}{
		"platform": string(platform),
		"symbol":   req.Symbol,
		"channel":  req.Channel,
	})
}

func (c *Client) handleUnsubscribe(req Request) {
	platform, ok := c.platform(req)
	if !ok {
		return
	}
	if _, ok := gogateway.ChannelFromString(req.Channel); !ok {
		c.respondReject(req, "invalid_channel", "channel must be market_data or order_book")
		return
	}

	key := c.subscriptionKey(req, platform)
	if !c.server.subs.Unsubscribe(key) {
		c.respondReject(req, "not_subscribed", "no such subscription")
		return
	}
	c.respondData(req, map[string]interface{}{
		"platform": string(platform),
		"symbol":   req.Symbol,
		"channel":  req.Channel,
	})
}

func (c *Client) handleGetMarketData(req Request) {
	platform, ok := c.platform(req)
	if !ok {
		return
	}
	ctx, cancel := c.requestContext()
	defer cancel()

	data, err := c.server.router.GetMarketData(ctx, platform, req.Symbol)
	if err != nil {
		c.respondError(req, err)
		return
	}
	c.respondData(req, data)
}

func (c *Client) handleGetOrderBook(req Request) {
	platform, ok := c.platform(req)
	if !ok {
		return
	}
	depth := req.Depth
	if depth <= 0 {
		depth = 10
	}
	ctx, cancel := c.requestContext()
	defer cancel()

	book, err := c.server.router.GetOrderBook(ctx, platform, req.Symbol, depth)
	if err != nil {
		c.respondError(req, err)
		return
	}
	c.respondData(req, book)
}

func (c *Client) handlePlaceOrder(req Request) {
	platform, ok := c.platform(req)
	if !ok {
		return
	}
	side, ok := exchange.OrderSideFromString(req.Side)
	if !ok {
		c.respondReject(req, "invalid_side", "order side must be buy or sell")
		return
	}
	orderType, ok := exchange.OrderTypeFromString(req.OrderType)
	if !ok {
		c.respondReject(req, "invalid_type", "order type must be market or limit")
		return
	}

	orderReq := exchange.OrderRequest{
		Symbol:   req.Symbol,
		Side:     side,
		Type:     orderType,
		Quantity: req.Quantity,
		Price:    req.Price,
	}
	ctx, cancel := c.requestContext()
	defer cancel()

	order, err := c.server.router.PlaceOrder(ctx, platform, orderReq)
	if err != nil {
		c.respondError(req, err)
		return
	}
	c.respondData(req, order)
}

func (c *Client) handleCancelOrder(req Request) {
	platform, ok := c.platform(req)
	if !ok {
		return
	}
	if req.OrderID == "" {
		c.respondReject(req, "missing_order_id", "orderId is required")
		return
	}
	ctx, cancel := c.requestContext()
	defer cancel()

	canceled, err := c.server.router.CancelOrder(ctx, platform, req.OrderID)
	if err != nil {
		c.respondError(req, err)
		return
	}
	c.respondData(req, map[string]interface{}{"canceled": canceled})
}

func (c *Client) handleGetBalance(req Request) {
	platform, ok := c.platform(req)
	if !ok {
		return
	}
	ctx, cancel := c.requestContext()
	defer cancel()

	balances, err := c.server.router.GetBalance(ctx, platform)
	if err != nil {
		c.respondError(req, err)
		return
	}
	c.respondData(req, balances)
}

func (c *Client) handleGetOpenOrders(req Request) {
	platform, ok := c.platform(req)
	if !ok {
		return
	}
	ctx, cancel := c.requestContext()
	defer cancel()

	orders, err := c.server.router.GetOpenOrders(ctx, platform)
	if err != nil {
		c.respondError(req, err)
		return
	}
	c.respondData(req, orders)
}

func (c *Client) handleSetCredentials(req Request) {
	platform, ok := c.platform(req)
	if !ok {
		return
	}
	if req.APIKey == "" || req.APISecret == "" {
		c.respondReject(req, "missing_credentials", "apiKey and apiSecret are required")
		return
	}
	if err := c.server.router.SetCredentials(platform, req.APIKey, req.APISecret); err != nil {
		c.respondError(req, err)
		return
	}
	c.respondData(req, map[string]interface{}{"platform": string(platform)})
}

func (c *Client) handleValidateCredentials(req Request) {
	platform, ok := c.platform(req)
	if !ok {
		return
	}
	ctx, cancel := c.requestContext()
	defer cancel()

	valid, err := c.server.router.ValidateCredentials(ctx, platform)
	if err != nil {
		c.respondError(req, err)
		return
	}
	c.respondData(req, map[string]interface{}{"valid": valid})
}

func (c *Client) handleSetSimulationMode(req Request) {
	if req.Enabled == nil {
		c.respondReject(req, "missing_enabled", "enabled is required")
		return
	}
	c.server.router.SetSimulationMode(*req.Enabled)
	c.respondData(req, map[string]interface{}{"simulationMode": *req.Enabled})
}

func (c *Client) handleGetStatus(req Request) {
	c.respondData(req, map[string]interface{}{
		"simulationMode": c.server.router.SimulationMode(),
		"platforms":      c.server.router.Health(),
		"subscriptions":  c.server.subs.ActiveCount(),
	})
}

func (c *Client) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), exchange.DefaultCallTimeout)
}

// EmitMarketData implements gogateway.Emitter.
func (c *Client) EmitMarketData(key gogateway.SubscriptionKey, data models.MarketData) {
	c.sendEvent(StreamEvent{
		Type:      "market_data",
		Platform:  string(key.Platform),
		Symbol:    key.Symbol,
		Channel:   string(key.Channel),
		Data:      data,
		Timestamp: now(),
	})
}

// EmitOrderBook implements gogateway.Emitter.
func (c *Client) EmitOrderBook(key gogateway.SubscriptionKey, book *models.OrderBook) {
	c.sendEvent(StreamEvent{
		Type:      "order_book",
		Platform:  string(key.Platform),
		Symbol:    key.Symbol,
		Channel:   string(key.Channel),
		Data:      book,
		Timestamp: now(),
	})
}

// EmitStreamError implements gogateway.Emitter.
func (c *Client) EmitStreamError(key gogateway.SubscriptionKey, err error) {
	event := StreamEvent{
		Type:      "error",
		Platform:  string(key.Platform),
		Symbol:    key.Symbol,
		Channel:   string(key.Channel),
		Message:   err.Error(),
		Timestamp: now(),
	}
	var gwErr *exchange.GatewayError
	if errors.As(err, &gwErr) {
		event.Code = gwErr.Code
		event.Message = gwErr.Message
	}
	c.sendEvent(event)
}
