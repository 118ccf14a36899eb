package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/evdnx/gogateway"
	"github.com/evdnx/gogateway/common"
	"github.com/evdnx/golog"
	"github.com/gorilla/websocket"
)

const serverComponent = "ws_server"

// Config holds WebSocket server configuration
type Config struct {
	Addr            string
	ReadBufferSize  int
	WriteBufferSize int
	MaxMessageSize  int64
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
	PingPeriod      time.Duration
}

// DefaultConfig returns default WebSocket configuration
func DefaultConfig() Config {
	return Config{
		Addr:            ":8090",
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		MaxMessageSize:  64 * 1024,
		WriteTimeout:    10 * time.Second,
		PongTimeout:     60 * time.Second,
		PingPeriod:      54 * time.Second,
	}
}

// Server accepts WebSocket connections and dispatches client requests
// to the gateway router. Each connection gets a client id; closing the
// connection tears down every subscription made under that id.
type Server struct {
	router *gogateway.GatewayRouter
	subs   *gogateway.SubscriptionManager
	logger *golog.Logger
	config Config

	upgrader websocket.Upgrader

	clientsMu   sync.Mutex
	clients     map[*Client]struct{}
	clientCount int32
	nextClient  uint64

	httpServer *http.Server
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewServer creates a WebSocket server over the given router and
// subscription manager.
func NewServer(router *gogateway.GatewayRouter, subs *gogateway.SubscriptionManager, config Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		router: router,
		subs:   subs,
		logger: common.DefaultLogger(),
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*Client]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start runs the HTTP server until Stop is called. It blocks.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         s.config.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("websocket server starting",
		golog.String("component", serverComponent),
		golog.String("addr", s.config.Addr))

	go func() {
		<-s.ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("websocket server error: %w", err)
	}
	return nil
}

// Stop shuts the server down and disconnects every client.
func (s *Server) Stop() {
	s.cancel()

	s.clientsMu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed",
			golog.String("component", serverComponent),
			golog.String("error", err.Error()))
		return
	}

	client := newClient(s, conn, s.newClientID())
	s.registerClient(client)

	go client.writePump()
	go client.readPump()

	client.sendResponse(Response{
		Type:      "welcome",
		Success:   true,
		Data:      map[string]interface{}{"clientId": client.id},
		Timestamp: now(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         "healthy",
		"clients":        atomic.LoadInt32(&s.clientCount),
		"subscriptions":  s.subs.ActiveCount(),
		"simulationMode": s.router.SimulationMode(),
		"platforms":      s.router.Health(),
	})
}

func (s *Server) newClientID() string {
	n := atomic.AddUint64(&s.nextClient, 1)
	return fmt.Sprintf("client-%d-%d", time.Now().Unix(), n)
}

func (s *Server) registerClient(c *Client) {
	s.clientsMu.Lock()
	s.clients[c] = struct{}{}
	s.clientsMu.Unlock()
	count := atomic.AddInt32(&s.clientCount, 1)

	s.logger.Info("client connected",
		golog.String("component", serverComponent),
		golog.String("client", c.id),
		golog.Int("total", int(count)))
}

// unregisterClient removes a client and tears down its subscriptions.
// Every disconnect path funnels through here exactly once.
func (s *Server) unregisterClient(c *Client) {
	s.clientsMu.Lock()
	_, present := s.clients[c]
	delete(s.clients, c)
	s.clientsMu.Unlock()
	if !present {
		return
	}

	count := atomic.AddInt32(&s.clientCount, -1)
	stopped := s.subs.DisconnectClient(c.id)

	s.logger.Info("client disconnected",
		golog.String("component", serverComponent),
		golog.String("client", c.id),
		golog.Int("subscriptions_stopped", stopped),
		golog.Int("total", int(count)))
}
