package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/synheart/synheart-collector/internal/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WebSocketServer broadcasts metric updates to WebSocket clients
type WebSocketServer struct {
	host    string
	port    int
	log     *zap.Logger
	clients map[*websocket.Conn]bool
	mu      sync.RWMutex
	server  *http.Server
}

// NewWebSocketServer creates a new WebSocket server
func NewWebSocketServer(host string, port int, log *zap.Logger) *WebSocketServer {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebSocketServer{
		host:    host,
		port:    port,
		log:     log,
		clients: make(map[*websocket.Conn]bool),
	}
}

// Start starts the WebSocket server
func (s *WebSocketServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleWebSocket)
	mux.HandleFunc("/", s.handleRoot)

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: mux,
	}

	go func() {
		s.log.Info("websocket server listening", zap.String("address", s.GetAddress()))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("websocket server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	return s.Shutdown()
}

// handleRoot provides info at the root endpoint
func (s *WebSocketServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "Synheart Collector\n\n")
	fmt.Fprintf(w, "WebSocket endpoint: ws://%s:%d/metrics\n", s.host, s.port)
	fmt.Fprintf(w, "Connected clients: %d\n", s.GetClientCount())
}

// handleWebSocket handles WebSocket connections
func (s *WebSocketServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.mu.Unlock()

	s.log.Info("client connected",
		zap.String("remote", r.RemoteAddr),
		zap.Int("total", clientCount))

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.mu.Unlock()

		conn.Close()
		s.log.Info("client disconnected", zap.Int("total", clientCount))
	}()

	// Keep connection alive and drain client messages
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

// Broadcast sends an update to all connected clients
func (s *WebSocketServer) Broadcast(update models.MetricsUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal update: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for client := range s.clients {
		err := client.WriteMessage(websocket.TextMessage, data)
		if err != nil {
			s.log.Warn("failed to send to client", zap.Error(err))
			// Client will be cleaned up by the connection handler
		}
	}

	return nil
}

// BroadcastFromChannel reads updates from a channel and broadcasts them
func (s *WebSocketServer) BroadcastFromChannel(ctx context.Context, updates <-chan models.MetricsUpdate) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil // Channel closed
			}
			if err := s.Broadcast(update); err != nil {
				s.log.Warn("broadcast error", zap.Error(err))
			}
		}
	}
}

// GetClientCount returns the number of connected clients
func (s *WebSocketServer) GetClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Shutdown gracefully shuts down the server
func (s *WebSocketServer) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.mu.Lock()
	for client := range s.clients {
		client.Close()
	}
	s.clients = make(map[*websocket.Conn]bool)
	s.mu.Unlock()

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// GetAddress returns the server address
func (s *WebSocketServer) GetAddress() string {
	return fmt.Sprintf("ws://%s:%d/metrics", s.host, s.port)
}
