package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/synheart/synheart-collector/internal/encoding"
	"github.com/synheart/synheart-collector/internal/models"
)

// SSEServer broadcasts metric updates via Server-Sent Events
type SSEServer struct {
	host    string
	port    int
	encoder encoding.Encoder
	log     *zap.Logger
	clients map[chan []byte]bool
	mu      sync.RWMutex
	server  *http.Server
}

// NewSSEServer creates a new SSE server
func NewSSEServer(host string, port int, encoder encoding.Encoder, log *zap.Logger) *SSEServer {
	if log == nil {
		log = zap.NewNop()
	}
	return &SSEServer{
		host:    host,
		port:    port,
		encoder: encoder,
		log:     log,
		clients: make(map[chan []byte]bool),
	}
}

// Start starts the SSE server
func (s *SSEServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics/sse", s.handleSSE)
	mux.HandleFunc("/", s.handleRoot)

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("sse server listening", zap.String("address", s.GetAddress()))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("SSE server failed: %w", err)
		}
		return nil
	}
}

func (s *SSEServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "Synheart Collector SSE\n\nEndpoint: http://%s:%d/metrics/sse\n", s.host, s.port)
}

func (s *SSEServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	clientChan := make(chan []byte, 100)
	s.addClient(clientChan)
	defer s.removeClient(clientChan)

	s.log.Info("sse client connected", zap.Int("total", s.GetClientCount()))

	for {
		select {
		case <-r.Context().Done():
			return
		case data, ok := <-clientChan:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (s *SSEServer) addClient(ch chan []byte) {
	s.mu.Lock()
	s.clients[ch] = true
	s.mu.Unlock()
}

func (s *SSEServer) removeClient(ch chan []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.clients[ch]; exists {
		delete(s.clients, ch)
		close(ch)
		s.log.Info("sse client disconnected", zap.Int("total", len(s.clients)))
	}
}

// Broadcast sends an update to all connected clients
func (s *SSEServer) Broadcast(update models.MetricsUpdate) error {
	if s.GetClientCount() == 0 {
		return nil
	}

	data, err := s.encoder.Encode(update)
	if err != nil {
		return fmt.Errorf("failed to encode update: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for ch := range s.clients {
		select {
		case ch <- data:
		default:
		}
	}
	return nil
}

// BroadcastFromChannel reads updates and broadcasts them
func (s *SSEServer) BroadcastFromChannel(ctx context.Context, updates <-chan models.MetricsUpdate) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if err := s.Broadcast(update); err != nil {
				s.log.Warn("broadcast error", zap.Error(err))
			}
		}
	}
}

// GetClientCount returns connected client count
func (s *SSEServer) GetClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Shutdown gracefully stops the server
func (s *SSEServer) Shutdown() error {
	s.mu.Lock()
	for ch := range s.clients {
		close(ch)
	}
	s.clients = make(map[chan []byte]bool)
	s.mu.Unlock()

	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// GetAddress returns the server address
func (s *SSEServer) GetAddress() string {
	return fmt.Sprintf("http://%s:%d/metrics/sse", s.host, s.port)
}
