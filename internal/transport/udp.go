package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/synheart/synheart-collector/internal/encoding"
	"github.com/synheart/synheart-collector/internal/models"
)

// UDPServer broadcasts metric updates via UDP
type UDPServer struct {
	host    string
	port    int
	encoder encoding.Encoder
	log     *zap.Logger
	conn    *net.UDPConn
	clients map[string]*net.UDPAddr
	mu      sync.RWMutex
}

// NewUDPServer creates a new UDP server
func NewUDPServer(host string, port int, encoder encoding.Encoder, log *zap.Logger) *UDPServer {
	if log == nil {
		log = zap.NewNop()
	}
	return &UDPServer{
		host:    host,
		port:    port,
		encoder: encoder,
		log:     log,
		clients: make(map[string]*net.UDPAddr),
	}
}

// Start starts the UDP server
func (s *UDPServer) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.host, s.port))
	if err != nil {
		return fmt.Errorf("failed to resolve address: %w", err)
	}

	s.conn, err = net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.log.Info("udp server listening", zap.String("address", s.GetAddress()))

	go s.readLoop(ctx)

	<-ctx.Done()
	return s.Shutdown()
}

// readLoop listens for client registration packets
func (s *UDPServer) readLoop(ctx context.Context) {
	buf := make([]byte, 1024)
	for {
		select {
		case <-ctx.Done():
			return
		default:
			s.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
			n, addr, err := s.conn.ReadFromUDP(buf)
			if err != nil {
				continue
			}

			msg := string(buf[:n])
			s.handleMessage(msg, addr)
		}
	}
}

func (s *UDPServer) handleMessage(msg string, addr *net.UDPAddr) {
	key := addr.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg {
	case "subscribe":
		s.clients[key] = addr
		s.log.Info("udp client subscribed", zap.String("client", key), zap.Int("total", len(s.clients)))
	case "unsubscribe":
		delete(s.clients, key)
		s.log.Info("udp client unsubscribed", zap.String("client", key), zap.Int("total", len(s.clients)))
	default:
		// Any message registers client
		if _, exists := s.clients[key]; !exists {
			s.clients[key] = addr
			s.log.Info("udp client registered", zap.String("client", key), zap.Int("total", len(s.clients)))
		}
	}
}

// Broadcast sends an update to all registered clients
func (s *UDPServer) Broadcast(update models.MetricsUpdate) error {
	if s.GetClientCount() == 0 {
		return nil
	}

	data, err := s.encoder.Encode(update)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, addr := range s.clients {
		s.conn.WriteToUDP(data, addr)
	}
	return nil
}

// BroadcastFromChannel reads updates and broadcasts them
func (s *UDPServer) BroadcastFromChannel(ctx context.Context, updates <-chan models.MetricsUpdate) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			s.Broadcast(update)
		}
	}
}

// GetClientCount returns registered client count
func (s *UDPServer) GetClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Shutdown closes the UDP connection
func (s *UDPServer) Shutdown() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// GetAddress returns the server address
func (s *UDPServer) GetAddress() string {
	return fmt.Sprintf("udp://%s:%d", s.host, s.port)
}
