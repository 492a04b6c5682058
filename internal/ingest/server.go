// Package ingest exposes an HTTP endpoint that accepts raw frame batches
// from remote bridges and feeds them into the collector.
package ingest

import (
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/synheart/synheart-collector/internal/models"
)

// Config holds the ingest server configuration
type Config struct {
	Host       string
	Port       int
	Token      string
	AcceptGzip bool
}

// FrameSink receives decoded ingest payloads. The collector satisfies this.
type FrameSink interface {
	FeedRawFrame(deviceID string, kind models.FrameKind, data []byte)
}

// Frame is one raw notification payload in an ingest request.
type Frame struct {
	Kind string `json:"kind"`
	Data string `json:"data"` // base64-encoded raw bytes
}

// Request is the ingest request body.
type Request struct {
	DeviceID string  `json:"device_id"`
	Frames   []Frame `json:"frames"`
}

// Server is the HTTP ingest server
type Server struct {
	config Config
	sink   FrameSink
	log    *zap.Logger
	server *http.Server
	mu     sync.RWMutex
	stats  Stats
}

// Stats holds server statistics
type Stats struct {
	TotalRequests int
	TotalFrames   int
	TotalRejected int
	TotalErrors   int
}

// NewServer creates a new ingest server
func NewServer(config Config, sink FrameSink, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		config: config,
		sink:   sink,
		log:    log,
	}
}

// Start starts the ingest server
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/frames", s.handleFrames)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("ingest server listening", zap.String("address", s.GetAddress()))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

// GetAddress returns the server address
func (s *Server) GetAddress() string {
	return fmt.Sprintf("http://%s:%d", s.config.Host, s.config.Port)
}

// GetStats returns current server statistics
func (s *Server) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service":  "synheart-collector",
		"endpoint": "/v1/frames",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if !s.validateAuth(r) {
		s.countError()
		s.writeError(w, http.StatusUnauthorized, "invalid or missing authorization token")
		return
	}

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		s.countError()
		s.writeError(w, http.StatusBadRequest, "Content-Type must be application/json")
		return
	}

	body, err := s.readBody(r)
	if err != nil {
		s.countError()
		s.writeError(w, http.StatusBadRequest, "failed to read request body: "+err.Error())
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.countError()
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.DeviceID == "" {
		s.countError()
		s.writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}

	accepted, rejected := 0, 0
	for _, f := range req.Frames {
		kind := models.FrameKind(f.Kind)
		if !kind.Valid() {
			rejected++
			continue
		}
		data, err := base64.StdEncoding.DecodeString(f.Data)
		if err != nil {
			rejected++
			continue
		}
		s.sink.FeedRawFrame(req.DeviceID, kind, data)
		accepted++
	}

	s.mu.Lock()
	s.stats.TotalRequests++
	s.stats.TotalFrames += accepted
	s.stats.TotalRejected += rejected
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"accepted": accepted,
		"rejected": rejected,
	})
}

func (s *Server) validateAuth(r *http.Request) bool {
	if s.config.Token == "" {
		return true
	}
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return false
	}

	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return false
	}

	return parts[1] == s.config.Token
}

func (s *Server) readBody(r *http.Request) ([]byte, error) {
	var reader io.Reader = r.Body

	if s.config.AcceptGzip && r.Header.Get("Content-Encoding") == "gzip" {
		gzReader, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress gzip: %w", err)
		}
		defer gzReader.Close()
		reader = gzReader
	}

	// Limit body size to 10MB
	limitReader := io.LimitReader(reader, 10*1024*1024)
	return io.ReadAll(limitReader)
}

func (s *Server) countError() {
	s.mu.Lock()
	s.stats.TotalErrors++
	s.mu.Unlock()
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
