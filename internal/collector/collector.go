// Package collector wires the frame decoder, metric components and the
// periodic batch processor into per-device sessions behind a typed observer
// interface. It is the only entry point through which raw transport bytes
// reach the processing core.
package collector

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/synheart/synheart-collector/internal/models"
)

// Collector owns one independent session per connected device. Sessions can
// be created and torn down without affecting each other.
type Collector struct {
	log     *zap.Logger
	battery BatteryReader

	observers registry

	mu       sync.Mutex
	sessions map[string]*Session
}

// New creates a collector. battery may be nil when no transport-side battery
// read is available.
func New(log *zap.Logger, battery BatteryReader) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{
		log:      log,
		battery:  battery,
		sessions: make(map[string]*Session),
	}
}

// Register adds an observer for all sessions.
func (c *Collector) Register(o Observer) {
	c.observers.register(o)
}

// Unregister removes a previously registered observer.
func (c *Collector) Unregister(o Observer) {
	c.observers.unregister(o)
}

// StartSession creates the session for a newly connected device and launches
// its batch processor. It fails if the device already has a session.
func (c *Collector) StartSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	if cfg.DeviceID == "" {
		return nil, fmt.Errorf("collector: device ID is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.sessions[cfg.DeviceID]; exists {
		return nil, fmt.Errorf("collector: session for %s already exists", cfg.DeviceID)
	}

	s := newSession(cfg, &c.observers, c.battery, c.log)
	c.sessions[cfg.DeviceID] = s
	s.start(ctx)

	c.log.Info("session started",
		zap.String("device_id", cfg.DeviceID),
		zap.Bool("optical", cfg.Optical),
		zap.String("run_id", s.RunID()))
	return s, nil
}

// StopSession cancels a device's batch processor, waits for it to exit and
// releases its buffers.
func (c *Collector) StopSession(deviceID string) error {
	c.mu.Lock()
	s, ok := c.sessions[deviceID]
	delete(c.sessions, deviceID)
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("collector: no session for %s", deviceID)
	}

	err := s.stop()
	c.log.Info("session stopped", zap.String("device_id", deviceID))
	return err
}

// Session looks up the live session for a device.
func (c *Collector) Session(deviceID string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[deviceID]
	return s, ok
}

// DeviceIDs returns the devices with live sessions.
func (c *Collector) DeviceIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		out = append(out, id)
	}
	return out
}

// FeedRawFrame is the input boundary: it routes one raw notification payload
// to the owning session. It never blocks and silently ignores frames for
// unknown devices or of unknown kinds.
func (c *Collector) FeedRawFrame(deviceID string, kind models.FrameKind, data []byte) {
	c.mu.Lock()
	s, ok := c.sessions[deviceID]
	c.mu.Unlock()

	if !ok {
		c.log.Debug("dropping frame for unknown device", zap.String("device_id", deviceID))
		return
	}
	s.Feed(kind, data)
}

// SetDeviceInfo stores the one-time device information read for a device.
func (c *Collector) SetDeviceInfo(deviceID string, info models.DeviceInfo) {
	c.mu.Lock()
	s, ok := c.sessions[deviceID]
	c.mu.Unlock()

	if ok {
		s.SetDeviceInfo(info)
	}
}

// Close stops every session.
func (c *Collector) Close() error {
	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.sessions = make(map[string]*Session)
	c.mu.Unlock()

	var firstErr error
	for _, s := range sessions {
		if err := s.stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
