package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/synheart/synheart-collector/internal/encoding"
	"github.com/synheart/synheart-collector/internal/models"
)

// NATSPublisher publishes metric updates to a NATS subject per device.
type NATSPublisher struct {
	url     string
	prefix  string
	encoder encoding.Encoder
	log     *zap.Logger
	conn    *nats.Conn
}

// NewNATSPublisher creates a publisher for subjects of the form
// <prefix>.<device_id>.
func NewNATSPublisher(url, prefix string, encoder encoding.Encoder, log *zap.Logger) *NATSPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	if prefix == "" {
		prefix = "synheart.metrics"
	}
	return &NATSPublisher{
		url:     url,
		prefix:  prefix,
		encoder: encoder,
		log:     log,
	}
}

// Connect dials the NATS server. Reconnects are handled by the client
// indefinitely once the initial dial succeeds.
func (p *NATSPublisher) Connect() error {
	conn, err := nats.Connect(
		p.url,
		nats.Name("synheart-collector"),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", p.url, err)
	}
	p.conn = conn
	p.log.Info("nats publisher connected", zap.String("url", p.url), zap.String("prefix", p.prefix))
	return nil
}

// Publish sends one update to its device subject.
func (p *NATSPublisher) Publish(update models.MetricsUpdate) error {
	if p.conn == nil {
		return fmt.Errorf("nats publisher is not connected")
	}

	data, err := p.encoder.Encode(update)
	if err != nil {
		return fmt.Errorf("failed to encode update: %w", err)
	}
	return p.conn.Publish(fmt.Sprintf("%s.%s", p.prefix, update.DeviceID), data)
}

// PublishFromChannel reads updates and publishes them until ctx is cancelled
// or the channel closes.
func (p *NATSPublisher) PublishFromChannel(ctx context.Context, updates <-chan models.MetricsUpdate) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if err := p.Publish(update); err != nil {
				p.log.Warn("publish error", zap.Error(err))
			}
		}
	}
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Drain()
		p.conn = nil
	}
}
