package transport

import (
	"github.com/synheart/synheart-collector/internal/models"
)

// Bridge adapts the collector's observer callbacks to the channel source the
// Dispatcher consumes. Updates are dropped when the channel is full so the
// batch processor is never blocked by delivery.
type Bridge struct {
	ch chan models.MetricsUpdate
}

func NewBridge(bufferSize int) *Bridge {
	return &Bridge{ch: make(chan models.MetricsUpdate, bufferSize)}
}

// Updates is the channel to hand to NewDispatcher.
func (b *Bridge) Updates() <-chan models.MetricsUpdate {
	return b.ch
}

func (b *Bridge) OnMetrics(deviceID string, update models.MetricsUpdate) {
	select {
	case b.ch <- update:
	default:
	}
}

func (b *Bridge) OnStatus(deviceID string, status models.DeviceStatus) {}

func (b *Bridge) OnDeviceInfo(deviceID string, info models.DeviceInfo) {}

// Close closes the source channel, ending the Dispatcher's Run loop.
func (b *Bridge) Close() {
	close(b.ch)
}
