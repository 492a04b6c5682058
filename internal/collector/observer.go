package collector

import (
	"sync"

	"github.com/synheart/synheart-collector/internal/models"
)

// Observer receives collector notifications. Implementations must not block:
// callbacks run on the batch-processor goroutine of the originating session.
type Observer interface {
	// OnMetrics is invoked after every batch-processor cycle that produced
	// new data.
	OnMetrics(deviceID string, update models.MetricsUpdate)

	// OnStatus is invoked when a device's connection status changes.
	OnStatus(deviceID string, status models.DeviceStatus)

	// OnDeviceInfo is invoked once per session after the one-time device
	// information read is stored.
	OnDeviceInfo(deviceID string, info models.DeviceInfo)
}

// BatteryReader performs the transport-side battery level read scheduled by
// the batch processor every 30 seconds.
type BatteryReader interface {
	ReadBattery(deviceID string) (uint8, error)
}

// registry is the shared observer list. Registration and notification may
// happen from different goroutines.
type registry struct {
	mu        sync.RWMutex
	observers []Observer
}

func (r *registry) register(o Observer) {
	r.mu.Lock()
	r.observers = append(r.observers, o)
	r.mu.Unlock()
}

func (r *registry) unregister(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.observers {
		if existing == o {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			return
		}
	}
}

func (r *registry) snapshot() []Observer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Observer, len(r.observers))
	copy(out, r.observers)
	return out
}

func (r *registry) notifyMetrics(deviceID string, update models.MetricsUpdate) {
	for _, o := range r.snapshot() {
		o.OnMetrics(deviceID, update)
	}
}

func (r *registry) notifyStatus(deviceID string, status models.DeviceStatus) {
	for _, o := range r.snapshot() {
		o.OnStatus(deviceID, status)
	}
}

func (r *registry) notifyDeviceInfo(deviceID string, info models.DeviceInfo) {
	for _, o := range r.snapshot() {
		o.OnDeviceInfo(deviceID, info)
	}
}
