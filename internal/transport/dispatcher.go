package transport

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/synheart/synheart-collector/internal/models"
)

// Dispatcher copies metric updates from one source to multiple subscribers.
// When a subscriber's buffer is full, updates are dropped to avoid blocking
// the batch processor. Dropped updates are logged and counted for monitoring.
type Dispatcher struct {
	source       <-chan models.MetricsUpdate
	subscribers  []chan models.MetricsUpdate
	bufferSize   int
	log          *zap.Logger
	mu           sync.Mutex
	droppedTotal int64 // atomic counter for total dropped updates
}

func NewDispatcher(source <-chan models.MetricsUpdate, bufferSize int, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		source:      source,
		subscribers: make([]chan models.MetricsUpdate, 0),
		bufferSize:  bufferSize,
		log:         log,
	}
}

// Subscribe returns a channel that receives copies of all source updates.
// Each subscriber gets its own buffered channel with the configured buffer size.
// Subscribers should be added before calling Run() to ensure they receive all updates.
func (d *Dispatcher) Subscribe() <-chan models.MetricsUpdate {
	ch := make(chan models.MetricsUpdate, d.bufferSize)
	d.mu.Lock()
	d.subscribers = append(d.subscribers, ch)
	d.mu.Unlock()
	return ch
}

// GetSubscriberCount returns the current number of active subscribers.
func (d *Dispatcher) GetSubscriberCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subscribers)
}

// GetDroppedCount returns the total number of updates that were dropped
// due to subscriber buffers being full. This counter is thread-safe.
func (d *Dispatcher) GetDroppedCount() int64 {
	return atomic.LoadInt64(&d.droppedTotal)
}

// Run blocks until ctx is cancelled or source closes
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.closeSubscribers()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-d.source:
			if !ok {
				return
			}
			d.dispatch(update, ctx)
		}
	}
}

func (d *Dispatcher) dispatch(update models.MetricsUpdate, ctx context.Context) {
	d.mu.Lock()
	subs := d.subscribers // Copy slice reference to minimize lock time
	d.mu.Unlock()

	dropped := 0
	for _, sub := range subs {
		select {
		case sub <- update:
			// Successfully sent
		case <-ctx.Done():
			return
		default:
			// Buffer full - drop update to prevent blocking the processor
			dropped++
			atomic.AddInt64(&d.droppedTotal, 1)
		}
	}

	if dropped > 0 {
		d.log.Warn("dropped update for slow subscribers",
			zap.String("update_id", update.UpdateID),
			zap.Int("subscribers", dropped))
	}
}

func (d *Dispatcher) closeSubscribers() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, sub := range d.subscribers {
		close(sub)
	}
}
