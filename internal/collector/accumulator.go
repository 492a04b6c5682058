package collector

import (
	"sync"

	"github.com/synheart/synheart-collector/internal/models"
)

// batch is one drained set of decoded samples, processed in reception order.
type batch struct {
	bpm   []int
	rr    []float64
	ppg   []int16
	accel []models.AccelSample
}

func (b batch) empty() bool {
	return len(b.bpm) == 0 && len(b.rr) == 0 && len(b.ppg) == 0 && len(b.accel) == 0
}

// accumulator is the single shared-mutable-state boundary between the
// notification callback and the batch processor. All other session state is
// confined to the processor goroutine.
type accumulator struct {
	mu      sync.Mutex
	pending batch
}

func (a *accumulator) addBPM(v int) {
	a.mu.Lock()
	a.pending.bpm = append(a.pending.bpm, v)
	a.mu.Unlock()
}

func (a *accumulator) addRR(vs []float64) {
	if len(vs) == 0 {
		return
	}
	a.mu.Lock()
	a.pending.rr = append(a.pending.rr, vs...)
	a.mu.Unlock()
}

func (a *accumulator) addPPG(vs []int16) {
	if len(vs) == 0 {
		return
	}
	a.mu.Lock()
	a.pending.ppg = append(a.pending.ppg, vs...)
	a.mu.Unlock()
}

func (a *accumulator) addAccel(s models.AccelSample) {
	a.mu.Lock()
	a.pending.accel = append(a.pending.accel, s)
	a.mu.Unlock()
}

// drain atomically swaps out and returns everything accumulated so far.
func (a *accumulator) drain() batch {
	a.mu.Lock()
	out := a.pending
	a.pending = batch{}
	a.mu.Unlock()
	return out
}
