// Package metrics maintains the rolling BPM and RR windows for one device
// and derives the summary statistics reported on every metrics update. It is
// not safe for concurrent use; the batch processor is its only caller.
package metrics

import (
	"math"

	"github.com/synheart/synheart-collector/internal/decode"
	"github.com/synheart/synheart-collector/internal/dsp"
	"github.com/synheart/synheart-collector/internal/models"
	"github.com/synheart/synheart-collector/internal/ring"
)

// Default rolling window capacities.
const (
	DefaultBPMCapacity = 50
	DefaultRRCapacity  = 100
)

// Aggregator accumulates validated BPM and RR samples and computes their
// rolling statistics on demand.
type Aggregator struct {
	bpm *ring.Buffer[int]
	rr  *ring.Buffer[float64]

	current    int
	sessionMin int // 0 means unset
	sessionMax int
}

// NewAggregator creates an aggregator with the given window capacities.
// Non-positive capacities fall back to the defaults.
func NewAggregator(bpmCap, rrCap int) *Aggregator {
	if bpmCap <= 0 {
		bpmCap = DefaultBPMCapacity
	}
	if rrCap <= 0 {
		rrCap = DefaultRRCapacity
	}
	return &Aggregator{
		bpm: ring.New[int](bpmCap),
		rr:  ring.New[float64](rrCap),
	}
}

// RecordBPM pushes one heart-rate sample. Values outside the physiological
// range are rejected. Session min/max widen monotonically and survive buffer
// eviction.
func (a *Aggregator) RecordBPM(v int) bool {
	if v < decode.MinBPM || v > decode.MaxBPM {
		return false
	}

	a.bpm.Push(v)
	a.current = v

	if a.sessionMin == 0 || v < a.sessionMin {
		a.sessionMin = v
	}
	if v > a.sessionMax {
		a.sessionMax = v
	}
	return true
}

// RecordRR pushes a batch of RR intervals in milliseconds, rejecting each
// out-of-range value individually. It returns the number of accepted values.
func (a *Aggregator) RecordRR(vs []float64) int {
	accepted := 0
	for _, v := range vs {
		if v < decode.MinRRMillis || v > decode.MaxRRMillis {
			continue
		}
		a.rr.Push(v)
		accepted++
	}
	return accepted
}

// Snapshot computes the current BPM and RR statistics from the rolling
// buffers.
func (a *Aggregator) Snapshot() (models.BPMMetrics, models.RRMetrics) {
	var bm models.BPMMetrics
	bm.Current = a.current
	bm.SessionMin = a.sessionMin
	bm.SessionMax = a.sessionMax

	if n := a.bpm.Len(); n > 0 {
		sum := 0
		bm.Min = a.bpm.At(0)
		bm.Max = a.bpm.At(0)
		for i := 0; i < n; i++ {
			v := a.bpm.At(i)
			sum += v
			if v < bm.Min {
				bm.Min = v
			}
			if v > bm.Max {
				bm.Max = v
			}
		}
		bm.Mean = float64(sum) / float64(n)
	}

	var rm models.RRMetrics
	rm.Count = a.rr.Len()
	if last, ok := a.rr.Last(); ok {
		rm.LastRR = last
	}
	if rm.Count > 0 {
		items := a.rr.Items()
		rm.MeanRR = dsp.Mean(items)
		rm.RMSSD = rmssd(items)
	}
	return bm, rm
}

// Reset clears both rolling buffers and the session range.
func (a *Aggregator) Reset() {
	a.bpm.Clear()
	a.rr.Clear()
	a.current = 0
	a.sessionMin = 0
	a.sessionMax = 0
}

// rmssd is the root mean square of successive differences, computed over the
// entire current window each time rather than incrementally, so it tracks
// the full rolling window smoothly.
func rmssd(rr []float64) float64 {
	if len(rr) < 2 {
		return 0
	}
	var ss float64
	for i := 1; i < len(rr); i++ {
		d := rr[i] - rr[i-1]
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(rr)-1))
}
