// Package synthetic models a statistically plausible RR sequence from BPM
// alone, used as a last-resort beat source when a device exposes neither
// native intervals nor a usable optical waveform.
package synthetic

import (
	"math"
	"math/rand"
)

const (
	// rsaPeriodSeconds and rsaAmplitude shape the breathing-like
	// oscillation applied to the mean interval.
	rsaPeriodSeconds = 4.0
	rsaAmplitude     = 0.03

	// noiseFraction is the Gaussian jitter relative to the mean interval.
	noiseFraction = 0.05

	minIntervalMillis = 300.0
	maxIntervalMillis = 1500.0
)

// Generator produces simulated RR intervals paced by wall-clock time and the
// current heart rate. It is confined to the batch-processor goroutine.
type Generator struct {
	rng         *rand.Rand
	initialized bool
	lastTime    float64 // seconds
}

// NewGenerator creates a generator with the given random seed, so synthetic
// sessions are reproducible.
func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Generate returns the intervals for the beats that elapsed since the last
// call, given the current BPM at time now (seconds). The first call only
// anchors the clock and returns nothing.
func (g *Generator) Generate(bpm int, now float64) []float64 {
	if bpm <= 0 {
		return nil
	}
	if !g.initialized {
		g.initialized = true
		g.lastTime = now
		return nil
	}

	beatDuration := 60.0 / float64(bpm)
	elapsed := now - g.lastTime
	beats := int(elapsed / beatDuration)
	if beats <= 0 {
		return nil
	}

	meanRR := 60000.0 / float64(bpm)
	out := make([]float64, 0, beats)
	for i := 1; i <= beats; i++ {
		t := g.lastTime + float64(i)*beatDuration
		rr := meanRR * (1 + rsaAmplitude*math.Sin(2*math.Pi*t/rsaPeriodSeconds))
		rr += g.rng.NormFloat64() * noiseFraction * meanRR
		out = append(out, clamp(rr, minIntervalMillis, maxIntervalMillis))
	}

	// Advance by whole beats so fractional remainders carry over instead of
	// drifting the rate.
	g.lastTime += float64(beats) * beatDuration
	return out
}

// Reset clears the clock anchor.
func (g *Generator) Reset() {
	g.initialized = false
	g.lastTime = 0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
