// Package ppg turns the raw optical waveform of a PPG sensor into derived
// RR intervals (an alternative beat source when the device reports none) and
// an independent spectral breathing-rate estimate from beat-amplitude
// variation.
package ppg

import (
	"github.com/synheart/synheart-collector/internal/dsp"
	"github.com/synheart/synheart-collector/internal/ring"
)

const (
	// DefaultSampleRate is the native optical sample rate of the supported
	// devices.
	DefaultSampleRate = 135.0

	bufferSeconds  = 2.0 // raw sample window
	minProcessSecs = 1.0 // minimum buffered audio before a run
	runInterval    = 2.0 // seconds between processing runs

	cardiacLowHz  = 0.7
	cardiacHighHz = 4.0
	filterOrder   = 3

	maxHeartRateBPM  = 200.0
	prominenceFactor = 0.3

	minDerivedRRMillis = 300.0
	maxDerivedRRMillis = 1500.0

	respLowHz  = 0.1
	respHighHz = 0.5
	minRespRPM = 6.0
	maxRespRPM = 30.0

	// Peak amplitudes are accumulated across runs so the respiratory band
	// (2-10 second periods) is observable at all.
	amplitudeHistory  = 60
	minAmplitudePeaks = 16
)

// Result is the outcome of one processing run.
type Result struct {
	// RRIntervals are newly derived beat intervals in milliseconds.
	RRIntervals []float64

	// BreathingRPM is the spectral breathing estimate; valid only when
	// HasBreathing is true.
	BreathingRPM float64
	HasBreathing bool
}

// Pipeline buffers raw optical samples for one device and processes them on
// a rate-limited cadence. It is confined to the batch-processor goroutine.
type Pipeline struct {
	sampleRate float64
	samples    *ring.Buffer[float64]

	peakAmps  *ring.Buffer[float64]
	peakTimes *ring.Buffer[float64]

	totalSamples int64   // samples ever pushed, for absolute timing
	lastRun      float64 // -inf until the first run
	lastPeakTime float64 // newest peak already converted to RR
}

// NewPipeline creates a pipeline for the given native sample rate.
// Non-positive rates fall back to the default.
func NewPipeline(sampleRate float64) *Pipeline {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Pipeline{
		sampleRate: sampleRate,
		samples:    ring.New[float64](int(sampleRate * bufferSeconds)),
		peakAmps:   ring.New[float64](amplitudeHistory),
		peakTimes:  ring.New[float64](amplitudeHistory),
		lastRun:    -runInterval,
	}
}

// AddSamples appends decoded waveform samples, dropping the oldest on
// overflow.
func (p *Pipeline) AddSamples(samples []int16) {
	for _, s := range samples {
		p.samples.Push(float64(s))
		p.totalSamples++
	}
}

// SampleCount returns the number of currently buffered samples.
func (p *Pipeline) SampleCount() int {
	return p.samples.Len()
}

// Process runs one filtering/peak-detection pass if enough samples have
// accumulated and the rate limit allows. now is in seconds. Numerical
// failures degrade to an empty result and never propagate.
func (p *Pipeline) Process(now float64) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{}
		}
	}()

	if float64(p.samples.Len()) < p.sampleRate*minProcessSecs {
		return res
	}
	if now-p.lastRun < runInterval {
		return res
	}
	p.lastRun = now

	raw := p.samples.Items()

	b, a, err := dsp.ButterBandpass(filterOrder, cardiacLowHz, cardiacHighHz, p.sampleRate)
	if err != nil {
		return res
	}
	filtered, err := dsp.FiltFilt(b, a, raw)
	if err != nil {
		return res
	}

	minDistance := int(p.sampleRate * 60.0 / maxHeartRateBPM)
	prominence := prominenceFactor * dsp.StdDev(filtered)
	peaks := dsp.FindPeaks(filtered, minDistance, prominence)

	// Absolute time of the oldest buffered sample.
	windowStart := float64(p.totalSamples-int64(len(raw))) / p.sampleRate

	if len(peaks) > 2 {
		res.RRIntervals = p.deriveRR(peaks, windowStart)
	}

	for _, pk := range peaks {
		p.peakAmps.Push(filtered[pk])
		p.peakTimes.Push(windowStart + float64(pk)/p.sampleRate)
	}

	if rpm, ok := p.breathingEstimate(); ok {
		res.BreathingRPM = rpm
		res.HasBreathing = true
	}

	return res
}

// deriveRR converts consecutive peak spacings to RR intervals, emitting only
// intervals that end after the last already emitted peak so overlapping
// windows do not double-report beats.
func (p *Pipeline) deriveRR(peaks []int, windowStart float64) []float64 {
	var out []float64
	for i := 1; i < len(peaks); i++ {
		endTime := windowStart + float64(peaks[i])/p.sampleRate
		if endTime <= p.lastPeakTime {
			continue
		}
		ms := float64(peaks[i]-peaks[i-1]) / p.sampleRate * 1000.0
		if ms >= minDerivedRRMillis && ms <= maxDerivedRRMillis {
			out = append(out, ms)
		}
	}
	if len(peaks) > 0 {
		t := windowStart + float64(peaks[len(peaks)-1])/p.sampleRate
		if t > p.lastPeakTime {
			p.lastPeakTime = t
		}
	}
	return out
}

// breathingEstimate runs the respiratory-band spectral analysis over the
// accumulated peak-amplitude series, sampled at the observed peak arrival
// rate.
func (p *Pipeline) breathingEstimate() (float64, bool) {
	if p.peakAmps.Len() < minAmplitudePeaks {
		return 0, false
	}
	amps := p.peakAmps.Items()
	times := p.peakTimes.Items()

	span := times[len(times)-1] - times[0]
	if span <= 0 {
		return 0, false
	}
	effRate := float64(len(times)-1) / span

	series := dsp.Detrend(amps)

	// Isolate the respiratory band when the peak rate supports it; with a
	// slow pulse the Welch band selection below does the narrowing alone.
	if respHighHz < effRate/2 {
		if b, a, err := dsp.ButterBandpass(filterOrder, respLowHz, respHighHz, effRate); err == nil {
			if f, err := dsp.FiltFilt(b, a, series); err == nil {
				series = f
			}
		}
	}

	nperseg := len(series)
	if nperseg > 32 {
		nperseg = 32
	}
	freqs, psd, err := dsp.Welch(series, effRate, nperseg)
	if err != nil {
		return 0, false
	}

	f, ok := dsp.DominantFrequency(freqs, psd, respLowHz, respHighHz)
	if !ok {
		return 0, false
	}

	rpm := f * 60.0
	if rpm < minRespRPM || rpm > maxRespRPM {
		return 0, false
	}
	return rpm, true
}

// Reset clears all buffers and timing state.
func (p *Pipeline) Reset() {
	p.samples.Clear()
	p.peakAmps.Clear()
	p.peakTimes.Clear()
	p.totalSamples = 0
	p.lastRun = -runInterval
	p.lastPeakTime = 0
}

// ValidDerivedRR reports whether ms lies in the accepted range for
// PPG-derived intervals. Exposed for the accumulation boundary, which uses
// the same bounds for synthetic intervals.
func ValidDerivedRR(ms float64) bool {
	return ms >= minDerivedRRMillis && ms <= maxDerivedRRMillis
}
