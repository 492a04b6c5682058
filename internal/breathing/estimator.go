// Package breathing estimates respiration rate from the beat-to-beat
// interval series by exploiting respiratory sinus arrhythmia: the breathing
// cycle modulates instantaneous heart period, so cycles in the detrended RR
// series track breaths.
package breathing

import (
	"math"

	"github.com/synheart/synheart-collector/internal/dsp"
	"github.com/synheart/synheart-collector/internal/models"
	"github.com/synheart/synheart-collector/internal/ring"
)

const (
	// calculationInterval throttles recomputation; calls inside the window
	// return the cached result unchanged.
	calculationInterval = 3.0 // seconds

	// breathingWindow bounds how far back RR samples contribute.
	breathingWindow = 30.0 // seconds

	minSamples = 8

	savgolWindow = 15
	savgolOrder  = 3
	maWindow     = 5

	minCycleSeconds = 2.0
	maxCycleSeconds = 12.0

	minRateRPM = 5.0
	maxRateRPM = 30.0

	rrWindowCapacity = 200
	historyCapacity  = 10
)

// Estimator holds the time-stamped RR window and the cached breathing
// estimate for one device. It is confined to the batch-processor goroutine.
type Estimator struct {
	rr         *ring.Buffer[float64]
	timestamps *ring.Buffer[float64]
	history    *ring.Buffer[float64]

	lastCalculation float64
	current         models.BreathingMetrics
}

// NewEstimator creates an estimator with default window capacities.
func NewEstimator() *Estimator {
	return &Estimator{
		rr:              ring.New[float64](rrWindowCapacity),
		timestamps:      ring.New[float64](rrWindowCapacity),
		history:         ring.New[float64](historyCapacity),
		lastCalculation: math.Inf(-1),
		current:         models.BreathingMetrics{Quality: models.QualityUnknown},
	}
}

// Current returns the cached breathing estimate.
func (e *Estimator) Current() models.BreathingMetrics {
	return e.current
}

// SetExternalEstimate overwrites the reported rate and quality with an
// estimate produced outside the RSA path (the optical pipeline's spectral
// estimate). Last writer wins; the two methods are never blended.
func (e *Estimator) SetExternalEstimate(rpm float64, quality models.BreathingQuality) {
	e.current.Frequency = rpm
	e.current.Quality = quality
}

// AddRRIntervals records a batch of RR intervals (milliseconds) received at
// batchTimestamp (seconds). Individual beats are dated by walking backward
// from the batch timestamp using the interval durations themselves, which
// keeps relative timing self-consistent within the batch. The returned
// metrics are recomputed at most once per calculationInterval.
func (e *Estimator) AddRRIntervals(values []float64, batchTimestamp float64) models.BreathingMetrics {
	if len(values) > 0 {
		// Walk backward: the last interval ends at the batch timestamp.
		offsets := make([]float64, len(values))
		var acc float64
		for i := len(values) - 1; i >= 0; i-- {
			offsets[i] = acc
			acc += values[i] / 1000.0
		}
		for i, v := range values {
			e.rr.Push(v)
			e.timestamps.Push(batchTimestamp - offsets[i])
		}
	}

	if batchTimestamp-e.lastCalculation < calculationInterval {
		return e.current
	}
	e.lastCalculation = batchTimestamp

	e.calculate(batchTimestamp)
	return e.current
}

// calculate runs one RSA analysis pass over the trailing breathing window.
// Numerical failures degrade to the last good estimate with quality "error"
// and never propagate to the caller.
func (e *Estimator) calculate(now float64) {
	defer func() {
		if r := recover(); r != nil {
			e.current.Quality = models.QualityError
		}
	}()

	rr, ts := e.windowSince(now - breathingWindow)
	if len(rr) < minSamples {
		e.current.Quality = models.QualityInsufficientData
		return
	}

	detrended := dsp.Detrend(rr)

	var smoothed []float64
	if len(detrended) >= savgolWindow {
		s, err := dsp.SavitzkyGolay(detrended, savgolWindow, savgolOrder)
		if err != nil {
			e.current.Quality = models.QualityError
			return
		}
		smoothed = s
	} else {
		w := maWindow
		if w > len(detrended) {
			w = len(detrended)
		}
		smoothed = dsp.MovingAverage(detrended, w)
	}

	e.current.Amplitude = dsp.StdDev(smoothed)

	rate, ok := cycleRate(smoothed, ts)
	quality, variability := assessSignalQuality(smoothed, ts)
	e.current.VariabilityPercent = variability

	if !ok {
		e.current.Quality = quality
		return
	}

	if rate < minRateRPM || rate > maxRateRPM {
		e.current.Quality = models.QualityOutOfRange
		return
	}

	e.history.Push(rate)
	e.current.Frequency = weightedRate(e.history.Items())
	e.current.Quality = quality
}

// windowSince returns the RR values and timestamps newer than cutoff.
func (e *Estimator) windowSince(cutoff float64) (rr, ts []float64) {
	n := e.rr.Len()
	for i := 0; i < n; i++ {
		t := e.timestamps.At(i)
		if t < cutoff {
			continue
		}
		rr = append(rr, e.rr.At(i))
		ts = append(ts, t)
	}
	return rr, ts
}

// cycleRate derives breaths per minute from zero crossings of the smoothed
// series. Alternating crossings bound half-cycles, so the span between
// crossing i and crossing i+2 is one full cycle. The median cycle duration
// is used for outlier robustness.
func cycleRate(smoothed, ts []float64) (float64, bool) {
	var crossings []int
	for i := 1; i < len(smoothed); i++ {
		if (smoothed[i-1] < 0 && smoothed[i] >= 0) || (smoothed[i-1] >= 0 && smoothed[i] < 0) {
			crossings = append(crossings, i)
		}
	}

	var durations []float64
	for i := 0; i+2 < len(crossings); i++ {
		d := ts[crossings[i+2]] - ts[crossings[i]]
		if d >= minCycleSeconds && d <= maxCycleSeconds {
			durations = append(durations, d)
		}
	}
	if len(durations) == 0 {
		return 0, false
	}

	return 60.0 / dsp.Median(durations), true
}

// weightedRate averages the rate history with linearly increasing weights
// from 0.5 (oldest) to 1.0 (newest), damping single-window noise while
// staying responsive.
func weightedRate(history []float64) float64 {
	n := len(history)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return history[0]
	}

	var sum, wsum float64
	for i, v := range history {
		w := 0.5 + 0.5*float64(i)/float64(n-1)
		sum += w * v
		wsum += w
	}
	return sum / wsum
}

// assessSignalQuality grades the smoothed series by the regularity of its
// oscillation: the coefficient of variation of inter-peak intervals.
func assessSignalQuality(smoothed, ts []float64) (models.BreathingQuality, float64) {
	peaks := dsp.FindPeaks(smoothed, 0, 0)
	valleys := dsp.FindValleys(smoothed)
	if len(peaks) < 2 || len(valleys) < 2 {
		return models.QualityPoor, 0
	}

	intervals := make([]float64, 0, len(peaks)-1)
	for i := 1; i < len(peaks); i++ {
		intervals = append(intervals, ts[peaks[i]]-ts[peaks[i-1]])
	}

	mean := dsp.Mean(intervals)
	if mean == 0 {
		return models.QualityPoor, 0
	}
	cv := dsp.StdDev(intervals) / mean

	switch {
	case cv < 0.20:
		return models.QualityExcellent, cv * 100
	case cv < 0.35:
		return models.QualityGood, cv * 100
	case cv < 0.50:
		return models.QualityFair, cv * 100
	default:
		return models.QualityPoor, cv * 100
	}
}

// Reset clears all buffers and cached state; called on disconnect.
func (e *Estimator) Reset() {
	e.rr.Clear()
	e.timestamps.Clear()
	e.history.Clear()
	e.lastCalculation = math.Inf(-1)
	e.current = models.BreathingMetrics{Quality: models.QualityUnknown}
}
