package dsp

import (
	"math"
	"testing"
)

func sine(freq, sampleRate float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / sampleRate)
	}
	return out
}

func TestMeanAndStdDev(t *testing.T) {
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	if m := Mean(xs); math.Abs(m-5) > 1e-12 {
		t.Errorf("expected mean 5, got %f", m)
	}
	if s := StdDev(xs); math.Abs(s-2) > 1e-12 {
		t.Errorf("expected population stddev 2, got %f", s)
	}
	if StdDev(nil) != 0 || Mean(nil) != 0 {
		t.Error("empty input must yield 0")
	}
}

func TestMedian(t *testing.T) {
	if m := Median([]float64{5, 1, 3}); m != 3 {
		t.Errorf("odd length: expected 3, got %f", m)
	}
	if m := Median([]float64{4, 1, 3, 2}); m != 2.5 {
		t.Errorf("even length: expected 2.5, got %f", m)
	}
	// Median must be robust to one outlier.
	if m := Median([]float64{3, 3, 3, 3, 100}); m != 3 {
		t.Errorf("outlier: expected 3, got %f", m)
	}
}

func TestDetrend(t *testing.T) {
	out := Detrend([]float64{10, 20, 30})
	want := []float64{-10, 0, 10}
	for i := range want {
		if math.Abs(out[i]-want[i]) > 1e-12 {
			t.Errorf("index %d: expected %f, got %f", i, want[i], out[i])
		}
	}
}

func TestSavitzkyGolayPreservesPolynomial(t *testing.T) {
	// A cubic is reproduced exactly by an order-3 fit.
	xs := make([]float64, 40)
	for i := range xs {
		x := float64(i)
		xs[i] = 0.01*x*x*x - 0.3*x*x + 2*x - 5
	}

	out, err := SavitzkyGolay(xs, 15, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range xs {
		if math.Abs(out[i]-xs[i]) > 1e-6 {
			t.Fatalf("index %d: expected %f, got %f", i, xs[i], out[i])
		}
	}
}

func TestSavitzkyGolayReducesNoise(t *testing.T) {
	clean := sine(0.25, 10, 100)
	noisy := make([]float64, len(clean))
	for i := range noisy {
		// Deterministic pseudo-noise.
		noisy[i] = clean[i] + 0.2*math.Sin(123.456*float64(i))
	}

	out, err := SavitzkyGolay(noisy, 15, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var before, after float64
	for i := range clean {
		before += (noisy[i] - clean[i]) * (noisy[i] - clean[i])
		after += (out[i] - clean[i]) * (out[i] - clean[i])
	}
	if after >= before {
		t.Errorf("smoothing did not reduce error: before=%f after=%f", before, after)
	}
}

func TestSavitzkyGolayWindowTooSmall(t *testing.T) {
	if _, err := SavitzkyGolay([]float64{1, 2, 3}, 3, 3); err == nil {
		t.Error("expected error when window does not exceed order")
	}
}

func TestMovingAverageConstant(t *testing.T) {
	xs := []float64{5, 5, 5, 5, 5, 5}
	out := MovingAverage(xs, 5)
	for i, v := range out {
		if math.Abs(v-5) > 1e-12 {
			t.Errorf("index %d: expected 5, got %f", i, v)
		}
	}
}

func TestButterBandpassSelectivity(t *testing.T) {
	const fs = 135.0
	b, a, err := ButterBandpass(3, 0.7, 4.0, fs)
	if err != nil {
		t.Fatalf("design failed: %v", err)
	}
	if len(b) != 7 || len(a) != 7 {
		t.Fatalf("expected 7 coefficients for order 3 bandpass, got %d/%d", len(b), len(a))
	}

	inBand := sine(2.0, fs, 1350)    // cardiac band
	outBand := sine(20.0, fs, 1350)  // well above band
	baseline := sine(0.05, fs, 1350) // slow drift below band

	for _, tc := range []struct {
		name     string
		input    []float64
		passband bool
	}{
		{"in-band 2 Hz", inBand, true},
		{"out-of-band 20 Hz", outBand, false},
		{"drift 0.05 Hz", baseline, false},
	} {
		out, err := FiltFilt(b, a, tc.input)
		if err != nil {
			t.Fatalf("%s: filtfilt failed: %v", tc.name, err)
		}
		// Compare RMS over the central part, away from edges.
		rms := StdDev(out[200:1150])
		if tc.passband && rms < 0.5 {
			t.Errorf("%s: expected signal mostly preserved, rms=%f", tc.name, rms)
		}
		if !tc.passband && rms > 0.1 {
			t.Errorf("%s: expected strong attenuation, rms=%f", tc.name, rms)
		}
	}
}

func TestFiltFiltZeroPhase(t *testing.T) {
	const fs = 135.0
	b, a, err := ButterBandpass(3, 0.7, 4.0, fs)
	if err != nil {
		t.Fatalf("design failed: %v", err)
	}

	in := sine(2.0, fs, 1350)
	out, err := FiltFilt(b, a, in)
	if err != nil {
		t.Fatalf("filtfilt failed: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("length changed: %d -> %d", len(in), len(out))
	}

	// Zero-phase filtering keeps in-band peaks aligned with the input.
	inPeaks := FindPeaks(in[200:1150], 10, 0.5)
	outPeaks := FindPeaks(out[200:1150], 10, 0.1)
	if len(inPeaks) == 0 || len(inPeaks) != len(outPeaks) {
		t.Fatalf("peak count mismatch: %d vs %d", len(inPeaks), len(outPeaks))
	}
	for i := range inPeaks {
		if d := inPeaks[i] - outPeaks[i]; d < -1 || d > 1 {
			t.Errorf("peak %d shifted by %d samples", i, d)
		}
	}
}

func TestFiltFiltTooShort(t *testing.T) {
	b, a, _ := ButterBandpass(3, 0.7, 4.0, 135)
	if _, err := FiltFilt(b, a, make([]float64, 10)); err == nil {
		t.Error("expected error for input shorter than pad length")
	}
}

func TestFindPeaksDistanceAndProminence(t *testing.T) {
	// Two tall peaks 20 apart with a small bump in between.
	xs := make([]float64, 50)
	xs[10] = 1.0
	xs[15] = 0.1
	xs[30] = 0.9

	peaks := FindPeaks(xs, 10, 0.5)
	if len(peaks) != 2 || peaks[0] != 10 || peaks[1] != 30 {
		t.Errorf("expected peaks [10 30], got %v", peaks)
	}

	// With a tight distance constraint, the taller peak wins.
	peaks = FindPeaks(xs, 25, 0.5)
	if len(peaks) != 1 || peaks[0] != 10 {
		t.Errorf("expected only peak 10, got %v", peaks)
	}
}

func TestFindValleys(t *testing.T) {
	xs := []float64{0, -1, 0, 1, 0, -2, 0}
	valleys := FindValleys(xs)
	if len(valleys) != 2 || valleys[0] != 1 || valleys[1] != 5 {
		t.Errorf("expected valleys [1 5], got %v", valleys)
	}
}

func TestWelchDominantFrequency(t *testing.T) {
	const fs = 4.0 // slow series, like a peak-amplitude signal
	xs := sine(0.3, fs, 256)

	freqs, psd, err := Welch(xs, fs, 128)
	if err != nil {
		t.Fatalf("welch failed: %v", err)
	}

	f, ok := DominantFrequency(freqs, psd, 0.1, 0.5)
	if !ok {
		t.Fatal("expected a dominant frequency in band")
	}
	if math.Abs(f-0.3) > 0.05 {
		t.Errorf("expected dominant frequency near 0.3 Hz, got %f", f)
	}
}

func TestDominantFrequencyEmptyBand(t *testing.T) {
	freqs := []float64{0, 1, 2}
	psd := []float64{1, 2, 3}
	if _, ok := DominantFrequency(freqs, psd, 10, 20); ok {
		t.Error("expected no dominant frequency outside available bins")
	}
}
