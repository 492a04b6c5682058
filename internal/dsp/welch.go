package dsp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Welch estimates the one-sided power spectral density of xs sampled at
// sampleRate Hz using Welch's method: mean-detrended Hann-windowed segments
// with 50% overlap, averaged periodograms. It returns the frequency bins in
// Hz and the PSD values.
func Welch(xs []float64, sampleRate float64, nperseg int) (freqs, psd []float64, err error) {
	if len(xs) < 4 {
		return nil, nil, fmt.Errorf("dsp: welch needs at least 4 samples, got %d", len(xs))
	}
	if nperseg <= 0 || nperseg > len(xs) {
		nperseg = len(xs)
	}
	step := nperseg / 2
	if step < 1 {
		step = 1
	}

	window := hann(nperseg)
	var windowPower float64
	for _, w := range window {
		windowPower += w * w
	}

	fft := fourier.NewFFT(nperseg)
	nbins := nperseg/2 + 1
	psd = make([]float64, nbins)
	segment := make([]float64, nperseg)
	coeffs := make([]complex128, nbins)

	segments := 0
	for start := 0; start+nperseg <= len(xs); start += step {
		copy(segment, xs[start:start+nperseg])
		m := Mean(segment)
		for i := range segment {
			segment[i] = (segment[i] - m) * window[i]
		}

		fft.Coefficients(coeffs, segment)
		for k, c := range coeffs {
			p := real(c)*real(c) + imag(c)*imag(c)
			// One-sided spectrum: double everything except DC and Nyquist.
			if k != 0 && !(nperseg%2 == 0 && k == nbins-1) {
				p *= 2
			}
			psd[k] += p
		}
		segments++
	}

	if segments == 0 {
		return nil, nil, fmt.Errorf("dsp: no full segment of %d samples in input of %d", nperseg, len(xs))
	}

	norm := 1.0 / (sampleRate * windowPower * float64(segments))
	for k := range psd {
		psd[k] *= norm
	}

	freqs = make([]float64, nbins)
	for k := range freqs {
		freqs[k] = float64(k) * sampleRate / float64(nperseg)
	}
	return freqs, psd, nil
}

// DominantFrequency returns the frequency with the highest PSD value inside
// [lowHz, highHz], or ok=false when no bin falls in the band.
func DominantFrequency(freqs, psd []float64, lowHz, highHz float64) (float64, bool) {
	best := -1
	for i, f := range freqs {
		if f < lowHz || f > highHz {
			continue
		}
		if best < 0 || psd[i] > psd[best] {
			best = i
		}
	}
	if best < 0 {
		return 0, false
	}
	return freqs[best], true
}

func hann(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}
