package dsp

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// savgolKey caches fitted projection matrices by (window, order).
type savgolKey struct {
	window int
	order  int
}

var (
	savgolMu    sync.Mutex
	savgolCache = map[savgolKey]*mat.Dense{}
)

// SavitzkyGolay smooths xs with a Savitzky-Golay filter of the given window
// length (odd, > order) and polynomial order. Edge samples are smoothed by
// evaluating the polynomial fitted to the first and last full window, so the
// output has the same length as the input.
func SavitzkyGolay(xs []float64, window, order int) ([]float64, error) {
	if window%2 == 0 {
		window--
	}
	if window > len(xs) {
		window = len(xs)
		if window%2 == 0 {
			window--
		}
	}
	if window <= order {
		return nil, fmt.Errorf("dsp: savgol window %d must exceed order %d", window, order)
	}

	proj, err := savgolProjection(window, order)
	if err != nil {
		return nil, err
	}

	half := window / 2
	out := make([]float64, len(xs))

	// Interior: the center row of the projection matrix is the smoothing
	// kernel.
	for i := half; i < len(xs)-half; i++ {
		var acc float64
		for j := 0; j < window; j++ {
			acc += proj.At(half, j) * xs[i-half+j]
		}
		out[i] = acc
	}

	// Edges: evaluate the first/last window's fit at each offset.
	for i := 0; i < half; i++ {
		var head, tail float64
		for j := 0; j < window; j++ {
			head += proj.At(i, j) * xs[j]
			tail += proj.At(window-half+i, j) * xs[len(xs)-window+j]
		}
		out[i] = head
		out[len(xs)-half+i] = tail
	}

	return out, nil
}

// savgolProjection returns the window x window matrix P = A (AᵀA)⁻¹ Aᵀ where
// A is the Vandermonde matrix of offsets -h..h. Row r of P reconstructs the
// smoothed value at offset r-h from the raw window.
func savgolProjection(window, order int) (*mat.Dense, error) {
	key := savgolKey{window: window, order: order}

	savgolMu.Lock()
	defer savgolMu.Unlock()
	if p, ok := savgolCache[key]; ok {
		return p, nil
	}

	half := window / 2
	a := mat.NewDense(window, order+1, nil)
	for r := 0; r < window; r++ {
		x := float64(r - half)
		pow := 1.0
		for c := 0; c <= order; c++ {
			a.Set(r, c, pow)
			pow *= x
		}
	}

	var ata mat.Dense
	ata.Mul(a.T(), a)

	var inv mat.Dense
	if err := inv.Inverse(&ata); err != nil {
		return nil, fmt.Errorf("dsp: savgol design matrix is singular: %w", err)
	}

	var pinv mat.Dense
	pinv.Mul(&inv, a.T())

	p := mat.NewDense(window, window, nil)
	p.Mul(a, &pinv)

	savgolCache[key] = p
	return p, nil
}
