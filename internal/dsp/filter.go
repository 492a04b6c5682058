package dsp

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// ButterBandpass designs a digital Butterworth bandpass filter of the given
// order via the analog prototype, lowpass-to-bandpass transform and bilinear
// transform. It returns transfer-function coefficients b (numerator) and a
// (denominator), each of length 2*order+1 with a[0] == 1.
func ButterBandpass(order int, lowHz, highHz, sampleRate float64) (b, a []float64, err error) {
	if order < 1 {
		return nil, nil, fmt.Errorf("dsp: filter order must be >= 1, got %d", order)
	}
	nyquist := sampleRate / 2
	if lowHz <= 0 || highHz <= lowHz || highHz >= nyquist {
		return nil, nil, fmt.Errorf("dsp: band [%g, %g] Hz invalid for sample rate %g Hz", lowHz, highHz, sampleRate)
	}

	// Pre-warped analog band edges.
	fs2 := 2 * sampleRate
	w1 := fs2 * math.Tan(math.Pi*lowHz/sampleRate)
	w2 := fs2 * math.Tan(math.Pi*highHz/sampleRate)
	bw := w2 - w1
	w0 := math.Sqrt(w1 * w2)

	// Butterworth lowpass prototype poles on the unit circle.
	proto := make([]complex128, order)
	for k := 0; k < order; k++ {
		theta := math.Pi * float64(2*k+1) / float64(2*order)
		proto[k] = complex(-math.Sin(theta), math.Cos(theta))
	}

	// Lowpass-to-bandpass: each prototype pole splits into two.
	poles := make([]complex128, 0, 2*order)
	for _, p := range proto {
		ps := p * complex(bw/2, 0)
		d := cmplx.Sqrt(ps*ps - complex(w0*w0, 0))
		poles = append(poles, ps+d, ps-d)
	}
	zeros := make([]complex128, order) // order zeros at s = 0
	gain := math.Pow(bw, float64(order))

	// Bilinear transform to the z-plane.
	c := complex(fs2, 0)
	zZeros := make([]complex128, 0, 2*order)
	num := complex(1, 0)
	den := complex(1, 0)
	for _, z := range zeros {
		zZeros = append(zZeros, (c+z)/(c-z))
		num *= c - z
	}
	zPoles := make([]complex128, 0, 2*order)
	for _, p := range poles {
		zPoles = append(zPoles, (c+p)/(c-p))
		den *= c - p
	}
	// Degree deficit of the numerator maps to zeros at z = -1.
	for len(zZeros) < len(zPoles) {
		zZeros = append(zZeros, -1)
	}
	zGain := gain * real(num/den)

	b = realPoly(zZeros)
	for i := range b {
		b[i] *= zGain
	}
	a = realPoly(zPoles)
	return b, a, nil
}

// realPoly expands Π(z - r) over the given roots and returns the real parts
// of the coefficients in descending power order.
func realPoly(roots []complex128) []float64 {
	coeffs := make([]complex128, 1, len(roots)+1)
	coeffs[0] = 1
	for _, r := range roots {
		next := make([]complex128, len(coeffs)+1)
		for i, cc := range coeffs {
			next[i] += cc
			next[i+1] -= cc * r
		}
		coeffs = next
	}
	out := make([]float64, len(coeffs))
	for i, cc := range coeffs {
		out[i] = real(cc)
	}
	return out
}

// Lfilter applies the IIR filter (b, a) to xs in direct form II transposed.
// zi holds max(len(a),len(b))-1 initial conditions and may be nil.
func Lfilter(b, a, xs, zi []float64) []float64 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	bn := make([]float64, n)
	an := make([]float64, n)
	copy(bn, b)
	copy(an, a)

	// Normalize so an[0] == 1.
	if an[0] != 1 {
		for i := range bn {
			bn[i] /= an[0]
		}
		for i := n - 1; i >= 0; i-- {
			an[i] /= an[0]
		}
	}

	z := make([]float64, n-1)
	copy(z, zi)

	out := make([]float64, len(xs))
	for i, x := range xs {
		y := bn[0]*x + z[0]
		for j := 0; j < n-2; j++ {
			z[j] = bn[j+1]*x + z[j+1] - an[j+1]*y
		}
		z[n-2] = bn[n-1]*x - an[n-1]*y
		out[i] = y
	}
	return out
}

// FiltFilt applies (b, a) forward and backward for zero-phase filtering,
// using odd-reflection padding and steady-state initial conditions to
// suppress edge transients. The input must be longer than 3 times the filter
// order.
func FiltFilt(b, a, xs []float64) ([]float64, error) {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	padlen := 3 * (n - 1)
	if len(xs) <= padlen {
		return nil, fmt.Errorf("dsp: input length %d must exceed pad length %d", len(xs), padlen)
	}

	zi, err := lfilterZi(b, a)
	if err != nil {
		return nil, err
	}

	ext := oddExtend(xs, padlen)

	fwd := Lfilter(b, a, ext, scale(zi, ext[0]))
	reverse(fwd)
	bwd := Lfilter(b, a, fwd, scale(zi, fwd[0]))
	reverse(bwd)

	return bwd[padlen : len(bwd)-padlen], nil
}

// lfilterZi computes the steady-state initial conditions for a unit step
// input, so that filtering a constant signal produces that constant.
func lfilterZi(b, a []float64) ([]float64, error) {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	bn := make([]float64, n)
	an := make([]float64, n)
	copy(bn, b)
	copy(an, a)
	if an[0] != 1 {
		for i := range bn {
			bn[i] /= an[0]
		}
		for i := n - 1; i >= 0; i-- {
			an[i] /= an[0]
		}
	}

	m := n - 1
	// I - companion(a)^T
	sys := mat.NewDense(m, m, nil)
	for i := 0; i < m; i++ {
		for j := 0; j < m; j++ {
			var comp float64 // companion(a)[j][i]
			if j == 0 {
				comp = -an[i+1]
			} else if j == i+1 {
				comp = 1
			}
			v := -comp
			if i == j {
				v++
			}
			sys.Set(i, j, v)
		}
	}

	rhs := mat.NewVecDense(m, nil)
	for i := 0; i < m; i++ {
		rhs.SetVec(i, bn[i+1]-an[i+1]*bn[0])
	}

	var zi mat.VecDense
	if err := zi.SolveVec(sys, rhs); err != nil {
		return nil, fmt.Errorf("dsp: steady-state solve failed: %w", err)
	}

	out := make([]float64, m)
	for i := 0; i < m; i++ {
		out[i] = zi.AtVec(i)
	}
	return out, nil
}

func oddExtend(xs []float64, padlen int) []float64 {
	n := len(xs)
	ext := make([]float64, 0, n+2*padlen)
	for i := padlen; i >= 1; i-- {
		ext = append(ext, 2*xs[0]-xs[i])
	}
	ext = append(ext, xs...)
	for i := n - 2; i >= n-1-padlen; i-- {
		ext = append(ext, 2*xs[n-1]-xs[i])
	}
	return ext
}

func scale(xs []float64, f float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = x * f
	}
	return out
}

func reverse(xs []float64) {
	for i, j := 0, len(xs)-1; i < j; i, j = i+1, j-1 {
		xs[i], xs[j] = xs[j], xs[i]
	}
}
