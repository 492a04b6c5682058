package dsp

import "sort"

// FindPeaks returns the indices of local maxima in xs whose prominence is at
// least minProminence, thinned so that no two surviving peaks are closer than
// minDistance samples (higher peaks win). Indices are returned in ascending
// order. A minDistance or minProminence of zero disables that criterion.
func FindPeaks(xs []float64, minDistance int, minProminence float64) []int {
	var candidates []int
	for i := 1; i < len(xs)-1; i++ {
		if xs[i] > xs[i-1] && xs[i] >= xs[i+1] {
			candidates = append(candidates, i)
		}
	}

	if minProminence > 0 {
		kept := candidates[:0]
		for _, p := range candidates {
			if Prominence(xs, p) >= minProminence {
				kept = append(kept, p)
			}
		}
		candidates = kept
	}

	if minDistance > 1 && len(candidates) > 1 {
		candidates = thinByDistance(xs, candidates, minDistance)
	}

	return candidates
}

// Prominence measures how much a peak stands out: its height above the
// higher of the two lowest points separating it from taller terrain (or the
// signal edge) on each side.
func Prominence(xs []float64, peak int) float64 {
	h := xs[peak]

	leftBase := h
	for i := peak - 1; i >= 0; i-- {
		if xs[i] > h {
			break
		}
		if xs[i] < leftBase {
			leftBase = xs[i]
		}
	}

	rightBase := h
	for i := peak + 1; i < len(xs); i++ {
		if xs[i] > h {
			break
		}
		if xs[i] < rightBase {
			rightBase = xs[i]
		}
	}

	base := leftBase
	if rightBase > base {
		base = rightBase
	}
	return h - base
}

// thinByDistance keeps the highest peaks first, discarding any candidate
// within minDistance of an already accepted peak.
func thinByDistance(xs []float64, peaks []int, minDistance int) []int {
	byHeight := make([]int, len(peaks))
	copy(byHeight, peaks)
	sort.Slice(byHeight, func(i, j int) bool {
		return xs[byHeight[i]] > xs[byHeight[j]]
	})

	accepted := make([]bool, len(xs))
	var out []int
	for _, p := range byHeight {
		ok := true
		for d := -minDistance + 1; d < minDistance; d++ {
			idx := p + d
			if idx >= 0 && idx < len(accepted) && accepted[idx] {
				ok = false
				break
			}
		}
		if ok {
			accepted[p] = true
			out = append(out, p)
		}
	}

	sort.Ints(out)
	return out
}

// FindValleys returns the indices of local minima, the mirror of FindPeaks
// without prominence or distance criteria.
func FindValleys(xs []float64) []int {
	var out []int
	for i := 1; i < len(xs)-1; i++ {
		if xs[i] < xs[i-1] && xs[i] <= xs[i+1] {
			out = append(out, i)
		}
	}
	return out
}
