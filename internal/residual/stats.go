package residual

import "math"

// NumBins is the size of the magnitude histogram. Bin 1023 accumulates
// every larger magnitude.
const NumBins = 1024

// Histogram accumulates residual magnitudes at 1 DN per bin.
type Histogram struct {
	bins  [NumBins]uint64
	total uint64
}

// Accumulate adds the magnitudes of the given residuals.
func (h *Histogram) Accumulate(res []int16) {
	for _, r := range res {
		mag := int32(r)
		if mag < 0 {
			mag = -mag
		}
		if mag >= NumBins {
			mag = NumBins - 1
		}
		h.bins[mag]++
	}
	h.total += uint64(len(res))
}

// Clear resets the histogram.
func (h *Histogram) Clear() {
	h.bins = [NumBins]uint64{}
	h.total = 0
}

// Total returns the number of accumulated samples.
func (h *Histogram) Total() uint64 { return h.total }

// Mean returns the mean magnitude.
func (h *Histogram) Mean() float64 {
	if h.total == 0 {
		return 0
	}
	var sum float64
	for i, n := range h.bins {
		sum += float64(i) * float64(n)
	}
	return sum / float64(h.total)
}

// StdDev returns the standard deviation of the magnitudes.
func (h *Histogram) StdDev() float64 {
	if h.total == 0 {
		return 0
	}
	m := h.Mean()
	var sumSq float64
	for i, n := range h.bins {
		d := float64(i) - m
		sumSq += d * d * float64(n)
	}
	return math.Sqrt(sumSq / float64(h.total))
}

// Percentile returns the lowest bin whose cumulative count reaches
// p * total, for p in [0, 1].
func (h *Histogram) Percentile(p float64) float64 {
	if h.total == 0 || p < 0 || p > 1 {
		return 0
	}
	target := uint64(p * float64(h.total))
	var cum uint64
	for i, n := range h.bins {
		cum += n
		if cum >= target {
			return float64(i)
		}
	}
	return NumBins - 1
}

// Max returns the highest non-empty bin.
func (h *Histogram) Max() float64 {
	for i := NumBins - 1; i >= 0; i-- {
		if h.bins[i] > 0 {
			return float64(i)
		}
	}
	return 0
}

// Entropy returns the Shannon entropy of the magnitude distribution in bits.
func (h *Histogram) Entropy() float64 {
	if h.total == 0 {
		return 0
	}
	var H float64
	for _, n := range h.bins {
		if n > 0 {
			p := float64(n) / float64(h.total)
			H -= p * math.Log2(p)
		}
	}
	return H
}

// Stats carries the per-frame decision features derived from the raw
// residual (pre-quantization) and, when available, the quantized symbols.
type Stats struct {
	ZeroMass    float64 // fraction of |r| <= T
	MeanAbs     float64
	P95         float64
	P99         float64
	EntropyBits float64 // symbol entropy; magnitude entropy + 1 sign bit as fallback
	BPSRes      float64 // bits-per-symbol rate proxy for the decision engine
}

// ComputeStats derives decision features from a raw residual stream.
// quantized may be nil; when present the entropy is measured on the
// empirical distribution of the signed symbols, which is the better
// rate proxy. Empty input returns zeroed stats.
func ComputeStats(res []int16, deadZoneT uint32, quantized []int16) Stats {
	var stats Stats
	n := len(res)
	if n == 0 {
		return stats
	}

	var hist Histogram
	hist.Accumulate(res)

	var zeroCount uint64
	var sumAbs float64
	for _, r := range res {
		mag := int32(r)
		if mag < 0 {
			mag = -mag
		}
		if uint32(mag) <= deadZoneT {
			zeroCount++
		}
		sumAbs += float64(mag)
	}

	stats.ZeroMass = float64(zeroCount) / float64(n)
	stats.MeanAbs = sumAbs / float64(n)
	stats.P95 = hist.Percentile(0.95)
	stats.P99 = hist.Percentile(0.99)

	if quantized != nil {
		counts := make(map[int16]uint64, 64)
		for _, q := range quantized {
			counts[q]++
		}
		var H float64
		for _, c := range counts {
			p := float64(c) / float64(n)
			H -= p * math.Log2(p)
		}
		stats.EntropyBits = H
	} else {
		stats.EntropyBits = hist.Entropy() + 1.0
	}
	stats.BPSRes = stats.EntropyBits

	return stats
}
