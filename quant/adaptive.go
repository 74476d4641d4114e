package quant

import "sort"

// maxAdaptiveSamples bounds the magnitude population gathered before
// threshold selection.
const maxAdaptiveSamples = 1024

// AdaptiveThresholds is the result of a top-k threshold selection: cutoffs
// plus the reconstruction averages computed over the retained partitions.
type AdaptiveThresholds struct {
	PosThresh float32
	NegThresh float32
	PosAvg    float32
	NegAvg    float32
}

// SelectAdaptiveThresholds chooses thresholds so that approximately one
// entry in every `proportion` survives per sign. When
// the population of candidate magnitudes exceeds maxAdaptiveSamples, it is
// first downsampled uniformly with replacement via rng.
func SelectAdaptiveThresholds(src, residual Matrix, proportion int, rng Sampler) AdaptiveThresholds {
	requireSameShape("SelectAdaptiveThresholds", src, residual)
	if proportion < 1 {
		panic("quant: SelectAdaptiveThresholds: proportion must be >= 1")
	}

	var pos, neg []float32
	for col := 0; col < src.Width; col++ {
		for row := 0; row < src.Height; row++ {
			v := src.At(row, col) + residual.At(row, col)
			if v >= 0 {
				pos = append(pos, v)
			} else {
				neg = append(neg, -v)
			}
		}
	}
	pos = capSample(pos, rng)
	neg = capSample(neg, rng)

	posThresh, posAvg := partitionSelect(pos, proportion)
	negThresh, negAvg := partitionSelect(neg, proportion)
	return AdaptiveThresholds{PosThresh: posThresh, NegThresh: -negThresh, PosAvg: posAvg, NegAvg: -negAvg}
}

// SelectAdaptiveThresholdsAtPositions is the position-restricted variant:
// it samples from a supplied position list instead of the full matrix, used
// during all-gather to compute adaptive averages over just the positions
// that survived the reduce-scatter phase. Duplicate positions in the input
// list are sampled as a multiset, which is fine for this purpose since
// all-gather replay tolerates repeated positions.
func SelectAdaptiveThresholdsAtPositions(src, residual Matrix, positions []int, proportion int, rng Sampler) AdaptiveThresholds {
	requireSameShape("SelectAdaptiveThresholdsAtPositions", src, residual)
	if proportion < 1 {
		panic("quant: SelectAdaptiveThresholdsAtPositions: proportion must be >= 1")
	}

	var pos, neg []float32
	for _, p := range positions {
		row, col := src.rowCol(p)
		v := src.At(row, col) + residual.At(row, col)
		if v >= 0 {
			pos = append(pos, v)
		} else {
			neg = append(neg, -v)
		}
	}
	pos = capSample(pos, rng)
	neg = capSample(neg, rng)

	posThresh, posAvg := partitionSelect(pos, proportion)
	negThresh, negAvg := partitionSelect(neg, proportion)
	return AdaptiveThresholds{PosThresh: posThresh, NegThresh: -negThresh, PosAvg: posAvg, NegAvg: -negAvg}
}

// capSample downsamples magnitudes to maxAdaptiveSamples entries, uniform
// with replacement, when the population is larger.
func capSample(magnitudes []float32, rng Sampler) []float32 {
	if len(magnitudes) <= maxAdaptiveSamples {
		return magnitudes
	}
	sampled := make([]float32, maxAdaptiveSamples)
	for i := range sampled {
		sampled[i] = magnitudes[rng.IntN(len(magnitudes))]
	}
	return sampled
}

// partitionSelect returns the pivot magnitude and mean of the top
// max(1, len(magnitudes)/proportion) entries by magnitude — the max(1, ...)
// floor keeps at least one entry even when proportion exceeds the
// population size. An empty population reconstructs as (0, 0), matching a
// column where every entry is zero.
func partitionSelect(magnitudes []float32, proportion int) (thresh, avg float32) {
	n := len(magnitudes)
	if n == 0 {
		return 0, 0
	}
	keep := n / proportion
	if keep < 1 {
		keep = 1
	}
	if keep > n {
		keep = n
	}

	sorted := append([]float32(nil), magnitudes...)
	sort.Sort(sort.Reverse(byMagnitude(sorted)))

	thresh = sorted[keep-1]
	var sum float32
	for i := 0; i < keep; i++ {
		sum += sorted[i]
	}
	avg = sum / float32(keep)
	return thresh, avg
}

type byMagnitude []float32

func (s byMagnitude) Len() int           { return len(s) }
func (s byMagnitude) Less(i, j int) bool { return s[i] < s[j] }
func (s byMagnitude) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// AdaptiveThresholdQuantize prepends the bit-reinterpreted pos/neg averages
// to the output stream, then delegates to ThresholdQuantizeWithAverages
// using the selected thresholds as cutoffs and the selected averages as
// reconstruction values.
func AdaptiveThresholdQuantize(src, residual Matrix, proportion int, delta bool, rng Sampler) ThreshStream {
	t := SelectAdaptiveThresholds(src, residual, proportion, rng)
	body := ThresholdQuantizeWithAverages(src, residual, t.PosThresh, t.NegThresh, t.PosAvg, t.NegAvg, delta)
	return prependAverages(t.PosAvg, t.NegAvg, body)
}

// AdaptiveThresholdQuantizeApply is the apply-at-known-positions form used
// during all-gather, pairing with SelectAdaptiveThresholdsAtPositions.
func AdaptiveThresholdQuantizeApply(src, residual Matrix, positions []int, proportion int, delta bool, rng Sampler) ThreshStream {
	t := SelectAdaptiveThresholdsAtPositions(src, residual, positions, proportion, rng)
	body := ThresholdQuantizeApplyWithAverages(src, residual, t.PosThresh, t.NegThresh, t.PosAvg, t.NegAvg, positions, delta)
	return prependAverages(t.PosAvg, t.NegAvg, body)
}

func prependAverages(posAvg, negAvg float32, body ThreshStream) ThreshStream {
	out := make(ThreshStream, 0, len(body)+2)
	out = append(out, Float32ToBits(posAvg), Float32ToBits(negAvg))
	return append(out, body...)
}

// AdaptiveThresholdUnquantize is the inverse of AdaptiveThresholdQuantize:
// reads the two prepended averages, then decodes the remaining stream with
// ThresholdUnquantize using them as reconstruction values.
func AdaptiveThresholdUnquantize(stream ThreshStream, dst Matrix, delta bool) {
	posAvg, negAvg, body := splitAverages(stream)
	ThresholdUnquantize(body, dst, posAvg, negAvg, delta)
}

// AdaptiveThresholdUnquantizeApply is the add-and-record-positions variant.
func AdaptiveThresholdUnquantizeApply(stream ThreshStream, dst Matrix, delta bool, positions *[]int) {
	posAvg, negAvg, body := splitAverages(stream)
	ThresholdUnquantizeApply(body, dst, posAvg, negAvg, delta, positions)
}

func splitAverages(stream ThreshStream) (posAvg, negAvg float32, body ThreshStream) {
	if len(stream) < 2 {
		return 0, 0, nil
	}
	return BitsToFloat32(stream[0]), BitsToFloat32(stream[1]), stream[2:]
}
