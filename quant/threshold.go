package quant

// ThreshStream is an ordered sequence of 32-bit words, each encoding one
// above-threshold entry: low bit is the sign, the remaining 31 bits are
// either a flattened column-major position or a delta from the previously
// emitted position.
type ThreshStream []uint32

const positionSignBits = 1

func encodePosition(pos int, positive bool) uint32 {
	var sign uint32
	if positive {
		sign = 1
	}
	return (uint32(pos) << positionSignBits) | sign
}

func decodePosition(word uint32) (pos int, positive bool) {
	return int(word >> positionSignBits), word&1 != 0
}

// ThresholdQuantize emits one word per entry where v=src[p]+residual[p] is
// >= posThresh or <= negThresh; all others feed only the residual (the value
// is never cleared there, so error feedback keeps accumulating). When delta
// is true, emitted positions encode the gap from the previously emitted
// position rather than the absolute column-major index; the sweep is
// column-major so deltas are always nonnegative. posAvg/negAvg default to
// the thresholds themselves, giving a less accurate but still valid decode
// when the caller has no better reconstruction average on hand.
func ThresholdQuantize(src, residual Matrix, posThresh, negThresh float32, delta bool) ThreshStream {
	requireSameShape("ThresholdQuantize", src, residual)
	requireAddressable(src)
	posAvg, negAvg := posThresh, negThresh
	return thresholdQuantize(src, residual, posThresh, negThresh, posAvg, negAvg, delta)
}

// requireAddressable panics if src holds more entries than the 31-bit
// position encoding can address. This codec fails fast rather than silently
// widening the wire format.
func requireAddressable(src Matrix) {
	if src.entries() > 1<<31 {
		panic(ErrTooManyEntries)
	}
}

// ThresholdQuantizeWithAverages is the full-signature form for callers (such
// as the adaptive codec) that already computed reconstruction averages
// distinct from the thresholds.
func ThresholdQuantizeWithAverages(src, residual Matrix, posThresh, negThresh, posAvg, negAvg float32, delta bool) ThreshStream {
	requireSameShape("ThresholdQuantizeWithAverages", src, residual)
	requireAddressable(src)
	return thresholdQuantize(src, residual, posThresh, negThresh, posAvg, negAvg, delta)
}

func thresholdQuantize(src, residual Matrix, posThresh, negThresh, posAvg, negAvg float32, delta bool) ThreshStream {
	var out ThreshStream
	prev := 0
	for col := 0; col < src.Width; col++ {
		for row := 0; row < src.Height; row++ {
			v := src.At(row, col) + residual.At(row, col)
			pos := src.index(row, col)
			switch {
			case v >= posThresh:
				out = append(out, emitPosition(pos, &prev, true, delta))
				residual.Set(row, col, v-posAvg)
			case v <= negThresh:
				out = append(out, emitPosition(pos, &prev, false, delta))
				residual.Set(row, col, v-negAvg)
			default:
				residual.Set(row, col, v)
			}
		}
	}
	return out
}

func emitPosition(pos int, prev *int, positive, delta bool) uint32 {
	emit := pos
	if delta {
		emit = pos - *prev
		*prev = pos
	}
	return encodePosition(emit, positive)
}

// ThresholdUnquantize writes posAvg or negAvg at each decoded position,
// overwriting dst. Positions not present in
// stream are left untouched (the caller is expected to have zeroed dst, or
// this is being used to decode onto a fresh buffer).
func ThresholdUnquantize(stream ThreshStream, dst Matrix, posAvg, negAvg float32, delta bool) {
	thresholdUnquantize(stream, dst, posAvg, negAvg, delta, false, nil)
}

// ThresholdUnquantizeApply is the "_apply" variant: adds instead of
// overwrites, and appends every visited position to *positions (duplicates
// are tolerated, to support adaptive all-gather replay).
func ThresholdUnquantizeApply(stream ThreshStream, dst Matrix, posAvg, negAvg float32, delta bool, positions *[]int) {
	thresholdUnquantize(stream, dst, posAvg, negAvg, delta, true, positions)
}

func thresholdUnquantize(stream ThreshStream, dst Matrix, posAvg, negAvg float32, delta, apply bool, positions *[]int) {
	prev := 0
	for _, word := range stream {
		raw, positive := decodePosition(word)
		pos := raw
		if delta {
			pos = prev + raw
			prev = pos
		}
		row, col := dst.rowCol(pos)
		v := negAvg
		if positive {
			v = posAvg
		}
		if apply {
			dst.Set(row, col, dst.At(row, col)+v)
		} else {
			dst.Set(row, col, v)
		}
		if positions != nil {
			*positions = append(*positions, pos)
		}
	}
}

// ThresholdQuantizeApply quantizes only at the positions the caller already
// knows about, useful during all-gather when a peer already knows which
// entries the reducer emitted. In delta mode positions must already be
// sorted ascending, since the encoder sweep must be monotonic; callers
// that source positions from ThresholdUnquantizeApply during reduce-scatter
// satisfy this naturally because that sweep is itself column-major
// ascending, but a caller merging multiple position lists must sort first.
func ThresholdQuantizeApply(src, residual Matrix, posThresh, negThresh float32, positions []int, delta bool) ThreshStream {
	requireSameShape("ThresholdQuantizeApply", src, residual)
	return thresholdQuantizeApply(src, residual, posThresh, negThresh, posThresh, negThresh, positions, delta)
}

// ThresholdQuantizeApplyWithAverages is the averages-carrying form used by
// the adaptive codec.
func ThresholdQuantizeApplyWithAverages(src, residual Matrix, posThresh, negThresh, posAvg, negAvg float32, positions []int, delta bool) ThreshStream {
	requireSameShape("ThresholdQuantizeApplyWithAverages", src, residual)
	return thresholdQuantizeApply(src, residual, posThresh, negThresh, posAvg, negAvg, positions, delta)
}

func thresholdQuantizeApply(src, residual Matrix, posThresh, negThresh, posAvg, negAvg float32, positions []int, delta bool) ThreshStream {
	out := make(ThreshStream, 0, len(positions))
	prev := 0
	for _, pos := range positions {
		row, col := src.rowCol(pos)
		v := src.At(row, col) + residual.At(row, col)
		switch {
		case v >= posThresh:
			out = append(out, emitPosition(pos, &prev, true, delta))
			residual.Set(row, col, v-posAvg)
		case v <= negThresh:
			out = append(out, emitPosition(pos, &prev, false, delta))
			residual.Set(row, col, v-negAvg)
		default:
			residual.Set(row, col, v)
		}
	}
	return out
}
