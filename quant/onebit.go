package quant

import "golang.org/x/sys/cpu"

// numOnebitSamples is the fixed sample size used when approximating
// per-column averages. Named after the original NUM_ONEBIT_SAMPLES constant
// in lbann_quantizer.cpp.
const numOnebitSamples = 128

// signGroupWidth is the number of source rows packed into one sign-bit word.
const signGroupWidth = 32

// unrollWords is the inner-loop unroll factor for the sign-bit packing pass,
// picked once at package init from a CPU feature probe (golang.org/x/sys/cpu).
// The loop body stays scalar Go; wider CPUs just unroll more sign-group words
// per iteration before the bounds-check elimination pass gives up.
var unrollWords = func() int {
	switch {
	case cpu.X86.HasAVX2:
		return 4
	case cpu.X86.HasSSE2:
		return 2
	default:
		return 1
	}
}()

// QuantizedMatrix is the one-bit encoded form: a column-major []uint32
// buffer of height 2+ceil(Height/32). Row 0 holds the
// positive column-average, row 1 the negative column-average (both
// bit-reinterpreted float32), and rows 2.. hold packed sign-bit words.
type QuantizedMatrix struct {
	Data   []uint32
	Height int // source height, not the encoded buffer height
	Width  int
}

// signRows returns the number of packed sign-bit words per column.
func signRows(height int) int {
	return (height + signGroupWidth - 1) / signGroupWidth
}

// EncodedHeight returns 2+ceil(height/32), the row count of the encoded
// buffer for a source of the given height.
func EncodedHeight(height int) int {
	return 2 + signRows(height)
}

// NewQuantizedMatrix allocates a QuantizedMatrix sized for a source of the
// given shape.
func NewQuantizedMatrix(height, width int) QuantizedMatrix {
	eh := EncodedHeight(height)
	return QuantizedMatrix{Data: make([]uint32, eh*width), Height: height, Width: width}
}

func (q QuantizedMatrix) encodedHeight() int {
	return EncodedHeight(q.Height)
}

func (q QuantizedMatrix) at(row, col int) uint32 {
	return q.Data[col*q.encodedHeight()+row]
}

func (q QuantizedMatrix) set(row, col int, v uint32) {
	q.Data[col*q.encodedHeight()+row] = v
}

// QuantizeOneBit quantizes src to one sign bit per entry plus a pair of
// per-column averages. residual is the error-feedback accumulator: it is
// read as part of the pre-quantization
// value and overwritten with the new residual in place. When sample is true
// and Height exceeds numOnebitSamples, column averages are estimated from a
// uniform-with-replacement sample drawn from rng; the sign decisions and
// residual updates still visit every row exactly once, preserving the
// error-feedback invariant regardless of sampling.
func QuantizeOneBit(src Matrix, residual Matrix, sample bool, rng Sampler) QuantizedMatrix {
	requireSameShape("QuantizeOneBit", src, residual)
	out := NewQuantizedMatrix(src.Height, src.Width)

	for col := 0; col < src.Width; col++ {
		posAvg, negAvg := columnAverages(src, residual, col, sample, rng)
		out.set(0, col, Float32ToBits(posAvg))
		out.set(1, col, Float32ToBits(negAvg))

		sr := signRows(src.Height)
		for groupBase := 0; groupBase < sr; groupBase += unrollWords {
			groupEnd := groupBase + unrollWords
			if groupEnd > sr {
				groupEnd = sr
			}
			for group := groupBase; group < groupEnd; group++ {
				var word uint32
				base := group * signGroupWidth
				limit := signGroupWidth
				if base+limit > src.Height {
					limit = src.Height - base
				}
				for b := 0; b < limit; b++ {
					row := base + b
					v := src.At(row, col) + residual.At(row, col)
					if v >= 0 {
						word |= 1 << uint(b)
						residual.Set(row, col, v-posAvg)
					} else {
						residual.Set(row, col, v-negAvg)
					}
				}
				out.set(2+group, col, word)
			}
		}
	}
	return out
}

// columnAverages computes the positive/negative averages for one column,
// either exactly (full traversal) or via numOnebitSamples draws from rng
// when sample is requested and the column is tall enough to benefit.
func columnAverages(src, residual Matrix, col int, sample bool, rng Sampler) (posAvg, negAvg float32) {
	height := src.Height
	var posSum, negSum float32
	var posCount, negCount int

	visit := func(row int) {
		v := src.At(row, col) + residual.At(row, col)
		if v >= 0 {
			posSum += v
			posCount++
		} else {
			negSum += v
			negCount++
		}
	}

	if !sample || height <= numOnebitSamples {
		for row := 0; row < height; row++ {
			visit(row)
		}
	} else {
		for i := 0; i < numOnebitSamples; i++ {
			visit(rng.IntN(height))
		}
	}

	if posCount > 0 {
		posAvg = posSum / float32(posCount)
	}
	if negCount > 0 {
		negAvg = negSum / float32(negCount)
	}
	return posAvg, negAvg
}

// UnquantizeOneBit reconstructs a matrix from its one-bit encoding. When apply is true,
// the reconstructed value is added to dst instead of overwriting it (used by
// the ring engine's reduce-scatter accumulation).
func UnquantizeOneBit(qmat QuantizedMatrix, dst Matrix, apply bool) {
	if qmat.Height != dst.Height || qmat.Width != dst.Width {
		panic("quant: UnquantizeOneBit: shape mismatch")
	}
	for col := 0; col < dst.Width; col++ {
		posAvg := BitsToFloat32(qmat.at(0, col))
		negAvg := BitsToFloat32(qmat.at(1, col))
		sr := signRows(dst.Height)
		for group := 0; group < sr; group++ {
			word := qmat.at(2+group, col)
			base := group * signGroupWidth
			limit := signGroupWidth
			if base+limit > dst.Height {
				limit = dst.Height - base
			}
			for b := 0; b < limit; b++ {
				row := base + b
				var v float32
				if word&(1<<uint(b)) != 0 {
					v = posAvg
				} else {
					v = negAvg
				}
				if apply {
					dst.Set(row, col, dst.At(row, col)+v)
				} else {
					dst.Set(row, col, v)
				}
			}
		}
	}
}
