package ring

import (
	"math"

	"github.com/Jmast/lbann/quant"
)

const adaGradEpsilon = 1e-8

// applyAdaGrad updates gradhist in place with the squared entries of
// reduced, then scales reduced entrywise by 1/(sqrt(gradhist)+eps). gradhist
// must already be sized to match reduced (the caller allocates it once and
// reuses it across calls, mirroring a persistent gradient-history buffer
// threaded through repeated training-loop calls).
func applyAdaGrad(reduced, gradhist quant.Matrix) {
	requireSameShape(reduced, gradhist)
	for col := 0; col < reduced.Width; col++ {
		for row := 0; row < reduced.Height; row++ {
			g := reduced.At(row, col)
			hist := gradhist.At(row, col) + g*g
			gradhist.Set(row, col, hist)
			scale := 1.0 / (float32(math.Sqrt(float64(hist))) + adaGradEpsilon)
			reduced.Set(row, col, g*scale)
		}
	}
}

func requireSameShape(a, b quant.Matrix) {
	if a.Height != b.Height || a.Width != b.Width {
		panic("ring: shape mismatch")
	}
}

// SumQuantized runs a full one-bit quantized all-reduce: reduce-scatter
// followed by all-gather, with an optional AdaGrad rescaling of each rank's
// locally-reduced slice before it is re-quantized and broadcast.
//
// qerror holds the reduce-scatter stage's error-feedback residual, shaped
// like mat; imQerror holds the all-gather stage's residual, shaped like one
// row-slice — the largest slice sliceBounds can produce, which is the last
// slice and has Height/Size + Height%Size rows (sliceBounds gives it the
// remainder on top of the even share, not just ceil(Height/Size)); gradhist,
// when adaGrad is true, persists the squared-gradient history the same way
// imQerror does and must be the same shape.
func SumQuantized(r Ring, mat, qerror, imQerror quant.Matrix, sample bool, rng quant.Sampler, adaGrad bool, gradhist quant.Matrix) error {
	send := func(slice quant.Matrix, sliceIdx int) ([]uint32, error) {
		residual := qerrorSlice(qerror, r.Size, sliceIdx)
		q := quant.QuantizeOneBit(slice, residual, sample, rng)
		return q.Data, nil
	}
	recv := func(payload []uint32, dst quant.Matrix, sliceIdx int) error {
		q := quant.QuantizedMatrix{Data: payload, Height: dst.Height, Width: dst.Width}
		quant.UnquantizeOneBit(q, dst, true)
		return nil
	}
	if err := ReduceScatter(r, mat, send, recv); err != nil {
		return err
	}

	reducedFn := func(reduced quant.Matrix, sliceIdx int) ([]uint32, error) {
		if adaGrad {
			applyAdaGrad(reduced, sliceView(gradhist, 0, reduced.Height))
		}
		q := quant.QuantizeOneBit(reduced, sliceView(imQerror, 0, reduced.Height), sample, rng)
		return q.Data, nil
	}
	recvAG := func(payload []uint32, dst quant.Matrix, sliceIdx int) error {
		q := quant.QuantizedMatrix{Data: payload, Height: dst.Height, Width: dst.Width}
		quant.UnquantizeOneBit(q, dst, false)
		return nil
	}
	return AllGather(r, mat, reducedFn, recvAG, nil)
}

// qerrorSlice returns the row-slice of qerror matching sliceIdx's bounds in
// a matrix with the same Height qerror was allocated for.
func qerrorSlice(qerror quant.Matrix, size, sliceIdx int) quant.Matrix {
	start, end := sliceBounds(qerror.Height, size, sliceIdx)
	return sliceView(qerror, start, end)
}
