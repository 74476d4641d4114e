// Package ring implements bandwidth-optimal ring collectives that carry the
// quant package's codecs across a peer group: reduce-scatter and all-gather,
// composing into a quantized all-reduce. The engine never interprets the
// bytes it moves — encode/decode is entirely delegated to caller-supplied
// callbacks, so any of quant's three schemes plugs in unchanged.
package ring

import "github.com/Jmast/lbann/quant"

// Ring describes a logical ring of Size peers, this process being Rank.
// Peers are ordered 0..Size-1; rank i's right neighbor is (i+1)%Size and its
// left neighbor is (i-1+Size)%Size.
//
// Counters, when non-nil, accumulates bandwidth and call-count
// instrumentation for every payload this rank sends or receives during
// ReduceScatter/AllGather; a nil Counters (the zero value) disables this,
// mirroring zerolog's no-op-default convention.
type Ring struct {
	Rank      int
	Size      int
	Transport Transport
	Counters  *quant.Counters
}

func (r Ring) right() int {
	return mod(r.Rank+1, r.Size)
}

func (r Ring) left() int {
	return mod(r.Rank-1, r.Size)
}

func mod(a, n int) int {
	return ((a % n) + n) % n
}

// sliceBounds returns the [start, end) row range of logical slice idx for a
// matrix of the given height split across Size peers. Slices are
// near-equal; the last slice absorbs any remainder.
func sliceBounds(height, size, idx int) (start, end int) {
	base := height / size
	start = idx * base
	if idx == size-1 {
		return start, height
	}
	return start, start + base
}

// sliceView returns a Matrix view over rows [start,end) of full, sharing
// full's backing Data and Stride so writes are visible to the caller.
func sliceView(full quant.Matrix, start, end int) quant.Matrix {
	return quant.Matrix{
		Data:   full.Data[start:],
		Height: end - start,
		Width:  full.Width,
		Stride: full.Stride,
	}
}
