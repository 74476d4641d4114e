package quant

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAdaptiveThresholdRetentionRate checks a 100x100 matrix of i.i.d.
// N(0,1) with p=10. Retained count per sign must fall in
// {floor(N_sign/p), floor(N_sign/p)+1}, where N_sign is the number of
// entries of that sign (the algorithm partitions pos/neg populations
// before dividing by p — see DESIGN.md for a note on why this is 500ish
// per sign rather than 1000ish), and the decoded matrix must have exactly
// these positions nonzero with exactly two distinct nonzero values.
func TestAdaptiveThresholdRetentionRate(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 99))
	data := make([]float32, 100*100)
	var wantPos, wantNeg int
	for i := range data {
		v := float32(rng.NormFloat64())
		data[i] = v
		if v >= 0 {
			wantPos++
		} else {
			wantNeg++
		}
	}
	src := NewMatrix(data, 100, 100)
	residual := NewMatrix(make([]float32, len(data)), 100, 100)

	stream := AdaptiveThresholdQuantize(src, residual, 10, false, DefaultSampler(1, 1))
	// stream[0:2] are the bit-reinterpreted averages; the rest is the threshold body.
	body := stream[2:]

	var posCount, negCount int
	for _, w := range body {
		_, positive := decodePosition(w)
		if positive {
			posCount++
		} else {
			negCount++
		}
	}
	assert.Contains(t, []int{wantPos / 10, wantPos/10 + 1}, posCount)
	assert.Contains(t, []int{wantNeg / 10, wantNeg/10 + 1}, negCount)

	dst := NewMatrix(make([]float32, len(data)), 100, 100)
	AdaptiveThresholdUnquantize(stream, dst, false)

	distinct := map[float32]bool{}
	nonzero := 0
	for _, v := range dst.Data {
		if v != 0 {
			nonzero++
			distinct[v] = true
		}
	}
	assert.Equal(t, posCount+negCount, nonzero)
	assert.LessOrEqual(t, len(distinct), 2)
}

// TestAdaptiveThresholdForcesMinimumKeep checks the "proportion yields zero
// keeps" edge case: when |entries| < p, keep is forced to 1 per sign
// rather than 0.
func TestAdaptiveThresholdForcesMinimumKeep(t *testing.T) {
	data := []float32{0.5, -0.3}
	src := NewMatrix(data, 2, 1)
	residual := NewMatrix(make([]float32, 2), 2, 1)

	th := SelectAdaptiveThresholds(src, residual, 100, nil)
	assert.Equal(t, float32(0.5), th.PosThresh)
	assert.Equal(t, float32(-0.3), th.NegThresh)
}

// TestAdaptiveThresholdEmptySign checks that a sign with no entries
// reconstructs to the (0,0) numerical edge case rather than panicking.
func TestAdaptiveThresholdEmptySign(t *testing.T) {
	data := []float32{0.5, 0.9}
	src := NewMatrix(data, 2, 1)
	residual := NewMatrix(make([]float32, 2), 2, 1)

	th := SelectAdaptiveThresholds(src, residual, 2, nil)
	assert.Equal(t, float32(0), th.NegThresh)
	assert.Equal(t, float32(0), th.NegAvg)
}

// TestAdaptiveThresholdAtPositionsMatchesFull checks the position-restricted
// selector returns consistent results when the position list covers the
// whole matrix.
func TestAdaptiveThresholdAtPositionsMatchesFull(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	data := make([]float32, 40)
	for i := range data {
		data[i] = float32(rng.NormFloat64())
	}
	src := NewMatrix(data, 40, 1)
	residual := NewMatrix(make([]float32, 40), 40, 1)

	all := make([]int, 40)
	for i := range all {
		all[i] = i
	}

	full := SelectAdaptiveThresholds(src, residual, 5, nil)
	atPositions := SelectAdaptiveThresholdsAtPositions(src, residual, all, 5, nil)
	require.Equal(t, full, atPositions)
}
