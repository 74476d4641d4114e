package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jmast/lbann/quant"
)

// TestSumQuantizedAgreesAcrossPeers runs SumQuantized over a 3-peer ring and
// checks every peer converges to the same matrix, with and without the
// AdaGrad rescaling enabled.
func TestSumQuantizedAgreesAcrossPeers(t *testing.T) {
	for _, adaGrad := range []bool{false, true} {
		const size = 3
		const height = 11 // height%size == 2, so the last slice is larger than ceil(height/size)
		const width = 1

		mats := make([]quant.Matrix, size)
		qerrors := make([]quant.Matrix, size)
		imQerrors := make([]quant.Matrix, size)
		gradhists := make([]quant.Matrix, size)
		sliceHeight := height/size + height%size // the largest (last) slice's row count
		for i := 0; i < size; i++ {
			data := make([]float32, height*width)
			for j := range data {
				data[j] = float32(i + 1)
			}
			mats[i] = quant.NewMatrix(data, height, width)
			qerrors[i] = quant.NewMatrix(make([]float32, height*width), height, width)
			imQerrors[i] = quant.NewMatrix(make([]float32, sliceHeight*width), sliceHeight, width)
			gradhists[i] = quant.NewMatrix(make([]float32, sliceHeight*width), sliceHeight, width)
		}

		errs := runOnAllRanks(size, func(rank int, transport Transport) error {
			r := Ring{Rank: rank, Size: size, Transport: transport}
			rng := quant.DefaultSampler(uint64(rank)+11, 3)
			return SumQuantized(r, mats[rank], qerrors[rank], imQerrors[rank], false, rng, adaGrad, gradhists[rank])
		})
		for _, e := range errs {
			require.NoError(t, e, "adaGrad=%v", adaGrad)
		}

		for i := 1; i < size; i++ {
			assert.Equal(t, mats[0].Data, mats[i].Data, "adaGrad=%v: peer %d diverged from peer 0", adaGrad, i)
		}
	}
}
