package ring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jmast/lbann/quant"
)

// TestPairwiseSumQuantizedAgreesAcrossPeers checks that PairwiseSumQuantized
// over 4 peers, each contributing an all-ones matrix (zero quantization
// error since every entry is already +1, the one-bit codec's positive
// reconstruction level), leaves every peer holding the exact elementwise
// sum of all 4 contributions.
func TestPairwiseSumQuantizedAgreesAcrossPeers(t *testing.T) {
	const size = 4
	const height = 5
	const width = 2

	transports := NewChannelRing(size)
	mats := make([]quant.Matrix, size)
	qerrors := make([]quant.Matrix, size)
	for i := 0; i < size; i++ {
		data := make([]float32, height*width)
		for j := range data {
			data[j] = 1
		}
		mats[i] = quant.NewMatrix(data, height, width)
		qerrors[i] = quant.NewMatrix(make([]float32, height*width), height, width)
	}

	errs := make([]error, size)
	var wg sync.WaitGroup
	for i := 0; i < size; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = PairwiseSumQuantized(transports[i], i, size, mats[i], qerrors[i], false, quant.DefaultSampler(uint64(i)+1, 5))
		}(i)
	}
	wg.Wait()
	for _, e := range errs {
		require.NoError(t, e)
	}

	for i := 0; i < size; i++ {
		for _, v := range mats[i].Data {
			assert.Equal(t, float32(size), v, "peer %d", i)
		}
	}
}
