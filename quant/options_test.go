package quant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsResolveRejectsInvalidProportion(t *testing.T) {
	assert.Panics(t, func() {
		NewOptions(SchemeAdaptive, WithProportion(0))
	})
}

func TestQuantizeThresholdSchemeWithCompress(t *testing.T) {
	data := []float32{0.9, -0.9, 0.1, -0.1}
	src := NewMatrix(data, 4, 1)
	residual := NewMatrix(make([]float32, 4), 4, 1)

	o := NewOptions(SchemeThreshold, WithThresholds(0.5, -0.5), WithCompress(true))
	out, err := Quantize(o, src, residual, nil)
	require.NoError(t, err)

	decoded, err := Decompress(out)
	require.NoError(t, err)
	assert.Len(t, decoded, 2)
}

func TestQuantizeOneBitSchemeIgnoresCompress(t *testing.T) {
	data := []float32{1, -1, 1, -1}
	src := NewMatrix(data, 4, 1)
	residual := NewMatrix(make([]float32, 4), 4, 1)

	o := NewOptions(SchemeOneBit, WithCompress(true))
	out, err := Quantize(o, src, residual, nil)
	require.NoError(t, err)
	assert.Len(t, out, EncodedHeight(4))
}

func TestQuantizeAdaptiveSchemeDefaultProportion(t *testing.T) {
	data := make([]float32, 200)
	for i := range data {
		data[i] = float32(i%7) - 3
	}
	src := NewMatrix(data, 200, 1)
	residual := NewMatrix(make([]float32, 200), 200, 1)

	o := NewOptions(SchemeAdaptive)
	out, err := Quantize(o, src, residual, DefaultSampler(1, 2))
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}
