package histogram

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinBounds(t *testing.T) {
	assert.Equal(t, 0, Bin(0))
	assert.Equal(t, Segments-1, Bin(1))
	assert.Equal(t, 0, Bin(-1))
	assert.Equal(t, Segments-1, Bin(2))
}

func TestBuildEmptySamples(t *testing.T) {
	h := Build(nil)
	assert.Equal(t, float64(0), h.Sum())
	require.NoError(t, h.Validate())
}

func TestBuildSumsToOne(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	samples := make([]float64, 10000)
	for i := range samples {
		samples[i] = r.Float64()
	}

	h := Build(samples)
	require.NoError(t, h.Validate())
	assert.Less(t, math.Abs(1-h.Sum()), 1e-5)
}

func TestBuildNonNegative(t *testing.T) {
	h := Build([]float64{0, 0, 0.5, 1, 1})
	for i, v := range h {
		assert.GreaterOrEqual(t, v, float64(0), "bin %d", i)
	}
}

func TestBuildDeterministic(t *testing.T) {
	samples := []float64{0.1, 0.2, 0.3, 0.4, 0.9}
	first := Build(samples)
	second := Build(samples)
	assert.Equal(t, first, second)
}

func TestBuildSingleSample(t *testing.T) {
	h := Build([]float64{0.5})
	require.NoError(t, h.Validate())
	assert.InDelta(t, 1.0, h.Sum(), 1e-9)
	assert.Equal(t, float64(1), h[Bin(0.5)])
}

func TestValidateRejectsNegativeBin(t *testing.T) {
	var h Histogram
	h[0] = -0.1
	h[1] = 1.1
	err := h.Validate()
	assert.Error(t, err)
}
