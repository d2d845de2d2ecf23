package histogram

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nan() float64 {
	var zero float64
	return zero / zero
}

func TestIdentityMapping(t *testing.T) {
	m := Identity()
	require.NoError(t, m.Validate())
	for i, v := range m {
		assert.Equal(t, uint16(i), v)
	}
}

func TestMatchIdenticalHistogramsIsIdentity(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	samples := make([]float64, 5000)
	for i := range samples {
		samples[i] = r.Float64()
	}
	h := Build(samples)

	mapping, err := Match(h, h)
	require.NoError(t, err)
	require.NoError(t, mapping.Validate())

	// Both cursors walk identical cumulative sums in lockstep, so
	// matching a histogram against itself is exact identity, not an
	// approximation.
	for i, v := range mapping {
		assert.Equal(t, uint16(i), v, "bin %d", i)
	}
}

func TestMatchBrightnessShiftScenario(t *testing.T) {
	// Image A is uniformly gray at lightness 0.25, image B uniformly
	// gray at 0.75. Matching B against A should produce a mapping
	// that, applied to B, darkens it back down to ~0.25 rather than
	// leaving it at 0.75 or pushing it to white.
	a := Build(repeat(0.25, 1000))
	b := Build(repeat(0.75, 1000))

	mapping, err := Match(b, a)
	require.NoError(t, err)
	require.NoError(t, mapping.Validate())

	got := mapping.Apply(0.75)
	assert.InDelta(t, 0.25, got, 0.02, "expected B's populated bin to map near A's, got %v", got)
}

func repeat(v float64, n int) []float64 {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = v
	}
	return samples
}

func TestMatchIsMonotonicAndInRange(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	a := make([]float64, 4000)
	b := make([]float64, 4000)
	for i := range a {
		a[i] = r.Float64()
		skewed := r.Float64()
		b[i] = skewed * skewed
	}

	current := Build(a)
	previous := Build(b)

	mapping, err := Match(current, previous)
	require.NoError(t, err)
	assert.NoError(t, mapping.Validate())
}

func TestMatchRejectsMalformedHistogram(t *testing.T) {
	var current, previous Histogram
	// A NaN bin in current makes its cumulative mass NaN after the
	// first step, so the next three-way comparison against previous's
	// mass matches none of <, > or == and Match must fail.
	current[0] = nan()
	previous[0] = 1

	_, err := Match(current, previous)
	assert.Error(t, err)
}
