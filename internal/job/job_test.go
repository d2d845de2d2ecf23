package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyEquality(t *testing.T) {
	a := Key{Kind: Histogram, Filename: "a.tiff"}
	b := Key{Kind: Histogram, Filename: "a.tiff"}
	c := Key{Kind: Equalisation, Filename: "a.tiff"}

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestKeyHashStableAndDistinguishesKind(t *testing.T) {
	a := Key{Kind: Histogram, Filename: "a.tiff"}
	b := Key{Kind: Histogram, Filename: "a.tiff"}
	c := Key{Kind: Equalisation, Filename: "a.tiff"}

	assert.Equal(t, a.Hash(), b.Hash())
	assert.NotEqual(t, a.Hash(), c.Hash())
}

func TestJobMatchesResultByKeyOnly(t *testing.T) {
	j := Job{Key: Key{Kind: Histogram, Filename: "x.png"}, Status: Pending}
	matching := Result{Key: Key{Kind: Histogram, Filename: "x.png"}}
	other := Result{Key: Key{Kind: Histogram, Filename: "y.png"}}

	assert.True(t, j.Matches(matching))
	assert.False(t, j.Matches(other))
}

func TestKindAndStatusString(t *testing.T) {
	assert.Equal(t, "histogram", Histogram.String())
	assert.Equal(t, "equalisation", Equalisation.String())
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "in_flight", InFlight.String())
	assert.Equal(t, "completed", Completed.String())
}
