package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkAndUnchunkRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("x"), MaxChunkSize+10)
	chunks, err := Chunk(data)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
	assert.Equal(t, data, Unchunk(chunks))
}

func TestChunkEmptyProducesOneEmptyChunk(t *testing.T) {
	chunks, err := Chunk(nil)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Empty(t, chunks[0])
	assert.Empty(t, Unchunk(chunks))
}

func TestChunkSplitsAtExactBoundary(t *testing.T) {
	data := bytes.Repeat([]byte("y"), MaxChunkSize*3)
	chunks, err := Chunk(data)
	require.NoError(t, err)
	assert.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.Len(t, c, MaxChunkSize)
	}
}
