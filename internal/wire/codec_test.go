package wire

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/histeq/cluster/internal/histogram"
	"github.com/histeq/cluster/internal/job"
)

func appendUnknownVarintField(b []byte, field protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, field, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func TestRoundTripHelo(t *testing.T) {
	c := Command{Tag: Helo, Identity: "ABCDE"}
	decoded, err := Decode(Encode(c))
	require.NoError(t, err)
	assert.Equal(t, c, decoded)
}

func TestRoundTripBye(t *testing.T) {
	c := Command{Tag: Bye, Identity: "ABCDE", Err: "dismissed"}
	decoded, err := Decode(Encode(c))
	require.NoError(t, err)
	assert.Equal(t, c, decoded)
}

func TestRoundTripHeartbeatRequestAndReply(t *testing.T) {
	req := Command{Tag: Heartbeat, Identity: "ZZZZZ", Load: 7}
	decoded, err := Decode(Encode(req))
	require.NoError(t, err)
	assert.Equal(t, req, decoded)

	reply := Command{Tag: Heartbeat, Identity: "ZZZZZ", HeartbeatReply: true}
	decoded, err = Decode(Encode(reply))
	require.NoError(t, err)
	assert.Equal(t, reply, decoded)
}

func TestRoundTripHistogramJobWithBulk(t *testing.T) {
	c := Command{
		Tag:      Job,
		JobKind:  job.Histogram,
		Filename: "photo.jpeg",
		Bulk:     [][]byte{[]byte("chunk-one"), []byte("chunk-two"), {}},
	}
	decoded, err := Decode(Encode(c))
	require.NoError(t, err)
	assert.Equal(t, c.Key(), decoded.Key())
	assert.Equal(t, c.Bulk, decoded.Bulk)
}

func TestRoundTripEqualisationJobWithMapping(t *testing.T) {
	var m histogram.Mapping
	for i := range m {
		m[i] = uint16(histogram.Segments - 1 - i)
	}
	c := Command{
		Tag:      Job,
		JobKind:  job.Equalisation,
		Filename: "photo.jpeg",
		Mapping:  m,
	}
	decoded, err := Decode(Encode(c))
	require.NoError(t, err)
	assert.Equal(t, m, decoded.Mapping)
	assert.Equal(t, c.Key(), decoded.Key())
}

func TestRoundTripHistogramResult(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	samples := make([]float64, 1000)
	for i := range samples {
		samples[i] = r.Float64()
	}
	h := histogram.Build(samples)

	c := Command{
		Tag:       Result,
		JobKind:   job.Histogram,
		Filename:  "photo.jpeg",
		Histogram: h,
		Identity:  "ABCDE",
	}
	decoded, err := Decode(Encode(c))
	require.NoError(t, err)
	assert.Equal(t, h, decoded.Histogram)
}

func TestRoundTripEqualisationResultWithBulkAndError(t *testing.T) {
	c := Command{
		Tag:      Result,
		JobKind:  job.Equalisation,
		Filename: "photo.jpeg",
		Bulk:     [][]byte{make([]byte, 1024)},
		Err:      "decode failed",
	}
	decoded, err := Decode(Encode(c))
	require.NoError(t, err)
	assert.Equal(t, c.Bulk, decoded.Bulk)
	assert.Equal(t, c.Err, decoded.Err)
}

func TestDecodeRejectsTooManyChunks(t *testing.T) {
	c := Command{Tag: Job, JobKind: job.Histogram, Filename: "big.tiff"}
	for i := 0; i < MaxChunks+1; i++ {
		c.Bulk = append(c.Bulk, []byte{0})
	}
	_, err := Decode(Encode(c))
	assert.Error(t, err)
}

func TestDecodeRejectsTruncatedInput(t *testing.T) {
	c := Command{Tag: Helo, Identity: "ABCDE"}
	encoded := Encode(c)
	_, err := Decode(encoded[:len(encoded)-1])
	assert.Error(t, err)
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	c := Command{Tag: Ehlo, Identity: "ABCDE"}
	encoded := Encode(c)
	// Append an unknown varint field (field number 99) that a future
	// protocol revision might add; Decode must skip it rather than fail.
	encoded = appendUnknownVarintField(encoded, 99, 12345)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, c.Identity, decoded.Identity)
}
