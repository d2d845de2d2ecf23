package worker

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/histeq/cluster/internal/job"
	"github.com/histeq/cluster/internal/transport"
	"github.com/histeq/cluster/internal/wire"
)

func smallPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 3, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			img.Set(x, y, color.Gray{Y: uint8(x * 80)})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// TestRuntimeHandshakeAndOneHistogramJob drives a Runtime against a
// hand-rolled fake server speaking the same wire protocol: HELO/EHLO,
// one Job/Result exchange, then BYE. It exercises the full worker-side
// stack (transport, wire codec, pool) without depending on the real
// dispatch engine or server package.
func TestRuntimeHandshakeAndOneHistogramJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workRouter, err := transport.NewRouter(ctx, "tcp://127.0.0.1:42269")
	require.NoError(t, err)
	defer workRouter.Close()
	controlRouter, err := transport.NewRouter(ctx, "tcp://127.0.0.1:42270")
	require.NoError(t, err)
	defer controlRouter.Close()

	rt := NewRuntime(Config{
		WorkAddr:          "tcp://127.0.0.1:42269",
		ControlAddr:       "tcp://127.0.0.1:42270",
		Threads:           1,
		HeartbeatInterval: 200 * time.Millisecond,
	})

	runDone := make(chan error, 1)
	go func() { runDone <- rt.Run(ctx) }()

	// HELO
	identity, payload, err := workRouter.Recv()
	require.NoError(t, err)
	helo, err := wire.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, wire.Helo, helo.Tag)

	require.NoError(t, workRouter.Send(identity, wire.Encode(wire.Command{Tag: wire.Ehlo})))

	// Dispatch one histogram job.
	chunks, err := wire.Chunk(smallPNG(t))
	require.NoError(t, err)
	jobCmd := wire.Command{
		Tag:      wire.Job,
		JobKind:  job.Histogram,
		Filename: "a.png",
		Bulk:     chunks,
	}
	require.NoError(t, workRouter.Send(identity, wire.Encode(jobCmd)))

	_, resultPayload, err := workRouter.Recv()
	require.NoError(t, err)
	result, err := wire.Decode(resultPayload)
	require.NoError(t, err)
	assert.Equal(t, wire.Result, result.Tag)
	assert.Equal(t, "a.png", result.Filename)
	assert.InDelta(t, 1.0, result.Histogram.Sum(), 1e-9)

	require.NoError(t, workRouter.Send(identity, wire.Encode(wire.Command{Tag: wire.Bye})))

	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not shut down after BYE")
	}
}
