package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests bind to loopback ports and exercise a full ROUTER/DEALER
// round trip end to end, the way the server and a single worker would
// talk to each other over one socket pair.

func TestRouterDealerRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router, err := NewRouter(ctx, "tcp://127.0.0.1:42169")
	require.NoError(t, err)
	defer router.Close()

	dealer := NewDealer(ctx, "ABCDE")
	defer dealer.Close()
	require.NoError(t, dealer.Dial("tcp://127.0.0.1:42169"))

	time.Sleep(50 * time.Millisecond) // allow the DEALER's connect handshake to land

	require.NoError(t, dealer.Send([]byte("hello from worker")))

	identity, payload, err := router.Recv()
	require.NoError(t, err)
	assert.Equal(t, "ABCDE", identity)
	assert.Equal(t, "hello from worker", string(payload))

	require.NoError(t, router.Send(identity, []byte("hello from server")))

	reply, err := dealer.Recv()
	require.NoError(t, err)
	assert.Equal(t, "hello from server", string(reply))
}
