// Package transport wraps the ZeroMQ ROUTER/DEALER sockets that carry
// the coordinator/worker protocol: one socket pair for job dispatch
// and bulk payloads, a second pair for control/heartbeat traffic, each
// a thin Router (server side) or Dealer (worker side) over
// github.com/go-zeromq/zmq4.
package transport

import (
	"context"
	"fmt"

	"github.com/go-zeromq/zmq4"
)

// Router is the server side of one socket pair. Every worker connected
// to it is addressed by the identity ZeroMQ tags onto inbound frames,
// which this wrapper surfaces as a plain string rather than making
// callers deal with raw ZMTP framing.
type Router struct {
	sock zmq4.Socket
}

// NewRouter binds a ROUTER socket at addr (e.g. "tcp://*:42069").
// IPv6 zone-suffixed addresses are passed through to zmq4 unmodified.
func NewRouter(ctx context.Context, addr string) (*Router, error) {
	sock := zmq4.NewRouter(ctx)
	if err := sock.Listen(addr); err != nil {
		return nil, fmt.Errorf("transport: router listen %s: %w", addr, err)
	}
	return &Router{sock: sock}, nil
}

// Recv blocks for the next inbound frame, returning the sender's
// identity and payload.
func (r *Router) Recv() (identity string, payload []byte, err error) {
	msg, err := r.sock.Recv()
	if err != nil {
		return "", nil, fmt.Errorf("transport: router recv: %w", err)
	}
	if len(msg.Frames) < 2 {
		return "", nil, fmt.Errorf("transport: router recv: expected identity + payload frames, got %d", len(msg.Frames))
	}
	return string(msg.Frames[0]), msg.Frames[1], nil
}

// Send routes payload to the worker known by identity.
func (r *Router) Send(identity string, payload []byte) error {
	msg := zmq4.NewMsgFrom([]byte(identity), payload)
	if err := r.sock.Send(msg); err != nil {
		return fmt.Errorf("transport: router send to %s: %w", identity, err)
	}
	return nil
}

// Close releases the underlying socket.
func (r *Router) Close() error {
	return r.sock.Close()
}

// Dealer is the worker side of one socket pair.
type Dealer struct {
	sock zmq4.Socket
}

// NewDealer creates a DEALER socket tagged with identity, so every
// frame it sends arrives at the Router already carrying that identity.
func NewDealer(ctx context.Context, identity string) *Dealer {
	sock := zmq4.NewDealer(ctx, zmq4.WithID(zmq4.SocketIdentity(identity)))
	return &Dealer{sock: sock}
}

// Dial connects to a server's Router socket at addr.
func (d *Dealer) Dial(addr string) error {
	if err := d.sock.Dial(addr); err != nil {
		return fmt.Errorf("transport: dealer dial %s: %w", addr, err)
	}
	return nil
}

// Send transmits payload to the connected Router.
func (d *Dealer) Send(payload []byte) error {
	if err := d.sock.Send(zmq4.NewMsg(payload)); err != nil {
		return fmt.Errorf("transport: dealer send: %w", err)
	}
	return nil
}

// Recv blocks for the next payload addressed to this dealer.
func (d *Dealer) Recv() ([]byte, error) {
	msg, err := d.sock.Recv()
	if err != nil {
		return nil, fmt.Errorf("transport: dealer recv: %w", err)
	}
	if len(msg.Frames) == 0 {
		return nil, fmt.Errorf("transport: dealer recv: empty message")
	}
	return msg.Frames[0], nil
}

// Close releases the underlying socket.
func (d *Dealer) Close() error {
	return d.sock.Close()
}
