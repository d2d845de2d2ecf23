package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/histeq/cluster/internal/identity"
	"github.com/histeq/cluster/internal/job"
	"github.com/histeq/cluster/internal/tracing"
	"github.com/histeq/cluster/internal/transport"
	"github.com/histeq/cluster/internal/wire"
)

// ConnectionState tracks a worker's relationship to its server across
// one run. Transitions only ever move forward: a worker that loses its
// connection does not retry in place, it exits and lets whatever
// started it decide whether to run again.
type ConnectionState int

const (
	Unconnected ConnectionState = iota
	Connected
	Dying
)

// Config configures one worker run.
type Config struct {
	WorkAddr    string
	ControlAddr string
	Threads     int

	HeartbeatInterval time.Duration
	ConnectAttempts   uint

	Tracer *tracing.Tracer
}

// Runtime is one worker process's connection to a single server: its
// generated identity, its two dealer sockets, and the job pool
// executing whatever the server sends it.
type Runtime struct {
	cfg      Config
	identity string

	work    *transport.Dealer
	control *transport.Dealer
	pool    *Pool

	state   atomic.Int32
	backlog atomic.Int64
}

// NewRuntime constructs a Runtime. The worker identity is generated
// here, once, for the lifetime of the run.
func NewRuntime(cfg Config) *Runtime {
	if cfg.Threads <= 0 {
		cfg.Threads = 1
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 5 * time.Second
	}
	if cfg.ConnectAttempts == 0 {
		cfg.ConnectAttempts = 5
	}
	if cfg.Tracer == nil {
		cfg.Tracer = tracing.New(tracing.Config{})
	}
	return &Runtime{
		cfg:      cfg,
		identity: identity.New(),
		pool:     NewPool(cfg.Threads * 2),
	}
}

// State reports the runtime's current ConnectionState.
func (r *Runtime) State() ConnectionState {
	return ConnectionState(r.state.Load())
}

func (r *Runtime) setState(s ConnectionState) {
	r.state.Store(int32(s))
}

// Run connects to the server, completes the HELO/EHLO handshake,
// starts the job pool, and services work until ctx is cancelled or the
// server sends BYE. It returns nil on a clean BYE-initiated shutdown.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.connect(ctx); err != nil {
		return err
	}
	defer r.work.Close()
	defer r.control.Close()
	defer r.setState(Dying)

	if err := r.handshake(); err != nil {
		return err
	}
	r.setState(Connected)
	r.cfg.Tracer.WorkerEhlo(r.identity)

	if err := r.pool.Start(ctx, r.cfg.Threads); err != nil {
		return fmt.Errorf("worker: start pool: %w", err)
	}
	defer r.pool.Stop()

	// sendResults and heartbeatLoop run against their own context so
	// that a BYE (which only ends recvLoop) stops them too, instead of
	// leaving them blocked on the server's control/work sockets for
	// the lifetime of the outer ctx.
	bgCtx, stopBg := context.WithCancel(ctx)
	defer stopBg()

	done := make(chan error, 2)
	go func() { done <- r.sendResults(bgCtx) }()
	go func() { done <- r.heartbeatLoop(bgCtx) }()

	recvErr := r.recvLoop(ctx)
	stopBg()
	sendErr, heartbeatErr := <-done, <-done

	if recvErr != nil {
		return recvErr
	}
	if sendErr != nil {
		return sendErr
	}
	return heartbeatErr
}

func (r *Runtime) connect(ctx context.Context) error {
	var work, control *transport.Dealer
	err := retry.Do(
		func() error {
			work = transport.NewDealer(ctx, r.identity)
			if err := work.Dial(r.cfg.WorkAddr); err != nil {
				return err
			}
			control = transport.NewDealer(ctx, r.identity)
			if err := control.Dial(r.cfg.ControlAddr); err != nil {
				return err
			}
			return nil
		},
		retry.Attempts(r.cfg.ConnectAttempts),
		retry.Context(ctx),
	)
	if err != nil {
		return fmt.Errorf("worker: connect: %w", err)
	}
	r.work, r.control = work, control
	return nil
}

func (r *Runtime) handshake() error {
	if err := r.work.Send(wire.Encode(wire.Command{Tag: wire.Helo, Identity: r.identity})); err != nil {
		return fmt.Errorf("worker: send HELO: %w", err)
	}
	r.cfg.Tracer.WorkerHelo(r.identity)

	payload, err := r.work.Recv()
	if err != nil {
		return fmt.Errorf("worker: recv EHLO: %w", err)
	}
	cmd, err := wire.Decode(payload)
	if err != nil {
		return fmt.Errorf("worker: decode EHLO: %w", err)
	}
	if cmd.Tag != wire.Ehlo {
		return fmt.Errorf("worker: expected EHLO, got %v", cmd.Tag)
	}
	return nil
}

// recvLoop reads Job commands off the work socket and submits them to
// the pool until the server sends BYE or ctx is cancelled.
func (r *Runtime) recvLoop(ctx context.Context) error {
	for {
		payload, err := r.work.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("worker: recv: %w", err)
		}
		cmd, err := wire.Decode(payload)
		if err != nil {
			slog.Warn("worker: dropping malformed work frame", "error", err)
			continue
		}

		switch cmd.Tag {
		case wire.Job:
			r.backlog.Add(1)
			task := Task{
				Job: job.Job{
					Key:     cmd.Key(),
					Mapping: cmd.Mapping,
				},
				ImageData: wire.Unchunk(cmd.Bulk),
			}
			if err := r.pool.Submit(task); err != nil {
				return fmt.Errorf("worker: submit job: %w", err)
			}
		case wire.Bye:
			return nil
		default:
			// Unexpected tag on the work channel; ignore rather than
			// abort the run over a message this worker doesn't
			// understand yet.
		}
	}
}

// sendResults drains the pool's result channel and reports each one
// back to the server as a RESULT command.
func (r *Runtime) sendResults(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case result, ok := <-r.pool.Results():
			if !ok {
				return nil
			}
			r.backlog.Add(-1)
			cmd := wire.Command{
				Tag:      wire.Result,
				Identity: r.identity,
				JobKind:  result.Kind,
				Filename: result.Filename,
			}
			if result.Err != nil {
				cmd.Err = result.Err.Error()
			}
			switch result.Kind {
			case job.Histogram:
				cmd.Histogram = result.Histogram
			case job.Equalisation:
				chunks, err := wire.Chunk(result.Equalised)
				if err != nil {
					return fmt.Errorf("worker: chunk result: %w", err)
				}
				cmd.Bulk = chunks
			}
			if err := r.work.Send(wire.Encode(cmd)); err != nil {
				return fmt.Errorf("worker: send result: %w", err)
			}
			r.cfg.Tracer.ResultReceived(r.identity, result.Key, result.Err != nil)
		}
	}
}

// heartbeatLoop sends a HEARTBEAT request on the control socket every
// HeartbeatInterval/2 (so a single missed beat never alone trips the
// server's liveness sweep) and waits for the server's reply.
func (r *Runtime) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.HeartbeatInterval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			load := int(r.backlog.Load())
			err := r.control.Send(wire.Encode(wire.Command{
				Tag:      wire.Heartbeat,
				Identity: r.identity,
				Load:     load,
			}))
			if err != nil {
				return fmt.Errorf("worker: send heartbeat: %w", err)
			}
			r.cfg.Tracer.HeartbeatSent(r.identity, load)

			payload, err := r.control.Recv()
			if err != nil {
				return fmt.Errorf("worker: recv heartbeat reply: %w", err)
			}
			if _, err := wire.Decode(payload); err != nil {
				slog.Warn("worker: dropping malformed heartbeat reply", "error", err)
			}
		}
	}
}
