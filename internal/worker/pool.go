// Package worker implements the worker-side process: a small pool of
// goroutines executing histogram/equalisation jobs, and the connection
// runtime that speaks the coordinator protocol over two ZeroMQ dealer
// sockets.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/histeq/cluster/internal/imagedata"
	"github.com/histeq/cluster/internal/job"
)

var (
	ErrPoolNotStarted = errors.New("worker: pool not started")
	ErrPoolClosed     = errors.New("worker: pool closed")
)

// Task is one unit of work handed to the pool: a job plus the raw
// image bytes needed to execute it (resent by the server on every Job,
// since dispatch makes no promise that the same worker sees both of an
// image's jobs).
type Task struct {
	job.Job
	ImageData []byte
}

// Pool runs THREAD_COUNT goroutines pulling Tasks off a channel and
// pushing job.Result values onto another, the same shape as the
// teacher's worker pool but executing real image work instead of a
// simulated delay.
type Pool struct {
	tasks   chan Task
	results chan job.Result

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	started bool
	closed  bool
	mu      sync.Mutex
}

// NewPool creates a Pool with the given task/result channel buffer
// size. Call Start to spawn its worker goroutines.
func NewPool(bufferSize int) *Pool {
	return &Pool{
		tasks:   make(chan Task, bufferSize),
		results: make(chan job.Result, bufferSize),
	}
}

// Start spawns n worker goroutines, each running until ctx is
// cancelled or Stop is called. Start may only be called once.
func (p *Pool) Start(ctx context.Context, n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("worker: pool already started")
	}
	p.started = true

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.run(runCtx)
	}
	return nil
}

func (p *Pool) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-p.tasks:
			if !ok {
				return
			}
			result := execute(t)
			select {
			case p.results <- result:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Submit enqueues a task for execution. It returns ErrPoolNotStarted
// or ErrPoolClosed rather than blocking forever against a pool that
// will never drain. There is a benign race between this check and a
// concurrent Stop: Submit can still succeed in queuing a task an
// instant before Stop cancels the workers, in which case that task is
// simply never picked up — acceptable since Stop only runs at the end
// of a run, once the server has no more jobs to send.
func (p *Pool) Submit(t Task) error {
	p.mu.Lock()
	started, closed := p.started, p.closed
	p.mu.Unlock()
	if !started {
		return ErrPoolNotStarted
	}
	if closed {
		return ErrPoolClosed
	}
	p.tasks <- t
	return nil
}

// Results returns the channel workers publish completed job.Result
// values on.
func (p *Pool) Results() <-chan job.Result {
	return p.results
}

// Stop cancels every worker goroutine and waits for them to exit. It
// is safe to call more than once.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

// execute runs one task to completion, converting any decode/algorithm
// failure into a Result carrying an error instead of panicking the
// pool goroutine — a worker that can't process one image still needs
// to report back so the server doesn't wait on it forever.
func execute(t Task) job.Result {
	switch t.Kind {
	case job.Histogram:
		return executeHistogram(t)
	case job.Equalisation:
		return executeEqualisation(t)
	default:
		return job.Result{Key: t.Key, Err: fmt.Errorf("worker: unknown job kind %v", t.Kind)}
	}
}

func executeHistogram(t Task) job.Result {
	img, err := imagedata.Decode(t.Filename, bytes.NewReader(t.ImageData))
	if err != nil {
		return job.Result{Key: t.Key, Err: err}
	}
	return job.Result{Key: t.Key, Histogram: img.Histogram()}
}

func executeEqualisation(t Task) job.Result {
	img, err := imagedata.Decode(t.Filename, bytes.NewReader(t.ImageData))
	if err != nil {
		return job.Result{Key: t.Key, Err: err}
	}
	if err := t.Mapping.Validate(); err != nil {
		return job.Result{Key: t.Key, Err: fmt.Errorf("worker: invalid mapping for %s: %w", t.Filename, err)}
	}
	img.Equalise(t.Mapping)
	out, err := img.EncodeTIFF()
	if err != nil {
		return job.Result{Key: t.Key, Err: fmt.Errorf("worker: encode %s: %w", t.Filename, err)}
	}
	return job.Result{Key: t.Key, Equalised: out}
}
