// Package server implements the coordinator side of a run: it loads a
// directory of images, dispatches one histogram job and then one
// equalisation job per image across however many workers connect, and
// writes the equalised results back out once both waves finish.
package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/histeq/cluster/internal/dispatch"
	"github.com/histeq/cluster/internal/histogram"
	"github.com/histeq/cluster/internal/job"
	"github.com/histeq/cluster/internal/metrics"
	"github.com/histeq/cluster/internal/tracing"
	"github.com/histeq/cluster/internal/transport"
	"github.com/histeq/cluster/internal/wire"
)

// Config configures one Server.
type Config struct {
	WorkAddr    string
	ControlAddr string

	MaxWorkerQueue    int
	HeartbeatInterval time.Duration

	// Compare orders two filenames for wave 2's neighbour assignment;
	// defaults to plain lexicographic (<) order.
	Compare func(a, b string) bool

	Metrics *metrics.Collector
	Tracer  *tracing.Tracer
}

func (c *Config) setDefaults() {
	if c.MaxWorkerQueue <= 0 {
		c.MaxWorkerQueue = 32
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 5 * time.Second
	}
	if c.Compare == nil {
		c.Compare = func(a, b string) bool { return a < b }
	}
	if c.Tracer == nil {
		c.Tracer = tracing.New(tracing.Config{})
	}
}

// Server runs one image-equalisation job over a directory of images.
type Server struct {
	cfg Config

	engine        *dispatch.Engine
	workRouter    *transport.Router
	controlRouter *transport.Router

	workOut  chan workFrame
	needPush chan struct{}

	images    map[string][]byte
	filenames []string

	dispatchMu sync.Mutex
	dispatched map[job.Key]time.Time
}

type workFrame struct {
	identity string
	payload  []byte
}

// New constructs a Server. Call Serve to run it.
func New(cfg Config) *Server {
	cfg.setDefaults()
	return &Server{
		cfg:        cfg,
		workOut:    make(chan workFrame, 256),
		needPush:   make(chan struct{}, 1),
		dispatched: make(map[job.Key]time.Time),
	}
}

// markDispatched records when a job was handed to a worker, for the
// completion-latency metric recorded when its result arrives.
func (s *Server) markDispatched(key job.Key) {
	s.dispatchMu.Lock()
	s.dispatched[key] = time.Now()
	s.dispatchMu.Unlock()
}

// latencySince returns the time since key was dispatched, or 0 if no
// dispatch time is recorded for it. A job requeued after a worker
// dismissal and claimed again overwrites its timestamp, so its latency
// is measured from the latest dispatch.
func (s *Server) latencySince(key job.Key) float64 {
	s.dispatchMu.Lock()
	t, ok := s.dispatched[key]
	delete(s.dispatched, key)
	s.dispatchMu.Unlock()
	if !ok {
		return 0
	}
	return time.Since(t).Seconds()
}

// Serve loads every image in dir, runs the two-wave pipeline to
// completion, writes the equalised images to an "equalised"
// subdirectory of dir, and returns. It blocks until the run finishes,
// fails, or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, dir string) error {
	images, filenames, err := loadImages(dir)
	if err != nil {
		return err
	}
	if len(filenames) == 0 {
		// An empty wave has nothing to dispatch; return without binding
		// a single socket.
		return nil
	}
	s.images, s.filenames = images, filenames

	workRouter, err := transport.NewRouter(ctx, s.cfg.WorkAddr)
	if err != nil {
		return err
	}
	defer workRouter.Close()
	controlRouter, err := transport.NewRouter(ctx, s.cfg.ControlAddr)
	if err != nil {
		return err
	}
	defer controlRouter.Close()
	s.workRouter, s.controlRouter = workRouter, controlRouter

	s.engine = dispatch.NewEngine(s.cfg.MaxWorkerQueue, s.cfg.HeartbeatInterval)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	go s.engine.Start(runCtx)
	go s.runWorkSender(runCtx)
	go s.runPusher(runCtx)
	go s.runEventWatcher(runCtx)

	resultsCh := make(chan job.Result, len(filenames)*2)
	go s.runWorkLoop(runCtx, resultsCh)
	go s.runControlLoop(runCtx)

	wave1 := make([]job.Job, 0, len(filenames))
	for _, fn := range filenames {
		wave1 = append(wave1, job.Job{Key: job.Key{Kind: job.Histogram, Filename: fn}})
	}
	if err := s.engine.Enqueue(wave1); err != nil {
		return fmt.Errorf("server: enqueue wave 1: %w", err)
	}
	s.requestPush()

	histograms, err := s.awaitWave(ctx, resultsCh, job.Histogram)
	if err != nil {
		return err
	}

	wave2, err := s.buildEqualisationJobs(histograms)
	if err != nil {
		return err
	}
	if err := s.engine.Enqueue(wave2); err != nil {
		return fmt.Errorf("server: enqueue wave 2: %w", err)
	}
	s.requestPush()

	equalised, err := s.awaitEqualised(ctx, resultsCh)
	if err != nil {
		return err
	}

	if err := writeEqualised(dir, equalised); err != nil {
		return err
	}

	s.cfg.Tracer.RunComplete(len(filenames))
	s.dismissAll()
	return nil
}

// awaitWave blocks until every filename has a completed result of
// kind, returning the histograms keyed by filename.
func (s *Server) awaitWave(ctx context.Context, resultsCh <-chan job.Result, kind job.Kind) (map[string]histogram.Histogram, error) {
	out := make(map[string]histogram.Histogram, len(s.filenames))
	for len(out) < len(s.filenames) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r := <-resultsCh:
			if r.Kind != kind {
				continue
			}
			if r.Err != nil {
				return nil, fmt.Errorf("server: job %s failed: %w", r.Key, r.Err)
			}
			out[r.Filename] = r.Histogram
		}
	}
	return out, nil
}

func (s *Server) awaitEqualised(ctx context.Context, resultsCh <-chan job.Result) (map[string][]byte, error) {
	out := make(map[string][]byte, len(s.filenames))
	for len(out) < len(s.filenames) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r := <-resultsCh:
			if r.Kind != job.Equalisation {
				continue
			}
			if r.Err != nil {
				return nil, fmt.Errorf("server: job %s failed: %w", r.Key, r.Err)
			}
			out[r.Filename] = r.Equalised
		}
	}
	return out, nil
}

// buildEqualisationJobs assigns every image the mapping that matches
// its histogram against the previous image's in cfg.Compare order
// (lexicographic by default); the first image in sorted order is its
// own reference and gets the identity mapping.
func (s *Server) buildEqualisationJobs(histograms map[string]histogram.Histogram) ([]job.Job, error) {
	sorted := append([]string{}, s.filenames...)
	sort.Slice(sorted, func(i, j int) bool { return s.cfg.Compare(sorted[i], sorted[j]) })

	jobs := make([]job.Job, 0, len(sorted))
	for i, fn := range sorted {
		var mapping histogram.Mapping
		if i == 0 {
			mapping = histogram.Identity()
		} else {
			m, err := histogram.Match(histograms[fn], histograms[sorted[i-1]])
			if err != nil {
				return nil, fmt.Errorf("server: matching %s against %s: %w", fn, sorted[i-1], err)
			}
			mapping = m
		}
		jobs = append(jobs, job.Job{
			Key:     job.Key{Kind: job.Equalisation, Filename: fn},
			Mapping: mapping,
		})
	}
	return jobs, nil
}

func (s *Server) dismissAll() {
	for _, id := range s.engine.LiveWorkerIDs() {
		s.workOut <- workFrame{identity: id, payload: wire.Encode(wire.Command{Tag: wire.Bye})}
		_ = s.engine.Dismiss(id)
	}
}

func (s *Server) requestPush() {
	select {
	case s.needPush <- struct{}{}:
	default:
	}
}
