// Package dispatch implements the server's job queue and worker
// bookkeeping as a single actor goroutine: every mutation runs inside
// one loop, serialised through a channel of closures, so the engine
// never needs a mutex (recursive or otherwise) to stay consistent
// under concurrent callers.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/histeq/cluster/internal/job"
)

var (
	ErrUnknownWorker   = errors.New("dispatch: unknown worker")
	ErrDuplicateWorker = errors.New("dispatch: worker identity already connected")
	ErrWorkerFull      = errors.New("dispatch: worker backlog at capacity")
	ErrDuplicateJob    = errors.New("dispatch: duplicate job key")
	ErrUnknownResult   = errors.New("dispatch: result does not match any in-flight job")
)

// EventKind distinguishes the engine's observable lifecycle events,
// reported on Events() for the metrics and tracing layers to consume.
type EventKind int

const (
	WorkerJoined EventKind = iota
	WorkerDismissed
	JobRequeued
	JobCompleted
)

// Event is a single observable thing the engine did, emitted in the
// order it happened.
type Event struct {
	Kind     EventKind
	WorkerID string
	Key      job.Key
}

type workerInfo struct {
	id        string
	backlog   int
	lastSeen  time.Time
	dismissed bool
}

// state is the engine's entire mutable world. Every field is touched
// only from inside the actor loop in Start.
type state struct {
	maxWorkerQueue int

	queue     []job.Job
	inFlight  map[job.Key]job.Job
	completed map[job.Key]job.Result
	workers   map[string]*workerInfo
}

// Engine is the server's dispatch actor. Create with NewEngine, run
// with Start, and call the exported methods from any goroutine; each
// call blocks until the mutation has been applied inside the actor
// loop.
type Engine struct {
	heartbeatInterval time.Duration

	apply  chan func(*state)
	events chan Event

	st state
}

// NewEngine constructs an Engine. maxWorkerQueue caps how many jobs may
// be in flight at once for a single worker, matching MAX_WORKER_QUEUE.
// heartbeatInterval is the liveness window a worker must beat within to
// stay connected, matching MAX_HEARTBEAT_INTERVAL.
func NewEngine(maxWorkerQueue int, heartbeatInterval time.Duration) *Engine {
	return &Engine{
		heartbeatInterval: heartbeatInterval,
		apply:             make(chan func(*state)),
		events:            make(chan Event, 256),
		st: state{
			maxWorkerQueue: maxWorkerQueue,
			inFlight:       make(map[job.Key]job.Job),
			completed:      make(map[job.Key]job.Result),
			workers:        make(map[string]*workerInfo),
		},
	}
}

// Events returns the channel the engine reports WorkerJoined,
// WorkerDismissed, JobRequeued, and JobCompleted events on. The channel
// is closed when Start's context is cancelled and the loop exits.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Start runs the actor loop until ctx is cancelled. It is meant to be
// run in its own goroutine; every other Engine method is safe to call
// concurrently from other goroutines while Start is running.
func (e *Engine) Start(ctx context.Context) {
	ticker := time.NewTicker(e.heartbeatInterval)
	defer ticker.Stop()
	defer close(e.events)

	for {
		select {
		case <-ctx.Done():
			return
		case f := <-e.apply:
			f(&e.st)
		case now := <-ticker.C:
			e.sweepLiveness(now)
		}
	}
}

// do submits f to the actor loop and blocks until it has run.
func (e *Engine) do(f func(*state)) {
	done := make(chan struct{})
	e.apply <- func(s *state) {
		f(s)
		close(done)
	}
	<-done
}

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		// Events is sized generously for normal cluster sizes; a full
		// channel means no one is draining it, which is a caller bug,
		// not a reason to block the actor loop.
	}
}

// RegisterWorker admits a new worker identity, rejecting a HELO from an
// identity that is already connected and not yet dismissed.
func (e *Engine) RegisterWorker(id string) error {
	var err error
	e.do(func(s *state) {
		if w, ok := s.workers[id]; ok && !w.dismissed {
			err = fmt.Errorf("%w: %s", ErrDuplicateWorker, id)
			return
		}
		s.workers[id] = &workerInfo{id: id, lastSeen: time.Now()}
	})
	if err == nil {
		e.emit(Event{Kind: WorkerJoined, WorkerID: id})
	}
	return err
}

// Heartbeat records that id is still alive.
func (e *Engine) Heartbeat(id string) error {
	var err error
	e.do(func(s *state) {
		w, ok := s.workers[id]
		if !ok || w.dismissed {
			err = fmt.Errorf("%w: %s", ErrUnknownWorker, id)
			return
		}
		w.lastSeen = time.Now()
	})
	return err
}

// Dismiss removes a worker from the cluster, requeueing any job
// currently assigned to it. Used both for a graceful BYE and for a
// liveness-timeout dismissal.
func (e *Engine) Dismiss(id string) error {
	var err error
	var requeued []job.Key
	e.do(func(s *state) {
		requeued, err = dismissWorker(s, id)
	})
	if err != nil {
		return err
	}
	e.emit(Event{Kind: WorkerDismissed, WorkerID: id})
	for _, k := range requeued {
		e.emit(Event{Kind: JobRequeued, WorkerID: id, Key: k})
	}
	return nil
}

// dismissWorker mutates s directly and is called both from Dismiss
// (via do, from an external caller's goroutine) and from sweepLiveness
// (directly, since sweepLiveness already runs inside the actor loop
// and must not call back into do — that would deadlock waiting for the
// very loop iteration it is part of to read from apply).
func dismissWorker(s *state, id string) ([]job.Key, error) {
	w, ok := s.workers[id]
	if !ok || w.dismissed {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorker, id)
	}
	w.dismissed = true
	return requeueWorkerJobs(s, id), nil
}

func requeueWorkerJobs(s *state, workerID string) []job.Key {
	var requeued []job.Key
	for key, j := range s.inFlight {
		if j.WorkerID != workerID {
			continue
		}
		delete(s.inFlight, key)
		j.Status = job.Pending
		j.WorkerID = ""
		j.UpdatedAt = time.Now()
		s.queue = append(s.queue, j)
		requeued = append(requeued, key)
	}
	return requeued
}

// sweepLiveness runs on the actor goroutine itself (called directly
// from Start's select loop), so it mutates e.st in place rather than
// going through do.
func (e *Engine) sweepLiveness(now time.Time) {
	var stale []string
	for id, w := range e.st.workers {
		if !w.dismissed && now.Sub(w.lastSeen) > e.heartbeatInterval {
			stale = append(stale, id)
		}
	}

	for _, id := range stale {
		requeued, err := dismissWorker(&e.st, id)
		if err != nil {
			continue
		}
		e.emit(Event{Kind: WorkerDismissed, WorkerID: id})
		for _, k := range requeued {
			e.emit(Event{Kind: JobRequeued, WorkerID: id, Key: k})
		}
	}
}

// Enqueue adds jobs to the FIFO queue. A key already present in the
// queue, in flight, or completed is rejected wholesale: the caller is
// expected to enqueue each wave's jobs exactly once.
func (e *Engine) Enqueue(jobs []job.Job) error {
	var err error
	e.do(func(s *state) {
		for _, j := range jobs {
			if _, ok := s.inFlight[j.Key]; ok {
				err = fmt.Errorf("%w: %s", ErrDuplicateJob, j.Key)
				return
			}
			if _, ok := s.completed[j.Key]; ok {
				err = fmt.Errorf("%w: %s", ErrDuplicateJob, j.Key)
				return
			}
			for _, queued := range s.queue {
				if queued.Key == j.Key {
					err = fmt.Errorf("%w: %s", ErrDuplicateJob, j.Key)
					return
				}
			}
		}
		now := time.Now()
		for _, j := range jobs {
			j.Status = job.Pending
			j.CreatedAt, j.UpdatedAt = now, now
			s.queue = append(s.queue, j)
		}
	})
	return err
}

// Claim assigns the next pending job to workerID, subject to its
// per-worker backlog cap. ok is false when the worker has no room for
// another job or the queue is empty; it is not an error for a worker
// to poll and find nothing to do.
func (e *Engine) Claim(workerID string) (j job.Job, ok bool, err error) {
	e.do(func(s *state) {
		w, known := s.workers[workerID]
		if !known || w.dismissed {
			err = fmt.Errorf("%w: %s", ErrUnknownWorker, workerID)
			return
		}
		if w.backlog >= s.maxWorkerQueue {
			return
		}
		if len(s.queue) == 0 {
			return
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		next.Status = job.InFlight
		next.WorkerID = workerID
		next.UpdatedAt = time.Now()
		s.inFlight[next.Key] = next
		w.backlog++

		j, ok = next, true
	})
	return j, ok, err
}

// Report records a worker's result for an in-flight job. It is an
// error for a result to arrive with no matching in-flight job: the job
// was requeued after its worker's dismissal and not yet claimed again,
// or it has already completed. A late result for a job that was
// requeued and then claimed by another worker does match and is
// accepted.
func (e *Engine) Report(r job.Result) error {
	var err error
	e.do(func(s *state) {
		j, ok := s.inFlight[r.Key]
		if !ok {
			err = fmt.Errorf("%w: %s", ErrUnknownResult, r.Key)
			return
		}
		delete(s.inFlight, r.Key)
		s.completed[r.Key] = r
		if w, ok := s.workers[j.WorkerID]; ok && w.backlog > 0 {
			w.backlog--
		}
	})
	if err == nil {
		e.emit(Event{Kind: JobCompleted, WorkerID: r.WorkerID, Key: r.Key})
	}
	return err
}

// Results returns every completed result of the given kind, in no
// particular order. Callers that need a stable order (wave 2's
// neighbour assignment) sort the caller's own copy.
func (e *Engine) Results(kind job.Kind) []job.Result {
	var out []job.Result
	e.do(func(s *state) {
		for _, r := range s.completed {
			if r.Kind == kind {
				out = append(out, r)
			}
		}
	})
	return out
}

// Snapshot is a point-in-time summary of the engine's state, used for
// status reporting and tests.
type Snapshot struct {
	QueueDepth    int
	InFlight      int
	Completed     int
	LiveWorkers   int
	WorkerBacklog map[string]int
}

// Snapshot returns the engine's current counts.
func (e *Engine) Snapshot() Snapshot {
	var snap Snapshot
	e.do(func(s *state) {
		snap.QueueDepth = len(s.queue)
		snap.InFlight = len(s.inFlight)
		snap.Completed = len(s.completed)
		snap.WorkerBacklog = make(map[string]int)
		for id, w := range s.workers {
			if w.dismissed {
				continue
			}
			snap.LiveWorkers++
			snap.WorkerBacklog[id] = w.backlog
		}
	})
	return snap
}

// LiveWorkerIDs returns the identities of every connected, non-dismissed
// worker, sorted for deterministic iteration (e.g. a BYE broadcast at
// end of run).
func (e *Engine) LiveWorkerIDs() []string {
	var ids []string
	e.do(func(s *state) {
		for id, w := range s.workers {
			if !w.dismissed {
				ids = append(ids, id)
			}
		}
	})
	sort.Strings(ids)
	return ids
}
