// Package job defines the unit of work exchanged between the server's
// dispatch engine and a worker: its identity, its lifecycle status, and
// the two concrete payload shapes (histogram / equalisation) carried
// inside a Job and its matching Result.
package job

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/histeq/cluster/internal/histogram"
)

// Kind distinguishes the two job shapes of the two-wave pipeline.
type Kind int

const (
	// Histogram jobs ask a worker to compute the lightness histogram
	// of one image. Every image in a run gets exactly one.
	Histogram Kind = iota
	// Equalisation jobs ask a worker to remap one image's pixels
	// through a mapping and write the result. Every image in a run
	// gets exactly one, once every Histogram job has completed.
	Equalisation
)

func (k Kind) String() string {
	switch k {
	case Histogram:
		return "histogram"
	case Equalisation:
		return "equalisation"
	default:
		return fmt.Sprintf("job.Kind(%d)", int(k))
	}
}

// Key identifies a job and its result without a back-reference between
// the two types: a (Kind, Filename) pair is unique within a run, since
// every image gets exactly one job of each kind.
type Key struct {
	Kind     Kind
	Filename string
}

// Hash returns a fast, well-distributed hash of the key suitable for
// backlog membership tests that don't need Filename itself, only
// equality.
func (k Key) Hash() uint64 {
	d := xxhash.New()
	d.Write([]byte{byte(k.Kind), 0})
	d.Write([]byte(k.Filename))
	return d.Sum64()
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.Kind, k.Filename)
}

// Status tracks a job through the dispatch engine's bookkeeping,
// mirroring the pending/in-flight/completed/dead lifecycle but without
// a "dead" terminal state: a worker that dies mid-job has its jobs
// requeued, not failed, since there is no retry-count cap in this
// pipeline — only worker liveness decides whether a job moves on.
type Status int

const (
	Pending Status = iota
	InFlight
	Completed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case InFlight:
		return "in_flight"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("job.Status(%d)", int(s))
	}
}

// Job is one unit of dispatch-engine work. Mapping is populated only
// for Equalisation jobs. A Job holds no image bytes: the server attaches
// the raw image to every Job command it sends, of either kind, so a
// worker keeps no image data between jobs.
type Job struct {
	Key
	Mapping histogram.Mapping

	Status    Status
	WorkerID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Result is what a worker reports back for a Job. Histogram is
// populated only for Histogram jobs; Equalised is populated only for
// Equalisation jobs (the final TIFF-encoded bytes).
type Result struct {
	Key
	Histogram histogram.Histogram
	Equalised []byte

	WorkerID string
	Err      error
}

// Matches reports whether r answers j, using Key equality in place of
// the visitor/friend-class back-reference the original design relied
// on.
func (j Job) Matches(r Result) bool {
	return j.Key == r.Key
}
