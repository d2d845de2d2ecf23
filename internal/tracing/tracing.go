// Package tracing records the coordinator/worker protocol's lifecycle
// events as structured actions via github.com/DistributedClocks/tracing,
// the same way a distributed-systems trace server is wired up: a
// per-process Tracer records typed action values, and a separate
// tracing server (not part of this module) correlates them into a
// causal timeline.
package tracing

import (
	"github.com/DistributedClocks/tracing"

	"github.com/histeq/cluster/internal/job"
)

// Config mirrors tracing.TracerConfig's fields that this module's CLI
// exposes; ServerAddress left empty disables tracing entirely (New
// then creates no library tracer, and every action method returns
// without recording anything).
type Config struct {
	ServerAddress  string
	TracerIdentity string
	Secret         []byte
}

// Tracer records protocol events for one process (the server or one
// worker).
type Tracer struct {
	t *tracing.Tracer
}

// New constructs a Tracer. identity should be "server" or the
// worker's generated identity string. An empty cfg.ServerAddress means
// no trace collector is configured for this run; New then returns a
// Tracer whose action methods are no-ops instead of dialing anything.
func New(cfg Config) *Tracer {
	if cfg.ServerAddress == "" {
		return &Tracer{}
	}
	return &Tracer{t: tracing.NewTracer(tracing.TracerConfig{
		ServerAddress:  cfg.ServerAddress,
		TracerIdentity: cfg.TracerIdentity,
		Secret:         cfg.Secret,
	})}
}

// Action types, one per protocol event worth correlating across the
// cluster. Field names double as the trace server's column headers.

type WorkerHelo struct {
	WorkerID string
}

type WorkerEhlo struct {
	WorkerID string
}

type JobDispatched struct {
	WorkerID string
	Kind     string
	Filename string
}

type ResultReceived struct {
	WorkerID string
	Kind     string
	Filename string
	Failed   bool
}

type HeartbeatSent struct {
	WorkerID string
	Load     int
}

type WorkerDismissed struct {
	WorkerID string
	Reason   string
}

type RunComplete struct {
	ImageCount int
}

func (t *Tracer) WorkerHelo(workerID string) {
	if t.t == nil {
		return
	}
	t.t.RecordAction(WorkerHelo{WorkerID: workerID})
}

func (t *Tracer) WorkerEhlo(workerID string) {
	if t.t == nil {
		return
	}
	t.t.RecordAction(WorkerEhlo{WorkerID: workerID})
}

func (t *Tracer) JobDispatched(workerID string, key job.Key) {
	if t.t == nil {
		return
	}
	t.t.RecordAction(JobDispatched{WorkerID: workerID, Kind: key.Kind.String(), Filename: key.Filename})
}

func (t *Tracer) ResultReceived(workerID string, key job.Key, failed bool) {
	if t.t == nil {
		return
	}
	t.t.RecordAction(ResultReceived{WorkerID: workerID, Kind: key.Kind.String(), Filename: key.Filename, Failed: failed})
}

func (t *Tracer) HeartbeatSent(workerID string, load int) {
	if t.t == nil {
		return
	}
	t.t.RecordAction(HeartbeatSent{WorkerID: workerID, Load: load})
}

func (t *Tracer) WorkerDismissed(workerID, reason string) {
	if t.t == nil {
		return
	}
	t.t.RecordAction(WorkerDismissed{WorkerID: workerID, Reason: reason})
}

func (t *Tracer) RunComplete(imageCount int) {
	if t.t == nil {
		return
	}
	t.t.RecordAction(RunComplete{ImageCount: imageCount})
}
