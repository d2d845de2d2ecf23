package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/histeq/cluster/internal/dispatch"
	"github.com/histeq/cluster/internal/job"
	"github.com/histeq/cluster/internal/wire"
)

// runWorkSender is the single goroutine allowed to call
// workRouter.Send: every HELO reply, job dispatch, and BYE funnels
// through s.workOut so two goroutines never write the socket at once.
func (s *Server) runWorkSender(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-s.workOut:
			_ = s.workRouter.Send(frame.identity, frame.payload)
		}
	}
}

// runPusher reacts to requestPush signals (and a periodic safety-net
// tick, in case a signal was dropped while the channel was full) by
// offering every live worker as much work as its backlog allows.
func (s *Server) runPusher(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.needPush:
			s.pushAll()
		case <-ticker.C:
			s.pushAll()
		}
	}
}

func (s *Server) pushAll() {
	for _, id := range s.engine.LiveWorkerIDs() {
		s.attemptPush(id)
	}
	if s.cfg.Metrics != nil {
		snap := s.engine.Snapshot()
		s.cfg.Metrics.UpdateQueueStats(snap.QueueDepth, snap.InFlight, snap.LiveWorkers)
	}
}

// attemptPush claims jobs for id until the worker's backlog is full or
// the queue is empty, sending each one over the work channel.
func (s *Server) attemptPush(id string) {
	for {
		j, ok, err := s.engine.Claim(id)
		if err != nil || !ok {
			return
		}
		cmd := wire.Command{
			Tag:      wire.Job,
			JobKind:  j.Kind,
			Filename: j.Filename,
			Mapping:  j.Mapping,
		}
		if data, known := s.images[j.Filename]; known {
			chunks, err := wire.Chunk(data)
			if err == nil {
				cmd.Bulk = chunks
			}
		}
		s.markDispatched(j.Key)
		s.workOut <- workFrame{identity: id, payload: wire.Encode(cmd)}
		s.cfg.Tracer.JobDispatched(id, j.Key)
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.RecordDispatch(j.Kind.String())
		}
	}
}

// runWorkLoop owns the work Router's Recv side: HELO admits a worker,
// RESULT reports a finished job back to the engine and onto resultsCh,
// and BYE dismisses the worker.
func (s *Server) runWorkLoop(ctx context.Context, resultsCh chan<- job.Result) {
	for {
		identity, payload, err := s.workRouter.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Debug("server: work recv failed", "error", err)
			continue
		}
		cmd, err := wire.Decode(payload)
		if err != nil {
			slog.Warn("server: dropping malformed work frame", "identity", identity, "error", err)
			continue
		}

		switch cmd.Tag {
		case wire.Helo:
			if err := s.engine.RegisterWorker(identity); err != nil {
				continue
			}
			s.cfg.Tracer.WorkerHelo(identity)
			s.workOut <- workFrame{identity: identity, payload: wire.Encode(wire.Command{Tag: wire.Ehlo})}
			s.requestPush()

		case wire.Result:
			result := job.Result{
				Key:      cmd.Key(),
				WorkerID: identity,
			}
			switch cmd.JobKind {
			case job.Histogram:
				result.Histogram = cmd.Histogram
			case job.Equalisation:
				result.Equalised = wire.Unchunk(cmd.Bulk)
			}
			if cmd.Err != "" {
				result.Err = errors.New(cmd.Err)
			}
			if err := s.engine.Report(result); err != nil {
				continue
			}
			s.cfg.Tracer.ResultReceived(identity, result.Key, result.Err != nil)
			if s.cfg.Metrics != nil {
				s.cfg.Metrics.RecordCompleted(result.Kind.String(), s.latencySince(result.Key))
			}
			select {
			case resultsCh <- result:
			case <-ctx.Done():
				return
			}
			s.requestPush()

		case wire.Bye:
			_ = s.engine.Dismiss(identity)
			s.requestPush()
		}
	}
}

// runControlLoop owns the control Router: every Heartbeat request gets
// a reply, and a fresh heartbeat is also an opportunity to push more
// work at a worker that just reported spare capacity.
func (s *Server) runControlLoop(ctx context.Context) {
	for {
		identity, payload, err := s.controlRouter.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Debug("server: control recv failed", "error", err)
			continue
		}
		cmd, err := wire.Decode(payload)
		if err != nil {
			slog.Warn("server: dropping malformed control frame", "identity", identity, "error", err)
			continue
		}
		if cmd.Tag != wire.Heartbeat {
			continue
		}
		if err := s.engine.Heartbeat(identity); err != nil {
			slog.Debug("server: heartbeat from unregistered worker", "identity", identity, "error", err)
		}
		if err := s.controlRouter.Send(identity, wire.Encode(wire.Command{Tag: wire.Heartbeat, HeartbeatReply: true})); err != nil {
			slog.Debug("server: heartbeat reply send failed", "identity", identity, "error", err)
			continue
		}
		s.requestPush()
	}
}

// runEventWatcher turns dispatch.Engine lifecycle events into metrics
// and trace records.
func (s *Server) runEventWatcher(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.engine.Events():
			if !ok {
				return
			}
			switch ev.Kind {
			case dispatch.WorkerDismissed:
				if s.cfg.Metrics != nil {
					s.cfg.Metrics.RecordWorkerDismissed()
				}
				s.cfg.Tracer.WorkerDismissed(ev.WorkerID, "liveness timeout or BYE")
			case dispatch.JobRequeued:
				if s.cfg.Metrics != nil {
					s.cfg.Metrics.RecordRequeued()
				}
				s.requestPush()
			case dispatch.WorkerJoined, dispatch.JobCompleted:
				// No separate bookkeeping: WorkerJoined is traced at HELO
				// time in runWorkLoop, and JobCompleted's metrics are
				// recorded there too, where the result is already in hand.
			}
		}
	}
}
