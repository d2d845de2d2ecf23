// Package metrics collects and exposes Prometheus counters, a latency
// histogram, and gauges describing the dispatch engine's job queue and
// connected worker pool.
//
// Metric categories:
//
//	Counters — monotonic totals:
//	  histeq_jobs_dispatched_total{kind}: jobs handed to a worker
//	  histeq_jobs_completed_total{kind}: results reported back
//	  histeq_jobs_requeued_total: jobs put back on the queue after a
//	    worker was dismissed mid-job
//	  histeq_workers_dismissed_total: workers removed from the cluster
//
//	Histogram — distribution:
//	  histeq_job_latency_seconds{kind}: wall time between dispatch and
//	    result, using Prometheus's default bucket layout
//
//	Gauges — point-in-time state:
//	  histeq_queue_depth: jobs waiting to be claimed
//	  histeq_jobs_in_flight: jobs currently assigned to a worker
//	  histeq_live_workers: connected, non-dismissed workers
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every metric this package exposes, registered
// against a single prometheus.Registerer so a test can construct more
// than one Collector without colliding on the global default registry.
type Collector struct {
	jobsDispatched   *prometheus.CounterVec
	jobsCompleted    *prometheus.CounterVec
	jobsRequeued     prometheus.Counter
	workersDismissed prometheus.Counter

	jobLatency *prometheus.HistogramVec

	queueDepth   prometheus.Gauge
	jobsInFlight prometheus.Gauge
	liveWorkers  prometheus.Gauge
}

// NewCollector builds a Collector and registers its metrics against
// reg. The CLI and the tests each pass a fresh prometheus.NewRegistry();
// the CLI then serves that same registry with StartServer.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		jobsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "histeq_jobs_dispatched_total",
			Help: "Total number of jobs handed to a worker, by kind.",
		}, []string{"kind"}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "histeq_jobs_completed_total",
			Help: "Total number of results reported back, by kind.",
		}, []string{"kind"}),
		jobsRequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "histeq_jobs_requeued_total",
			Help: "Total number of jobs put back on the queue after their worker was dismissed.",
		}),
		workersDismissed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "histeq_workers_dismissed_total",
			Help: "Total number of workers removed from the cluster, gracefully or by liveness timeout.",
		}),
		jobLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "histeq_job_latency_seconds",
			Help:    "Time between a job's dispatch and its result, by kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "histeq_queue_depth",
			Help: "Current number of jobs waiting to be claimed.",
		}),
		jobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "histeq_jobs_in_flight",
			Help: "Current number of jobs assigned to a worker.",
		}),
		liveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "histeq_live_workers",
			Help: "Current number of connected, non-dismissed workers.",
		}),
	}

	reg.MustRegister(
		c.jobsDispatched,
		c.jobsCompleted,
		c.jobsRequeued,
		c.workersDismissed,
		c.jobLatency,
		c.queueDepth,
		c.jobsInFlight,
		c.liveWorkers,
	)

	// Create each job kind's labelled series at zero so every metric
	// family is exposed before the first job is dispatched.
	for _, kind := range []string{"histogram", "equalisation"} {
		c.jobsDispatched.WithLabelValues(kind)
		c.jobsCompleted.WithLabelValues(kind)
		c.jobLatency.WithLabelValues(kind)
	}

	return c
}

// RecordDispatch records a job of the given kind being handed to a
// worker.
func (c *Collector) RecordDispatch(kind string) {
	c.jobsDispatched.WithLabelValues(kind).Inc()
}

// RecordCompleted records a job of the given kind completing after
// latencySeconds.
func (c *Collector) RecordCompleted(kind string, latencySeconds float64) {
	c.jobsCompleted.WithLabelValues(kind).Inc()
	c.jobLatency.WithLabelValues(kind).Observe(latencySeconds)
}

// RecordRequeued records one job being put back on the queue.
func (c *Collector) RecordRequeued() {
	c.jobsRequeued.Inc()
}

// RecordWorkerDismissed records one worker leaving the cluster.
func (c *Collector) RecordWorkerDismissed() {
	c.workersDismissed.Inc()
}

// UpdateQueueStats sets the current queue-depth, in-flight, and
// live-worker gauges from a dispatch.Snapshot-shaped summary.
func (c *Collector) UpdateQueueStats(queueDepth, inFlight, liveWorkers int) {
	c.queueDepth.Set(float64(queueDepth))
	c.jobsInFlight.Set(float64(inFlight))
	c.liveWorkers.Set(float64(liveWorkers))
}

// StartServer serves /metrics on port using the given registry's
// gatherer, blocking until the HTTP server exits.
func StartServer(port int, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, mux)
}
