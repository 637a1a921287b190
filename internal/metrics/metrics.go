// Package metrics exposes the dispatcher's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the pipeline's counters and gauges behind one registry so
// tests can create collectors independently without duplicate registration.
type Collector struct {
	registry *prometheus.Registry

	jobsEnqueued  prometheus.Counter
	jobsCompleted prometheus.Counter
	jobsFailed    prometheus.Counter
	jobsRetried   prometheus.Counter
	jobDuration   prometheus.Histogram

	queueDepth  prometheus.Gauge
	workersIdle prometheus.Gauge
	workersBusy prometheus.Gauge
}

// NewCollector creates and registers the pipeline metrics.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		jobsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "testherd_jobs_enqueued_total",
			Help: "Commits accepted into the job queue.",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "testherd_jobs_completed_total",
			Help: "Jobs that produced a result set.",
		}),
		jobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "testherd_jobs_failed_total",
			Help: "Jobs that exhausted their retry budget.",
		}),
		jobsRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "testherd_jobs_retried_total",
			Help: "Jobs requeued after a worker failure or timeout.",
		}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "testherd_job_duration_seconds",
			Help:    "Wall-clock time from assignment to completion.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "testherd_queue_depth",
			Help: "Jobs waiting in the backlog.",
		}),
		workersIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "testherd_workers_idle",
			Help: "Registered workers currently idle.",
		}),
		workersBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "testherd_workers_busy",
			Help: "Registered workers currently running a job.",
		}),
	}

	c.registry.MustRegister(
		c.jobsEnqueued,
		c.jobsCompleted,
		c.jobsFailed,
		c.jobsRetried,
		c.jobDuration,
		c.queueDepth,
		c.workersIdle,
		c.workersBusy,
	)
	return c
}

func (c *Collector) JobEnqueued() { c.jobsEnqueued.Inc() }
func (c *Collector) JobFailed()   { c.jobsFailed.Inc() }
func (c *Collector) JobRetried()  { c.jobsRetried.Inc() }

// JobCompleted records a completion and its duration.
func (c *Collector) JobCompleted(d time.Duration) {
	c.jobsCompleted.Inc()
	c.jobDuration.Observe(d.Seconds())
}

// SetQueueDepth updates the backlog gauge.
func (c *Collector) SetQueueDepth(n int) { c.queueDepth.Set(float64(n)) }

// SetWorkers updates the worker pool gauges.
func (c *Collector) SetWorkers(idle, busy int) {
	c.workersIdle.Set(float64(idle))
	c.workersBusy.Set(float64(busy))
}

// Handler serves the collector's registry in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
