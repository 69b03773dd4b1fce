package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Manager metrics
	JobsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flock_jobs_total",
			Help: "Number of jobs in the run by current status",
		},
		[]string{"status"},
	)

	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flock_nodes_total",
			Help: "Number of worker nodes by liveness classification",
		},
		[]string{"state"},
	)

	AssignmentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flock_assignments_total",
			Help: "Total number of job assignments performed",
		},
	)

	JobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flock_jobs_finished_total",
			Help: "Total number of jobs reaching a terminal status",
		},
		[]string{"status"},
	)

	ReconcileCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flock_reconcile_cycles_total",
			Help: "Total number of reconciliation cycles completed",
		},
	)

	ReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flock_reconcile_duration_seconds",
			Help:    "Time taken for a reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Worker metrics
	JobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flock_job_duration_seconds",
			Help:    "Wall-clock duration of job executions in seconds",
			Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 300, 600, 1800},
		},
	)

	JobsExecutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flock_jobs_executed_total",
			Help: "Total number of jobs executed by this worker by result status",
		},
		[]string{"status"},
	)

	HeartbeatsWrittenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flock_heartbeats_written_total",
			Help: "Total number of heartbeat documents written",
		},
	)

	HeartbeatWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flock_heartbeat_write_failures_total",
			Help: "Total number of failed heartbeat write attempts",
		},
	)
)

func init() {
	prometheus.MustRegister(JobsTotal)
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(AssignmentsTotal)
	prometheus.MustRegister(JobsFinishedTotal)
	prometheus.MustRegister(ReconcileCyclesTotal)
	prometheus.MustRegister(ReconcileDuration)
	prometheus.MustRegister(JobDuration)
	prometheus.MustRegister(JobsExecutedTotal)
	prometheus.MustRegister(HeartbeatsWrittenTotal)
	prometheus.MustRegister(HeartbeatWriteFailures)
}

// Handler returns the HTTP handler for the /metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a metrics listener on addr. It blocks, so callers run it in
// a goroutine; errors are returned for the caller to log.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}

// Timer measures operation duration for histogram observation
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer starting now
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time in the given histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
