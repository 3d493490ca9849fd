package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Batch metrics, one label per engine component
	// (http-monitors, due-tasks, late-tasks, absent-tasks,
	// dead-task-runs, incident-notifications).
	BatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_batches_total",
			Help: "Total number of executed batches by component and result",
		},
		[]string{"component", "result"},
	)

	BatchItemsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_batch_items_processed_total",
			Help: "Total number of items processed by component",
		},
		[]string{"component"},
	)

	BatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vigil_batch_duration_seconds",
			Help:    "Time taken to execute one batch in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"component"},
	)

	// Probe metrics
	ProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_probes_total",
			Help: "Total number of HTTP probes by result (ok or error kind)",
		},
		[]string{"result"},
	)

	ProbeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vigil_probe_duration_seconds",
			Help:    "HTTP probe round-trip time in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// Monitor state machine metrics
	MonitorTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_monitor_transitions_total",
			Help: "Total number of monitor status transitions by target status",
		},
		[]string{"to"},
	)

	// Incident metrics
	IncidentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_incidents_total",
			Help: "Total number of incident lifecycle actions",
		},
		[]string{"action"},
	)

	// Notification metrics
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_notifications_total",
			Help: "Total number of notification sends by channel and result",
		},
		[]string{"channel", "result"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(BatchesTotal)
	prometheus.MustRegister(BatchItemsProcessed)
	prometheus.MustRegister(BatchDuration)
	prometheus.MustRegister(ProbesTotal)
	prometheus.MustRegister(ProbeDuration)
	prometheus.MustRegister(MonitorTransitionsTotal)
	prometheus.MustRegister(IncidentsTotal)
	prometheus.MustRegister(NotificationsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed time for histogram observations
type Timer struct {
	start time.Time
}

// NewTimer creates a timer starting now
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Start returns the timer's start time
func (t *Timer) Start() time.Time {
	return t.start
}

// ObserveDuration records the elapsed time on the given observer
func (t *Timer) ObserveDuration(obs prometheus.Observer) {
	obs.Observe(time.Since(t.start).Seconds())
}
