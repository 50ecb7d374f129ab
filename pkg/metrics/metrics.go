package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Store metrics
	Saves = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ballast_store_saves_total",
			Help: "Total number of successful resource saves",
		},
	)

	SaveFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ballast_store_save_failures_total",
			Help: "Total number of failed resource saves",
		},
	)

	LoadFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ballast_store_load_failures_total",
			Help: "Total number of resource loads that fell back to the default",
		},
	)

	Quarantines = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ballast_store_quarantines_total",
			Help: "Total number of corrupt resource files quarantined",
		},
	)

	// Integrity metrics
	FixesApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ballast_integrity_fixes_total",
			Help: "Total number of integrity fixes by kind",
		},
		[]string{"kind"},
	)

	// Sync engine metrics
	SyncQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ballast_sync_queue_depth",
			Help: "Number of sync tasks currently queued",
		},
	)

	SyncPushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ballast_sync_pushes_total",
			Help: "Total number of mirror pushes by status",
		},
		[]string{"status"},
	)

	SyncRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ballast_sync_retries_total",
			Help: "Total number of mirror push retries",
		},
	)

	SyncPushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ballast_sync_push_duration_seconds",
			Help:    "Mirror push duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Admission metrics
	AdmissionDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ballast_admission_denials_total",
			Help: "Total number of denied actions by reason",
		},
		[]string{"reason"},
	)

	AdmissionAllowed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ballast_admission_allowed_total",
			Help: "Total number of allowed actions",
		},
	)

	// Backup metrics
	BackupsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ballast_backups_total",
			Help: "Total number of backup archives created by trigger",
		},
		[]string{"trigger"},
	)

	BackupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ballast_backup_duration_seconds",
			Help:    "Snapshot creation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RestoresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ballast_restores_total",
			Help: "Total number of archive restores performed",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(Saves)
	prometheus.MustRegister(SaveFailures)
	prometheus.MustRegister(LoadFailures)
	prometheus.MustRegister(Quarantines)
	prometheus.MustRegister(FixesApplied)
	prometheus.MustRegister(SyncQueueDepth)
	prometheus.MustRegister(SyncPushes)
	prometheus.MustRegister(SyncRetries)
	prometheus.MustRegister(SyncPushDuration)
	prometheus.MustRegister(AdmissionDenials)
	prometheus.MustRegister(AdmissionAllowed)
	prometheus.MustRegister(BackupsCreated)
	prometheus.MustRegister(BackupDuration)
	prometheus.MustRegister(RestoresTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures a duration for histogram observation
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time into a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(t.Duration().Seconds())
}
