package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics for scan processing and background work
var (
	ScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_scans_total",
			Help: "Total number of scan attempts by capture mode and outcome code",
		},
		[]string{"mode", "code"},
	)

	ScanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attendance_scan_duration_seconds",
			Help:    "Time from capture to outcome of a scan attempt",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	CameraSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "attendance_camera_sessions_active",
			Help: "Number of open camera capture sessions",
		},
	)

	CameraAttachAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "attendance_camera_attach_attempts",
			Help:    "Attach attempts needed per camera capture session",
			Buckets: []float64{1, 2, 3, 4, 6, 8},
		},
	)

	ReceiptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_receipts_total",
			Help: "Total number of receipt emails by result",
		},
		[]string{"result"},
	)

	EventsClosedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "attendance_events_auto_closed_total",
			Help: "Total number of events closed by the scheduler",
		},
	)
)

// Register registers all Prometheus metrics
func Register() {
	prometheus.MustRegister(ScansTotal)
	prometheus.MustRegister(ScanDuration)
	prometheus.MustRegister(CameraSessionsActive)
	prometheus.MustRegister(CameraAttachAttempts)
	prometheus.MustRegister(ReceiptsTotal)
	prometheus.MustRegister(EventsClosedTotal)
}

// ScanObserver feeds scan outcomes into ScansTotal and ScanDuration.
type ScanObserver struct{}

func (ScanObserver) ObserveScan(mode, code string, elapsed time.Duration) {
	ScansTotal.WithLabelValues(mode, code).Inc()
	ScanDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}
