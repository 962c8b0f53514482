// Package metrics defines the Prometheus instrumentation for each service
// binary. Every constructor takes an explicit registerer so tests can use an
// isolated registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// IngestMetrics instruments the alert ingestion service.
type IngestMetrics struct {
	AlertsReceived    *prometheus.CounterVec
	AlertsCorrelated  *prometheus.CounterVec
	ProcessingSeconds prometheus.Histogram
	FallbackCreates   prometheus.Counter
}

// NewIngestMetrics registers and returns the ingestion metrics.
func NewIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	return &IngestMetrics{
		AlertsReceived: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "alerts_received_total",
			Help: "Alerts accepted by severity.",
		}, []string{"severity"}),
		AlertsCorrelated: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "alerts_correlated_total",
			Help: "Correlation outcomes by result.",
		}, []string{"result"}),
		ProcessingSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "alert_processing_seconds",
			Help:    "End-to-end alert ingestion latency.",
			Buckets: prometheus.DefBuckets,
		}),
		FallbackCreates: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "alert_fallback_creates_total",
			Help: "Incidents created locally because incident management was unreachable.",
		}),
	}
}

// IncidentMetrics instruments the incident management service.
type IncidentMetrics struct {
	IncidentsCreated *prometheus.CounterVec
	ByStatus         *prometheus.GaugeVec
	MTTASeconds      prometheus.Histogram
	MTTRSeconds      prometheus.Histogram
	DependencyDegr   *prometheus.CounterVec
}

// NewIncidentMetrics registers and returns the incident metrics.
func NewIncidentMetrics(reg prometheus.Registerer) *IncidentMetrics {
	return &IncidentMetrics{
		IncidentsCreated: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "incidents_created_total",
			Help: "Incidents created by severity.",
		}, []string{"severity"}),
		ByStatus: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "incidents_by_status",
			Help: "Incidents currently in each lifecycle state.",
		}, []string{"status"}),
		MTTASeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "incident_mtta_seconds",
			Help:    "Time from incident creation to acknowledgment.",
			Buckets: prometheus.ExponentialBuckets(30, 2, 12),
		}),
		MTTRSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "incident_mttr_seconds",
			Help:    "Time from incident creation to resolution.",
			Buckets: prometheus.ExponentialBuckets(30, 2, 12),
		}),
		DependencyDegr: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "incident_dependency_degraded_total",
			Help: "Cross-service calls that failed and fell back.",
		}, []string{"dependency"}),
	}
}

// OncallMetrics instruments the on-call service.
type OncallMetrics struct {
	Requests        *prometheus.CounterVec
	Escalations     *prometheus.CounterVec
	Lookups         *prometheus.CounterVec
	ActiveSchedules prometheus.Gauge
	OverridesActive prometheus.Gauge
	RotationChanges *prometheus.CounterVec
}

// NewOncallMetrics registers and returns the on-call metrics.
func NewOncallMetrics(reg prometheus.Registerer) *OncallMetrics {
	return &OncallMetrics{
		Requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "oncall_requests_total",
			Help: "HTTP requests by method, endpoint and status.",
		}, []string{"method", "endpoint", "status"}),
		Escalations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "oncall_escalations_total",
			Help: "Escalations recorded by team.",
		}, []string{"team"}),
		Lookups: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "oncall_lookups_total",
			Help: "Current on-call lookups by team.",
		}, []string{"team"}),
		ActiveSchedules: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "oncall_active_schedules",
			Help: "Number of schedules currently defined.",
		}),
		OverridesActive: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "oncall_overrides_active",
			Help: "Number of non-expired overrides.",
		}),
		RotationChanges: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "oncall_rotation_changes_total",
			Help: "Observed primary rotation changes by team.",
		}, []string{"team"}),
	}
}

// NotifyMetrics instruments the notification service.
type NotifyMetrics struct {
	Sent *prometheus.CounterVec
}

// NewNotifyMetrics registers and returns the notification metrics.
func NewNotifyMetrics(reg prometheus.Registerer) *NotifyMetrics {
	return &NotifyMetrics{
		Sent: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Notification deliveries by channel and outcome.",
		}, []string{"channel", "status"}),
	}
}
