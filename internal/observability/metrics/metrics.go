package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	ReportsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devicepulse_reports_ingested_total",
			Help: "Telemetry reports received, by result and transport.",
		},
		[]string{"service", "transport", "result"},
	)

	ValidationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devicepulse_validation_failures_total",
			Help: "Rejected report fields.",
		},
		[]string{"service", "field"},
	)

	DevicesConnected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "devicepulse_devices_connected",
			Help: "Devices currently tracked as connected.",
		},
		[]string{"service"},
	)

	LivenessTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devicepulse_liveness_transitions_total",
			Help: "Device connect/disconnect transitions.",
		},
		[]string{"service", "state"},
	)
)

// Curried views; usable before MustRegister (tests) with an empty service label.
var (
	requests    *prometheus.CounterVec = HTTPRequestsTotal.MustCurryWith(prometheus.Labels{"service": ""})
	durations   prometheus.ObserverVec = HTTPRequestDurationSeconds.MustCurryWith(prometheus.Labels{"service": ""})
	ingested    *prometheus.CounterVec = ReportsIngestedTotal.MustCurryWith(prometheus.Labels{"service": ""})
	validation  *prometheus.CounterVec = ValidationFailuresTotal.MustCurryWith(prometheus.Labels{"service": ""})
	connected   prometheus.Gauge       = DevicesConnected.WithLabelValues("")
	transitions *prometheus.CounterVec = LivenessTransitionsTotal.MustCurryWith(prometheus.Labels{"service": ""})
)

func MustRegister(serviceName string) {
	labels := prometheus.Labels{"service": serviceName}
	requests = HTTPRequestsTotal.MustCurryWith(labels)
	durations = HTTPRequestDurationSeconds.MustCurryWith(labels)
	ingested = ReportsIngestedTotal.MustCurryWith(labels)
	validation = ValidationFailuresTotal.MustCurryWith(labels)
	connected = DevicesConnected.WithLabelValues(serviceName)
	transitions = LivenessTransitionsTotal.MustCurryWith(labels)

	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		ReportsIngestedTotal,
		ValidationFailuresTotal,
		DevicesConnected,
		LivenessTransitionsTotal,
	)
}

func ObserveRequest(method, path, status string, seconds float64) {
	requests.WithLabelValues(method, path, status).Inc()
	durations.WithLabelValues(method, path).Observe(seconds)
}

func ReportIngested(transport, result string) {
	ingested.WithLabelValues(transport, result).Inc()
}

func ValidationFailure(field string) {
	validation.WithLabelValues(field).Inc()
}

func SetDevicesConnected(n int) {
	connected.Set(float64(n))
}

func LivenessTransition(state string) {
	transitions.WithLabelValues(state).Inc()
}
