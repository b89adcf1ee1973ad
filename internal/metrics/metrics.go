package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// AttendanceMarks counts redemption attempts by outcome (marked, duplicate, invalid, closed, error).
	AttendanceMarks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_marks_total",
			Help: "Attendance redemption attempts by result",
		},
		[]string{"result"},
	)

	// QRTokensIssued counts QR tokens by kind (lecture, rotating).
	QRTokensIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qr_tokens_issued_total",
			Help: "QR tokens issued by kind",
		},
		[]string{"kind"},
	)

	WorkerEventsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_events_processed_total",
			Help: "Queue events handled by the worker",
		},
		[]string{"type", "result"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(AttendanceMarks)
	prometheus.MustRegister(QRTokensIssued)
	prometheus.MustRegister(WorkerEventsProcessed)
}
