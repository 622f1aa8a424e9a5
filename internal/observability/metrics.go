package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EmergenciesCreated   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ambulance_dispatch", Name: "emergencies_created_total", Help: "Total emergency requests created"})
	EmergenciesAccepted  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ambulance_dispatch", Name: "emergencies_accepted_total", Help: "Total emergency requests accepted"})
	EmergenciesCompleted = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ambulance_dispatch", Name: "emergencies_completed_total", Help: "Total emergency requests completed"})
	ReservationConflicts = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ambulance_dispatch", Name: "reservation_conflicts_total", Help: "Ambulance reservations lost to a concurrent accept"})
	PositionReports      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ambulance_dispatch", Name: "position_reports_total", Help: "Ambulance position reports ingested"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ambulance_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ambulance_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
