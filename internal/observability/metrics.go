package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CandidateSearchesTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "candidate_searches_total", Help: "Total candidate searches served"})
	RequestsCreatedTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "search_requests_created_total", Help: "Total search requests created"})
	RedispatchesTotal      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "redispatches_total", Help: "Total redispatches performed"})
	ClaimConflictsTotal    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "claim_conflicts_total", Help: "Driver claims lost to a concurrent request"})
	ActiveBookings         = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_dispatch", Name: "active_bookings", Help: "Bookings currently in a non-terminal state"})

	NotifyFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "notify_failures_total", Help: "Best-effort notification publishes that failed"},
		[]string{"topic"},
	)
)
