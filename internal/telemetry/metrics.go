package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsCreated          = prometheus.NewCounter(prometheus.CounterOpts{Name: "jobs_created_total", Help: "Jobs published"})
	ClaimsWon            = prometheus.NewCounter(prometheus.CounterOpts{Name: "job_claims_won_total", Help: "Claims that won the assignment race"})
	ClaimConflicts       = prometheus.NewCounter(prometheus.CounterOpts{Name: "job_claim_conflicts_total", Help: "Claims that lost the assignment race"})
	AssignmentConflicts  = prometheus.NewCounter(prometheus.CounterOpts{Name: "job_assign_conflicts_total", Help: "Assignments rejected by the store precondition"})
	LedgerAppendFailures = prometheus.NewCounter(prometheus.CounterOpts{Name: "activity_append_failures_total", Help: "Audit appends lost after a committed mutation"})
	ForbiddenRequests    = prometheus.NewCounter(prometheus.CounterOpts{Name: "requests_forbidden_total", Help: "Requests rejected by the authorization matrix"})
	RateLimitRejects     = prometheus.NewCounter(prometheus.CounterOpts{Name: "requests_rate_limited_total", Help: "Mutating requests rejected by the rate limiter"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsCreated,
			ClaimsWon,
			ClaimConflicts,
			AssignmentConflicts,
			LedgerAppendFailures,
			ForbiddenRequests,
			RateLimitRejects,
		)
	})
	return promhttp.Handler()
}
