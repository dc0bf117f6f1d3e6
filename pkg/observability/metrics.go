// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the polls server.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LookupBuckets defines histogram buckets for identity store lookups,
// ranging from 1ms to 5s.
var LookupBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polls_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polls_request_duration_seconds",
			Help:    "Request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// TokenVerificationsTotal counts bearer token checks by result
	// (absent, ok, malformed, bad_signature, expired).
	TokenVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polls_token_verifications_total",
			Help: "Token verifications",
		},
		[]string{"result"},
	)

	// PrincipalResolutionsTotal counts subject lookups by result
	// (ok, not_found, store_unavailable).
	PrincipalResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polls_principal_resolutions_total",
			Help: "Principal resolutions",
		},
		[]string{"result"},
	)

	// PrincipalLookupDuration records identity store lookup latency.
	PrincipalLookupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "polls_principal_lookup_duration_seconds",
			Help:    "Identity store lookup latency",
			Buckets: LookupBuckets,
		},
	)

	// AccessDecisionsTotal counts policy decisions by requirement kind and outcome.
	AccessDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polls_access_decisions_total",
			Help: "Access decisions",
		},
		[]string{"requirement", "outcome"},
	)

	// AccessDeniedTotal counts denial responses by reason code.
	AccessDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polls_access_denied_total",
			Help: "Access denied responses",
		},
		[]string{"reason"},
	)

	// TokensIssuedTotal counts access tokens issued at signin.
	TokensIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "polls_tokens_issued_total",
			Help: "Tokens issued",
		},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polls_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"endpoint"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		TokenVerificationsTotal,
		PrincipalResolutionsTotal,
		PrincipalLookupDuration,
		AccessDecisionsTotal,
		AccessDeniedTotal,
		TokensIssuedTotal,
		RateLimitRejectedTotal,
	)
}
