package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "webaffe", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "webaffe", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	SignInAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "webaffe", Name: "signin_attempts_total", Help: "Sign-in attempts by method and outcome."},
		[]string{"method", "outcome"},
	)
	SessionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "webaffe", Name: "session_transitions_total", Help: "Identity-change transitions by resulting phase."},
		[]string{"phase"},
	)
	ProfileStoreFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "webaffe", Name: "profile_store_failures_total", Help: "Profile and config store failures by operation."},
		[]string{"op"},
	)
	BoardMoves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "webaffe", Name: "board_moves_total", Help: "Board status changes by board kind and target status."},
		[]string{"kind", "status"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(SignInAttempts)
	reg.MustRegister(SessionTransitions)
	reg.MustRegister(ProfileStoreFailures)
	reg.MustRegister(BoardMoves)
}
