package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds the client-side metrics. A nil *Registry is valid and
// records nothing.
type Registry struct {
	registry *prometheus.Registry

	APIRequestsTotal    *prometheus.CounterVec
	APIRequestDuration  *prometheus.HistogramVec
	TokenRefreshesTotal *prometheus.CounterVec
	SessionEndedTotal   prometheus.Counter
	SessionTransitions  *prometheus.CounterVec
	GatewayRequests     *prometheus.CounterVec
}

func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	factory := promauto.With(r.registry)

	r.APIRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenxcards_api_requests_total",
			Help: "Requests sent to the 10xCards API",
		},
		[]string{"method", "status"},
	)
	r.APIRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenxcards_api_request_duration_seconds",
			Help:    "Latency of requests sent to the 10xCards API",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
	r.TokenRefreshesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenxcards_token_refreshes_total",
			Help: "Access token refresh attempts by result",
		},
		[]string{"result"},
	)
	r.SessionEndedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "tenxcards_session_ended_total",
			Help: "Sessions terminated because the refresh token was rejected",
		},
	)
	r.SessionTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenxcards_session_transitions_total",
			Help: "Session state transitions by target state and cause",
		},
		[]string{"state", "cause"},
	)
	r.GatewayRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenxcards_gateway_requests_total",
			Help: "Requests served by the local gateway",
		},
		[]string{"method", "status"},
	)

	return r
}

// Gatherer exposes the underlying registry for promhttp.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

func (r *Registry) ObserveAPIRequest(method string, status int, dur time.Duration) {
	if r == nil {
		return
	}
	r.APIRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	r.APIRequestDuration.WithLabelValues(method).Observe(dur.Seconds())
}

func (r *Registry) TokenRefresh(result string) {
	if r == nil {
		return
	}
	r.TokenRefreshesTotal.WithLabelValues(result).Inc()
}

func (r *Registry) SessionEnded() {
	if r == nil {
		return
	}
	r.SessionEndedTotal.Inc()
}

func (r *Registry) SessionTransition(state, cause string) {
	if r == nil {
		return
	}
	r.SessionTransitions.WithLabelValues(state, cause).Inc()
}

func (r *Registry) GatewayRequest(method string, status int) {
	if r == nil {
		return
	}
	r.GatewayRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}
