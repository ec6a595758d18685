package common

import "github.com/prometheus/client_golang/prometheus"

const (
	HTTPRequestTotal           = "http_requests_total"
	HTTPRequestDurationSeconds = "http_request_duration_seconds"
	LoginTotal                 = "auth_login_total"
	SessionRefreshTotal        = "auth_session_refresh_total"
	SessionEvictionTotal       = "auth_session_eviction_total"
	SessionCleanupTotal        = "auth_session_cleanup_total"
)

var (
	PromCounters = map[string]*prometheus.CounterVec{
		HTTPRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: HTTPRequestTotal,
			Help: "Count of all HTTP requests",
		}, []string{"path", "code"}),
		LoginTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: LoginTotal,
			Help: "Count of successful logins",
		}, []string{"provider", "new_account"}),
		SessionRefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: SessionRefreshTotal,
			Help: "Count of successful refreshes",
		}, []string{"rotated"}),
		SessionEvictionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: SessionEvictionTotal,
			Help: "Count of sessions revoked by the per-account ceiling",
		}, []string{}),
		SessionCleanupTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: SessionCleanupTotal,
			Help: "Count of session rows deleted by cleanup",
		}, []string{"kind"}),
	}

	PromHistograms = map[string]*prometheus.HistogramVec{
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: HTTPRequestDurationSeconds,
			Help: "Duration of all HTTP requests",
		}, []string{"path", "code"}),
	}
)
