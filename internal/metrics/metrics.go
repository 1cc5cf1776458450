package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "realtime_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_ws_active_connections",
		Help: "Users with a live websocket connection",
	})

	SupersededSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_ws_superseded_sessions_total",
		Help: "Connections replaced by a newer connection of the same user",
	})

	InboundEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_ws_inbound_events_total",
			Help: "Inbound websocket events",
		},
		[]string{"type"},
	)

	// route: live, push, failed
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_deliveries_total",
			Help: "Outgoing message deliveries by route",
		},
		[]string{"route"},
	)

	RoutingDegraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_routing_degraded_total",
			Help: "Best-effort delivery steps that failed after the message was stored",
		},
		[]string{"step"},
	)

	PushChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_push_chunks_total",
			Help: "Push gateway chunk submissions",
		},
		[]string{"result"},
	)

	PushMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_push_messages_total",
		Help: "Push messages submitted to the gateway",
	})

	ReminderRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_reminder_runs_total",
			Help: "Reminder sweeps",
		},
		[]string{"result"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_rate_limit_hits_total",
			Help: "Requests or events rejected by a rate limiter",
		},
		[]string{"scope"},
	)
)

// Handler returns an http.Handler for Prometheus scraping
func Handler() http.Handler {
	return promhttp.Handler()
}
