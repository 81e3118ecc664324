package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialfeed_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// WebSocketConnectionsTotal is the gauge of active feed WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "socialfeed_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// BroadcastEventsTotal counts post events fanned out by the hub, by action.
	BroadcastEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialfeed_broadcast_events_total",
		Help: "Total post events broadcast to connected clients",
	}, []string{"action"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialfeed_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// PostOperationsTotal counts post lifecycle operations by operation and outcome.
	PostOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialfeed_post_operations_total",
		Help: "Total post lifecycle operations by outcome",
	}, []string{"operation", "outcome"})

	// ReconcileRepairsTotal counts postIds repairs made by the reconciler.
	ReconcileRepairsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialfeed_reconcile_repairs_total",
		Help: "Total post reference repairs made by the reconciler",
	}, []string{"kind"})

	// RateLimitRejections counts requests turned away by the limiter.
	RateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialfeed_rate_limit_rejections_total",
		Help: "Total requests rejected by the rate limiter by resource and reason",
	}, []string{"resource", "reason"})

	// ImageCleanupFailures counts best-effort image deletions that failed.
	ImageCleanupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socialfeed_image_cleanup_failures_total",
		Help: "Total number of failed best-effort image deletions",
	})
)
