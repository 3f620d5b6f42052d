package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pooling"

// Match outcomes
const (
	OutcomeJoined   = "joined"
	OutcomeCreated  = "created"
	OutcomeDeferred = "deferred"
	OutcomeFailed   = "failed"
)

var (
	// HTTP metrics
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)

	HttpRequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
		[]string{"service"},
	)

	// Pooling metrics
	MatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_match_total",
			Help:      "Ride match attempts by outcome",
		},
		[]string{"outcome"},
	)

	MatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pool_match_duration_seconds",
			Help:      "Time spent placing a ride into a pool",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	ConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_conflicts_total",
			Help:      "Version conflicts observed on pool writes",
		},
		[]string{"operation"},
	)

	ConstraintRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_constraint_rejections_total",
			Help:      "Joins refused because seat or luggage limits were reached",
		},
	)

	ExpiredPoolsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_expired_total",
			Help:      "Forming pools cancelled after their TTL elapsed",
		},
	)

	PricesBackfilledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_backfill_total",
			Help:      "Rides priced by the backfill worker",
		},
		[]string{"status"},
	)

	WebSocketConnectionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections_total",
			Help:      "Current number of active WebSocket connections",
		},
		[]string{"service"},
	)

	RabbitMQMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rabbitmq_messages_published_total",
			Help:      "Total number of messages published to RabbitMQ",
		},
		[]string{"service", "exchange", "status"},
	)

	RabbitMQMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rabbitmq_messages_consumed_total",
			Help:      "Total number of messages consumed from RabbitMQ",
		},
		[]string{"service", "queue", "status"},
	)

	KafkaMessagesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_messages_written_total",
			Help:      "Total number of pool events written to Kafka",
		},
		[]string{"topic", "status"},
	)
)

// RecordHTTPMetrics records HTTP request metrics
func RecordHTTPMetrics(service, method, path string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	HttpRequestsTotal.WithLabelValues(service, method, path, status).Inc()
	HttpRequestDuration.WithLabelValues(service, method, path, status).Observe(duration.Seconds())
}

// RecordMatch records the outcome of a single FindOrCreatePool call.
func RecordMatch(outcome string, duration time.Duration) {
	MatchTotal.WithLabelValues(outcome).Inc()
	MatchDuration.Observe(duration.Seconds())
}

func RecordConflict(operation string) {
	ConflictsTotal.WithLabelValues(operation).Inc()
}

func RecordConstraintRejection() {
	ConstraintRejectionsTotal.Inc()
}

func RecordExpired(n int) {
	ExpiredPoolsTotal.Add(float64(n))
}

func RecordBackfill(err error) {
	PricesBackfilledTotal.WithLabelValues(status(err)).Inc()
}

// RecordRabbitMQPublish records RabbitMQ publish metrics
func RecordRabbitMQPublish(service, exchange string, err error) {
	RabbitMQMessagesPublished.WithLabelValues(service, exchange, status(err)).Inc()
}

// RecordRabbitMQConsume records RabbitMQ consume metrics
func RecordRabbitMQConsume(service, queue string, err error) {
	RabbitMQMessagesConsumed.WithLabelValues(service, queue, status(err)).Inc()
}

func RecordKafkaWrite(topic string, err error) {
	KafkaMessagesWritten.WithLabelValues(topic, status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
