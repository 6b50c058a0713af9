package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decklens_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "decklens_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	decklistsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decklens_decklists_processed_total",
			Help: "Total number of decklist images processed",
		},
		[]string{"status"}, // status: success, error
	)

	processingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "decklens_processing_duration_seconds",
			Help:    "Decklist processing duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 25, 50, 100},
		},
		[]string{"mode"}, // mode: single, batch, stream, websocket
	)

	matchAccuracy = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "decklens_match_accuracy_percent",
			Help:    "Per-decklist match accuracy",
			Buckets: []float64{0, 10, 25, 50, 75, 90, 95, 99, 100},
		},
	)

	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "decklens_upload_size_bytes",
			Help:    "Size of uploaded files in bytes",
			Buckets: []float64{1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024, 50 * 1024 * 1024},
		},
	)

	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "decklens_websocket_connections",
			Help: "Number of active WebSocket connections",
		},
	)
)
