package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "openboard_ws_connections",
		Help: "Number of currently connected websocket clients.",
	})

	metricFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openboard_ws_frames_total",
		Help: "Inbound websocket frames by command and destination.",
	}, []string{"command", "destination"})

	metricFrameErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openboard_ws_frame_errors_total",
		Help: "Frames that failed dispatch, by destination.",
	}, []string{"destination"})

	metricOperations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "openboard_operations_appended_total",
		Help: "Drawing operations persisted to the sequenced log.",
	})

	metricBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "openboard_broadcast_deliveries_total",
		Help: "Payloads delivered to topic subscribers.",
	})
)
