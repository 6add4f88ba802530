package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RealtimeConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	RealtimeConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_websocket_connections_total",
			Help: "Total number of WebSocket connections established",
		},
	)

	RealtimeDisconnections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_websocket_disconnections_total",
			Help: "Total number of WebSocket disconnections",
		},
		[]string{"reason"},
	)

	RealtimeAuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_websocket_auth_failures_total",
			Help: "Total number of rejected WebSocket handshakes",
		},
	)

	RealtimeMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_websocket_messages_total",
			Help: "Total number of WebSocket messages by type",
		},
		[]string{"message_type"},
	)

	RealtimeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_websocket_errors_total",
			Help: "Total number of WebSocket errors by type",
		},
		[]string{"error_type"},
	)

	RealtimeDroppedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_websocket_dropped_messages_total",
			Help: "Total number of messages dropped due to slow clients",
		},
		[]string{"message_type"},
	)

	RealtimeMessageProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "realtime_websocket_message_processing_duration_seconds",
			Help:    "Duration of WebSocket message processing in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"message_type"},
	)

	RealtimeProcessorQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_websocket_processor_queue_size",
			Help: "Current size of the WebSocket message processor queue",
		},
	)

	RealtimeRoomMembers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "realtime_room_members",
			Help: "Number of members per room kind",
		},
		[]string{"kind"},
	)

	RealtimeEventsBroadcast = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_broadcast_total",
			Help: "Total number of events broadcast to rooms",
		},
		[]string{"event_type"},
	)

	GeofenceTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_geofence_transitions_total",
			Help: "Total number of geofence enter/exit transitions",
		},
		[]string{"transition"},
	)

	PresenceStatusGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "realtime_presence_users",
			Help: "Number of users per presence status",
		},
		[]string{"status"},
	)

	PresenceLastSeenFlushes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_presence_last_seen_flushes_total",
			Help: "Total number of last-seen batch flushes to the database",
		},
	)

	PresenceLastSeenDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_presence_last_seen_dropped_total",
			Help: "Total number of last-seen updates dropped due to a full queue",
		},
	)

	BridgePublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_bridge_publishes_total",
			Help: "Total number of events published to the cross-instance bridge",
		},
		[]string{"event_type"},
	)

	BridgePublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_bridge_publish_errors_total",
			Help: "Total number of failed bridge publishes",
		},
	)

	BridgeRemoteEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_bridge_remote_events_total",
			Help: "Total number of events received from other instances",
		},
		[]string{"event_type"},
	)
)
