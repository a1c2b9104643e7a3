// Package metrics exposes the server's Prometheus instrumentation:
// connection lifecycle, stream registry state transitions, frame
// throughput/drops, and protocol-level error counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the server registers.
type Metrics struct {
	// Connection metrics
	ActiveConnections prometheus.Gauge
	ConnectionsTotal   prometheus.Counter
	Disconnects        prometheus.Counter
	ConnectionRejected *prometheus.CounterVec // reason: "max_connections", "command"
	HandshakeFailures  prometheus.Counter
	BytesReceived      prometheus.Counter
	BytesSent          prometheus.Counter

	// Stream registry metrics
	ActiveStreams     prometheus.Gauge
	PublishesTotal    prometheus.Counter
	PublishRejected   *prometheus.CounterVec // reason: "already_publishing", "bad_name", "rejected"
	StreamTransitions *prometheus.CounterVec // state: "active", "grace_period", "idle"
	PublisherTakeover prometheus.Counter
	StreamsExpired    *prometheus.CounterVec // reason: "grace_period", "idle"

	// Subscriber metrics
	ActiveSubscribers prometheus.Gauge
	SubscribesTotal    prometheus.Counter

	// Frame metrics
	FramesReceived   *prometheus.CounterVec // kind: "video", "audio", "metadata"
	FramesDelivered  *prometheus.CounterVec
	FramesDropped    *prometheus.CounterVec // reason: "channel_full", "lagging"
	FrameSize        *prometheus.HistogramVec
	KeyFrames        prometheus.Counter
	SubscriberDemoted prometheus.Counter
	SubscriberResynced prometheus.Counter

	// Protocol error metrics
	ChunkErrors *prometheus.CounterVec // stage: "control"
	AMFErrors   prometheus.Counter

	// Admin HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates and registers every collector with the default registry.
func New() *Metrics {
	return &Metrics{
		ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "chunkcast_active_connections",
			Help: "Number of currently open RTMP connections",
		}),
		ConnectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chunkcast_connections_total",
			Help: "Total number of accepted RTMP connections",
		}),
		Disconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chunkcast_disconnects_total",
			Help: "Total number of RTMP connections closed",
		}),
		ConnectionRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunkcast_connections_rejected_total",
				Help: "Total number of connections rejected, by reason",
			},
			[]string{"reason"},
		),
		HandshakeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chunkcast_handshake_failures_total",
			Help: "Total number of handshake failures",
		}),
		BytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chunkcast_bytes_received_total",
			Help: "Total bytes read from RTMP connections",
		}),
		BytesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chunkcast_bytes_sent_total",
			Help: "Total bytes written to RTMP connections",
		}),

		ActiveStreams: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "chunkcast_active_streams",
			Help: "Number of streams currently registered",
		}),
		PublishesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chunkcast_publishes_total",
			Help: "Total number of successful publish registrations",
		}),
		PublishRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunkcast_publish_rejected_total",
				Help: "Total number of rejected publish attempts, by reason",
			},
			[]string{"reason"},
		),
		StreamTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunkcast_stream_state_transitions_total",
				Help: "Total number of stream registry state transitions, by resulting state",
			},
			[]string{"state"},
		),
		PublisherTakeover: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chunkcast_publisher_takeover_total",
			Help: "Total number of publisher reconnects that took over a stream during its grace period",
		}),
		StreamsExpired: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunkcast_streams_expired_total",
				Help: "Total number of streams swept from the registry, by the state they expired from",
			},
			[]string{"reason"},
		),

		ActiveSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "chunkcast_active_subscribers",
			Help: "Number of currently attached subscribers across all streams",
		}),
		SubscribesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chunkcast_subscribes_total",
			Help: "Total number of subscribe (play) attachments",
		}),

		FramesReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunkcast_frames_received_total",
				Help: "Total number of media frames received from publishers",
			},
			[]string{"kind"},
		),
		FramesDelivered: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunkcast_frames_delivered_total",
				Help: "Total number of media frames delivered to subscribers",
			},
			[]string{"kind"},
		),
		FramesDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunkcast_frames_dropped_total",
				Help: "Total number of frames dropped before reaching a subscriber, by reason",
			},
			[]string{"reason"},
		),
		FrameSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chunkcast_frame_size_bytes",
				Help:    "Size of received media frames in bytes",
				Buckets: prometheus.ExponentialBuckets(64, 2, 14), // 64B to ~512KB
			},
			[]string{"kind"},
		),
		KeyFrames: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chunkcast_keyframes_total",
			Help: "Total number of video keyframes received",
		}),
		SubscriberDemoted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chunkcast_subscriber_demoted_total",
			Help: "Total number of times a subscriber fell behind and was demoted until the next keyframe",
		}),
		SubscriberResynced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chunkcast_subscriber_resynced_total",
			Help: "Total number of times a demoted subscriber resynced at a keyframe",
		}),

		ChunkErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunkcast_chunk_errors_total",
				Help: "Total number of chunk stream decode errors, by stage",
			},
			[]string{"stage"},
		),
		AMFErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chunkcast_amf_errors_total",
			Help: "Total number of AMF0 command decode errors",
		}),

		HTTPRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunkcast_http_requests_total",
				Help: "Total number of admin API HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chunkcast_http_request_duration_seconds",
				Help:    "Duration of admin API HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

func (m *Metrics) RecordConnectionAccepted() {
	m.ActiveConnections.Inc()
	m.ConnectionsTotal.Inc()
}

func (m *Metrics) RecordConnectionClosed() {
	m.ActiveConnections.Dec()
	m.Disconnects.Inc()
}

func (m *Metrics) RecordConnectionRejected(reason string) {
	m.ConnectionRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordHandshakeFailure() { m.HandshakeFailures.Inc() }

func (m *Metrics) RecordBytesReceived(n uint64) { m.BytesReceived.Add(float64(n)) }
func (m *Metrics) RecordBytesSent(n uint64)     { m.BytesSent.Add(float64(n)) }

func (m *Metrics) RecordPublish()                  { m.PublishesTotal.Inc(); m.ActiveStreams.Inc() }
func (m *Metrics) RecordPublishRejected(reason string) {
	m.PublishRejected.WithLabelValues(reason).Inc()
}
func (m *Metrics) RecordStreamTransition(state string) {
	m.StreamTransitions.WithLabelValues(state).Inc()
}
func (m *Metrics) RecordPublisherTakeover() { m.PublisherTakeover.Inc() }
func (m *Metrics) RecordStreamExpired(reason string) {
	m.ActiveStreams.Dec()
	m.StreamsExpired.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordSubscribe()   { m.SubscribesTotal.Inc(); m.ActiveSubscribers.Inc() }
func (m *Metrics) RecordUnsubscribe() { m.ActiveSubscribers.Dec() }

func (m *Metrics) RecordFrameReceived(kind string, size int) {
	m.FramesReceived.WithLabelValues(kind).Inc()
	m.FrameSize.WithLabelValues(kind).Observe(float64(size))
}
func (m *Metrics) RecordFrameDelivered(kind string) { m.FramesDelivered.WithLabelValues(kind).Inc() }

// RecordFrameDropped adds n (a single broadcast can drop frames across
// several lagging subscribers at once) to the dropped-frame counter for
// reason. n <= 0 is a no-op.
func (m *Metrics) RecordFrameDropped(reason string, n int) {
	if n <= 0 {
		return
	}
	m.FramesDropped.WithLabelValues(reason).Add(float64(n))
}
func (m *Metrics) RecordKeyFrame() { m.KeyFrames.Inc() }

// RecordSubscriberDemoted adds n newly-demoted subscribers from one
// broadcast. n <= 0 is a no-op.
func (m *Metrics) RecordSubscriberDemoted(n int) {
	if n > 0 {
		m.SubscriberDemoted.Add(float64(n))
	}
}

// RecordSubscriberResynced adds n subscribers that resynced at this
// broadcast's keyframe. n <= 0 is a no-op.
func (m *Metrics) RecordSubscriberResynced(n int) {
	if n > 0 {
		m.SubscriberResynced.Add(float64(n))
	}
}

func (m *Metrics) RecordChunkError(stage string) { m.ChunkErrors.WithLabelValues(stage).Inc() }
func (m *Metrics) RecordAMFError()               { m.AMFErrors.Inc() }

func (m *Metrics) RecordHTTPRequest(method, path string, status int, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, path, statusCodeToString(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(durationSeconds)
}

func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
