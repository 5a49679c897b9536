package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/raknet/internal/protocol/reliability"
	"github.com/danmuck/raknet/internal/protocol/session"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "raknet",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "raknet",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "route", "status"},
	)
	datagramsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "raknet",
			Subsystem: "session",
			Name:      "datagrams_sent_total",
			Help:      "Datagrams written by session engines.",
		},
		[]string{"node", "kind"},
	)
	datagramsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "raknet",
			Subsystem: "session",
			Name:      "datagrams_received_total",
			Help:      "Datagrams accepted by session engines.",
		},
		[]string{"node", "kind"},
	)
	bytesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "raknet",
			Subsystem: "session",
			Name:      "bytes_sent_total",
			Help:      "Bytes written by session engines.",
		},
		[]string{"node", "kind"},
	)
	bytesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "raknet",
			Subsystem: "session",
			Name:      "bytes_received_total",
			Help:      "Bytes accepted by session engines.",
		},
		[]string{"node", "kind"},
	)
	messagesDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "raknet",
			Subsystem: "session",
			Name:      "messages_delivered_total",
			Help:      "Messages handed to the application.",
		},
		[]string{"node", "reliability"},
	)
	payloadDelivered = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "raknet",
			Subsystem: "session",
			Name:      "payload_bytes",
			Help:      "Size of delivered payloads.",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
		},
		[]string{"node"},
	)
	drops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "raknet",
			Subsystem: "session",
			Name:      "drops_total",
			Help:      "Inbound data discarded by session engines.",
		},
		[]string{"node", "reason"},
	)
	sessionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "raknet",
			Subsystem: "session",
			Name:      "closed_total",
			Help:      "Sessions that reached the disconnected state.",
		},
		[]string{"node", "reason"},
	)
	handshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "raknet",
			Subsystem: "handshake",
			Name:      "outcomes_total",
			Help:      "Connection negotiations by role and outcome.",
		},
		[]string{"node", "role", "outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			datagramsSent, datagramsReceived, bytesSent, bytesReceived,
			messagesDelivered, payloadDelivered, drops, sessionsClosed,
			handshakes,
		)
	})
}

func RecordHTTPRequest(node, method, route string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, route, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, route, statusLabel).Observe(duration.Seconds())
}

func RecordHandshake(node, role, outcome string) {
	RegisterMetrics()
	handshakes.WithLabelValues(node, role, outcome).Inc()
}

// EngineObserver feeds session engine events into the raknet_session_*
// collectors. One value may be shared by every session of a node.
type EngineObserver struct {
	Node string
}

var _ session.Observer = EngineObserver{}

func NewEngineObserver(node string) EngineObserver {
	RegisterMetrics()
	return EngineObserver{Node: node}
}

func (o EngineObserver) Sent(kind string, n int) {
	datagramsSent.WithLabelValues(o.Node, kind).Inc()
	bytesSent.WithLabelValues(o.Node, kind).Add(float64(n))
}

func (o EngineObserver) Received(kind string, n int) {
	datagramsReceived.WithLabelValues(o.Node, kind).Inc()
	bytesReceived.WithLabelValues(o.Node, kind).Add(float64(n))
}

func (o EngineObserver) Delivered(r reliability.Reliability, n int) {
	messagesDelivered.WithLabelValues(o.Node, r.String()).Inc()
	payloadDelivered.WithLabelValues(o.Node).Observe(float64(n))
}

func (o EngineObserver) Dropped(reason string) {
	drops.WithLabelValues(o.Node, reason).Inc()
}

func (o EngineObserver) Closed(reason string) {
	sessionsClosed.WithLabelValues(o.Node, reason).Inc()
}

// HandshakeObserver counts negotiation outcomes for one node.
type HandshakeObserver struct {
	Node string
}

func NewHandshakeObserver(node string) HandshakeObserver {
	RegisterMetrics()
	return HandshakeObserver{Node: node}
}

func (o HandshakeObserver) Handshake(role, outcome string) {
	handshakes.WithLabelValues(o.Node, role, outcome).Inc()
}
