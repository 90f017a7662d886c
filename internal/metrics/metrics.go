// Package metrics exposes server counters and gauges in Prometheus format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voxelgate"

// Source supplies the values behind the gauges. It is read at scrape time.
type Source interface {
	OnlineCount() int
	ConnectionCount() int
	EntityIDsInUse() int64
	EntityIDFragments() int
}

// Metrics holds the collectors updated by the session layer.
type Metrics struct {
	connectionsTotal prometheus.Counter
	packetsTotal     *prometheus.CounterVec
	codecErrors      *prometheus.CounterVec
	loginsTotal      *prometheus.CounterVec
	chatMessages     prometheus.Counter
	chunksSent       prometheus.Counter
	keepAliveRTT     prometheus.Histogram
	sessionDuration  prometheus.Histogram
}

// New registers the collectors on reg. A nil src omits the gauges.
func New(reg prometheus.Registerer, src Source) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of accepted client connections",
		}),
		packetsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_received_total",
			Help:      "Serverbound packets decoded, by phase",
		}, []string{"phase"}),
		codecErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "codec_errors_total",
			Help:      "Connections dropped because of malformed frames or packets, by phase",
		}, []string{"phase"}),
		loginsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by result",
		}, []string{"result"}),
		chatMessages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_messages_total",
			Help:      "Chat messages broadcast",
		}),
		chunksSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_sent_total",
			Help:      "Chunk packets sent to clients",
		}),
		keepAliveRTT: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "keepalive_rtt_seconds",
			Help:      "Round trip time of keep-alive probes",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		sessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Time players stayed in the world",
			Buckets:   []float64{10, 60, 300, 900, 1800, 3600, 7200, 14400},
		}),
	}

	if src != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "players_online",
			Help:      "Players that completed login",
		}, func() float64 { return float64(src.OnlineCount()) })
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_open",
			Help:      "Open client connections in any phase",
		}, func() float64 { return float64(src.ConnectionCount()) })
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entity_ids_in_use",
			Help:      "Entity ids currently allocated",
		}, func() float64 { return float64(src.EntityIDsInUse()) })
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entity_id_free_intervals",
			Help:      "Number of disjoint free intervals in the entity id pool",
		}, func() float64 { return float64(src.EntityIDFragments()) })
	}

	return m
}

// Login results.
const (
	LoginOK       = "ok"
	LoginRejected = "rejected"
	LoginError    = "error"
)

// ConnectionAccepted counts a new client connection.
func (m *Metrics) ConnectionAccepted() {
	if m != nil {
		m.connectionsTotal.Inc()
	}
}

// PacketReceived counts a decoded serverbound packet.
func (m *Metrics) PacketReceived(phase string) {
	if m != nil {
		m.packetsTotal.WithLabelValues(phase).Inc()
	}
}

// CodecError counts a connection dropped for a malformed frame or packet.
func (m *Metrics) CodecError(phase string) {
	if m != nil {
		m.codecErrors.WithLabelValues(phase).Inc()
	}
}

// Login counts a login attempt with one of the Login* results.
func (m *Metrics) Login(result string) {
	if m != nil {
		m.loginsTotal.WithLabelValues(result).Inc()
	}
}

// ChatMessage counts a broadcast chat line.
func (m *Metrics) ChatMessage() {
	if m != nil {
		m.chatMessages.Inc()
	}
}

// ChunksSent counts chunk packets.
func (m *Metrics) ChunksSent(n int) {
	if m != nil {
		m.chunksSent.Add(float64(n))
	}
}

// KeepAliveRTT records one keep-alive round trip.
func (m *Metrics) KeepAliveRTT(seconds float64) {
	if m != nil {
		m.keepAliveRTT.Observe(seconds)
	}
}

// SessionEnded records how long a player stayed.
func (m *Metrics) SessionEnded(seconds float64) {
	if m != nil {
		m.sessionDuration.Observe(seconds)
	}
}
