package peer

import "github.com/prometheus/client_golang/prometheus"

var (
	ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "peerchat_active_connections",
		Help: "Number of currently registered peer connections",
	})

	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "peerchat_messages_total",
		Help: "Total chat messages by direction",
	}, []string{"direction"})

	HandshakeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "peerchat_handshake_failures_total",
		Help: "Total inbound or outbound port handshakes that failed",
	})

	DialDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "peerchat_dial_duration_seconds",
		Help:    "Time to connect and handshake with a peer",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(ActiveConnections)
	prometheus.MustRegister(MessagesTotal)
	prometheus.MustRegister(HandshakeFailures)
	prometheus.MustRegister(DialDuration)
}
