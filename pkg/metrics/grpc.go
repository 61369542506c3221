package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func (m *Manager) initGRPCMetrics(cfg Config) {
	m.grpcRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_server_handled_total",
			Help: "Total number of RPCs completed on the server, by method and code",
		},
		[]string{"method", "code"},
	)

	m.grpcDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grpc_server_handling_seconds",
			Help:    "RPC handling latency in seconds",
			Buckets: cfg.HTTPDurationBuckets,
		},
		[]string{"method"},
	)

	m.grpcInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "grpc_server_in_flight",
			Help: "RPCs currently being handled",
		},
		[]string{"method"},
	)

	m.grpcStreamMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_server_stream_messages_total",
			Help: "Stream messages by method and direction",
		},
		[]string{"method", "direction"},
	)

	m.registry.MustRegister(m.grpcRequests)
	m.registry.MustRegister(m.grpcDuration)
	m.registry.MustRegister(m.grpcInFlight)
	m.registry.MustRegister(m.grpcStreamMessages)
}

// RecordGRPCRequest records a completed RPC.
func (m *Manager) RecordGRPCRequest(method, code string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.grpcRequests.WithLabelValues(method, code).Inc()
	m.grpcDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// IncGRPCInFlight marks an RPC as started.
func (m *Manager) IncGRPCInFlight(method string) {
	if !m.enabled {
		return
	}
	m.grpcInFlight.WithLabelValues(method).Inc()
}

// DecGRPCInFlight marks an RPC as finished.
func (m *Manager) DecGRPCInFlight(method string) {
	if !m.enabled {
		return
	}
	m.grpcInFlight.WithLabelValues(method).Dec()
}

// RecordGRPCStreamMessages adds sent and received message counts of a stream.
func (m *Manager) RecordGRPCStreamMessages(method string, sent, received int64) {
	if !m.enabled {
		return
	}
	m.grpcStreamMessages.WithLabelValues(method, "sent").Add(float64(sent))
	m.grpcStreamMessages.WithLabelValues(method, "recv").Add(float64(received))
}
