package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the exported connection telemetry collectors.
type Metrics struct {
	activeConnections *prometheus.GaugeVec
	bytesReceived     *prometheus.GaugeVec
	bytesSent         *prometheus.GaugeVec
	snapshots         *prometheus.CounterVec
	snapshotErrors    *prometheus.CounterVec
}

// NewMetrics creates and registers the monitor collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		activeConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ovpn_active_connections",
			Help: "Currently connected clients per instance.",
		}, []string{"instance"}),
		bytesReceived: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ovpn_client_bytes_received",
			Help: "Cumulative bytes received from a client, as reported by the status feed.",
		}, []string{"instance", "client"}),
		bytesSent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ovpn_client_bytes_sent",
			Help: "Cumulative bytes sent to a client, as reported by the status feed.",
		}, []string{"instance", "client"}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ovpn_snapshots_total",
			Help: "Status feed snapshots recorded per instance.",
		}, []string{"instance"}),
		snapshotErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ovpn_snapshot_errors_total",
			Help: "Snapshot attempts that failed per instance.",
		}, []string{"instance"}),
	}
	reg.MustRegister(m.activeConnections, m.bytesReceived, m.bytesSent,
		m.snapshots, m.snapshotErrors)
	return m
}

func (m *Metrics) observe(instance string, conns []Connection) {
	m.activeConnections.WithLabelValues(instance).Set(float64(len(conns)))
	for _, conn := range conns {
		m.bytesReceived.WithLabelValues(instance, conn.ClientName).Set(float64(conn.BytesReceived))
		m.bytesSent.WithLabelValues(instance, conn.ClientName).Set(float64(conn.BytesSent))
	}
	m.snapshots.WithLabelValues(instance).Inc()
}
