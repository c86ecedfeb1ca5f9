// pkg/websocket/metrics.go
package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "proctor"
	metricsSubsystem = "websocket"
)

// ServerMetrics 服务端指标
type ServerMetrics struct {
	activeConnections prometheus.Gauge
	totalConnections  prometheus.Counter
	connectionErrors  *prometheus.CounterVec
	messagesReceived  *prometheus.CounterVec
	bytesReceived     *prometheus.CounterVec
	upgradeErrors     *prometheus.CounterVec
}

// NewServerMetrics 创建并注册服务端指标，registerer 为 nil 时只创建不注册
func NewServerMetrics(registerer prometheus.Registerer) *ServerMetrics {
	m := &ServerMetrics{
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "active_connections",
			Help:      "Number of active WebSocket connections",
		}),
		totalConnections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "connections_total",
			Help:      "Total number of accepted WebSocket connections",
		}),
		connectionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "connection_errors_total",
			Help:      "Total number of connection errors",
		}, []string{"type"}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "messages_received_total",
			Help:      "Total number of messages received",
		}, []string{"type"}),
		bytesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "bytes_received_total",
			Help:      "Total bytes received",
		}, []string{"type"}),
		upgradeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "upgrade_errors_total",
			Help:      "Total number of rejected or failed upgrades",
		}, []string{"reason"}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.activeConnections,
			m.totalConnections,
			m.connectionErrors,
			m.messagesReceived,
			m.bytesReceived,
			m.upgradeErrors,
		)
	}

	return m
}

// OnConnectionOpened 连接建立
func (m *ServerMetrics) OnConnectionOpened() {
	m.activeConnections.Inc()
	m.totalConnections.Inc()
}

// OnConnectionClosed 连接关闭
func (m *ServerMetrics) OnConnectionClosed() {
	m.activeConnections.Dec()
}

// OnConnectionError 连接错误
func (m *ServerMetrics) OnConnectionError(errType string) {
	m.connectionErrors.WithLabelValues(errType).Inc()
}

// OnMessageReceived 收到消息
func (m *ServerMetrics) OnMessageReceived(msgType MessageType, size int) {
	m.messagesReceived.WithLabelValues(msgType.String()).Inc()
	m.bytesReceived.WithLabelValues(msgType.String()).Add(float64(size))
}

// OnUpgradeError 升级失败
func (m *ServerMetrics) OnUpgradeError(reason string) {
	m.upgradeErrors.WithLabelValues(reason).Inc()
}
