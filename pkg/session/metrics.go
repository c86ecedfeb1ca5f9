package session

import "github.com/prometheus/client_golang/prometheus"

// Metrics 会话相关指标，nil 值可安全调用。
type Metrics struct {
	active   prometheus.Gauge
	total    prometheus.Counter
	rejected prometheus.Counter
	events   *prometheus.CounterVec
}

// NewMetrics 创建并注册会话指标，registerer 为 nil 时只创建不注册。
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "proctor",
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of registered proctoring sessions",
		}),
		total: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "proctor",
			Subsystem: "session",
			Name:      "started_total",
			Help:      "Total number of sessions started",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "proctor",
			Subsystem: "session",
			Name:      "rejected_total",
			Help:      "Total number of connections rejected for a missing session id",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proctor",
			Subsystem: "session",
			Name:      "events_total",
			Help:      "Total number of client events by kind",
		}, []string{"kind"}),
	}

	if registerer != nil {
		registerer.MustRegister(m.active, m.total, m.rejected, m.events)
	}
	return m
}

func (m *Metrics) sessionStarted() {
	if m == nil {
		return
	}
	m.active.Inc()
	m.total.Inc()
}

func (m *Metrics) sessionEnded() {
	if m == nil {
		return
	}
	m.active.Dec()
}

func (m *Metrics) sessionRejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

func (m *Metrics) event(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}
