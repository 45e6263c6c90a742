package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// EngineMetrics 协议引擎指标；nil 接收者上的方法均为空操作
type EngineMetrics struct {
	PacketsSent     *prometheus.CounterVec // labels: type
	PacketsReceived *prometheus.CounterVec // labels: type
	DecodeErrors    prometheus.Counter
	Retransmits     prometheus.Counter
	AckTimeouts     prometheus.Counter
	HandlerTimeouts prometheus.Counter
	InboundDropped  prometheus.Counter // 入站限流丢弃
	OnlineDevices   prometheus.Gauge
	QueueDepth      prometheus.Gauge
	DiscoveryEpoch  prometheus.Gauge
}

// NewEngineMetrics 注册并返回引擎指标
func NewEngineMetrics(reg *prometheus.Registry) *EngineMetrics {
	m := &EngineMetrics{
		PacketsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifx_packets_sent_total",
			Help: "Datagrams written to the socket by packet type.",
		}, []string{"type"}),
		PacketsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifx_packets_received_total",
			Help: "Datagrams decoded from the socket by packet type.",
		}, []string{"type"}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifx_decode_errors_total",
			Help: "Inbound datagrams that failed to decode.",
		}),
		Retransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifx_retransmits_total",
			Help: "Request-response packets sent again after the first attempt.",
		}),
		AckTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifx_ack_timeouts_total",
			Help: "Packets that exhausted their retries without acknowledgement.",
		}),
		HandlerTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifx_handler_timeouts_total",
			Help: "One-shot message handlers expired without a response.",
		}),
		InboundDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifx_inbound_dropped_total",
			Help: "Inbound datagrams dropped by the flood limiter.",
		}),
		OnlineDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lifx_online_devices",
			Help: "Current number of online devices.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lifx_send_queue_depth",
			Help: "Packets waiting in the send queue.",
		}),
		DiscoveryEpoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lifx_discovery_epoch",
			Help: "Completed discovery cycles.",
		}),
	}
	reg.MustRegister(m.PacketsSent, m.PacketsReceived, m.DecodeErrors, m.Retransmits, m.AckTimeouts,
		m.HandlerTimeouts, m.InboundDropped, m.OnlineDevices, m.QueueDepth, m.DiscoveryEpoch)
	return m
}

func (m *EngineMetrics) Sent(typ string, attempt int) {
	if m == nil {
		return
	}
	m.PacketsSent.WithLabelValues(typ).Inc()
	if attempt > 1 {
		m.Retransmits.Inc()
	}
}

func (m *EngineMetrics) Received(typ string) {
	if m == nil {
		return
	}
	m.PacketsReceived.WithLabelValues(typ).Inc()
}

func (m *EngineMetrics) DecodeError() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

func (m *EngineMetrics) AckTimeout() {
	if m == nil {
		return
	}
	m.AckTimeouts.Inc()
}

func (m *EngineMetrics) HandlerTimeout() {
	if m == nil {
		return
	}
	m.HandlerTimeouts.Inc()
}

func (m *EngineMetrics) Dropped() {
	if m == nil {
		return
	}
	m.InboundDropped.Inc()
}

// Observe 刷新在线设备数、队列深度与发现轮次
func (m *EngineMetrics) Observe(online, queue int, epoch uint64) {
	if m == nil {
		return
	}
	m.OnlineDevices.Set(float64(online))
	m.QueueDepth.Set(float64(queue))
	m.DiscoveryEpoch.Set(float64(epoch))
}
