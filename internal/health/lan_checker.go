package health

import (
	"context"
	"time"

	"github.com/taoyao-code/lifx-lan/internal/udp"
)

// LANStatus 协议引擎的运行状态（*client.Client 实现）
type LANStatus interface {
	Bound() bool
	QueueLen() int
	OnlineCount() int
	Epoch() uint64
}

// LANChecker UDP 引擎健康检查
type LANChecker struct {
	engine         LANStatus
	maxQueue       int
	requireDevices bool
	limiter        func() udp.RateLimiterStats
}

// NewLANChecker maxQueue 为队列积压的降级阈值（<=0 不检查）
func NewLANChecker(engine LANStatus, maxQueue int, requireDevices bool) *LANChecker {
	return &LANChecker{engine: engine, maxQueue: maxQueue, requireDevices: requireDevices}
}

// WithLimiterStats 附带入站限流统计
func (c *LANChecker) WithLimiterStats(fn func() udp.RateLimiterStats) *LANChecker {
	c.limiter = fn
	return c
}

func (c *LANChecker) Name() string { return "lan" }

func (c *LANChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	queue := c.engine.QueueLen()
	online := c.engine.OnlineCount()
	details := map[string]interface{}{
		"bound":           c.engine.Bound(),
		"queue_depth":     queue,
		"online_devices":  online,
		"discovery_epoch": c.engine.Epoch(),
	}
	if c.limiter != nil {
		details["inbound_dropped_total"] = c.limiter().RejectedTotal
	}

	status, message := StatusHealthy, "ok"
	switch {
	case !c.engine.Bound():
		status, message = StatusUnhealthy, "socket not bound"
	case c.requireDevices && online == 0:
		status, message = StatusUnhealthy, "no online devices"
	case c.maxQueue > 0 && queue > c.maxQueue:
		status, message = StatusDegraded, "send queue backlog"
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: details,
		Latency: time.Since(start),
	}
}
