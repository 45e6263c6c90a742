package app

import (
	"github.com/gin-gonic/gin"

	"github.com/taoyao-code/lifx-lan/internal/health"
	"github.com/taoyao-code/lifx-lan/internal/udp"
)

// maxQueueBacklog 发送队列积压超过该值视为降级
const maxQueueBacklog = 256

// NewHealthAggregator 创建健康检查聚合器，包含 UDP 引擎检查
// stats 为 nil 时不附带入站限流统计
func NewHealthAggregator(engine health.LANStatus, requireDevices bool, stats func() udp.RateLimiterStats) *health.Aggregator {
	checker := health.NewLANChecker(engine, maxQueueBacklog, requireDevices)
	if stats != nil {
		checker.WithLimiterStats(stats)
	}
	return health.NewAggregator(checker)
}

// RegisterHealthRoutes 注册健康检查HTTP路由
func RegisterHealthRoutes(r *gin.Engine, aggregator *health.Aggregator) {
	health.RegisterHTTPRoutes(r, aggregator)
}
