package app

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taoyao-code/lifx-lan/internal/metrics"
)

// NewMetrics 初始化注册表与引擎指标
func NewMetrics() (*prometheus.Registry, *metrics.EngineMetrics) {
	reg := metrics.NewRegistry()
	m := metrics.NewEngineMetrics(reg)
	return reg, m
}
