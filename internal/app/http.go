package app

import (
	"net/http"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/lifx-lan/internal/config"
	"github.com/taoyao-code/lifx-lan/internal/httpserver"
)

// NewHTTPServer 根据配置创建 HTTP 服务器
func NewHTTPServer(cfg cfgpkg.HTTPConfig, metricsPath string, metricsHandler http.Handler, readyFn func() bool, log *zap.Logger, routes ...httpserver.RouteRegistrar) *httpserver.Server {
	return httpserver.New(cfg, metricsPath, metricsHandler, readyFn, log, routes...)
}
