package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/lifx-lan/internal/api"
	"github.com/taoyao-code/lifx-lan/internal/app"
	cfgpkg "github.com/taoyao-code/lifx-lan/internal/config"
	"github.com/taoyao-code/lifx-lan/internal/device"
	"github.com/taoyao-code/lifx-lan/internal/health"
	"github.com/taoyao-code/lifx-lan/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

// Run 统一启动流程：先绑定 UDP 引擎，再开放 HTTP，ctx 取消后优雅关闭
func Run(ctx context.Context, cfg *cfgpkg.Config, log *zap.Logger) error {
	log.Info("starting lifxd", zap.String("name", cfg.App.Name), zap.String("env", cfg.App.Env))

	// ========== 阶段1: 初始化基础组件 ==========
	reg, engineMetrics := app.NewMetrics()
	var metricsHandler http.Handler
	if cfg.Metrics.Enable {
		metricsHandler = metrics.Handler(reg)
	}
	ready := health.New()

	// ========== 阶段2: 启动局域网引擎（绑定失败直接返回）==========
	lan, err := app.NewLANClient(cfg.LAN, log, engineMetrics)
	if err != nil {
		log.Error("lan client config invalid", zap.Error(err))
		return err
	}
	defer func() { _ = lan.Close() }()

	if err := lan.Init(ctx); err != nil {
		log.Error("lan client init failed", zap.Error(err))
		return err
	}
	ready.SetLANReady(true)
	log.Info("lan client ready",
		zap.String("source", lan.Source()),
		zap.Strings("lights", lan.Lights()),
		zap.Bool("discovery", cfg.LAN.StartDiscovery))

	// ========== 阶段3: 启动HTTP服务（非阻塞）==========
	healthAgg := app.NewHealthAggregator(lan, cfg.Health.RequireDevices, lan.InboundStats)
	httpSrv := app.NewHTTPServer(cfg.HTTP, cfg.Metrics.Path, metricsHandler, ready.Ready, log,
		func(r *gin.Engine) {
			api.RegisterDeviceRoutes(r, lan, cfg.HTTP.RequestTimeout, log)
			app.RegisterHealthRoutes(r, healthAgg)
		})

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- httpSrv.Start()
	}()
	ready.SetHTTPReady(true)
	log.Info("http server started", zap.String("addr", cfg.HTTP.Addr))

	// ========== 阶段4: 等待关闭信号 ==========
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal, gracefully shutting down...")
	case err := <-httpErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", zap.Error(err))
			runErr = fmt.Errorf("http server: %w", err)
		}
	}
	ready.SetHTTPReady(false)
	ready.SetLANReady(false)

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = httpSrv.Shutdown(sctx)
	log.Info("http server stopped")

	if err := lan.Close(); err != nil {
		log.Warn("lan client close failed", zap.Error(err))
	}
	log.Info("shutdown complete")
	return runErr
}

// Scan 运行若干轮发现后返回设备快照，不启动 HTTP
func Scan(ctx context.Context, cfg *cfgpkg.Config, wait time.Duration, log *zap.Logger) ([]device.Device, error) {
	lanCfg := cfg.LAN
	lanCfg.StartDiscovery = true

	lan, err := app.NewLANClient(lanCfg, log, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lan.Close() }()

	if err := lan.Init(ctx); err != nil {
		return nil, err
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	return lan.ListDevices(device.FilterAll), nil
}
