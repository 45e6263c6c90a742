package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RegisterDeviceRoutes 注册设备路由
func RegisterDeviceRoutes(r *gin.Engine, engine Engine, timeout time.Duration, logger *zap.Logger) {
	if r == nil || engine == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := NewDeviceHandler(engine, timeout, logger)

	api := r.Group("/api")
	api.GET("/devices", handler.ListDevices)
	api.GET("/devices/:id", handler.GetDevice)
	api.POST("/devices/:id/packets", handler.SendPacket)

	logger.Info("device routes registered", zap.Int("endpoints", 3))
}
