package app

import (
	"go.uber.org/zap"

	"github.com/taoyao-code/lifx-lan/internal/client"
	cfgpkg "github.com/taoyao-code/lifx-lan/internal/config"
	"github.com/taoyao-code/lifx-lan/internal/device"
	"github.com/taoyao-code/lifx-lan/internal/metrics"
	"github.com/taoyao-code/lifx-lan/internal/protocol/lifx"
)

// NewLANClient 创建协议引擎并挂上日志事件
func NewLANClient(cfg cfgpkg.LANConfig, log *zap.Logger, m *metrics.EngineMetrics) (*client.Client, error) {
	c, err := client.New(cfg, log, m)
	if err != nil {
		return nil, err
	}
	c.SetEvents(LogEvents(log))
	return c, nil
}

// LogEvents 将引擎事件写入日志
func LogEvents(log *zap.Logger) client.Events {
	return client.Events{
		DeviceNew: func(d device.Device) {
			log.Info("light new", zap.String("id", d.ID), zap.String("address", d.Address))
		},
		DeviceOnline: func(d device.Device) {
			log.Info("light online", zap.String("id", d.ID), zap.String("address", d.Address))
		},
		DeviceOffline: func(d device.Device) {
			log.Warn("light offline", zap.String("id", d.ID), zap.Uint64("last_seen", d.LastSeen))
		},
		Malformed: func(data []byte, peer client.Peer, err error) {
			log.Debug("malformed packet", zap.String("peer", peer.Address), zap.Int("len", len(data)), zap.Error(err))
		},
		Message: func(pkt *lifx.Packet, peer client.Peer) {
			log.Debug("packet received",
				zap.String("peer", peer.Address),
				zap.String("type", pkt.Name()),
				zap.Uint8("seq", pkt.Sequence))
		},
		Error: func(err error) {
			log.Error("lan client error", zap.Error(err))
		},
	}
}
