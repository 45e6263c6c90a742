package client

import (
	"net"

	"go.uber.org/zap"

	"github.com/taoyao-code/lifx-lan/internal/device"
	"github.com/taoyao-code/lifx-lan/internal/dispatch"
	"github.com/taoyao-code/lifx-lan/internal/protocol/lifx"
)

// onDatagram 读循环回调：解码 -> 处理器分发 -> message 事件
func (c *Client) onDatagram(data []byte, addr *net.UDPAddr) {
	if c.closed.Load() || c.isOwn(addr) {
		return
	}
	peer := Peer{Address: addr.IP.String(), Port: addr.Port}

	pkt, err := lifx.Decode(data)
	if err != nil {
		c.metrics.DecodeError()
		c.logger.Debug("drop malformed datagram",
			zap.String("peer", peer.Address),
			zap.Binary("raw", data),
			zap.Error(err))
		if c.events.Malformed != nil {
			c.events.Malformed(data, peer, err)
		}
		return
	}
	name := pkt.Name()
	if name == "" {
		name = "unknown"
	}
	c.metrics.Received(name)

	res := c.handlers.Dispatch(pkt, peer, c.source)
	for _, seq := range res.Matched {
		c.queue.Remove(seq)
	}
	c.fire(res.Calls)

	if c.closed.Load() {
		return
	}
	if c.events.Message != nil {
		c.events.Message(pkt, peer)
	}
	c.observe()
}

// isOwn 自身发出的广播回环：来源为本机地址且端口与本地端口相同
func (c *Client) isOwn(addr *net.UDPAddr) bool {
	if addr == nil {
		return true
	}
	if _, ok := c.hostIPs[addr.IP.String()]; !ok {
		return false
	}
	local := c.Address()
	return local != nil && local.Port == addr.Port
}

func (c *Client) fire(calls []dispatch.Call) {
	for _, call := range calls {
		if c.closed.Load() {
			return
		}
		if call.Err() != nil {
			c.metrics.HandlerTimeout()
		}
		call.Fire()
	}
}

// processDiscovery stateService 应答：登记或刷新设备
func (c *Client) processDiscovery(err error, pkt *lifx.Packet, peer Peer) {
	if err != nil {
		return
	}
	ss, ok := pkt.Payload.(*lifx.StateService)
	if !ok {
		return
	}
	if ss.Service != lifx.ServiceUDP || ss.Port != lifx.DefaultPort {
		c.logger.Debug("ignore service",
			zap.String("id", pkt.Target),
			zap.String("service", ss.ServiceName()),
			zap.Uint32("port", ss.Port))
		return
	}

	d, change := c.devices.Upsert(pkt.Target, peer.Address, ss.Port, c.discovery.Epoch())
	switch change {
	case device.ChangeNew:
		c.logger.Info("device discovered", zap.String("id", d.ID), zap.String("address", d.Address))
		c.requestLabel(d.ID)
		if c.events.DeviceNew != nil {
			c.events.DeviceNew(d)
		}
	case device.ChangeOnline:
		c.logger.Info("device online", zap.String("id", d.ID), zap.String("address", d.Address))
		if c.events.DeviceOnline != nil {
			c.events.DeviceOnline(d)
		}
	case device.ChangeMoved:
		c.logger.Info("device address changed", zap.String("id", d.ID), zap.String("address", d.Address))
		c.requestLabel(d.ID)
	}
}

func (c *Client) requestLabel(id string) {
	pkt, err := lifx.Create("getLabel", nil, c.source, id)
	if err == nil {
		_, err = c.Send(pkt, nil)
	}
	if err != nil {
		c.logger.Warn("request label failed", zap.String("id", id), zap.Error(err))
	}
}

// processLabel stateLabel / stateLight 携带的标签
func (c *Client) processLabel(err error, pkt *lifx.Packet, _ Peer) {
	if err != nil {
		return
	}
	var label string
	switch p := pkt.Payload.(type) {
	case *lifx.Label:
		label = p.Label
	case *lifx.StateLight:
		label = p.Label
	default:
		return
	}
	c.devices.SetLabel(pkt.Target, label)
}

func (c *Client) onOffline(d device.Device) {
	if c.closed.Load() {
		return
	}
	if c.events.DeviceOffline != nil {
		c.events.DeviceOffline(d)
	}
}

// onCycle 每轮发现后清理过期处理器并刷新指标
func (c *Client) onCycle(uint64) {
	c.fire(c.handlers.Expire())
	c.observe()
}

func (c *Client) onSocketError(err error) {
	c.logger.Error("lan socket error", zap.Error(err))
	if c.closed.Load() {
		return
	}
	if c.events.Error != nil {
		c.events.Error(err)
	}
}
