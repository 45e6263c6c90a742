package client

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/taoyao-code/lifx-lan/internal/outbound"
	"github.com/taoyao-code/lifx-lan/internal/protocol/lifx"
)

// Send 编码并入队报文，返回使用的序号
// 目标为已知设备时分配新序号并单播到设备地址；cb 非空时要求确认并按请求-应答方式重发
func (c *Client) Send(pkt *lifx.Packet, cb Handler) (uint8, error) {
	seq, _, err := c.send(pkt, cb, 0, nil)
	return seq, err
}

// send 可同时登记一个应答处理器（respType 非 0），登记发生在入队之前
func (c *Client) send(pkt *lifx.Packet, ack Handler, respType uint16, resp Handler) (uint8, uint64, error) {
	if c.closed.Load() {
		return 0, 0, ErrClosed
	}
	if pkt == nil {
		return 0, 0, &lifx.EncodeError{Type: "packet", Err: lifx.ErrBadPayload}
	}
	if pkt.Source == "" {
		pkt.Source = c.source
		pkt.Addressable = true
	}

	entry := outbound.Entry{Address: pkt.Address, Kind: outbound.OneWay, Type: pkt.Type}
	c.mu.Lock()
	if pkt.Target != "" && pkt.Target != lifx.NoTarget {
		if d, ok := c.devices.Get(pkt.Target); ok {
			entry.Address = d.Address
			c.seq++ // 255 -> 0
		}
	}
	seq := c.seq
	c.mu.Unlock()

	pkt.Sequence = seq
	if ack != nil {
		pkt.AckRequired = true
	}
	data, err := lifx.Encode(pkt)
	if err != nil {
		return 0, 0, err
	}

	if ack != nil {
		c.handlers.Register(lifx.TypeAcknowledgement, ack, &seq)
		entry.Kind = outbound.RequestResponse
	}
	var respID uint64
	if resp != nil {
		respID = c.handlers.Register(respType, resp, &seq)
	}
	entry.Data = data
	entry.Sequence = seq
	c.queue.Enqueue(entry)
	return seq, respID, nil
}

type response struct {
	pkt *lifx.Packet
	err error
}

// Request 发送报文并等待 respType 类型、相同序号的应答
// ctx 取消时撤销等待；处理器超时返回 dispatch.ErrHandlerTimeout
func (c *Client) Request(ctx context.Context, pkt *lifx.Packet, respType uint16) (*lifx.Packet, error) {
	if !lifx.KnownType(respType) {
		return nil, fmt.Errorf("%w: response type %d", lifx.ErrUnknownType, respType)
	}
	if pkt != nil {
		pkt.ResRequired = true
	}
	ch := make(chan response, 1)
	_, id, err := c.send(pkt, nil, respType, func(err error, p *lifx.Packet, _ Peer) {
		ch <- response{pkt: p, err: err}
	})
	if err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.pkt, r.err
	case <-ctx.Done():
		c.handlers.Cancel(id)
		return nil, ctx.Err()
	}
}

// SendAndWait 发送并等待确认，ctx 取消时不再等待（确认处理器仍会在超时后被移除）
func (c *Client) SendAndWait(ctx context.Context, pkt *lifx.Packet) error {
	done := make(chan error, 1)
	if _, err := c.Send(pkt, func(err error, _ *lifx.Packet, _ Peer) { done <- err }); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AddMessageHandler 按类型名称登记处理器；seq 为 nil 时为永久处理器
func (c *Client) AddMessageHandler(typeName string, fn Handler, seq *uint8) error {
	if fn == nil {
		return errors.New("client: nil handler")
	}
	id, ok := lifx.LookupType(typeName)
	if !ok {
		return fmt.Errorf("%w: %q", lifx.ErrUnknownType, typeName)
	}
	c.handlers.Register(id, fn, seq)
	return nil
}

// sendDiscovery 发现驱动的探测发送：广播或单播 getService
func (c *Client) sendDiscovery(address string) error {
	if c.closed.Load() {
		return nil
	}
	pkt, err := lifx.Create("getService", nil, c.source, "")
	if err != nil {
		return err
	}
	pkt.Address = address
	_, err = c.Send(pkt, nil)
	return err
}

func (c *Client) onTransmit(e outbound.Entry) {
	c.metrics.Sent(lifx.TypeName(e.Type), e.Attempts)
}

// onExhausted 重发耗尽：以 ErrAckTimeout 通知确认处理器
func (c *Client) onExhausted(e outbound.Entry) {
	c.metrics.AckTimeout()
	fn, ok := c.handlers.Take(lifx.TypeAcknowledgement, e.Sequence)
	c.logger.Debug("ack timeout",
		zap.Uint8("seq", e.Sequence),
		zap.String("type", lifx.TypeName(e.Type)),
		zap.String("addr", e.Address),
		zap.Int("attempts", e.Attempts))
	if ok && !c.closed.Load() {
		fn(ErrAckTimeout, nil, Peer{})
	}
}
