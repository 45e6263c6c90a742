package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/lifx-lan/internal/config"
	"github.com/taoyao-code/lifx-lan/internal/device"
	"github.com/taoyao-code/lifx-lan/internal/dispatch"
	"github.com/taoyao-code/lifx-lan/internal/protocol/lifx"
)

const (
	testSource = "3e805108"
	testTarget = "d073d5006d72"
	testAddr   = "192.168.0.50"
)

type sent struct {
	data []byte
	addr string
}

type fakeSocket struct {
	mu     sync.Mutex
	bound  bool
	port   int
	writes []sent
}

func (f *fakeSocket) Bound() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bound
}

func (f *fakeSocket) WriteTo(data []byte, addr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, sent{data: data, addr: addr})
	return nil
}

func (f *fakeSocket) LocalAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: f.port}
}

func (f *fakeSocket) Shutdown(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bound = false
	return nil
}

func (f *fakeSocket) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *fakeSocket) packet(t *testing.T, i int) (*lifx.Packet, string) {
	t.Helper()
	f.mu.Lock()
	w := f.writes[i]
	f.mu.Unlock()
	p, err := lifx.Decode(w.data)
	require.NoError(t, err)
	return p, w.addr
}

// newTestClient 不绑定真实 socket，发送写入 fakeSocket
func newTestClient(t *testing.T, mutate func(c *config.LANConfig)) (*Client, *fakeSocket) {
	t.Helper()
	cfg := config.DefaultLAN()
	cfg.Source = testSource
	cfg.StartDiscovery = false
	cfg.SendInterval = time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg, nil, nil)
	require.NoError(t, err)

	fs := &fakeSocket{bound: true, port: 50000}
	c.sock = fs
	c.hostIPs = map[string]struct{}{}
	t.Cleanup(func() { _ = c.Close() })
	return c, fs
}

func datagram(t *testing.T, name string, payload lifx.Payload, source string, seq uint8) []byte {
	t.Helper()
	p, err := lifx.Create(name, payload, source, testTarget)
	require.NoError(t, err)
	p.Sequence = seq
	b, err := lifx.Encode(p)
	require.NoError(t, err)
	return b
}

func peerAddr(ip string, port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(ip), Port: port}
}

func TestDiscoveryResponse_RegistersDeviceAndRequestsLabel(t *testing.T) {
	c, fs := newTestClient(t, nil)

	var mu sync.Mutex
	var added []device.Device
	c.SetEvents(Events{DeviceNew: func(d device.Device) {
		mu.Lock()
		added = append(added, d)
		mu.Unlock()
	}})

	resp := datagram(t, "stateService", &lifx.StateService{Service: lifx.ServiceUDP, Port: 56700}, testSource, 0)
	c.onDatagram(resp, peerAddr(testAddr, 56700))

	devices := c.ListDevices(device.FilterAll)
	require.Len(t, devices, 1)
	assert.Equal(t, testTarget, devices[0].ID)
	assert.Equal(t, testAddr, devices[0].Address)
	assert.Equal(t, device.StatusOn, devices[0].Status)
	assert.Nil(t, devices[0].Label)

	require.Eventually(t, func() bool { return fs.count() == 1 }, time.Second, time.Millisecond)
	p, addr := fs.packet(t, 0)
	assert.Equal(t, lifx.TypeGetLabel, p.Type)
	assert.Equal(t, testTarget, p.Target)
	assert.Equal(t, testSource, p.Source)
	assert.Equal(t, testAddr, addr)

	// 重复应答不重复登记、不重复请求标签
	c.onDatagram(resp, peerAddr(testAddr, 56700))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, fs.count())
	mu.Lock()
	assert.Len(t, added, 1)
	mu.Unlock()

	// 标签应答
	c.onDatagram(datagram(t, "stateLabel", &lifx.Label{Label: "Kitchen"}, testSource, p.Sequence), peerAddr(testAddr, 56700))
	d, ok := c.FindDevice("Kitchen")
	require.True(t, ok)
	require.NotNil(t, d.Label)
	assert.Equal(t, "Kitchen", *d.Label)
}

func TestDiscoveryResponse_IgnoresOtherServices(t *testing.T) {
	c, _ := newTestClient(t, nil)

	c.onDatagram(datagram(t, "stateService", &lifx.StateService{Service: 2, Port: 56700}, testSource, 0), peerAddr(testAddr, 56700))
	c.onDatagram(datagram(t, "stateService", &lifx.StateService{Service: lifx.ServiceUDP, Port: 56701}, testSource, 0), peerAddr(testAddr, 56700))
	// 其他实例的 source
	c.onDatagram(datagram(t, "stateService", &lifx.StateService{Service: lifx.ServiceUDP, Port: 56700}, "aaaaaaaa", 0), peerAddr(testAddr, 56700))

	assert.Empty(t, c.ListDevices(device.FilterAll))
}

func TestDeviceMoved_RefreshesLabel(t *testing.T) {
	c, fs := newTestClient(t, nil)
	resp := datagram(t, "stateService", &lifx.StateService{Service: lifx.ServiceUDP, Port: 56700}, testSource, 0)

	c.onDatagram(resp, peerAddr(testAddr, 56700))
	c.onDatagram(resp, peerAddr("192.168.0.60", 56700))

	require.Eventually(t, func() bool { return fs.count() == 2 }, time.Second, time.Millisecond)
	_, addr := fs.packet(t, 1)
	assert.Equal(t, "192.168.0.60", addr)
	d, ok := c.FindDevice(testTarget)
	require.True(t, ok)
	assert.Equal(t, "192.168.0.60", d.Address)
}

func TestSend_SequenceWraparound(t *testing.T) {
	c, fs := newTestClient(t, nil)
	c.devices.Upsert(testTarget, testAddr, 56700, 0)
	c.mu.Lock()
	c.seq = 254
	c.mu.Unlock()

	var seqs []uint8
	for i := 0; i < 3; i++ {
		p, err := lifx.Create("getPower", nil, testSource, testTarget)
		require.NoError(t, err)
		seq, err := c.Send(p, nil)
		require.NoError(t, err)
		seqs = append(seqs, seq)
	}
	assert.Equal(t, []uint8{255, 0, 1}, seqs)

	// 广播报文沿用当前序号
	p, err := lifx.Create("getService", nil, testSource, "")
	require.NoError(t, err)
	seq, err := c.Send(p, nil)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), seq)

	require.Eventually(t, func() bool { return fs.count() == 4 }, time.Second, time.Millisecond)
	first, addr := fs.packet(t, 0)
	assert.Equal(t, uint8(255), first.Sequence)
	assert.Equal(t, testAddr, addr)
	_, addr = fs.packet(t, 3)
	assert.Equal(t, "255.255.255.255", addr)
}

func TestSend_Acknowledged(t *testing.T) {
	c, fs := newTestClient(t, nil)
	c.devices.Upsert(testTarget, testAddr, 56700, 0)

	done := make(chan error, 1)
	p, err := lifx.Create("setPower", &lifx.SetPower{Level: lifx.PowerOn}, testSource, testTarget)
	require.NoError(t, err)
	seq, err := c.Send(p, func(err error, _ *lifx.Packet, _ Peer) { done <- err })
	require.NoError(t, err)

	require.Eventually(t, func() bool { return fs.count() >= 1 }, time.Second, time.Millisecond)
	out, _ := fs.packet(t, 0)
	assert.True(t, out.AckRequired)
	assert.Equal(t, seq, out.Sequence)

	// 其他序号的确认不触发
	c.onDatagram(datagram(t, "acknowledgement", nil, testSource, seq+1), peerAddr(testAddr, 56700))
	select {
	case <-done:
		t.Fatal("callback fired for wrong sequence")
	default:
	}

	c.onDatagram(datagram(t, "acknowledgement", nil, testSource, seq), peerAddr(testAddr, 56700))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("ack callback not fired")
	}
	assert.Equal(t, 0, c.QueueLen())
	assert.Equal(t, 1, fs.count())
}

func TestSend_RetryExhaustion(t *testing.T) {
	for _, max := range []int{1, 3} {
		c, fs := newTestClient(t, func(cfg *config.LANConfig) {
			cfg.ResendPacketDelay = 10 * time.Millisecond
			cfg.ResendMaxTimes = max
		})
		c.devices.Upsert(testTarget, testAddr, 56700, 0)

		done := make(chan error, 1)
		p, err := lifx.Create("setPower", &lifx.SetPower{Level: lifx.PowerOff}, testSource, testTarget)
		require.NoError(t, err)
		_, err = c.Send(p, func(err error, _ *lifx.Packet, _ Peer) { done <- err })
		require.NoError(t, err)

		select {
		case err := <-done:
			assert.ErrorIs(t, err, ErrAckTimeout)
		case <-time.After(2 * time.Second):
			t.Fatal("exhaustion callback not fired")
		}
		assert.Equal(t, max, fs.count(), "max=%d", max)
		assert.Equal(t, 0, c.QueueLen())
	}
}

func TestRequest_Response(t *testing.T) {
	c, fs := newTestClient(t, nil)
	c.devices.Upsert(testTarget, testAddr, 56700, 0)

	p, err := lifx.Create("getPower", nil, "", testTarget)
	require.NoError(t, err)

	type result struct {
		pkt *lifx.Packet
		err error
	}
	ch := make(chan result, 1)
	go func() {
		r, err := c.Request(context.Background(), p, lifx.TypeStatePower)
		ch <- result{r, err}
	}()

	require.Eventually(t, func() bool { return fs.count() == 1 }, time.Second, time.Millisecond)
	out, _ := fs.packet(t, 0)
	assert.True(t, out.ResRequired)
	assert.Equal(t, testSource, out.Source)

	c.onDatagram(datagram(t, "statePower", &lifx.StatePower{Level: lifx.PowerOn}, testSource, out.Sequence), peerAddr(testAddr, 56700))
	select {
	case r := <-ch:
		require.NoError(t, r.err)
		sp, ok := r.pkt.Payload.(*lifx.StatePower)
		require.True(t, ok)
		assert.Equal(t, uint16(lifx.PowerOn), sp.Level)
	case <-time.After(time.Second):
		t.Fatal("request did not complete")
	}
}

func TestRequest_ContextCancel(t *testing.T) {
	c, _ := newTestClient(t, nil)
	base := c.handlers.Len()

	p, err := lifx.Create("getPower", nil, testSource, "")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = c.Request(ctx, p, lifx.TypeStatePower)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, base, c.handlers.Len())

	_, err = c.Request(context.Background(), p, 9999)
	assert.ErrorIs(t, err, lifx.ErrUnknownType)
}

func TestRequest_HandlerTimeout(t *testing.T) {
	c, _ := newTestClient(t, func(cfg *config.LANConfig) {
		cfg.MessageHandlerTimeout = 10 * time.Millisecond
	})
	p, err := lifx.Create("getPower", nil, testSource, "")
	require.NoError(t, err)

	ch := make(chan error, 1)
	go func() {
		_, err := c.Request(context.Background(), p, lifx.TypeStatePower)
		ch <- err
	}()

	// 过期在下一次分发或发现轮次时被检查
	var got error
	require.Eventually(t, func() bool {
		c.onCycle(1)
		select {
		case got = <-ch:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, got, dispatch.ErrHandlerTimeout)
}

func TestAddMessageHandler(t *testing.T) {
	c, _ := newTestClient(t, nil)

	err := c.AddMessageHandler("getNothing", func(error, *lifx.Packet, Peer) {}, nil)
	assert.ErrorIs(t, err, lifx.ErrUnknownType)

	var got []uint8
	require.NoError(t, c.AddMessageHandler("statePower", func(_ error, p *lifx.Packet, _ Peer) {
		got = append(got, p.Sequence)
	}, nil))

	c.onDatagram(datagram(t, "statePower", &lifx.StatePower{}, testSource, 4), peerAddr(testAddr, 56700))
	c.onDatagram(datagram(t, "statePower", &lifx.StatePower{}, testSource, 5), peerAddr(testAddr, 56700))
	assert.Equal(t, []uint8{4, 5}, got)
}

func TestOnDatagram_MalformedAndUnknown(t *testing.T) {
	c, _ := newTestClient(t, nil)

	var malformed []error
	var messages []*lifx.Packet
	c.SetEvents(Events{
		Malformed: func(_ []byte, _ Peer, err error) { malformed = append(malformed, err) },
		Message:   func(p *lifx.Packet, _ Peer) { messages = append(messages, p) },
	})

	c.onDatagram([]byte{0x01, 0x02, 0x03}, peerAddr(testAddr, 56700))
	require.Len(t, malformed, 1)
	assert.True(t, errors.Is(malformed[0], lifx.ErrShortPacket))

	// 未登记类型：仅帧头，仍产生 message 事件
	raw, err := lifx.EncodeHeader(lifx.Header{Size: lifx.HeaderSize, ProtocolVersion: lifx.ProtocolVersion, Source: testSource, Target: lifx.NoTarget, Type: 9999})
	require.NoError(t, err)
	c.onDatagram(raw, peerAddr(testAddr, 56700))
	require.Len(t, messages, 1)
	assert.False(t, messages[0].Known())
	assert.Nil(t, messages[0].Payload)
	assert.Equal(t, uint16(9999), messages[0].Type)
}

func TestOnDatagram_IgnoresOwnBroadcast(t *testing.T) {
	c, fs := newTestClient(t, nil)
	c.hostIPs = map[string]struct{}{"127.0.0.1": {}}

	var messages int
	c.SetEvents(Events{Message: func(*lifx.Packet, Peer) { messages++ }})

	own := datagram(t, "getService", nil, testSource, 0)
	c.onDatagram(own, peerAddr("127.0.0.1", fs.port))
	assert.Equal(t, 0, messages)

	c.onDatagram(own, peerAddr("127.0.0.1", fs.port+1))
	assert.Equal(t, 1, messages)
}

func TestOfflineEventAfterTolerance(t *testing.T) {
	c, _ := newTestClient(t, nil)

	var offline, online int
	c.SetEvents(Events{
		DeviceOffline: func(device.Device) { offline++ },
		DeviceOnline:  func(device.Device) { online++ },
	})
	resp := datagram(t, "stateService", &lifx.StateService{Service: lifx.ServiceUDP, Port: 56700}, testSource, 0)
	c.onDatagram(resp, peerAddr(testAddr, 56700))

	for i := 0; i < 5; i++ {
		c.discovery.Cycle()
	}
	assert.Equal(t, 1, offline)
	assert.Empty(t, c.ListDevices(device.FilterOn))

	c.onDatagram(resp, peerAddr(testAddr, 56700))
	assert.Equal(t, 1, online)
	assert.Len(t, c.ListDevices(device.FilterOn), 1)
}

func TestClose_StopsCallbacks(t *testing.T) {
	c, fs := newTestClient(t, nil)

	var messages int
	c.SetEvents(Events{Message: func(*lifx.Packet, Peer) { messages++ }})
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	c.onDatagram(datagram(t, "statePower", &lifx.StatePower{}, testSource, 1), peerAddr(testAddr, 56700))
	assert.Equal(t, 0, messages)

	p, err := lifx.Create("getService", nil, testSource, "")
	require.NoError(t, err)
	_, err = c.Send(p, nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, fs.Bound())
	assert.ErrorIs(t, c.Init(context.Background()), ErrClosed)
}

func TestNew_ConfigurationError(t *testing.T) {
	cfg := config.DefaultLAN()
	cfg.Source = "not-hex!"
	_, err := New(cfg, nil, nil)
	var cfgErr *config.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "lan.source", cfgErr.Field)

	cfg = config.DefaultLAN()
	cfg.LightsFile = "/nonexistent/lights.yaml"
	_, err = New(cfg, nil, nil)
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "lan.lightsFile", cfgErr.Field)
}

func TestNew_RandomSource(t *testing.T) {
	a, err := New(config.DefaultLAN(), nil, nil)
	require.NoError(t, err)
	b, err := New(config.DefaultLAN(), nil, nil)
	require.NoError(t, err)
	assert.True(t, lifx.ValidSource(a.Source()))
	assert.NotEqual(t, a.Source(), b.Source())
}

func TestClose_FromDiscoveryCallbacks(t *testing.T) {
	tests := []struct {
		name string
		stop func(c *Client) error
	}{
		{"离线事件内 Close", func(c *Client) error { return c.Close() }},
		{"离线事件内 StopDiscovery", func(c *Client) error { c.StopDiscovery(); return nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(cfg *config.LANConfig) {
				cfg.OfflineTolerance = 1
				cfg.DiscoveryInterval = 5 * time.Millisecond
			})
			done := make(chan error, 1)
			c.SetEvents(Events{DeviceOffline: func(device.Device) {
				select {
				case done <- tt.stop(c):
				default:
				}
			}})
			resp := datagram(t, "stateService", &lifx.StateService{Service: lifx.ServiceUDP, Port: 56700}, testSource, 0)
			c.onDatagram(resp, peerAddr(testAddr, 56700))

			c.StartDiscovery()
			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(2 * time.Second):
				t.Fatal("stop inside offline callback did not return")
			}
			// 定时 goroutine 已退出：epoch 不再增长
			time.Sleep(20 * time.Millisecond)
			epoch := c.Epoch()
			time.Sleep(30 * time.Millisecond)
			assert.Equal(t, epoch, c.Epoch())
		})
	}
}
