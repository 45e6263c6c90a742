package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/lifx-lan/internal/config"
	"github.com/taoyao-code/lifx-lan/internal/device"
	"github.com/taoyao-code/lifx-lan/internal/discovery"
	"github.com/taoyao-code/lifx-lan/internal/dispatch"
	"github.com/taoyao-code/lifx-lan/internal/metrics"
	"github.com/taoyao-code/lifx-lan/internal/outbound"
	"github.com/taoyao-code/lifx-lan/internal/protocol/lifx"
	"github.com/taoyao-code/lifx-lan/internal/udp"
)

var (
	// ErrAckTimeout 重发次数耗尽仍未收到确认
	ErrAckTimeout = errors.New("client: no acknowledgement after max retries")
	// ErrClosed 客户端已关闭
	ErrClosed = errors.New("client: closed")
	// ErrAlreadyInitialized 重复 Init
	ErrAlreadyInitialized = errors.New("client: already initialized")
)

// Handler 报文回调：确认、应答或超时
type Handler = dispatch.Func

// Peer 报文来源
type Peer = dispatch.Peer

// Events 可选事件回调，均在锁外调用；需在 Init 之前设置
type Events struct {
	DeviceNew     func(d device.Device)
	DeviceOnline  func(d device.Device)
	DeviceOffline func(d device.Device)
	Message       func(pkt *lifx.Packet, peer Peer)
	Malformed     func(data []byte, peer Peer, err error)
	Error         func(err error)
}

// socket 客户端依赖的 UDP 能力（*udp.Socket 实现）
type socket interface {
	Bound() bool
	WriteTo(data []byte, address string) error
	LocalAddr() *net.UDPAddr
	Shutdown(ctx context.Context) error
}

// Client 局域网协议引擎：一个 socket、一个序号计数器、设备表、处理器表、发送队列与发现驱动
type Client struct {
	cfg     config.LANConfig
	logger  *zap.Logger
	metrics *metrics.EngineMetrics
	source  string
	events  Events

	devices   *device.Registry
	handlers  *dispatch.Registry
	queue     *outbound.Queue
	discovery *discovery.Driver
	limiter   *udp.RateLimiter

	mu      sync.Mutex // 保护 sock、seq
	sock    socket
	seq     uint8
	hostIPs map[string]struct{}
	closed  atomic.Bool
}

// New 校验配置并构造客户端（尚未绑定 socket）
func New(cfg config.LANConfig, logger *zap.Logger, m *metrics.EngineMetrics) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	lights := append([]string(nil), cfg.Lights...)
	if cfg.LightsFile != "" {
		fromFile, err := discovery.LoadKnownLights(cfg.LightsFile)
		if err != nil {
			return nil, &config.ConfigurationError{Field: "lan.lightsFile", Reason: err.Error()}
		}
		lights = append(lights, fromFile...)
	}
	lights, err := discovery.NormalizeLights(lights)
	if err != nil {
		return nil, &config.ConfigurationError{Field: "lan.lights", Reason: err.Error()}
	}

	source := strings.ToLower(cfg.Source)
	if source == "" {
		source = randomSource()
	}

	c := &Client{
		cfg:      cfg,
		logger:   logger.With(zap.String("source", source)),
		metrics:  m,
		source:   source,
		devices:  device.New(),
		handlers: dispatch.New(cfg.MessageHandlerTimeout),
		hostIPs:  udp.HostIPs(),
	}
	c.queue = outbound.New(outbound.Options{
		Interval:   cfg.SendInterval,
		RetryDelay: cfg.ResendPacketDelay,
		MaxRetries: cfg.ResendMaxTimes,
		Broadcast:  cfg.Broadcast,
	}, c, outbound.Hooks{
		OnTransmit:  c.onTransmit,
		OnExhausted: c.onExhausted,
	}, c.logger)
	c.discovery = discovery.NewDriver(discovery.Options{
		Interval:  cfg.DiscoveryInterval,
		Tolerance: uint64(cfg.OfflineTolerance),
		Lights:    lights,
	}, c.devices, c.sendDiscovery, c.logger)
	c.discovery.OnOffline = c.onOffline
	c.discovery.OnCycle = c.onCycle

	// 内置处理器：发现应答与标签
	c.handlers.Register(lifx.TypeStateService, c.processDiscovery, nil)
	c.handlers.Register(lifx.TypeStateLabel, c.processLabel, nil)
	c.handlers.Register(lifx.TypeStateLight, c.processLabel, nil)
	return c, nil
}

// randomSource 8 位小写十六进制
func randomSource() string {
	id := uuid.New()
	return fmt.Sprintf("%x", id[:4])
}

// SetEvents 设置事件回调，需在 Init 之前调用
func (c *Client) SetEvents(ev Events) { c.events = ev }

// Init 绑定 socket、启动读循环，按配置启动发现
func (c *Client) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closed.Load() {
		return ErrClosed
	}

	c.mu.Lock()
	if c.sock != nil {
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}
	s, err := udp.Listen(c.cfg.Address, c.cfg.Port, c.cfg.SendPort)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("bind lan socket: %w", err)
	}
	c.limiter = udp.NewRateLimiter(c.cfg.InboundRate, c.cfg.InboundBurst)
	s.SetLimiter(c.limiter, c.metrics.Dropped)
	c.sock = s
	c.mu.Unlock()

	s.Start(c.onDatagram, c.onSocketError)
	c.logger.Info("lan client listening",
		zap.String("addr", s.LocalAddr().String()),
		zap.String("broadcast", c.cfg.Broadcast),
		zap.Int("send_port", c.cfg.SendPort))

	// Init 之前入队的报文
	c.queue.Kick()
	if c.cfg.StartDiscovery {
		c.discovery.Start()
	}
	return nil
}

// StartDiscovery 启动周期发现（幂等）
func (c *Client) StartDiscovery() {
	if c.closed.Load() {
		return
	}
	c.discovery.Start()
}

// StopDiscovery 停止周期发现（幂等）
func (c *Client) StopDiscovery() { c.discovery.Stop() }

// Close 停止发现与发送、关闭 socket；之后不再触发任何回调
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.discovery.Stop()
	c.queue.Close()

	c.mu.Lock()
	s := c.sock
	c.mu.Unlock()
	if s == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		return fmt.Errorf("close lan socket: %w", err)
	}
	c.logger.Info("lan client closed")
	return nil
}

// Bound socket 是否处于绑定状态
func (c *Client) Bound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sock != nil && c.sock.Bound()
}

// WriteTo 发送队列的写出通道
func (c *Client) WriteTo(data []byte, address string) error {
	c.mu.Lock()
	s := c.sock
	c.mu.Unlock()
	if s == nil {
		return udp.ErrNotBound
	}
	return s.WriteTo(data, address)
}

// Source 本实例 source id
func (c *Client) Source() string { return c.source }

// Address 本地绑定地址，未绑定时为 nil
func (c *Client) Address() *net.UDPAddr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sock == nil {
		return nil
	}
	return c.sock.LocalAddr()
}

// Epoch 当前发现轮次
func (c *Client) Epoch() uint64 { return c.discovery.Epoch() }

// QueueLen 发送队列长度
func (c *Client) QueueLen() int { return c.queue.Len() }

// Lights 单播探测地址
func (c *Client) Lights() []string { return c.discovery.Lights() }

// FindDevice 按地址、id、标签查找设备
func (c *Client) FindDevice(identifier string) (device.Device, bool) {
	return c.devices.Find(identifier)
}

// ListDevices 按状态列出设备
func (c *Client) ListDevices(filter device.StatusFilter) []device.Device {
	return c.devices.List(filter)
}

// InboundStats 入站限流统计，未启用限流时为零值
func (c *Client) InboundStats() udp.RateLimiterStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limiter.Stats()
}

// OnlineCount 在线设备数
func (c *Client) OnlineCount() int { return c.devices.OnlineCount() }

func (c *Client) observe() {
	c.metrics.Observe(c.devices.OnlineCount(), c.queue.Len(), c.discovery.Epoch())
}
