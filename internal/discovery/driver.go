package discovery

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/lifx-lan/internal/device"
)

// SendFunc 发送一个 getService 探测；address 为空表示广播
type SendFunc func(address string) error

// Options 发现节奏
type Options struct {
	Interval  time.Duration
	Tolerance uint64   // 连续未应答的轮数达到该值即视为离线
	Lights    []string // 额外单播探测的地址
}

// Driver 周期性发现：离线判定 -> 广播探测 -> 单播探测 -> epoch+1
type Driver struct {
	opts     Options
	registry *device.Registry
	send     SendFunc
	logger   *zap.Logger

	// OnOffline 设备转为 off 时调用（锁外）
	OnOffline func(d device.Device)
	// OnCycle 每轮结束后调用，参数为新的 epoch
	OnCycle func(epoch uint64)

	epoch   atomic.Uint64
	inCycle atomic.Bool // 定时 goroutine 正在执行 Cycle
	mu      sync.Mutex
	running bool
	stopC   chan struct{}
	wg      sync.WaitGroup
}

func NewDriver(opts Options, registry *device.Registry, send SendFunc, logger *zap.Logger) *Driver {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{opts: opts, registry: registry, send: send, logger: logger}
}

// Epoch 当前发现轮次
func (d *Driver) Epoch() uint64 { return d.epoch.Load() }

// Lights 单播探测地址
func (d *Driver) Lights() []string {
	out := make([]string, len(d.opts.Lights))
	copy(out, d.opts.Lights)
	return out
}

func (d *Driver) isRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Start 立即执行一轮并启动定时器；重复调用无副作用
func (d *Driver) Start() {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.stopC = make(chan struct{})
	stopC := d.stopC
	d.mu.Unlock()

	d.logger.Info("discovery started",
		zap.Duration("interval", d.opts.Interval),
		zap.Int("lights", len(d.opts.Lights)))
	d.Cycle()

	d.wg.Add(1)
	go d.run(stopC)
}

// Stop 停止定时器；重复调用无副作用
// 在本轮回调内调用时不等待定时 goroutine 退出，它在 Cycle 返回后自行结束
func (d *Driver) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopC)
	d.mu.Unlock()
	if !d.inCycle.Load() {
		d.wg.Wait()
	}
	d.logger.Info("discovery stopped", zap.Uint64("epoch", d.Epoch()))
}

func (d *Driver) run(stopC chan struct{}) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopC:
			return
		case <-ticker.C:
			d.inCycle.Store(true)
			d.Cycle()
			d.inCycle.Store(false)
		}
	}
}

// Cycle 执行一轮发现
func (d *Driver) Cycle() {
	epoch := d.epoch.Load()

	for _, dev := range d.registry.MarkStale(epoch, d.opts.Tolerance) {
		d.logger.Info("device offline",
			zap.String("id", dev.ID),
			zap.String("address", dev.Address),
			zap.Uint64("last_seen", dev.LastSeen))
		if d.OnOffline != nil {
			d.OnOffline(dev)
		}
	}

	if err := d.send(""); err != nil {
		d.logger.Warn("discovery broadcast failed", zap.Error(err))
	}
	for _, addr := range d.opts.Lights {
		if err := d.send(addr); err != nil {
			d.logger.Warn("discovery unicast failed", zap.String("address", addr), zap.Error(err))
		}
	}

	next := d.epoch.Add(1)
	if d.OnCycle != nil {
		d.OnCycle(next)
	}
}
