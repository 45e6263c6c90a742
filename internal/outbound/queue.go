package outbound

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Kind 事务类型
type Kind int

const (
	OneWay          Kind = iota // 发送一次即丢弃
	RequestResponse             // 等待确认，超时重发
)

func (k Kind) String() string {
	if k == RequestResponse {
		return "request_response"
	}
	return "one_way"
}

// Entry 待发送报文
type Entry struct {
	Data     []byte
	Address  string // 为空时发往广播地址
	Kind     Kind
	Sequence uint8
	Type     uint16
	Attempts int
	LastSent time.Time
	Created  time.Time
}

// Transport 下行写出能力
type Transport interface {
	// Bound socket 是否处于绑定状态
	Bound() bool
	// WriteTo 写出一个数据报
	WriteTo(data []byte, address string) error
}

// Options 发送节奏与重发策略
type Options struct {
	Interval   time.Duration // 每个 tick 弹出一条
	RetryDelay time.Duration // 两次发送的最小间隔
	MaxRetries int           // 请求-应答报文的最大发送次数
	Broadcast  string        // 未指定地址时使用
}

// Hooks 可选回调（指标、超时通知）
type Hooks struct {
	OnTransmit  func(e Entry)
	OnExhausted func(e Entry)
}

// Queue 内存下行队列：固定速率出队，请求-应答报文有限次重发
// ticker 在队列为空时自停，Enqueue 时按需重启
type Queue struct {
	mu        sync.Mutex
	entries   []*Entry
	running   bool
	closed    bool
	stopC     chan struct{}
	opts      Options
	transport Transport
	hooks     Hooks
	logger    *zap.Logger
	now       func() time.Time
}

func New(opts Options, transport Transport, hooks Hooks, logger *zap.Logger) *Queue {
	if opts.Interval <= 0 {
		opts.Interval = 50 * time.Millisecond
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		opts:      opts,
		transport: transport,
		hooks:     hooks,
		logger:    logger,
		stopC:     make(chan struct{}),
		now:       time.Now,
	}
}

// Enqueue 入队并按需启动发送 ticker
func (q *Queue) Enqueue(e Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if e.Created.IsZero() {
		e.Created = q.now()
	}
	q.entries = append(q.entries, &e)
	q.startLocked()
}

// Remove 移除指定序号的请求-应答报文（已收到确认），返回是否命中
func (q *Queue) Remove(seq uint8) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := false
	kept := q.entries[:0]
	for _, e := range q.entries {
		if e.Kind == RequestResponse && e.Sequence == seq {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = nil
	}
	q.entries = kept
	return removed
}

// pending 指定序号的请求-应答报文是否仍在队列中
func (q *Queue) pending(seq uint8) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.Kind == RequestResponse && e.Sequence == seq {
			return true
		}
	}
	return false
}

// Len 队列长度
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *Queue) isRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Kick socket 重新可用后重启 ticker
func (q *Queue) Kick() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) > 0 {
		q.startLocked()
	}
}

// Close 停止 ticker 并丢弃剩余报文，之后的 Enqueue 被忽略
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.entries = nil
	close(q.stopC)
}

func (q *Queue) startLocked() {
	if q.running || q.closed {
		return
	}
	q.running = true
	go q.run()
}

func (q *Queue) run() {
	ticker := time.NewTicker(q.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-q.stopC:
			return
		case <-ticker.C:
			if !q.tick() {
				return
			}
		}
	}
}

// tick 弹出一条报文并处理；返回 false 表示 ticker 应当停止
func (q *Queue) tick() bool {
	q.mu.Lock()
	if q.closed {
		q.running = false
		q.mu.Unlock()
		return false
	}
	if q.transport == nil || !q.transport.Bound() {
		q.running = false
		q.mu.Unlock()
		q.logger.Warn("outbound stopped: socket not bound")
		return false
	}
	if len(q.entries) == 0 {
		q.running = false
		q.mu.Unlock()
		return false
	}

	e := q.entries[0]
	q.entries[0] = nil
	q.entries = q.entries[1:]
	now := q.now()

	send, exhausted := false, false
	switch e.Kind {
	case OneWay:
		send = true
	case RequestResponse:
		switch {
		case e.Attempts < q.opts.MaxRetries:
			if e.Attempts == 0 || now.Sub(e.LastSent) >= q.opts.RetryDelay {
				send = true
				e.Attempts++
				e.LastSent = now
			}
			q.entries = append(q.entries, e)
		case now.Sub(e.LastSent) >= q.opts.RetryDelay:
			// 最后一次发送后仍等满一个重发间隔再判定超时
			exhausted = true
		default:
			q.entries = append(q.entries, e)
		}
	}
	snapshot := *e
	q.mu.Unlock()

	if send {
		addr := snapshot.Address
		if addr == "" {
			addr = q.opts.Broadcast
		}
		if err := q.transport.WriteTo(snapshot.Data, addr); err != nil {
			q.logger.Warn("outbound write failed",
				zap.String("addr", addr),
				zap.Uint16("type", snapshot.Type),
				zap.Uint8("seq", snapshot.Sequence),
				zap.Error(err))
		} else {
			q.logger.Debug("outbound sent",
				zap.String("addr", addr),
				zap.Uint16("type", snapshot.Type),
				zap.Uint8("seq", snapshot.Sequence),
				zap.Int("attempt", snapshot.Attempts))
			if q.hooks.OnTransmit != nil {
				q.hooks.OnTransmit(snapshot)
			}
		}
	}
	if exhausted {
		q.logger.Debug("outbound retries exhausted",
			zap.Uint8("seq", snapshot.Sequence),
			zap.Int("attempts", snapshot.Attempts))
		if q.hooks.OnExhausted != nil {
			q.hooks.OnExhausted(snapshot)
		}
	}
	return true
}
