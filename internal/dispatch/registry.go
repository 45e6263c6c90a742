package dispatch

import (
	"errors"
	"sync"
	"time"

	"github.com/taoyao-code/lifx-lan/internal/protocol/lifx"
)

// ErrHandlerTimeout 一次性处理器在超时时间内未收到匹配报文
var ErrHandlerTimeout = errors.New("dispatch: no response in time")

// Peer 报文来源
type Peer struct {
	Address string
	Port    int
}

// Func 处理器回调；超时时 err 非空、pkt 为 nil
type Func func(err error, pkt *lifx.Packet, peer Peer)

// Call 待执行的回调，由调用方在释放锁后执行
type Call struct {
	fn   Func
	err  error
	pkt  *lifx.Packet
	peer Peer
}

// Err 回调携带的错误（超时）
func (c Call) Err() error { return c.err }

// Fire 执行回调
func (c Call) Fire() {
	if c.fn != nil {
		c.fn(c.err, c.pkt, c.peer)
	}
}

// Result 一次分发的结果
type Result struct {
	Calls   []Call
	Matched []uint8 // 命中一次性处理器的序号，调用方据此清理重发队列
}

type handler struct {
	id         uint64
	typ        uint16
	fn         Func
	seq        uint8
	oneShot    bool
	registered time.Time
}

// Registry 报文处理器表（type + 可选 sequence）
// 按注册顺序检查；带 sequence 的处理器命中一次即移除，不带的永久生效
type Registry struct {
	mu       sync.Mutex
	handlers []*handler
	nextID   uint64
	timeout  time.Duration
	now      func() time.Time
}

// New timeout<=0 表示一次性处理器永不过期
func New(timeout time.Duration) *Registry {
	return &Registry{timeout: timeout, now: time.Now}
}

// Register 注册处理器，返回可用于 Cancel 的 id
func (r *Registry) Register(typ uint16, fn Func, seq *uint8) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	h := &handler{id: r.nextID, typ: typ, fn: fn, registered: r.now()}
	if seq != nil {
		h.seq = *seq
		h.oneShot = true
	}
	r.handlers = append(r.handlers, h)
	return h.id
}

// Cancel 移除指定处理器，不触发回调
func (r *Registry) Cancel(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, h := range r.handlers {
		if h.id == id {
			r.removeLocked(i)
			return true
		}
	}
	return false
}

// Take 取出第一个匹配 type+seq 的一次性处理器（重发耗尽时使用）
func (r *Registry) Take(typ uint16, seq uint8) (Func, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, h := range r.handlers {
		if h.oneShot && h.typ == typ && h.seq == seq {
			r.removeLocked(i)
			return h.fn, true
		}
	}
	return nil, false
}

// Len 当前处理器数量
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

// Dispatch 计算入站报文应触发的回调
// 非本实例 source 的报文不匹配任何处理器，但仍会执行过期清理
func (r *Registry) Dispatch(pkt *lifx.Packet, peer Peer, source string) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var res Result
	ours := pkt != nil && lifx.SameSource(pkt.Source, source)
	kept := r.handlers[:0]
	for _, h := range r.handlers {
		if ours && h.typ == pkt.Type {
			if !h.oneShot {
				res.Calls = append(res.Calls, Call{fn: h.fn, pkt: pkt, peer: peer})
				kept = append(kept, h)
				continue
			}
			if h.seq == pkt.Sequence {
				res.Calls = append(res.Calls, Call{fn: h.fn, pkt: pkt, peer: peer})
				res.Matched = append(res.Matched, h.seq)
				continue
			}
		}
		if r.expiredLocked(h, now) {
			res.Calls = append(res.Calls, Call{fn: h.fn, err: ErrHandlerTimeout})
			continue
		}
		kept = append(kept, h)
	}
	r.truncateLocked(kept)
	return res
}

// Expire 移除已过期的一次性处理器，返回需要以 ErrHandlerTimeout 通知的回调
func (r *Registry) Expire() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var calls []Call
	kept := r.handlers[:0]
	for _, h := range r.handlers {
		if r.expiredLocked(h, now) {
			calls = append(calls, Call{fn: h.fn, err: ErrHandlerTimeout})
			continue
		}
		kept = append(kept, h)
	}
	r.truncateLocked(kept)
	return calls
}

func (r *Registry) expiredLocked(h *handler, now time.Time) bool {
	return h.oneShot && r.timeout > 0 && now.Sub(h.registered) > r.timeout
}

func (r *Registry) removeLocked(i int) {
	copy(r.handlers[i:], r.handlers[i+1:])
	r.handlers[len(r.handlers)-1] = nil
	r.handlers = r.handlers[:len(r.handlers)-1]
}

func (r *Registry) truncateLocked(kept []*handler) {
	for i := len(kept); i < len(r.handlers); i++ {
		r.handlers[i] = nil
	}
	r.handlers = kept
}
