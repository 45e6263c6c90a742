package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
)

// ErrNotBound socket 未绑定或已关闭
var ErrNotBound = errors.New("udp: socket not bound")

const readBufferSize = 4096

// Handler 入站数据报回调；data 为独立副本
type Handler func(data []byte, peer *net.UDPAddr)

// Socket 单个 UDP/IPv4 socket：广播与单播共用
type Socket struct {
	conn     *net.UDPConn
	sendPort int
	bound    atomic.Bool
	stopped  atomic.Bool
	wg       sync.WaitGroup
	started  atomic.Bool
	inRead   atomic.Bool // 读循环正在执行 Handler

	limiter *RateLimiter
	onDrop  func()
}

// Listen 绑定 address:port（port 为 0 时随机），sendPort 为设备端口
func Listen(address string, port, sendPort int) (*Socket, error) {
	laddr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("resolve %s:%d: %w", address, port, err)
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", laddr, err)
	}
	s := &Socket{conn: conn, sendPort: sendPort}
	s.bound.Store(true)
	return s, nil
}

// SetLimiter 设置入站限流；onDrop 在丢弃时调用
func (s *Socket) SetLimiter(l *RateLimiter, onDrop func()) {
	s.limiter, s.onDrop = l, onDrop
}

// Start 启动读循环（非阻塞，内部 goroutine）；onError 在读失败导致 socket 关闭时调用一次
func (s *Socket) Start(h Handler, onError func(error)) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		buf := make([]byte, readBufferSize)
		for {
			n, peer, err := s.conn.ReadFromUDP(buf)
			if err != nil {
				if s.stopped.Load() {
					return
				}
				s.bound.Store(false)
				_ = s.conn.Close()
				if onError != nil {
					onError(fmt.Errorf("udp read: %w", err))
				}
				return
			}
			if !s.limiter.Allow() {
				if s.onDrop != nil {
					s.onDrop()
				}
				continue
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			s.inRead.Store(true)
			h(data, peer)
			s.inRead.Store(false)
		}
	}()
}

// Bound 是否处于绑定状态
func (s *Socket) Bound() bool { return s.bound.Load() }

// WriteTo 发往 address:sendPort
func (s *Socket) WriteTo(data []byte, address string) error {
	if !s.bound.Load() {
		return ErrNotBound
	}
	ip := net.ParseIP(address)
	if ip == nil || ip.To4() == nil {
		return fmt.Errorf("udp: invalid ipv4 address %q", address)
	}
	if _, err := s.conn.WriteToUDP(data, &net.UDPAddr{IP: ip, Port: s.sendPort}); err != nil {
		return fmt.Errorf("udp write %s: %w", address, err)
	}
	return nil
}

// LocalAddr 本地绑定地址
func (s *Socket) LocalAddr() *net.UDPAddr {
	addr, _ := s.conn.LocalAddr().(*net.UDPAddr)
	return addr
}

// Shutdown 关闭 socket 并等待读循环退出
// 从 Handler 内调用时不等待，读循环在 Handler 返回后退出
func (s *Socket) Shutdown(ctx context.Context) error {
	if s.stopped.CompareAndSwap(false, true) {
		s.bound.Store(false)
		_ = s.conn.Close()
	}
	if s.inRead.Load() {
		return nil
	}
	ch := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(ch)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

// HostIPs 本机所有 IPv4 地址，用于忽略自身广播
func HostIPs() map[string]struct{} {
	out := make(map[string]struct{})
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return out
	}
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip4 := ip.To4(); ip4 != nil {
			out[ip4.String()] = struct{}{}
		}
	}
	return out
}
