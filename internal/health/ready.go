package health

import "sync/atomic"

// Readiness 启动阶段就绪标记（socket、HTTP）
type Readiness struct {
	lanReady  atomic.Bool
	httpReady atomic.Bool
}

func New() *Readiness { return &Readiness{} }

func (r *Readiness) SetLANReady(v bool)  { r.lanReady.Store(v) }
func (r *Readiness) SetHTTPReady(v bool) { r.httpReady.Store(v) }

// Ready 总体就绪：各子系统均为 true
func (r *Readiness) Ready() bool {
	return r.lanReady.Load() && r.httpReady.Load()
}
