package device

import (
	"strings"
	"sync"
)

// Status 设备在线状态
type Status string

const (
	StatusOn  Status = "on"
	StatusOff Status = "off"
)

// StatusFilter 列表过滤条件，空串表示全部
type StatusFilter string

const (
	FilterAll StatusFilter = ""
	FilterOn  StatusFilter = StatusFilter(StatusOn)
	FilterOff StatusFilter = StatusFilter(StatusOff)
)

// ParseFilter 解析 on/off/all/空串
func ParseFilter(s string) (StatusFilter, bool) {
	switch strings.ToLower(s) {
	case "", "all":
		return FilterAll, true
	case "on":
		return FilterOn, true
	case "off":
		return FilterOff, true
	}
	return FilterAll, false
}

// Device 已发现的设备（对外只返回副本）
type Device struct {
	ID       string  `json:"id"`
	Address  string  `json:"address"`
	Port     uint32  `json:"port"`
	Label    *string `json:"label"`
	Status   Status  `json:"status"`
	LastSeen uint64  `json:"lastSeenEpoch"`
}

// Change Upsert 的结果
type Change int

const (
	ChangeNone   Change = iota
	ChangeNew           // 首次发现
	ChangeOnline        // off -> on
	ChangeMoved         // 地址变化（DHCP 等）
)

// Registry 设备表：id -> Device，保持首次发现顺序
// 设备只会被标记为 off，不会被删除
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device
	order   []string
}

func New() *Registry {
	return &Registry{devices: make(map[string]*Device)}
}

// Upsert 根据发现应答新增或刷新设备
// 未知设备：新建并置 on；已知设备：刷新地址与 lastSeen，off 则翻转为 on
func (r *Registry) Upsert(id, address string, port uint32, epoch uint64) (Device, Change) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		d = &Device{ID: id, Address: address, Port: port, Status: StatusOn, LastSeen: epoch}
		r.devices[id] = d
		r.order = append(r.order, id)
		return d.copy(), ChangeNew
	}

	change := ChangeNone
	if d.Address != address {
		change = ChangeMoved
	}
	if d.Status == StatusOff {
		d.Status = StatusOn
		change = ChangeOnline
	}
	d.Address = address
	d.Port = port
	d.LastSeen = epoch
	return d.copy(), change
}

// MarkStale 将 (epoch - lastSeen) >= tolerance 且仍在线的设备置为 off，返回本次转为 off 的设备
func (r *Registry) MarkStale(epoch uint64, tolerance uint64) []Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Device
	for _, id := range r.order {
		d := r.devices[id]
		if d.Status == StatusOff || epoch < d.LastSeen {
			continue
		}
		if epoch-d.LastSeen >= tolerance {
			d.Status = StatusOff
			out = append(out, d.copy())
		}
	}
	return out
}

// SetLabel 设置标签，未知设备忽略
func (r *Registry) SetLabel(id, label string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return false
	}
	d.Label = &label
	return true
}

// Get 按 id 精确查找
func (r *Registry) Get(id string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	if !ok {
		return Device{}, false
	}
	return d.copy(), true
}

// Find 按地址、id、标签的优先级查找（区分大小写，精确匹配）
func (r *Registry) Find(identifier string) (Device, bool) {
	if identifier == "" {
		return Device{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		if d := r.devices[id]; d.Address == identifier {
			return d.copy(), true
		}
	}
	if d, ok := r.devices[identifier]; ok {
		return d.copy(), true
	}
	for _, id := range r.order {
		if d := r.devices[id]; d.Label != nil && *d.Label == identifier {
			return d.copy(), true
		}
	}
	return Device{}, false
}

// List 返回全部设备或按状态过滤，顺序为首次发现顺序
func (r *Registry) List(filter StatusFilter) []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Device, 0, len(r.order))
	for _, id := range r.order {
		d := r.devices[id]
		if filter != FilterAll && string(d.Status) != string(filter) {
			continue
		}
		out = append(out, d.copy())
	}
	return out
}

// OnlineCount 当前在线设备数
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, d := range r.devices {
		if d.Status == StatusOn {
			n++
		}
	}
	return n
}

// Len 设备总数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

func (d *Device) copy() Device {
	c := *d
	if d.Label != nil {
		l := *d.Label
		c.Label = &l
	}
	return c
}
