package state

import (
	"sync"

	"github.com/fwpanel/fwctl/pkg/api"
)

// DefaultHistoryCapacity 连接统计历史默认容量
const DefaultHistoryCapacity = 100

// ConnectionHistory 有界的连接统计序列，超出容量时淘汰最旧的记录
// 默认按时间戳去重：时间戳相同的推送替换已有记录
type ConnectionHistory struct {
	mu              sync.RWMutex
	capacity        int
	allowDuplicates bool
	entries         []api.ConnectionStat
}

// NewConnectionHistory 创建连接统计历史
func NewConnectionHistory(capacity int, allowDuplicates bool) *ConnectionHistory {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &ConnectionHistory{
		capacity:        capacity,
		allowDuplicates: allowDuplicates,
		entries:         make([]api.ConnectionStat, 0, capacity),
	}
}

// Capacity 返回容量
func (h *ConnectionHistory) Capacity() int {
	return h.capacity
}

// Reset 用时间范围查询结果替换全部记录，只保留最新的capacity条
func (h *ConnectionHistory) Reset(initial []api.ConnectionStat) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(initial) > h.capacity {
		initial = initial[len(initial)-h.capacity:]
	}
	h.entries = h.entries[:0]
	for _, stat := range initial {
		h.appendLocked(stat)
	}
}

// Append 追加一条推送的记录
func (h *ConnectionHistory) Append(stat api.ConnectionStat) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appendLocked(stat)
}

func (h *ConnectionHistory) appendLocked(stat api.ConnectionStat) {
	if !h.allowDuplicates {
		for i := len(h.entries) - 1; i >= 0; i-- {
			if h.entries[i].Timestamp.Equal(stat.Timestamp.Time) {
				h.entries[i] = stat
				return
			}
		}
	}

	if len(h.entries) >= h.capacity {
		copy(h.entries, h.entries[1:])
		h.entries = h.entries[:len(h.entries)-1]
	}
	h.entries = append(h.entries, stat)
}

// Latest 返回最新一条记录
func (h *ConnectionHistory) Latest() (api.ConnectionStat, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.entries) == 0 {
		return api.ConnectionStat{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Snapshot 返回按时间先后排列的副本
func (h *ConnectionHistory) Snapshot() []api.ConnectionStat {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]api.ConnectionStat, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len 返回记录数
func (h *ConnectionHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Series 按字段提取数值序列，用于绘图
func (h *ConnectionHistory) Series(field func(api.ConnectionStat) int) []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]float64, len(h.entries))
	for i, stat := range h.entries {
		out[i] = float64(field(stat))
	}
	return out
}
