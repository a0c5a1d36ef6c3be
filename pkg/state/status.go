package state

import (
	"sync"

	"github.com/fwpanel/fwctl/pkg/api"
)

// StatusBoard 防火墙服务状态
// 拉取结果整体替换，推送结果按服务合并，后写入者生效
type StatusBoard struct {
	mu      sync.RWMutex
	status  api.ServiceStatus
	updated bool
}

// NewStatusBoard 创建状态板
func NewStatusBoard() *StatusBoard {
	return &StatusBoard{status: api.ServiceStatus{}}
}

// Replace 用拉取结果整体替换
func (b *StatusBoard) Replace(status api.ServiceStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = make(api.ServiceStatus, len(status))
	for k, v := range status {
		b.status[k] = v
	}
	b.updated = true
}

// Merge 合并推送的部分状态，未出现的服务保持不变
func (b *StatusBoard) Merge(partial api.ServiceStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range partial {
		b.status[k] = v
	}
	b.updated = true
}

// Get 返回单个服务状态
func (b *StatusBoard) Get(service api.Service) (api.ServiceState, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.status[service]
	return st, ok
}

// Snapshot 返回状态副本
func (b *StatusBoard) Snapshot() api.ServiceStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(api.ServiceStatus, len(b.status))
	for k, v := range b.status {
		out[k] = v
	}
	return out
}

// Known 是否收到过任何状态
func (b *StatusBoard) Known() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updated
}

// AnyActive 任一防火墙服务在运行
func (b *StatusBoard) AnyActive() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status.AnyActive()
}
