package state

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fwpanel/fwctl/pkg/logger"
	"github.com/sirupsen/logrus"
)

// ErrClosed 资源已关闭（视图已卸载）
var ErrClosed = errors.New("resource closed")

// RefreshError 变更已在服务端生效，但随后的重新拉取失败
type RefreshError struct {
	Err error
}

// Error 实现error接口
func (e *RefreshError) Error() string {
	return "变更已生效，刷新列表失败: " + e.Err.Error()
}

// Unwrap 返回拉取失败的原因
func (e *RefreshError) Unwrap() error {
	return e.Err
}

// Applied 错误是否表示变更已生效、只是刷新失败
func Applied(err error) bool {
	var refreshErr *RefreshError
	return errors.As(err, &refreshErr)
}

// FetchFunc 拉取资源全集
type FetchFunc[T any] func(ctx context.Context) ([]T, error)

// Resource 服务端为唯一数据源的本地列表副本
// 变更成功后重新拉取，不做乐观更新；过期的响应不会覆盖较新的数据
type Resource[T any] struct {
	name  string
	fetch FetchFunc[T]

	mutateMu sync.Mutex

	mu       sync.Mutex
	items    []T
	state    LoadState
	err      error
	gen      uint64
	closed   bool
	onChange func(LoadState)
	log      *logrus.Entry
}

// NewResource 创建资源
func NewResource[T any](name string, fetch FetchFunc[T]) *Resource[T] {
	return &Resource[T]{
		name:  name,
		fetch: fetch,
		log:   logger.GetStateLogger().WithField("resource", name),
	}
}

// OnChange 注册状态变化回调
func (r *Resource[T]) OnChange(fn func(LoadState)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// Refresh 重新拉取全集
// 较早发起的请求若晚于较新的请求返回，其结果被丢弃
func (r *Resource[T]) Refresh(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.gen++
	gen := r.gen
	prev := r.state
	r.state = Loading
	cb := r.onChange
	r.mu.Unlock()

	if cb != nil && prev != Loading {
		cb(Loading)
	}

	start := time.Now()
	items, err := r.fetch(ctx)

	r.mu.Lock()
	if r.closed || gen != r.gen {
		r.mu.Unlock()
		r.log.WithField("generation", gen).Debug("丢弃过期响应")
		return nil
	}
	if err != nil {
		r.state = Failed
		r.err = err
	} else {
		r.items = items
		r.state = Loaded
		r.err = nil
	}
	next := r.state
	cb = r.onChange
	r.mu.Unlock()

	logger.LogPerformance("refresh_"+r.name, time.Since(start), logrus.Fields{
		"state": next.String(),
		"count": len(items),
	})
	if cb != nil {
		cb(next)
	}
	return err
}

// Mutate 执行一次变更，成功后重新拉取
// 同一资源的变更串行执行；失败时本地列表保持变更前的值
func (r *Resource[T]) Mutate(ctx context.Context, fn func(ctx context.Context) error) error {
	r.mutateMu.Lock()
	defer r.mutateMu.Unlock()

	if r.isClosed() {
		return ErrClosed
	}

	if err := fn(ctx); err != nil {
		r.log.WithError(err).Debug("变更失败")
		return err
	}
	if err := r.Refresh(ctx); err != nil && !errors.Is(err, ErrClosed) {
		return &RefreshError{Err: err}
	}
	return nil
}

// Items 返回当前列表的副本
func (r *Resource[T]) Items() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

// Find 返回第一个满足条件的元素
func (r *Resource[T]) Find(match func(T) bool) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.items {
		if match(item) {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// State 返回当前加载状态
func (r *Resource[T]) State() LoadState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err 返回最近一次加载错误
func (r *Resource[T]) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Ack 确认失败，Failed回到Idle，保留上次的列表
func (r *Resource[T]) Ack() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Failed {
		r.state = Idle
		r.err = nil
	}
}

// Close 关闭资源，进行中的请求结果将被丢弃
func (r *Resource[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.gen++
}

func (r *Resource[T]) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
