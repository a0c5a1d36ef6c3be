package dashboard

import (
	"context"
	"fmt"
	"sync"

	"github.com/fwpanel/fwctl/pkg/api"
	"github.com/fwpanel/fwctl/pkg/config"
	"github.com/fwpanel/fwctl/pkg/feed"
	"github.com/fwpanel/fwctl/pkg/logger"
	"github.com/fwpanel/fwctl/pkg/state"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// StatusView 防火墙状态视图
// 拉取的状态和连接统计与实时推送写入同一份数据
type StatusView struct {
	client  *api.Client
	board   *state.StatusBoard
	history *state.ConnectionHistory
	feed    *feed.Feed

	mu        sync.Mutex
	timeRange string
	loadState state.LoadState
	err       error
	onUpdate  func()

	log *logrus.Entry
}

// NewStatusView 创建状态视图，推送使用与API相同的令牌来源
func NewStatusView(client *api.Client, cfg *config.Config, tokens api.TokenSource) *StatusView {
	v := &StatusView{
		client:    client,
		board:     state.NewStatusBoard(),
		history:   state.NewConnectionHistory(cfg.Dashboard.ConnectionCapacity, cfg.Feed.AllowDuplicates),
		timeRange: cfg.Dashboard.TimeRange,
		log:       logger.GetDashboardLogger().WithField("view", ViewStatus),
	}
	v.feed = feed.New(cfg.API, cfg.Feed, tokens, v)
	return v
}

// Name 实现View
func (v *StatusView) Name() string { return ViewStatus }

// Feed 返回实时推送客户端
func (v *StatusView) Feed() *feed.Feed {
	return v.feed
}

// OnUpdate 注册数据变化回调
func (v *StatusView) OnUpdate(fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onUpdate = fn
}

// Activate 并发拉取状态和连接统计，然后订阅实时推送
func (v *StatusView) Activate(ctx context.Context) error {
	err := v.Refresh(ctx)
	if !v.feed.Running() {
		if startErr := v.feed.Start(ctx); startErr != nil && startErr != feed.ErrRunning {
			v.log.WithError(startErr).Warn("启动实时推送失败")
		}
	}
	return err
}

// Refresh 重新拉取状态和连接统计
func (v *StatusView) Refresh(ctx context.Context) error {
	v.setLoad(state.Loading, nil)

	var g errgroup.Group
	g.Go(func() error { return v.refreshStatus(ctx) })
	g.Go(func() error { return v.refreshConnections(ctx) })
	err := g.Wait()

	if err != nil {
		v.setLoad(state.Failed, err)
	} else {
		v.setLoad(state.Loaded, nil)
	}
	return err
}

func (v *StatusView) refreshStatus(ctx context.Context) error {
	status, err := v.client.Status.Get(ctx)
	if err != nil {
		return fmt.Errorf("获取状态失败: %w", err)
	}
	v.board.Replace(status)
	v.notify()
	return nil
}

func (v *StatusView) refreshConnections(ctx context.Context) error {
	v.mu.Lock()
	timeRange := v.timeRange
	v.mu.Unlock()

	stats, err := v.client.Status.Connections(ctx, timeRange)
	if err != nil {
		return fmt.Errorf("获取连接统计失败: %w", err)
	}
	v.history.Reset(stats)
	v.notify()
	return nil
}

// Deactivate 离开视图时断开实时推送
func (v *StatusView) Deactivate() {
	v.feed.Stop()
}

// Close 同Deactivate
func (v *StatusView) Close() {
	v.Deactivate()
}

// Control 控制防火墙服务，成功后重新拉取状态
func (v *StatusView) Control(ctx context.Context, service api.Service, action api.ServiceAction) (string, error) {
	result, err := v.client.Status.Control(ctx, service, action)
	if err != nil {
		return "", err
	}
	logger.LogAudit("firewall_control", "", logrus.Fields{
		"service": service,
		"action":  action,
	})
	if err := v.refreshStatus(ctx); err != nil {
		return result.Message, err
	}
	return result.Message, nil
}

// SetTimeRange 切换连接统计时间范围并重新拉取
func (v *StatusView) SetTimeRange(ctx context.Context, timeRange string) error {
	if !api.ValidConnectionRange(timeRange) {
		return api.ValidationError(fmt.Sprintf("invalid time_range: %s", timeRange))
	}
	v.mu.Lock()
	v.timeRange = timeRange
	v.mu.Unlock()
	return v.refreshConnections(ctx)
}

// TimeRange 当前时间范围
func (v *StatusView) TimeRange() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.timeRange
}

// OnStatusUpdate 实现feed.Handler，按服务合并
func (v *StatusView) OnStatusUpdate(status api.ServiceStatus) {
	v.board.Merge(status)
	v.notify()
}

// OnConnectionUpdate 实现feed.Handler
func (v *StatusView) OnConnectionUpdate(stat api.ConnectionStat) {
	v.history.Append(stat)
	v.notify()
}

// Status 当前服务状态
func (v *StatusView) Status() api.ServiceStatus {
	return v.board.Snapshot()
}

// Latest 最新的连接统计
func (v *StatusView) Latest() (api.ConnectionStat, bool) {
	return v.history.Latest()
}

// History 连接统计历史
func (v *StatusView) History() *state.ConnectionHistory {
	return v.history
}

// State 加载状态
func (v *StatusView) State() state.LoadState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loadState
}

// Err 最近一次加载错误
func (v *StatusView) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

func (v *StatusView) setLoad(s state.LoadState, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.loadState = s
	v.err = err
}

func (v *StatusView) notify() {
	v.mu.Lock()
	fn := v.onUpdate
	v.mu.Unlock()
	if fn != nil {
		fn()
	}
}
