package dashboard

import (
	"context"
	"sync"

	"github.com/fwpanel/fwctl/pkg/api"
	"github.com/fwpanel/fwctl/pkg/config"
	"github.com/fwpanel/fwctl/pkg/logger"
	"github.com/fwpanel/fwctl/pkg/state"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// LogsView 日志、分析与告警视图
type LogsView struct {
	client *api.Client
	pages  *state.Resource[api.LogPage]
	alerts *state.Resource[api.AlertRule]

	mu            sync.Mutex
	query         api.LogQuery
	analysisRange string

	log *logrus.Entry
}

// NewLogsView 创建日志视图
func NewLogsView(client *api.Client, cfg config.DashboardConfig) *LogsView {
	v := &LogsView{
		client:        client,
		query:         api.LogQuery{Page: 1, PerPage: cfg.LogPageSize},
		analysisRange: cfg.AnalysisTimeRange,
		log:           logger.GetDashboardLogger().WithField("view", ViewLogs),
	}
	v.pages = state.NewResource[api.LogPage]("logs", v.fetchPage)
	v.alerts = state.NewResource[api.AlertRule]("alerts", client.Alerts.List)
	return v
}

func (v *LogsView) fetchPage(ctx context.Context) ([]api.LogPage, error) {
	page, err := v.client.Logs.List(ctx, v.Query())
	if err != nil {
		return nil, err
	}
	return []api.LogPage{*page}, nil
}

// Name 实现View
func (v *LogsView) Name() string { return ViewLogs }

// Activate 并发加载日志和告警配置
func (v *LogsView) Activate(ctx context.Context) error {
	return v.Refresh(ctx)
}

// Refresh 重新拉取日志和告警配置
func (v *LogsView) Refresh(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return v.pages.Refresh(ctx) })
	g.Go(func() error { return v.alerts.Refresh(ctx) })
	return g.Wait()
}

// Deactivate 实现View
func (v *LogsView) Deactivate() {}

// Query 当前查询条件
func (v *LogsView) Query() api.LogQuery {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.query
}

// Page 当前页日志
func (v *LogsView) Page() api.LogPage {
	items := v.pages.Items()
	if len(items) == 0 {
		return api.LogPage{}
	}
	return items[0]
}

// State 日志加载状态
func (v *LogsView) State() state.LoadState {
	return v.pages.State()
}

// SetFilter 设置筛选条件并回到第一页
func (v *LogsView) SetFilter(ctx context.Context, filter api.LogFilter) error {
	v.mu.Lock()
	v.query.Filter = filter
	v.query.Page = 1
	v.mu.Unlock()
	return v.pages.Refresh(ctx)
}

// ResetFilter 清空筛选条件
func (v *LogsView) ResetFilter(ctx context.Context) error {
	return v.SetFilter(ctx, api.LogFilter{})
}

// GoToPage 跳转到指定页
func (v *LogsView) GoToPage(ctx context.Context, page int) error {
	if page < 1 {
		page = 1
	}
	v.mu.Lock()
	v.query.Page = page
	v.mu.Unlock()
	return v.pages.Refresh(ctx)
}

// Collect 触发日志收集，成功后重新拉取
func (v *LogsView) Collect(ctx context.Context) (string, error) {
	var message string
	err := v.pages.Mutate(ctx, func(ctx context.Context) error {
		var err error
		message, err = v.client.Logs.Collect(ctx)
		return err
	})
	return message, err
}

// Alerts 当前告警配置
func (v *LogsView) Alerts() []api.AlertRule {
	return v.alerts.Items()
}

// CreateAlert 创建告警配置
func (v *LogsView) CreateAlert(ctx context.Context, alert api.AlertRule) (*api.AlertRule, error) {
	var created *api.AlertRule
	err := v.alerts.Mutate(ctx, func(ctx context.Context) error {
		var err error
		created, err = v.client.Alerts.Create(ctx, alert)
		return err
	})
	return created, err
}

// UpdateAlert 更新告警配置
func (v *LogsView) UpdateAlert(ctx context.Context, id int64, alert api.AlertRule) (*api.AlertRule, error) {
	var updated *api.AlertRule
	err := v.alerts.Mutate(ctx, func(ctx context.Context) error {
		var err error
		updated, err = v.client.Alerts.Update(ctx, id, alert)
		return err
	})
	return updated, err
}

// PatchAlert 只修改补丁中给出的字段
func (v *LogsView) PatchAlert(ctx context.Context, id int64, patch api.AlertPatch) (*api.AlertRule, error) {
	var updated *api.AlertRule
	err := v.alerts.Mutate(ctx, func(ctx context.Context) error {
		var err error
		updated, err = v.client.Alerts.Patch(ctx, id, patch)
		return err
	})
	return updated, err
}

// ToggleAlert 切换告警启用状态
func (v *LogsView) ToggleAlert(ctx context.Context, id int64) (bool, error) {
	var enabled bool
	err := v.alerts.Mutate(ctx, func(ctx context.Context) error {
		current, ok := v.alerts.Find(func(a api.AlertRule) bool { return a.ID == id })
		if !ok {
			fetched, err := v.client.Alerts.Get(ctx, id)
			if err != nil {
				return err
			}
			current = *fetched
		}
		enabled = !current.Enabled
		_, err := v.client.Alerts.SetEnabled(ctx, id, enabled)
		return err
	})
	return enabled, err
}

// SetAlertEnabled 启用或禁用告警
func (v *LogsView) SetAlertEnabled(ctx context.Context, id int64, enabled bool) error {
	return v.alerts.Mutate(ctx, func(ctx context.Context) error {
		_, err := v.client.Alerts.SetEnabled(ctx, id, enabled)
		return err
	})
}

// DeleteAlert 删除告警配置
func (v *LogsView) DeleteAlert(ctx context.Context, id int64) error {
	return v.alerts.Mutate(ctx, func(ctx context.Context) error {
		return v.client.Alerts.Delete(ctx, id)
	})
}

// Analysis 日志分析，timeRange为空时使用配置的默认范围
func (v *LogsView) Analysis(ctx context.Context, kind api.AnalysisType, timeRange string) (*api.Analysis, error) {
	if timeRange == "" {
		v.mu.Lock()
		timeRange = v.analysisRange
		v.mu.Unlock()
	}
	return v.client.Logs.Analysis(ctx, kind, timeRange)
}

// AlertFromAnomaly 根据异常生成告警配置草稿
func (v *LogsView) AlertFromAnomaly(anomaly api.Anomaly) api.AlertRule {
	return AlertFromAnomaly(anomaly)
}

// Close 卸载视图
func (v *LogsView) Close() {
	v.pages.Close()
	v.alerts.Close()
}
