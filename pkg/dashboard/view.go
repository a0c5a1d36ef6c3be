package dashboard

import "context"

// 视图名称
const (
	ViewStatus   = "status"
	ViewRules    = "rules"
	ViewLogs     = "logs"
	ViewSettings = "settings"
)

// View 仪表盘视图
// Activate在进入视图时调用，Refresh只重新拉取数据，Deactivate在离开视图时调用
type View interface {
	Name() string
	Activate(ctx context.Context) error
	Refresh(ctx context.Context) error
	Deactivate()
}
