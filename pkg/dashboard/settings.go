package dashboard

import (
	"context"

	"github.com/fwpanel/fwctl/pkg/api"
	"github.com/fwpanel/fwctl/pkg/logger"
	"github.com/fwpanel/fwctl/pkg/state"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// SettingsView 系统设置与备份视图
type SettingsView struct {
	client    *api.Client
	settings  *state.Resource[api.Setting]
	backups   *state.Resource[api.Backup]
	onRestore func(ctx context.Context) error
	log       *logrus.Entry
}

// NewSettingsView 创建设置视图，onRestore在备份恢复成功后调用
func NewSettingsView(client *api.Client, onRestore func(ctx context.Context) error) *SettingsView {
	return &SettingsView{
		client:    client,
		settings:  state.NewResource[api.Setting]("settings", client.Settings.GetRecords),
		backups:   state.NewResource[api.Backup]("backups", client.Backups.List),
		onRestore: onRestore,
		log:       logger.GetDashboardLogger().WithField("view", ViewSettings),
	}
}

// Name 实现View
func (v *SettingsView) Name() string { return ViewSettings }

// Activate 并发加载设置和备份列表
func (v *SettingsView) Activate(ctx context.Context) error {
	return v.Refresh(ctx)
}

// Refresh 重新拉取设置和备份列表
func (v *SettingsView) Refresh(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return v.settings.Refresh(ctx) })
	g.Go(func() error { return v.backups.Refresh(ctx) })
	return g.Wait()
}

// Deactivate 实现View
func (v *SettingsView) Deactivate() {}

// Settings 当前设置键值表
func (v *SettingsView) Settings() api.Settings {
	return api.SettingsFromPairs(v.settings.Items())
}

// Records 当前设置原始记录
func (v *SettingsView) Records() []api.Setting {
	return v.settings.Items()
}

// State 设置加载状态
func (v *SettingsView) State() state.LoadState {
	return v.settings.State()
}

// Save 保存设置，成功后重新拉取
func (v *SettingsView) Save(ctx context.Context, settings api.Settings) error {
	return v.settings.Mutate(ctx, func(ctx context.Context) error {
		_, err := v.client.Settings.Save(ctx, settings)
		return err
	})
}

// Backups 当前备份列表
func (v *SettingsView) Backups() []api.Backup {
	return v.backups.Items()
}

// CreateBackup 创建备份
func (v *SettingsView) CreateBackup(ctx context.Context, description string) (*api.Backup, error) {
	var created *api.Backup
	err := v.backups.Mutate(ctx, func(ctx context.Context) error {
		var err error
		created, err = v.client.Backups.Create(ctx, description)
		return err
	})
	return created, err
}

// RestoreBackup 从备份恢复，成功后重新加载全部数据
func (v *SettingsView) RestoreBackup(ctx context.Context, id int64) (string, error) {
	message, _, err := v.client.Backups.Restore(ctx, id)
	if err != nil {
		return "", err
	}
	logger.LogAudit("restore_backup", "", logrus.Fields{"backup_id": id})

	if v.onRestore != nil {
		if err := v.onRestore(ctx); err != nil {
			return message, err
		}
	} else if err := v.Refresh(ctx); err != nil {
		return message, err
	}
	return message, nil
}

// DeleteBackup 删除备份
func (v *SettingsView) DeleteBackup(ctx context.Context, id int64) error {
	return v.backups.Mutate(ctx, func(ctx context.Context) error {
		return v.client.Backups.Delete(ctx, id)
	})
}

// Close 卸载视图
func (v *SettingsView) Close() {
	v.settings.Close()
	v.backups.Close()
}
