package dashboard

import (
	"context"
	"io"

	"github.com/fwpanel/fwctl/pkg/api"
	"github.com/fwpanel/fwctl/pkg/logger"
	"github.com/fwpanel/fwctl/pkg/state"
	"github.com/sirupsen/logrus"
)

// RulesView 防火墙规则视图
type RulesView struct {
	client    *api.Client
	rules     *state.Resource[api.Rule]
	templates *state.Resource[api.RuleTemplate]
	log       *logrus.Entry
}

// NewRulesView 创建规则视图
func NewRulesView(client *api.Client) *RulesView {
	return &RulesView{
		client:    client,
		rules:     state.NewResource[api.Rule]("rules", client.Rules.List),
		templates: state.NewResource[api.RuleTemplate]("rule_templates", client.Templates.List),
		log:       logger.GetDashboardLogger().WithField("view", ViewRules),
	}
}

// Name 实现View
func (v *RulesView) Name() string { return ViewRules }

// Activate 进入视图时加载规则
func (v *RulesView) Activate(ctx context.Context) error {
	return v.Refresh(ctx)
}

// Refresh 重新拉取规则
func (v *RulesView) Refresh(ctx context.Context) error {
	return v.rules.Refresh(ctx)
}

// Deactivate 实现View
func (v *RulesView) Deactivate() {}

// Rules 当前规则列表
func (v *RulesView) Rules() []api.Rule {
	return v.rules.Items()
}

// State 规则列表加载状态
func (v *RulesView) State() state.LoadState {
	return v.rules.State()
}

// Err 最近一次加载错误
func (v *RulesView) Err() error {
	return v.rules.Err()
}

// Create 创建规则，成功后重新拉取
func (v *RulesView) Create(ctx context.Context, rule api.Rule) (*api.Rule, error) {
	var created *api.Rule
	err := v.rules.Mutate(ctx, func(ctx context.Context) error {
		var err error
		created, err = v.client.Rules.Create(ctx, rule)
		return err
	})
	if created == nil {
		return nil, err
	}
	v.log.WithField("rule_id", created.ID).Info("规则已创建")
	return created, err
}

// Update 更新规则
func (v *RulesView) Update(ctx context.Context, id int64, rule api.Rule) (*api.Rule, error) {
	var updated *api.Rule
	err := v.rules.Mutate(ctx, func(ctx context.Context) error {
		var err error
		updated, err = v.client.Rules.Update(ctx, id, rule)
		return err
	})
	return updated, err
}

// Patch 只修改补丁中给出的字段
func (v *RulesView) Patch(ctx context.Context, id int64, patch api.RulePatch) (*api.Rule, error) {
	var updated *api.Rule
	err := v.rules.Mutate(ctx, func(ctx context.Context) error {
		var err error
		updated, err = v.client.Rules.Patch(ctx, id, patch)
		return err
	})
	return updated, err
}

// Toggle 切换规则的启用状态，返回新状态
func (v *RulesView) Toggle(ctx context.Context, id int64) (bool, error) {
	var enabled bool
	err := v.rules.Mutate(ctx, func(ctx context.Context) error {
		current, ok := v.rules.Find(func(r api.Rule) bool { return r.ID == id })
		if !ok {
			fetched, err := v.client.Rules.Get(ctx, id)
			if err != nil {
				return err
			}
			current = *fetched
		}
		enabled = !current.Enabled
		_, err := v.client.Rules.SetEnabled(ctx, id, enabled)
		return err
	})
	if err != nil && !state.Applied(err) {
		return false, err
	}
	v.log.WithFields(logrus.Fields{"rule_id": id, "enabled": enabled}).Info("规则状态已切换")
	return enabled, err
}

// SetEnabled 启用或禁用规则
func (v *RulesView) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	return v.rules.Mutate(ctx, func(ctx context.Context) error {
		_, err := v.client.Rules.SetEnabled(ctx, id, enabled)
		return err
	})
}

// Delete 删除规则
func (v *RulesView) Delete(ctx context.Context, id int64) error {
	return v.rules.Mutate(ctx, func(ctx context.Context) error {
		return v.client.Rules.Delete(ctx, id)
	})
}

// Verify 验证规则是否生效，不改变列表
func (v *RulesView) Verify(ctx context.Context, id int64) (*api.VerifyResult, error) {
	return v.client.Rules.Verify(ctx, id)
}

// Export 导出规则
func (v *RulesView) Export(ctx context.Context, ruleType string) ([]api.Rule, error) {
	return v.client.Rules.Export(ctx, ruleType)
}

// Import 导入规则文件
func (v *RulesView) Import(ctx context.Context, filename string, r io.Reader) (string, error) {
	var message string
	err := v.rules.Mutate(ctx, func(ctx context.Context) error {
		var err error
		_, message, err = v.client.Rules.Import(ctx, filename, r)
		return err
	})
	return message, err
}

// Sync 从服务器同步现有规则
func (v *RulesView) Sync(ctx context.Context) (string, error) {
	var message string
	err := v.rules.Mutate(ctx, func(ctx context.Context) error {
		var err error
		_, message, err = v.client.Rules.Sync(ctx)
		return err
	})
	return message, err
}

// BlockSource 根据异常创建阻止规则
func (v *RulesView) BlockSource(ctx context.Context, anomaly api.Anomaly) (*api.Rule, error) {
	rule, err := BlockRuleFromAnomaly(anomaly)
	if err != nil {
		return nil, err
	}
	return v.Create(ctx, rule)
}

// Templates 加载并返回规则模板
func (v *RulesView) Templates(ctx context.Context) ([]api.RuleTemplate, error) {
	if err := v.templates.Refresh(ctx); err != nil {
		return nil, err
	}
	return v.templates.Items(), nil
}

// ApplyTemplate 用模板创建规则
func (v *RulesView) ApplyTemplate(ctx context.Context, templateID int64) (*api.Rule, error) {
	tpl, ok := v.templates.Find(func(t api.RuleTemplate) bool { return t.ID == templateID })
	if !ok {
		fetched, err := v.client.Templates.Get(ctx, templateID)
		if err != nil {
			return nil, err
		}
		tpl = *fetched
	}
	rule, err := tpl.Rule()
	if err != nil {
		return nil, api.ValidationError(err.Error())
	}
	return v.Create(ctx, rule)
}

// SaveTemplate 把规则保存为模板
func (v *RulesView) SaveTemplate(ctx context.Context, name, description string, rule api.Rule) (*api.RuleTemplate, error) {
	tpl, err := api.TemplateFromRule(name, description, rule)
	if err != nil {
		return nil, err
	}
	var created *api.RuleTemplate
	err = v.templates.Mutate(ctx, func(ctx context.Context) error {
		var err error
		created, err = v.client.Templates.Create(ctx, tpl)
		return err
	})
	return created, err
}

// DeleteTemplate 删除模板
func (v *RulesView) DeleteTemplate(ctx context.Context, id int64) error {
	return v.templates.Mutate(ctx, func(ctx context.Context) error {
		return v.client.Templates.Delete(ctx, id)
	})
}

// Close 卸载视图，丢弃进行中的请求结果
func (v *RulesView) Close() {
	v.rules.Close()
	v.templates.Close()
}
