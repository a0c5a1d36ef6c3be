package dashboard

import (
	"context"
	"fmt"
	"sync"

	"github.com/fwpanel/fwctl/pkg/api"
	"github.com/fwpanel/fwctl/pkg/config"
	"github.com/fwpanel/fwctl/pkg/logger"
	"github.com/fwpanel/fwctl/pkg/session"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Shell 仪表盘根组件：会话、全局防火墙开关和视图路由
type Shell struct {
	client  *api.Client
	session *session.Manager

	Rules    *RulesView
	Status   *StatusView
	Logs     *LogsView
	Settings *SettingsView

	mu              sync.Mutex
	firewallEnabled bool
	active          View

	log *logrus.Entry
}

// NewShell 创建根组件并把会话接入API客户端和实时推送
func NewShell(cfg *config.Config, client *api.Client, sess *session.Manager) *Shell {
	s := &Shell{
		client:  client,
		session: sess,
		log:     logger.GetDashboardLogger().WithField("view", "shell"),
	}

	sess.Bind(client)

	s.Rules = NewRulesView(client)
	s.Status = NewStatusView(client, cfg, sess)
	s.Logs = NewLogsView(client, cfg.Dashboard)
	s.Settings = NewSettingsView(client, s.Reload)

	s.Status.Feed().OnUnauthorized(func() {
		sess.Invalidate(session.ReasonUnauthorized)
	})
	sess.OnLogout(func(reason string) {
		s.onLogout(reason)
	})

	return s
}

// Session 当前会话
func (s *Shell) Session() session.Session {
	return s.session.Current()
}

// Client 返回API客户端
func (s *Shell) Client() *api.Client {
	return s.client
}

// Start 启动时恢复会话并检查防火墙状态
func (s *Shell) Start(ctx context.Context) (session.Session, bool) {
	sess, ok := s.session.Restore(ctx)
	if !ok {
		return sess, false
	}
	if err := s.CheckFirewall(ctx); err != nil {
		s.log.WithError(err).Warn("获取防火墙状态失败")
	}
	return sess, true
}

// Login 登录并检查防火墙状态
func (s *Shell) Login(ctx context.Context, username, password string) (session.Session, error) {
	sess, err := s.session.Login(ctx, username, password)
	if err != nil {
		return sess, err
	}
	if err := s.CheckFirewall(ctx); err != nil {
		s.log.WithError(err).Warn("获取防火墙状态失败")
	}
	return sess, nil
}

// Logout 登出
func (s *Shell) Logout() error {
	return s.session.Logout()
}

// onLogout 会话结束时断开推送并回到初始状态
func (s *Shell) onLogout(reason string) {
	s.Status.Deactivate()

	s.mu.Lock()
	s.firewallEnabled = false
	s.active = nil
	s.mu.Unlock()

	s.log.WithField("reason", reason).Info("已退出登录")
}

// CheckFirewall 拉取状态，任一防火墙服务运行即视为已启用
func (s *Shell) CheckFirewall(ctx context.Context) error {
	if !s.session.IsAuthenticated() {
		return nil
	}
	status, err := s.client.Status.Get(ctx)
	if err != nil {
		return err
	}
	s.Status.board.Replace(status)

	s.mu.Lock()
	s.firewallEnabled = status.AnyActive()
	s.mu.Unlock()
	return nil
}

// FirewallEnabled 全局防火墙开关状态
func (s *Shell) FirewallEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firewallEnabled
}

// SetFirewall 启动或停止iptables，失败时开关恢复为操作前的值
func (s *Shell) SetFirewall(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	previous := s.firewallEnabled
	s.firewallEnabled = enabled
	s.mu.Unlock()

	action := api.ServiceStop
	if enabled {
		action = api.ServiceStart
	}

	if _, err := s.client.Status.Control(ctx, api.ServiceIPTables, action); err != nil {
		s.mu.Lock()
		s.firewallEnabled = previous
		s.mu.Unlock()
		s.log.WithField("error", api.ErrorMessage(err)).Warn("防火墙操作失败，已恢复开关状态")
		return err
	}

	if err := s.Status.refreshStatus(ctx); err != nil {
		s.log.WithError(err).Warn("刷新防火墙状态失败")
	}

	logger.LogStateChange("firewall", stateName(previous), stateName(enabled), "")
	return nil
}

// ToggleFirewall 切换全局防火墙开关，返回新状态
func (s *Shell) ToggleFirewall(ctx context.Context) (bool, error) {
	target := !s.FirewallEnabled()
	if err := s.SetFirewall(ctx, target); err != nil {
		return s.FirewallEnabled(), err
	}
	return target, nil
}

// UpdateProfile 更新个人设置，修改密码后需要重新登录
func (s *Shell) UpdateProfile(ctx context.Context, update api.ProfileUpdate) (*api.User, error) {
	user, err := s.client.Users.UpdateProfile(ctx, update)
	if err != nil {
		return nil, err
	}
	if update.ChangesPassword() {
		s.session.ForceRelogin()
	}
	return user, nil
}

// Route 切换到指定视图，空名称表示状态视图
func (s *Shell) Route(ctx context.Context, name string) (View, error) {
	if !s.session.IsAuthenticated() {
		return nil, &api.APIError{Kind: api.KindAuth, Message: "not logged in"}
	}

	next, err := s.view(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	prev := s.active
	s.active = next
	s.mu.Unlock()

	if prev != nil && prev != next {
		prev.Deactivate()
	}
	return next, next.Activate(ctx)
}

// Active 当前视图
func (s *Shell) Active() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Shell) view(name string) (View, error) {
	switch name {
	case "", ViewStatus:
		return s.Status, nil
	case ViewRules:
		return s.Rules, nil
	case ViewLogs:
		return s.Logs, nil
	case ViewSettings:
		return s.Settings, nil
	default:
		return nil, fmt.Errorf("未知视图: %s", name)
	}
}

// Reload 重新加载全部数据，备份恢复后调用
func (s *Shell) Reload(ctx context.Context) error {
	s.log.Info("重新加载全部数据")

	var g errgroup.Group
	g.Go(func() error { return s.CheckFirewall(ctx) })
	for _, v := range []View{s.Status, s.Rules, s.Logs, s.Settings} {
		v := v
		g.Go(func() error { return v.Refresh(ctx) })
	}
	return g.Wait()
}

// Close 关闭全部视图
func (s *Shell) Close() {
	s.Status.Close()
	s.Rules.Close()
	s.Logs.Close()
	s.Settings.Close()
}

func stateName(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
