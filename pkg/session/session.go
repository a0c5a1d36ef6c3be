package session

import (
	"context"
	"sync"

	"github.com/fwpanel/fwctl/pkg/api"
	"github.com/fwpanel/fwctl/pkg/logger"
	"github.com/sirupsen/logrus"
)

// 登出原因
const (
	ReasonLogout          = "logout"
	ReasonUnauthorized    = "unauthorized"
	ReasonPasswordChanged = "password_changed"
)

// Session 当前会话快照
type Session struct {
	Token           string
	Username        string
	IsAuthenticated bool
}

// Authenticator 登录和令牌校验能力，由API客户端提供
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*api.LoginResult, error)
	GetProfile(ctx context.Context) (*api.User, error)
}

// Manager 会话管理器，并发安全
type Manager struct {
	mu        sync.Mutex
	store     TokenStore
	auth      Authenticator
	current   Session
	pending   string // Restore校验期间使用的令牌
	listeners []func(reason string)
	log       *logrus.Entry
}

// NewManager 创建会话管理器
func NewManager(store TokenStore, auth Authenticator) *Manager {
	return &Manager{
		store: store,
		auth:  auth,
		log:   logger.GetSessionLogger(),
	}
}

// OnLogout 注册会话结束回调
func (m *Manager) OnLogout(fn func(reason string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Current 返回当前会话
func (m *Manager) Current() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// IsAuthenticated 是否已登录
func (m *Manager) IsAuthenticated() bool {
	return m.Current().IsAuthenticated
}

// Token 返回请求使用的令牌，实现api.TokenSource
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.IsAuthenticated {
		return m.current.Token
	}
	return m.pending
}

// Login 登录，失败时不持久化任何内容且状态不变
func (m *Manager) Login(ctx context.Context, username, password string) (Session, error) {
	result, err := m.auth.Login(ctx, username, password)
	if err != nil {
		m.log.WithFields(logrus.Fields{
			"username": username,
			"error":    api.ErrorMessage(err),
		}).Warn("登录失败")
		return m.Current(), err
	}

	if err := m.store.Save(result.Token); err != nil {
		logger.LogError(err, "保存令牌失败", logrus.Fields{"username": username})
		return m.Current(), err
	}

	name := result.User.Username
	if name == "" {
		name = username
	}

	m.mu.Lock()
	m.current = Session{Token: result.Token, Username: name, IsAuthenticated: true}
	m.pending = ""
	s := m.current
	m.mu.Unlock()

	logger.LogAudit("login", name, nil)
	logger.LogStateChange("session", "anonymous", "authenticated", "login")
	return s, nil
}

// Restore 启动时恢复会话：读取持久化令牌并通过获取个人信息校验
// 校验失败时清除令牌
func (m *Manager) Restore(ctx context.Context) (Session, bool) {
	token, err := m.store.Load()
	if err != nil {
		m.log.WithError(err).Warn("读取持久化令牌失败")
		return m.Current(), false
	}
	if token == "" {
		return m.Current(), false
	}

	m.mu.Lock()
	m.pending = token
	m.mu.Unlock()

	user, err := m.auth.GetProfile(ctx)

	m.mu.Lock()
	if m.pending != token {
		// 校验期间发生了登录或登出
		s := m.current
		m.mu.Unlock()
		return s, s.IsAuthenticated
	}
	m.pending = ""
	if err != nil {
		m.mu.Unlock()
		// 只有401说明令牌失效，网络错误或服务端错误时保留令牌
		if !api.IsUnauthorized(err) {
			m.log.WithField("error", api.ErrorMessage(err)).Warn("校验持久化令牌失败，保留令牌")
			return m.Current(), false
		}
		m.log.WithField("error", api.ErrorMessage(err)).Info("持久化令牌无效，已清除")
		if clearErr := m.store.Clear(); clearErr != nil {
			m.log.WithError(clearErr).Warn("清除令牌失败")
		}
		return m.Current(), false
	}
	m.current = Session{Token: token, Username: user.Username, IsAuthenticated: true}
	s := m.current
	m.mu.Unlock()

	logger.LogStateChange("session", "anonymous", "authenticated", "restore")
	return s, true
}

// Logout 登出，可重复调用
func (m *Manager) Logout() error {
	m.end(ReasonLogout)
	return m.store.Clear()
}

// Invalidate 任何401响应都会调用，每个已登录会话只生效一次
func (m *Manager) Invalidate(reason string) bool {
	if !m.end(reason) {
		return false
	}
	if err := m.store.Clear(); err != nil {
		m.log.WithError(err).Warn("清除令牌失败")
	}
	return true
}

// ForceRelogin 修改密码后结束会话，要求重新登录
func (m *Manager) ForceRelogin() {
	m.Invalidate(ReasonPasswordChanged)
}

// end 结束当前会话并通知监听者，未登录时返回false
func (m *Manager) end(reason string) bool {
	m.mu.Lock()
	if reason != ReasonUnauthorized {
		m.pending = ""
	}
	if !m.current.IsAuthenticated {
		m.mu.Unlock()
		return false
	}
	username := m.current.Username
	m.current = Session{}
	listeners := append([]func(string){}, m.listeners...)
	m.mu.Unlock()

	logger.LogStateChange("session", "authenticated", "anonymous", reason)
	if reason != ReasonLogout {
		m.log.WithFields(logrus.Fields{
			"username": username,
			"reason":   reason,
		}).Warn("会话已失效")
	} else {
		logger.LogAudit("logout", username, nil)
	}

	for _, fn := range listeners {
		fn(reason)
	}
	return true
}

// Bind 把会话接入API客户端：注入令牌并在401时使会话失效
func (m *Manager) Bind(client *api.Client) {
	client.SetTokenSource(m)
	client.OnUnauthorized(func(*api.APIError) {
		m.Invalidate(ReasonUnauthorized)
	})
}
