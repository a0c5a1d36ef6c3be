package feed

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fwpanel/fwctl/pkg/api"
	"github.com/fwpanel/fwctl/pkg/config"
	"github.com/fwpanel/fwctl/pkg/logger"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ErrUnauthorized 握手被服务端以401拒绝
var ErrUnauthorized = errors.New("feed handshake unauthorized")

// ErrRunning 推送已在运行
var ErrRunning = errors.New("feed already running")

// Handler 推送事件处理器，在读取协程中按顺序调用
type Handler interface {
	OnStatusUpdate(status api.ServiceStatus)
	OnConnectionUpdate(stat api.ConnectionStat)
}

// Option 推送选项
type Option func(*Feed)

// WithBackOff 替换重连退避策略
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(f *Feed) {
		f.newBackOff = newBackOff
	}
}

// WithUserAgent 设置握手使用的User-Agent
func WithUserAgent(ua string) Option {
	return func(f *Feed) {
		f.userAgent = ua
	}
}

// Feed 实时状态推送客户端，只接收不发送
type Feed struct {
	baseURL     string
	cfg         config.FeedConfig
	tokens      api.TokenSource
	handler     Handler
	dialer      *websocket.Dialer
	userAgent   string
	newBackOff  func() backoff.BackOff
	readTimeout time.Duration

	mu             sync.Mutex
	conn           *websocket.Conn
	connected      bool
	running        bool
	cancel         context.CancelFunc
	done           chan struct{}
	onUnauthorized func()

	log *logrus.Entry
}

// New 创建推送客户端
func New(apiCfg config.APIConfig, feedCfg config.FeedConfig, tokens api.TokenSource, handler Handler, opts ...Option) *Feed {
	f := &Feed{
		baseURL: apiCfg.BaseURL,
		cfg:     feedCfg,
		tokens:  tokens,
		handler: handler,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: time.Duration(apiCfg.Timeout) * time.Second,
			TLSClientConfig:  &tls.Config{InsecureSkipVerify: apiCfg.TLSSkipVerify},
		},
		readTimeout: time.Duration(feedCfg.ReadTimeout) * time.Second,
		log:         logger.GetFeedLogger(),
	}
	f.newBackOff = f.defaultBackOff

	for _, opt := range opts {
		opt(f)
	}
	return f
}

// OnUnauthorized 注册握手401回调
func (f *Feed) OnUnauthorized(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onUnauthorized = fn
}

// defaultBackOff 指数退避：初始间隔起步，每次翻倍并加入抖动，不超过上限，不限总时长
func (f *Feed) defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(f.cfg.ReconnectInitial) * time.Second
	b.MaxInterval = time.Duration(f.cfg.ReconnectMax) * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = f.cfg.ReconnectJitter
	b.MaxElapsedTime = 0
	if b.InitialInterval <= 0 {
		b.InitialInterval = time.Second
	}
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.Reset()
	return b
}

// Start 启动推送，应在登录之后调用
func (f *Feed) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running {
		return ErrRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	f.running = true
	f.cancel = cancel
	f.done = make(chan struct{})

	f.log.Info("启动实时推送")
	go f.connectionLoop(ctx, f.done)
	return nil
}

// Stop 停止推送并等待协程退出，可重复调用
func (f *Feed) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	cancel := f.cancel
	done := f.done
	if f.conn != nil {
		f.conn.Close()
	}
	f.mu.Unlock()

	cancel()
	<-done

	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	f.log.Info("实时推送已停止")
}

// Connected 当前是否已连接
func (f *Feed) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Running 推送是否在运行（包括重连等待中）
func (f *Feed) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// connectionLoop 连接管理循环：断开后按退避策略重连
func (f *Feed) connectionLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer f.setConn(nil)

	b := f.newBackOff()
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := f.dial(ctx)
		if err != nil {
			if errors.Is(err, ErrUnauthorized) {
				f.log.Warn("推送握手被拒绝，会话已失效")
				// 回调可能再次调用Stop，先标记为已停止
				f.mu.Lock()
				f.running = false
				f.conn = nil
				f.connected = false
				hook := f.onUnauthorized
				f.mu.Unlock()
				if hook != nil {
					hook()
				}
				return
			}
			if !f.wait(ctx, b, err) {
				return
			}
			continue
		}

		b.Reset()
		f.setConn(conn)
		logger.LogStateChange("feed", "disconnected", "connected", "")

		err = f.readLoop(ctx, conn)
		f.setConn(nil)
		conn.Close()
		logger.LogStateChange("feed", "connected", "disconnected", errString(err))

		if !f.wait(ctx, b, err) {
			return
		}
	}
}

// markStopped 推送自行退出时更新运行状态
func (f *Feed) markStopped() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
}

// wait 等待下一次重连，ctx取消时返回false
func (f *Feed) wait(ctx context.Context, b backoff.BackOff, cause error) bool {
	if ctx.Err() != nil {
		return false
	}
	delay := b.NextBackOff()
	if delay == backoff.Stop {
		f.log.WithError(cause).Error("推送重连次数已用尽")
		f.markStopped()
		return false
	}

	f.log.WithFields(logrus.Fields{
		"error": errString(cause),
		"delay": delay.String(),
	}).Warn("推送连接断开，等待重连")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// dial 建立WebSocket连接
func (f *Feed) dial(ctx context.Context) (*websocket.Conn, error) {
	wsURL, err := f.buildURL()
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	if token := f.tokens.Token(); token != "" {
		headers.Set("Authorization", "Bearer "+token)
	}
	if f.userAgent != "" {
		headers.Set("User-Agent", f.userAgent)
	}

	conn, resp, err := f.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("建立推送连接失败: %w", err)
	}

	f.log.WithField("url", wsURL).Info("推送连接建立成功")
	return conn, nil
}

// buildURL 由API地址构建ws(s)地址
func (f *Feed) buildURL() (string, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return "", fmt.Errorf("解析API基础URL失败: %w", err)
	}

	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = f.cfg.Path
	if u.Path == "" {
		u.Path = "/api/ws"
	}
	return u.String(), nil
}

// readLoop 读取消息直到连接出错
func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn) error {
	extend := func() {
		if f.readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(f.readTimeout))
		}
	}
	conn.SetPingHandler(func(data string) error {
		extend()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	for {
		extend()
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		frame, err := DecodeFrame(messageType, payload)
		if err != nil {
			f.log.WithError(err).Warn("丢弃无法解析的推送消息")
			continue
		}
		f.dispatch(frame)
	}
}

// dispatch 分发推送事件
func (f *Feed) dispatch(frame *Frame) {
	switch frame.Event {
	case EventStatusUpdate:
		status, err := frame.StatusUpdate()
		if err != nil {
			f.log.WithError(err).Warn("丢弃无效的状态更新")
			return
		}
		f.handler.OnStatusUpdate(status)
	case EventConnectionUpdate:
		stat, err := frame.ConnectionUpdate()
		if err != nil {
			f.log.WithError(err).Warn("丢弃无效的连接统计")
			return
		}
		f.handler.OnConnectionUpdate(stat)
	default:
		f.log.WithField("event", frame.Event).Debug("忽略未知事件")
	}
}

func (f *Feed) setConn(conn *websocket.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conn = conn
	f.connected = conn != nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
