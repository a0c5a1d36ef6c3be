package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/fwpanel/fwctl/pkg/config"
	"github.com/fwpanel/fwctl/pkg/logger"
	"github.com/fwpanel/fwctl/pkg/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Version 客户端版本，由构建时注入
var Version = "dev"

// TokenSource 为请求提供当前会话令牌
type TokenSource interface {
	Token() string
}

// TokenFunc 函数形式的TokenSource
type TokenFunc func() string

// Token 实现TokenSource
func (f TokenFunc) Token() string { return f() }

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 使用自定义的http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTokenSource 设置令牌来源
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithUserAgent 覆盖默认User-Agent
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// Client 防火墙管理后端API客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
	retryCount int
	retryDelay time.Duration

	mu             sync.RWMutex
	tokens         TokenSource
	onUnauthorized func(*APIError)

	Users     *UsersService
	Rules     *RulesService
	Templates *TemplatesService
	Status    *StatusService
	Logs      *LogsService
	Alerts    *AlertsService
	Settings  *SettingsService
	Backups   *BackupsService
}

// NewClient 创建新的API客户端
func NewClient(cfg config.APIConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:    cfg.BaseURL,
		retryCount: cfg.RetryCount,
		retryDelay: time.Duration(cfg.RetryDelay) * time.Second,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
	}
	if c.retryCount < 1 {
		c.retryCount = 1
	}
	if cfg.TLSSkipVerify {
		c.httpClient.Transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.userAgent == "" {
		c.userAgent = utils.UserAgent("fwctl", Version)
	}

	c.Users = &UsersService{client: c}
	c.Rules = &RulesService{client: c}
	c.Templates = &TemplatesService{client: c}
	c.Status = &StatusService{client: c}
	c.Logs = &LogsService{client: c}
	c.Alerts = &AlertsService{client: c}
	c.Settings = &SettingsService{client: c}
	c.Backups = &BackupsService{client: c}

	logger.LogStartup("api-client", Version, map[string]interface{}{
		"base_url":    cfg.BaseURL,
		"timeout":     cfg.Timeout,
		"retry_count": c.retryCount,
		"rate_limit":  cfg.RateLimit,
	})

	return c
}

// BaseURL 返回后端地址
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetTokenSource 设置令牌来源，会话层在创建后注入
func (c *Client) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = ts
}

// OnUnauthorized 注册401回调，携带令牌的请求收到401时调用
func (c *Client) OnUnauthorized(fn func(*APIError)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

func (c *Client) token() string {
	c.mu.RLock()
	ts := c.tokens
	c.mu.RUnlock()
	if ts == nil {
		return ""
	}
	return ts.Token()
}

// request 单次API调用的描述
type request struct {
	method      string
	path        string
	query       url.Values
	body        interface{}
	rawBody     []byte
	contentType string
	anonymous   bool // 不携带令牌，例如登录
}

func (r *request) op() string {
	return r.method + " " + r.path
}

// do 发送JSON请求并把响应的data解码到out
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) (*envelope, error) {
	return c.send(ctx, &request{
		method: method,
		path:   path,
		query:  query,
		body:   body,
	}, out)
}

// send 执行请求，所有失败统一转换为 *APIError
func (c *Client) send(ctx context.Context, r *request, out interface{}) (*envelope, error) {
	startTime := time.Now()
	log := logger.GetAPILogger()
	op := r.op()

	payload := r.rawBody
	contentType := r.contentType
	if payload == nil && r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, &APIError{Kind: KindValidation, Message: fmt.Sprintf("encode request: %v", err), Op: op, Err: err}
		}
		payload = data
		contentType = "application/json"
	}

	endpoint := c.baseURL + r.path
	if len(r.query) > 0 {
		endpoint += "?" + r.query.Encode()
	}

	attempts := 1
	if r.method == http.MethodGet {
		attempts = c.retryCount
	}

	var (
		env    *envelope
		status int
		apiErr *APIError
	)
retry:
	for i := 0; i < attempts; i++ {
		env, status, apiErr = c.attempt(ctx, r, endpoint, payload, contentType)
		if apiErr == nil || !retryable(apiErr) || i == attempts-1 {
			break
		}

		log.WithFields(logrus.Fields{
			"op":           op,
			"attempt":      i + 1,
			"max_attempts": attempts,
			"error":        apiErr.Message,
			"retry_delay":  c.retryDelay,
		}).Warn("请求失败，准备重试")

		select {
		case <-ctx.Done():
			apiErr = newTransportError(op, ctx.Err())
			break retry
		case <-time.After(c.retryDelay):
		}
	}

	if apiErr != nil {
		if apiErr.Kind == KindAuth && !r.anonymous {
			c.mu.RLock()
			hook := c.onUnauthorized
			c.mu.RUnlock()
			if hook != nil {
				hook(apiErr)
			}
		}
		log.WithFields(logrus.Fields{
			"op":     op,
			"kind":   apiErr.Kind.String(),
			"status": apiErr.Status,
		}).Debugf("请求失败: %s", apiErr.Message)
		return nil, apiErr
	}

	if out != nil && len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, newDecodeError(op, status, err)
		}
	}

	logger.LogPerformance("api_request", time.Since(startTime), logrus.Fields{
		"op":     op,
		"status": status,
	})

	return env, nil
}

// attempt 发送一次HTTP请求并解析响应信封
func (c *Client) attempt(ctx context.Context, r *request, endpoint string, payload []byte, contentType string) (*envelope, int, *APIError) {
	op := r.op()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, newTransportError(op, err)
		}
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, body)
	if err != nil {
		return nil, 0, newTransportError(op, err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if !r.anonymous {
		if token := c.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, newTransportError(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, newTransportError(op, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// 错误响应可能不是JSON（例如404页面），此时使用通用提示
		msg := ""
		if decodeErr == nil {
			msg = env.Message
		}
		return nil, resp.StatusCode, newStatusError(op, resp.StatusCode, msg)
	}

	if decodeErr != nil {
		return nil, resp.StatusCode, newDecodeError(op, resp.StatusCode, decodeErr)
	}

	if !env.Success {
		return nil, resp.StatusCode, &APIError{
			Kind:    KindServer,
			Status:  resp.StatusCode,
			Message: nonEmpty(env.Message, fallbackMessage(resp.StatusCode)),
			Op:      op,
		}
	}

	return &env, resp.StatusCode, nil
}

// retryable 仅传输错误和5xx重试
func retryable(err *APIError) bool {
	if err.Kind == KindTransport {
		return !errors.Is(err.Err, context.Canceled) && !errors.Is(err.Err, context.DeadlineExceeded)
	}
	return err.Kind == KindServer && err.Status >= 500
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// message 读取响应信封中的消息，可能为空
func (e *envelope) message() string {
	if e == nil {
		return ""
	}
	return e.Message
}
