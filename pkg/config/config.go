package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fwpanel/fwctl/pkg/logger"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 环境变量前缀
const envPrefix = "FWCTL_"

// Config 主配置结构
type Config struct {
	API       APIConfig       `yaml:"api" json:"api"`
	Session   SessionConfig   `yaml:"session" json:"session"`
	Feed      FeedConfig      `yaml:"feed" json:"feed"`
	Dashboard DashboardConfig `yaml:"dashboard" json:"dashboard"`
	Logger    logger.Config   `yaml:"logger" json:"logger"`
	LogLevel  string          `yaml:"log_level" json:"log_level"`
}

// APIConfig 后端API配置
type APIConfig struct {
	BaseURL       string  `yaml:"base_url" json:"base_url"`
	Timeout       int     `yaml:"timeout" json:"timeout"`         // 秒
	RetryCount    int     `yaml:"retry_count" json:"retry_count"` // 仅对GET生效，1表示不重试
	RetryDelay    int     `yaml:"retry_delay" json:"retry_delay"` // 秒
	RateLimit     float64 `yaml:"rate_limit" json:"rate_limit"`   // 每秒请求数，0表示不限制
	TLSSkipVerify bool    `yaml:"tls_skip_verify" json:"tls_skip_verify"`
}

// SessionConfig 会话持久化配置
type SessionConfig struct {
	Store string `yaml:"store" json:"store"` // file, sqlite
	Path  string `yaml:"path" json:"path"`
}

// FeedConfig 实时状态推送配置
type FeedConfig struct {
	Path             string  `yaml:"path" json:"path"`
	ReconnectInitial int     `yaml:"reconnect_initial" json:"reconnect_initial"` // 秒
	ReconnectMax     int     `yaml:"reconnect_max" json:"reconnect_max"`         // 秒
	ReconnectJitter  float64 `yaml:"reconnect_jitter" json:"reconnect_jitter"`
	ReadTimeout      int     `yaml:"read_timeout" json:"read_timeout"`         // 秒
	AllowDuplicates  bool    `yaml:"allow_duplicates" json:"allow_duplicates"` // 关闭按时间戳去重
}

// DashboardConfig 视图相关配置
type DashboardConfig struct {
	ConnectionCapacity int    `yaml:"connection_capacity" json:"connection_capacity"`
	TimeRange          string `yaml:"time_range" json:"time_range"`                   // 连接统计时间范围
	AnalysisTimeRange  string `yaml:"analysis_time_range" json:"analysis_time_range"` // 日志分析时间范围
	LogPageSize        int    `yaml:"log_page_size" json:"log_page_size"`
}

// DefaultPath 返回默认配置文件路径
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "fwctl", "config.yaml")
}

// Default 返回仅包含默认值的配置
func Default() *Config {
	var config Config
	setDefaults(&config)
	return &config
}

// LoadConfig 从文件加载配置
// 文件不存在时使用默认值，随后应用 .env 和 FWCTL_* 环境变量覆盖
func LoadConfig(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	case os.IsNotExist(err):
		logger.GetConfigLogger().WithField("path", path).Debug("配置文件不存在，使用默认配置")
	default:
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// .env 不存在时忽略
	_ = godotenv.Load()
	if err := applyEnv(&config); err != nil {
		return nil, err
	}

	setDefaults(&config)

	// 处理向后兼容性
	if config.LogLevel != "" && config.Logger.Level == "" {
		config.Logger.Level = config.LogLevel
	}

	return &config, nil
}

// applyEnv 应用环境变量覆盖
func applyEnv(config *Config) error {
	if v := os.Getenv(envPrefix + "BASE_URL"); v != "" {
		config.API.BaseURL = v
	}
	if v := os.Getenv(envPrefix + "TIMEOUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sTIMEOUT 不是有效整数: %w", envPrefix, err)
		}
		config.API.Timeout = n
	}
	if v := os.Getenv(envPrefix + "TLS_SKIP_VERIFY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sTLS_SKIP_VERIFY 不是有效布尔值: %w", envPrefix, err)
		}
		config.API.TLSSkipVerify = b
	}
	if v := os.Getenv(envPrefix + "SESSION_STORE"); v != "" {
		config.Session.Store = strings.ToLower(v)
	}
	if v := os.Getenv(envPrefix + "SESSION_PATH"); v != "" {
		config.Session.Path = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		config.Logger.Level = v
	}
	return nil
}

// setDefaults 设置默认配置值
func setDefaults(config *Config) {
	if config.API.BaseURL == "" {
		config.API.BaseURL = "http://127.0.0.1:5000"
	}
	config.API.BaseURL = strings.TrimRight(config.API.BaseURL, "/")

	if config.API.Timeout == 0 {
		config.API.Timeout = 30
	}

	if config.API.RetryCount == 0 {
		config.API.RetryCount = 1
	}

	if config.API.RetryDelay == 0 {
		config.API.RetryDelay = 2
	}

	if config.Session.Store == "" {
		config.Session.Store = "file"
	}

	if config.Session.Path == "" {
		dir := filepath.Dir(DefaultPath())
		if config.Session.Store == "sqlite" {
			config.Session.Path = filepath.Join(dir, "session.db")
		} else {
			config.Session.Path = filepath.Join(dir, "token")
		}
	}

	if config.Feed.Path == "" {
		config.Feed.Path = "/api/ws"
	}

	if config.Feed.ReconnectInitial == 0 {
		config.Feed.ReconnectInitial = 1
	}

	if config.Feed.ReconnectMax == 0 {
		config.Feed.ReconnectMax = 30
	}

	if config.Feed.ReconnectJitter == 0 {
		config.Feed.ReconnectJitter = 0.5
	}

	if config.Feed.ReadTimeout == 0 {
		config.Feed.ReadTimeout = 90
	}

	if config.Dashboard.ConnectionCapacity == 0 {
		config.Dashboard.ConnectionCapacity = 100
	}

	if config.Dashboard.TimeRange == "" {
		config.Dashboard.TimeRange = "1h"
	}

	if config.Dashboard.AnalysisTimeRange == "" {
		config.Dashboard.AnalysisTimeRange = "24h"
	}

	if config.Dashboard.LogPageSize == 0 {
		config.Dashboard.LogPageSize = 50
	}

	// 日志配置默认值
	defaults := logger.DefaultConfig()
	if config.Logger.Level == "" {
		if config.LogLevel != "" {
			config.Logger.Level = config.LogLevel
		} else {
			config.Logger.Level = defaults.Level
		}
	}
	if config.Logger.Format == "" {
		config.Logger.Format = defaults.Format
	}
	if config.Logger.Output == "" {
		config.Logger.Output = defaults.Output
	}
	if config.Logger.File == "" {
		config.Logger.File = defaults.File
	}
	if config.Logger.MaxSize == 0 {
		config.Logger.MaxSize = defaults.MaxSize
	}
	if config.Logger.MaxBackups == 0 {
		config.Logger.MaxBackups = defaults.MaxBackups
	}
	if config.Logger.MaxAge == 0 {
		config.Logger.MaxAge = defaults.MaxAge
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("API base_url无效: %q", c.API.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("API base_url必须是http或https: %q", c.API.BaseURL)
	}

	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout必须大于0")
	}

	if c.API.RetryCount <= 0 {
		return fmt.Errorf("api.retry_count必须大于0")
	}

	if c.API.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit不能为负数")
	}

	switch c.Session.Store {
	case "file", "sqlite":
	default:
		return fmt.Errorf("不支持的session.store: %s", c.Session.Store)
	}

	if c.Feed.ReconnectMax < c.Feed.ReconnectInitial {
		return fmt.Errorf("feed.reconnect_max不能小于feed.reconnect_initial")
	}

	if c.Dashboard.ConnectionCapacity <= 0 {
		return fmt.Errorf("dashboard.connection_capacity必须大于0")
	}

	return nil
}

// SaveConfig 保存配置文件
func SaveConfig(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
