package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config 日志配置
type Config struct {
	Level      string `yaml:"level" json:"level"`             // 日志级别: debug, info, warn, error
	Format     string `yaml:"format" json:"format"`           // 日志格式: json, text
	Output     string `yaml:"output" json:"output"`           // 输出方式: stdout, stderr, file, both
	File       string `yaml:"file" json:"file"`               // 日志文件路径
	MaxSize    int    `yaml:"max_size" json:"max_size"`       // 单个日志文件最大大小(MB)
	MaxBackups int    `yaml:"max_backups" json:"max_backups"` // 保留的旧日志文件数量
	MaxAge     int    `yaml:"max_age" json:"max_age"`         // 日志文件保留天数
	Compress   bool   `yaml:"compress" json:"compress"`       // 是否压缩旧日志文件
}

// DefaultConfig 返回默认配置
// 命令行工具默认输出到stderr，避免污染命令输出
func DefaultConfig() Config {
	return Config{
		Level:      "warn",
		Format:     "text",
		Output:     "stderr",
		File:       defaultLogFile(),
		MaxSize:    20,
		MaxBackups: 3,
		MaxAge:     14,
		Compress:   true,
	}
}

func defaultLogFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "fwctl", "fwctl.log")
}

var (
	mu sync.Mutex
	// 全局logger实例
	globalLogger *logrus.Logger
	// 组件专用logger映射
	componentLoggers = make(map[string]*logrus.Entry)
)

// Initialize 初始化全局日志器
func Initialize(config Config) error {
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return fmt.Errorf("无效的日志级别 '%s': %w", config.Level, err)
	}
	formatter, err := newFormatter(config.Format)
	if err != nil {
		return err
	}
	output, err := newOutput(config)
	if err != nil {
		return err
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(formatter)
	logger.SetOutput(output)
	// debug级别时附带调用位置
	logger.SetReportCaller(level == logrus.DebugLevel)

	mu.Lock()
	globalLogger = logger
	// 组件logger绑定在旧实例上，需要重建
	componentLoggers = make(map[string]*logrus.Entry)
	mu.Unlock()
	return nil
}

func newFormatter(format string) (logrus.Formatter, error) {
	switch strings.ToLower(format) {
	case "json":
		return &logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
				logrus.FieldKeyFunc: "function",
			},
		}, nil
	case "text":
		return &logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FullTimestamp:   true,
		}, nil
	}
	return nil, fmt.Errorf("不支持的日志格式: %s", format)
}

// newOutput stdout留给命令结果，"both"时写stderr和文件
func newOutput(config Config) (io.Writer, error) {
	output := strings.ToLower(config.Output)
	switch output {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "file", "both":
		file, err := setupFileOutput(config)
		if err != nil {
			return nil, fmt.Errorf("设置文件输出失败: %w", err)
		}
		if output == "both" {
			return io.MultiWriter(os.Stderr, file), nil
		}
		return file, nil
	}
	return nil, fmt.Errorf("不支持的输出方式: %s", config.Output)
}

// setupFileOutput 设置文件输出
func setupFileOutput(config Config) (io.Writer, error) {
	logDir := filepath.Dir(config.File)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("创建日志目录失败: %w", err)
	}

	// 使用lumberjack进行日志轮转
	return &lumberjack.Logger{
		Filename:   config.File,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
		LocalTime:  true,
	}, nil
}

// GetLogger 获取全局logger实例
func GetLogger() *logrus.Logger {
	mu.Lock()
	l := globalLogger
	mu.Unlock()
	if l != nil {
		return l
	}

	if err := Initialize(DefaultConfig()); err != nil {
		mu.Lock()
		globalLogger = logrus.New()
		mu.Unlock()
	}

	mu.Lock()
	defer mu.Unlock()
	return globalLogger
}

// GetComponentLogger 获取组件专用logger
func GetComponentLogger(component string) *logrus.Entry {
	logger := GetLogger()

	mu.Lock()
	defer mu.Unlock()
	if componentLoggers[component] == nil {
		componentLoggers[component] = logger.WithField("component", component)
	}
	return componentLoggers[component]
}

// 便捷方法 - 获取各个组件的logger
func GetAPILogger() *logrus.Entry       { return GetComponentLogger("api") }
func GetSessionLogger() *logrus.Entry   { return GetComponentLogger("session") }
func GetFeedLogger() *logrus.Entry      { return GetComponentLogger("feed") }
func GetStateLogger() *logrus.Entry     { return GetComponentLogger("state") }
func GetDashboardLogger() *logrus.Entry { return GetComponentLogger("dashboard") }
func GetConfigLogger() *logrus.Entry    { return GetComponentLogger("config") }
func GetSystemLogger() *logrus.Entry    { return GetComponentLogger("system") }

func merge(fields logrus.Fields, extra logrus.Fields) logrus.Fields {
	out := make(logrus.Fields, len(fields)+len(extra))
	for k, v := range fields {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// LogPerformance 记录一次操作的耗时，debug级别
func LogPerformance(operation string, duration time.Duration, fields logrus.Fields) {
	GetComponentLogger("perf").WithFields(merge(fields, logrus.Fields{
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	})).Debug("操作耗时")
}

// LogAudit 记录改变服务端状态的操作
func LogAudit(action string, user string, fields logrus.Fields) {
	GetComponentLogger("audit").WithFields(merge(fields, logrus.Fields{
		"action": action,
		"user":   user,
	})).Info("审计")
}

// LogError 记录错误及其具体类型
func LogError(err error, message string, fields logrus.Fields) {
	GetLogger().WithError(err).WithFields(merge(fields, logrus.Fields{
		"error_type": fmt.Sprintf("%T", err),
	})).Error(message)
}

func lifecycle(component, phase string, fields logrus.Fields) *logrus.Entry {
	return GetComponentLogger(component).WithFields(merge(fields, logrus.Fields{"lifecycle": phase}))
}

// LogStartup 组件初始化完成
func LogStartup(component string, version string, config interface{}) {
	lifecycle(component, "startup", logrus.Fields{
		"version": version,
		"config":  config,
	}).Debug("组件启动")
}

// LogShutdown 组件关闭，附带运行时长
func LogShutdown(component string, duration time.Duration) {
	lifecycle(component, "shutdown", logrus.Fields{
		"uptime": duration.Round(time.Millisecond).String(),
	}).Debug("组件关闭")
}

// LogStateChange 记录会话、推送连接等状态机的迁移
func LogStateChange(component string, from string, to string, reason string) {
	GetComponentLogger(component).WithFields(logrus.Fields{
		"from":   from,
		"to":     to,
		"reason": reason,
	}).Info("状态变更")
}
