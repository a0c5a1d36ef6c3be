package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fwpanel/fwctl/pkg/api"
	"github.com/fwpanel/fwctl/pkg/config"
	"github.com/fwpanel/fwctl/pkg/dashboard"
	"github.com/fwpanel/fwctl/pkg/logger"
	"github.com/fwpanel/fwctl/pkg/session"
	"github.com/fwpanel/fwctl/pkg/state"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// 构建时注入的版本信息
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// errNotLoggedIn 需要登录的命令在没有有效会话时返回
var errNotLoggedIn = errors.New("未登录，请先执行 fwctl login")

// app 命令行运行时依赖，在命令执行前根据配置创建
type app struct {
	configPath string
	logLevel   string
	format     string

	cfg   *config.Config
	store session.TokenStore
	shell *dashboard.Shell
	out   *printer

	startTime time.Time
}

func newApp() *app {
	return &app{
		configPath: config.DefaultPath(),
		format:     formatTable,
	}
}

func main() {
	a := newApp()
	rootCmd := a.rootCmd()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	a.close()

	if err != nil {
		fmt.Fprintln(os.Stderr, "错误:", api.ErrorMessage(err))
		os.Exit(1)
	}
}

func getVersionInfo() string {
	return "版本: " + Version + "\n提交: " + Commit + "\n构建时间: " + BuildTime
}

func (a *app) rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "fwctl",
		Short:         "防火墙管理后台命令行客户端",
		Long:          "防火墙管理后台命令行客户端，管理规则、服务状态、日志分析、告警和系统设置",
		Version:       getVersionInfo(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.OutOrStdout())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", a.configPath, "配置文件路径")
	rootCmd.PersistentFlags().StringVarP(&a.logLevel, "log-level", "l", a.logLevel, "日志级别 (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&a.format, "output", "o", a.format, "输出格式 (table, json)")

	rootCmd.AddCommand(
		a.loginCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.profileCmd(),
		a.firewallCmd(),
		a.statusCmd(),
		a.rulesCmd(),
		a.logsCmd(),
		a.alertsCmd(),
		a.settingsCmd(),
		a.backupsCmd(),
		a.versionCmd(),
	)
	return rootCmd
}

// setup 加载配置并创建API客户端、会话和仪表盘
func (a *app) setup(w io.Writer) error {
	a.startTime = time.Now()

	if a.format != formatTable && a.format != formatJSON {
		return fmt.Errorf("不支持的输出格式: %s", a.format)
	}
	a.out = newPrinter(w, a.format)

	// 先使用基础日志配置，稍后会被配置文件覆盖
	basicConfig := logger.DefaultConfig()
	if a.logLevel != "" {
		basicConfig.Level = a.logLevel
	}
	if err := logger.Initialize(basicConfig); err != nil {
		return fmt.Errorf("初始化基础日志失败: %w", err)
	}

	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		logger.LogError(err, "加载配置文件失败", logrus.Fields{
			"config_path": a.configPath,
		})
		return err
	}
	if a.logLevel != "" {
		cfg.Logger.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := logger.Initialize(cfg.Logger); err != nil {
		logger.GetSystemLogger().WithError(err).Warn("根据配置重新初始化日志失败，继续使用基础配置")
	}
	a.cfg = cfg

	api.Version = Version
	client := api.NewClient(cfg.API)

	store, err := session.NewStore(cfg.Session)
	if err != nil {
		return fmt.Errorf("打开令牌存储失败: %w", err)
	}
	a.store = store
	a.shell = dashboard.NewShell(cfg, client, session.NewManager(store, client.Users))

	logger.GetSystemLogger().WithFields(logrus.Fields{
		"version":  Version,
		"config":   a.configPath,
		"base_url": cfg.API.BaseURL,
	}).Debug("fwctl 已初始化")
	return nil
}

// close 释放仪表盘和令牌存储
func (a *app) close() {
	if a.shell != nil {
		a.shell.Close()
	}
	if closer, ok := a.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.GetSystemLogger().WithError(err).Warn("关闭令牌存储失败")
		}
	}
	if !a.startTime.IsZero() {
		logger.LogShutdown("fwctl", time.Since(a.startTime))
	}
}

// authed 恢复持久化的会话，未登录时返回错误
func (a *app) authed(ctx context.Context) error {
	if _, ok := a.shell.Start(ctx); !ok {
		return errNotLoggedIn
	}
	return nil
}

// applied 变更已生效但刷新列表失败时只输出警告
func (a *app) applied(cmd *cobra.Command, err error) error {
	if err != nil && state.Applied(err) {
		fmt.Fprintln(cmd.ErrOrStderr(), "警告:", err.Error())
		return nil
	}
	return err
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本信息",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.out = newPrinter(cmd.OutOrStdout(), a.format)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.out.isJSON() {
				return a.out.json(map[string]string{
					"version":    Version,
					"commit":     Commit,
					"build_time": BuildTime,
				})
			}
			a.out.line(getVersionInfo())
			return nil
		},
	}
}

// parseID 解析位置参数中的ID
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, api.ValidationError(fmt.Sprintf("无效的ID: %s", s))
	}
	return id, nil
}
