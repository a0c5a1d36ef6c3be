package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/fwpanel/fwctl/pkg/api"
	"github.com/fwpanel/fwctl/pkg/dashboard"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func (a *app) logsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "防火墙日志查询与分析",
	}
	cmd.AddCommand(a.logsListCmd(), a.logsCollectCmd(), a.logsAnalyzeCmd())
	return cmd
}

func (a *app) logsListCmd() *cobra.Command {
	var (
		filter api.LogFilter
		page   int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "分页查询日志",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.authed(ctx); err != nil {
				return err
			}
			logs := a.shell.Logs
			if err := logs.SetFilter(ctx, filter); err != nil {
				return err
			}
			if page > 1 {
				if err := logs.GoToPage(ctx, page); err != nil {
					return err
				}
			}

			result := logs.Page()
			if a.out.isJSON() {
				return a.out.json(map[string]interface{}{
					"entries":    result.Entries,
					"pagination": result.Pagination,
				})
			}
			err := a.out.table([]string{"TIME", "SOURCE", "DESTINATION", "PROTO", "ACTION", "CHAIN", "IFACE"}, func() [][]string {
				rows := make([][]string, 0, len(result.Entries))
				for _, e := range result.Entries {
					rows = append(rows, []string{
						fmtTime(e.Timestamp),
						orDash(e.SourceIP),
						orDash(e.DestinationIP),
						orDash(e.Protocol),
						orDash(e.Action),
						orDash(e.Chain),
						orDash(e.Interface),
					})
				}
				return rows
			}())
			if err != nil {
				return err
			}
			p := result.Pagination
			a.out.line("第 %d/%d 页，共 %s 条", p.CurrentPage, p.Pages, humanize.Comma(int64(p.Total)))
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&filter.SourceIP, "source", "", "源IP")
	fs.StringVar(&filter.DestinationIP, "destination", "", "目标IP")
	fs.StringVar(&filter.Action, "action", "", "动作")
	fs.StringVar(&filter.Protocol, "protocol", "", "协议")
	fs.StringVar(&filter.StartDate, "start", "", "开始时间")
	fs.StringVar(&filter.EndDate, "end", "", "结束时间")
	fs.IntVar(&page, "page", 1, "页码")
	return cmd
}

func (a *app) logsCollectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "立即从系统日志收集防火墙日志",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			msg, err := a.shell.Logs.Collect(cmd.Context())
			if err = a.applied(cmd, err); err != nil {
				return err
			}
			return a.out.message(msg)
		},
	}
}

func (a *app) logsAnalyzeCmd() *cobra.Command {
	var (
		timeRange string
		block     bool
		alert     bool
	)
	cmd := &cobra.Command{
		Use:       "analyze <traffic|anomalies|top_sources|top_destinations>",
		Short:     "日志分析",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(api.AnalysisTraffic), string(api.AnalysisAnomalies), string(api.AnalysisTopSources), string(api.AnalysisTopDestinations)},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.authed(ctx); err != nil {
				return err
			}
			result, err := a.shell.Logs.Analysis(ctx, api.AnalysisType(args[0]), timeRange)
			if err != nil {
				return err
			}

			if result.Type == api.AnalysisAnomalies && (block || alert) {
				return a.actOnAnomalies(cmd, result.Anomalies, block, alert)
			}
			return a.printAnalysis(result)
		},
	}
	cmd.Flags().StringVarP(&timeRange, "range", "r", "", "时间范围 (1h, 6h, 24h, 7d, 30d)，默认取配置")
	cmd.Flags().BoolVar(&block, "block", false, "为每个带源IP的异常创建阻止规则")
	cmd.Flags().BoolVar(&alert, "alert", false, "为每种异常创建告警配置")
	return cmd
}

func (a *app) printAnalysis(result *api.Analysis) error {
	switch result.Type {
	case api.AnalysisTraffic:
		if a.out.isJSON() {
			return a.out.json(result.Traffic)
		}
		if result.Traffic == nil {
			a.out.line("暂无数据")
			return nil
		}
		for _, section := range []struct {
			title string
			stats map[string]int
		}{
			{"协议", result.Traffic.ProtocolStats},
			{"源地址", result.Traffic.SourceStats},
			{"目标地址", result.Traffic.DestinationStats},
			{"时间", result.Traffic.TimeStats},
		} {
			a.out.line("%s:", section.title)
			if err := a.out.table([]string{"KEY", "COUNT"}, statRows(section.stats)); err != nil {
				return err
			}
			a.out.line("")
		}
		return nil
	case api.AnalysisAnomalies:
		anomalies := result.Anomalies
		return a.out.result(anomalies, []string{"TYPE", "SOURCE", "COUNT", "DESCRIPTION"}, func() [][]string {
			rows := make([][]string, 0, len(anomalies))
			for _, an := range anomalies {
				rows = append(rows, []string{dashboard.AnomalyName(an.Type), orDash(an.SourceIP), strconv.Itoa(an.Count), an.Description})
			}
			return rows
		})
	default:
		top := result.Top
		return a.out.result(top, []string{"ADDRESS", "COUNT"}, func() [][]string {
			rows := make([][]string, 0, len(top))
			for _, e := range top {
				rows = append(rows, []string{e.Address(), humanize.Comma(int64(e.Count))})
			}
			return rows
		})
	}
}

// statRows 按计数从高到低排序
func statRows(stats map[string]int) [][]string {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if stats[keys[i]] != stats[keys[j]] {
			return stats[keys[i]] > stats[keys[j]]
		}
		return keys[i] < keys[j]
	})
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, humanize.Comma(int64(stats[k]))})
	}
	return rows
}

func (a *app) actOnAnomalies(cmd *cobra.Command, anomalies []api.Anomaly, block, alert bool) error {
	ctx := cmd.Context()
	seen := make(map[string]bool)
	for _, an := range anomalies {
		if block && an.SourceIP != "" {
			rule, err := a.shell.Rules.BlockSource(ctx, an)
			if err = a.applied(cmd, err); err != nil {
				return err
			}
			a.out.line("已创建阻止规则 #%d: %s", rule.ID, an.SourceIP)
		}
		if alert && !seen[an.Type] {
			seen[an.Type] = true
			created, err := a.shell.Logs.CreateAlert(ctx, a.shell.Logs.AlertFromAnomaly(an))
			if err = a.applied(cmd, err); err != nil {
				return err
			}
			a.out.line("已创建告警 #%d: %s", created.ID, created.Name)
		}
	}
	return nil
}

var alertHeaders = []string{"ID", "NAME", "CONDITION", "VALUE", "ACTION", "STATUS"}

func alertRows(alerts []api.AlertRule) func() [][]string {
	return func() [][]string {
		rows := make([][]string, 0, len(alerts))
		for _, al := range alerts {
			rows = append(rows, []string{
				strconv.FormatInt(al.ID, 10),
				al.Name,
				string(al.ConditionType),
				orDash(al.ConditionValue),
				string(al.Action),
				fmtEnabled(al.Enabled),
			})
		}
		return rows
	}
}

// alertFlags 告警字段对应的命令行参数
type alertFlags struct {
	name           string
	description    string
	conditionType  string
	conditionValue string
	action         string
	actionConfig   string
	disabled       bool
}

func (f *alertFlags) register(fs *pflag.FlagSet) {
	def := api.NewAlertRule()
	fs.StringVar(&f.name, "name", "", "告警名称")
	fs.StringVar(&f.description, "description", "", "说明")
	fs.StringVar(&f.conditionType, "condition", string(def.ConditionType), "条件类型 (rate_limit, pattern_match, any)")
	fs.StringVar(&f.conditionValue, "value", def.ConditionValue, "条件值")
	fs.StringVar(&f.action, "action", string(def.Action), "告警动作 (log, email, webhook)")
	fs.StringVar(&f.actionConfig, "action-config", def.ActionConfig, "动作配置(JSON)")
	fs.BoolVar(&f.disabled, "disabled", false, "创建为禁用状态")
}

func (f *alertFlags) alert() api.AlertRule {
	return api.AlertRule{
		Name:           f.name,
		Description:    f.description,
		ConditionType:  api.ConditionType(f.conditionType),
		ConditionValue: f.conditionValue,
		Action:         api.AlertAction(f.action),
		ActionConfig:   f.actionConfig,
		Enabled:        !f.disabled,
	}
}

func (f *alertFlags) patch(fs *pflag.FlagSet) api.AlertPatch {
	var p api.AlertPatch
	if fs.Changed("name") {
		p.Name = &f.name
	}
	if fs.Changed("description") {
		p.Description = &f.description
	}
	if fs.Changed("condition") {
		ct := api.ConditionType(f.conditionType)
		p.ConditionType = &ct
	}
	if fs.Changed("value") {
		p.ConditionValue = &f.conditionValue
	}
	if fs.Changed("action") {
		action := api.AlertAction(f.action)
		p.Action = &action
	}
	if fs.Changed("action-config") {
		p.ActionConfig = &f.actionConfig
	}
	if fs.Changed("disabled") {
		enabled := !f.disabled
		p.Enabled = &enabled
	}
	return p
}

func (a *app) alertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "告警配置",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "列出告警配置",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			if err := a.shell.Logs.Refresh(cmd.Context()); err != nil {
				return err
			}
			alerts := a.shell.Logs.Alerts()
			return a.out.result(alerts, alertHeaders, alertRows(alerts))
		},
	}

	var createFlags alertFlags
	create := &cobra.Command{
		Use:   "create",
		Short: "创建告警配置",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			created, err := a.shell.Logs.CreateAlert(cmd.Context(), createFlags.alert())
			if err = a.applied(cmd, err); err != nil {
				return err
			}
			return a.out.result(created, alertHeaders, alertRows([]api.AlertRule{*created}))
		},
	}
	createFlags.register(create.Flags())

	var updateFlags alertFlags
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "修改告警配置，只更新给出的字段",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			updated, err := a.shell.Logs.PatchAlert(cmd.Context(), id, updateFlags.patch(cmd.Flags()))
			if err = a.applied(cmd, err); err != nil {
				return err
			}
			return a.out.result(updated, alertHeaders, alertRows([]api.AlertRule{*updated}))
		},
	}
	updateFlags.register(update.Flags())

	withID := func(use, short string, run func(cmd *cobra.Command, id int64) (string, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				if err := a.authed(cmd.Context()); err != nil {
					return err
				}
				msg, err := run(cmd, id)
				if err = a.applied(cmd, err); err != nil {
					return err
				}
				return a.out.message(msg)
			},
		}
	}

	cmd.AddCommand(
		list,
		create,
		update,
		withID("delete", "删除告警配置", func(cmd *cobra.Command, id int64) (string, error) {
			return "告警配置已删除", a.shell.Logs.DeleteAlert(cmd.Context(), id)
		}),
		withID("enable", "启用告警", func(cmd *cobra.Command, id int64) (string, error) {
			return "告警已启用", a.shell.Logs.SetAlertEnabled(cmd.Context(), id, true)
		}),
		withID("disable", "禁用告警", func(cmd *cobra.Command, id int64) (string, error) {
			return "告警已禁用", a.shell.Logs.SetAlertEnabled(cmd.Context(), id, false)
		}),
		withID("toggle", "切换告警启用状态", func(cmd *cobra.Command, id int64) (string, error) {
			if err := a.shell.Logs.Refresh(cmd.Context()); err != nil {
				return "", err
			}
			enabled, err := a.shell.Logs.ToggleAlert(cmd.Context(), id)
			return fmt.Sprintf("告警已%s", fmtEnabled(enabled)), err
		}),
	)
	return cmd
}
