package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fwpanel/fwctl/pkg/api"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var ruleHeaders = []string{"ID", "TYPE", "CHAIN", "PROTO", "SOURCE", "DESTINATION", "PORT", "ACTION", "PRIORITY", "STATUS", "COMMENT"}

func ruleRows(rules []api.Rule) func() [][]string {
	return func() [][]string {
		rows := make([][]string, 0, len(rules))
		for _, r := range rules {
			rows = append(rows, []string{
				strconv.FormatInt(r.ID, 10),
				string(r.RuleType),
				r.Chain,
				r.Protocol,
				r.Source,
				r.Destination,
				r.Port,
				string(r.Action),
				strconv.Itoa(r.Priority),
				fmtEnabled(r.Enabled),
				orDash(r.Comment),
			})
		}
		return rows
	}
}

// ruleFlags 规则字段对应的命令行参数
type ruleFlags struct {
	ruleType    string
	chain       string
	protocol    string
	source      string
	destination string
	port        string
	action      string
	comment     string
	priority    int
	disabled    bool
}

func (f *ruleFlags) register(fs *pflag.FlagSet) {
	def := api.NewRule()
	fs.StringVar(&f.ruleType, "type", string(def.RuleType), "规则类型 (iptables, nftables)")
	fs.StringVar(&f.chain, "chain", def.Chain, "链 (INPUT, OUTPUT, FORWARD)")
	fs.StringVar(&f.protocol, "protocol", def.Protocol, "协议 (all, tcp, udp, icmp)")
	fs.StringVar(&f.source, "source", def.Source, "源地址")
	fs.StringVar(&f.destination, "destination", def.Destination, "目标地址")
	fs.StringVar(&f.port, "port", def.Port, "端口")
	fs.StringVar(&f.action, "action", string(def.Action), "动作 (ACCEPT, DROP, REJECT, LOG)")
	fs.StringVar(&f.comment, "comment", "", "备注")
	fs.IntVar(&f.priority, "priority", def.Priority, "优先级，数值越小越先匹配")
	fs.BoolVar(&f.disabled, "disabled", false, "创建为禁用状态")
}

func (f *ruleFlags) rule() api.Rule {
	return api.Rule{
		RuleType:    api.RuleType(f.ruleType),
		Chain:       f.chain,
		Protocol:    f.protocol,
		Source:      f.source,
		Destination: f.destination,
		Port:        f.port,
		Action:      api.RuleAction(f.action),
		Comment:     f.comment,
		Priority:    f.priority,
		Enabled:     !f.disabled,
	}
}

// patch 只包含用户显式给出的参数
func (f *ruleFlags) patch(fs *pflag.FlagSet) api.RulePatch {
	var p api.RulePatch
	if fs.Changed("type") {
		t := api.RuleType(f.ruleType)
		p.RuleType = &t
	}
	if fs.Changed("chain") {
		p.Chain = &f.chain
	}
	if fs.Changed("protocol") {
		p.Protocol = &f.protocol
	}
	if fs.Changed("source") {
		p.Source = &f.source
	}
	if fs.Changed("destination") {
		p.Destination = &f.destination
	}
	if fs.Changed("port") {
		p.Port = &f.port
	}
	if fs.Changed("action") {
		action := api.RuleAction(f.action)
		p.Action = &action
	}
	if fs.Changed("comment") {
		p.Comment = &f.comment
	}
	if fs.Changed("priority") {
		p.Priority = &f.priority
	}
	if fs.Changed("disabled") {
		enabled := !f.disabled
		p.Enabled = &enabled
	}
	return p
}

func (a *app) rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "防火墙规则管理",
	}
	cmd.AddCommand(
		a.rulesListCmd(),
		a.rulesGetCmd(),
		a.rulesCreateCmd(),
		a.rulesUpdateCmd(),
		a.rulesDeleteCmd(),
		a.rulesEnableCmd("enable", "启用规则", true),
		a.rulesEnableCmd("disable", "禁用规则", false),
		a.rulesToggleCmd(),
		a.rulesVerifyCmd(),
		a.rulesExportCmd(),
		a.rulesImportCmd(),
		a.rulesSyncCmd(),
		a.templatesCmd(),
	)
	return cmd
}

func (a *app) rulesListCmd() *cobra.Command {
	var ruleType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "列出规则",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			if err := a.shell.Rules.Activate(cmd.Context()); err != nil {
				return err
			}
			rules := a.shell.Rules.Rules()
			if ruleType != "" {
				filtered := rules[:0]
				for _, r := range rules {
					if string(r.RuleType) == ruleType {
						filtered = append(filtered, r)
					}
				}
				rules = filtered
			}
			return a.out.result(rules, ruleHeaders, ruleRows(rules))
		},
	}
	cmd.Flags().StringVar(&ruleType, "type", "", "只显示指定类型的规则")
	return cmd
}

func (a *app) rulesGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "显示单条规则",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			rule, err := a.shell.Client().Rules.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.out.result(rule, ruleHeaders, ruleRows([]api.Rule{*rule}))
		},
	}
}

func (a *app) rulesCreateCmd() *cobra.Command {
	var (
		flags    ruleFlags
		fromFile string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "创建规则",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rule := flags.rule()
			if fromFile != "" {
				data, err := os.ReadFile(fromFile)
				if err != nil {
					return err
				}
				rule = api.NewRule()
				if err := json.Unmarshal(data, &rule); err != nil {
					return api.ValidationError("规则文件格式错误: " + err.Error())
				}
			}
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			created, err := a.shell.Rules.Create(cmd.Context(), rule)
			if err = a.applied(cmd, err); err != nil {
				return err
			}
			return a.out.result(created, ruleHeaders, ruleRows([]api.Rule{*created}))
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().StringVarP(&fromFile, "file", "f", "", "从JSON文件读取规则")
	return cmd
}

func (a *app) rulesUpdateCmd() *cobra.Command {
	var flags ruleFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "修改规则，只更新给出的字段",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			updated, err := a.shell.Rules.Patch(cmd.Context(), id, flags.patch(cmd.Flags()))
			if err = a.applied(cmd, err); err != nil {
				return err
			}
			return a.out.result(updated, ruleHeaders, ruleRows([]api.Rule{*updated}))
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func (a *app) rulesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "删除规则",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			if err := a.applied(cmd, a.shell.Rules.Delete(cmd.Context(), id)); err != nil {
				return err
			}
			return a.out.message("规则已删除")
		},
	}
}

func (a *app) rulesEnableCmd(use, short string, enabled bool) *cobra.Command {
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
			if err := a.applied(cmd, a.shell.Rules.SetEnabled(cmd.Context(), id, enabled)); err != nil {
				return err
			}
			return a.out.message("规则已" + fmtEnabled(enabled))
		},
	}
}

func (a *app) rulesToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "切换规则启用状态",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			if err := a.shell.Rules.Activate(cmd.Context()); err != nil {
				return err
			}
			enabled, err := a.shell.Rules.Toggle(cmd.Context(), id)
			if err = a.applied(cmd, err); err != nil {
				return err
			}
			return a.out.message("规则已" + fmtEnabled(enabled))
		},
	}
}

func (a *app) rulesVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <id>",
		Short: "验证规则是否已生效",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			result, err := a.shell.Rules.Verify(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.out.result(result, []string{"RULE", "EFFECTIVE", "MESSAGE"}, func() [][]string {
				effective := "否"
				if result.Effective {
					effective = "是"
				}
				return [][]string{{strconv.FormatInt(result.RuleID, 10), effective, result.Message}}
			})
		},
	}
}

func (a *app) rulesExportCmd() *cobra.Command {
	var (
		ruleType string
		output   string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "导出规则为JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			rules, err := a.shell.Rules.Export(cmd.Context(), ruleType)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(rules, "", "  ")
			if err != nil {
				return err
			}
			if output == "" {
				a.out.line(string(data))
				return nil
			}
			if err := os.WriteFile(output, append(data, '\n'), 0644); err != nil {
				return err
			}
			return a.out.message("已导出 " + strconv.Itoa(len(rules)) + " 条规则到 " + output)
		},
	}
	cmd.Flags().StringVar(&ruleType, "type", "all", "导出的规则类型 (all, iptables, nftables)")
	cmd.Flags().StringVarP(&output, "file", "f", "", "输出文件，默认打印到标准输出")
	return cmd
}

func (a *app) rulesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "从JSON文件导入规则",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			msg, err := a.shell.Rules.Import(cmd.Context(), filepath.Base(args[0]), f)
			if err = a.applied(cmd, err); err != nil {
				return err
			}
			return a.out.message(msg)
		},
	}
}

func (a *app) rulesSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "从服务器当前生效的防火墙同步规则",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			msg, err := a.shell.Rules.Sync(cmd.Context())
			if err = a.applied(cmd, err); err != nil {
				return err
			}
			return a.out.message(msg)
		},
	}
}

func (a *app) templatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "规则模板",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "列出模板",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			templates, err := a.shell.Rules.Templates(cmd.Context())
			if err != nil {
				return err
			}
			return a.out.result(templates, []string{"ID", "NAME", "DESCRIPTION", "CREATED"}, func() [][]string {
				rows := make([][]string, 0, len(templates))
				for _, t := range templates {
					rows = append(rows, []string{strconv.FormatInt(t.ID, 10), t.Name, orDash(t.Description), fmtTime(t.CreatedAt)})
				}
				return rows
			})
		},
	}

	apply := &cobra.Command{
		Use:   "apply <template-id>",
		Short: "按模板创建规则",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			created, err := a.shell.Rules.ApplyTemplate(cmd.Context(), id)
			if err = a.applied(cmd, err); err != nil {
				return err
			}
			return a.out.result(created, ruleHeaders, ruleRows([]api.Rule{*created}))
		},
	}

	var name, description string
	save := &cobra.Command{
		Use:   "save <rule-id>",
		Short: "把已有规则保存为模板",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			rule, err := a.shell.Client().Rules.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			tpl, err := a.shell.Rules.SaveTemplate(cmd.Context(), name, description, *rule)
			if err = a.applied(cmd, err); err != nil {
				return err
			}
			return a.out.message("模板已保存: " + tpl.Name)
		},
	}
	save.Flags().StringVar(&name, "name", "", "模板名称")
	save.Flags().StringVar(&description, "description", "", "模板说明")

	del := &cobra.Command{
		Use:   "delete <template-id>",
		Short: "删除模板",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			if err := a.applied(cmd, a.shell.Rules.DeleteTemplate(cmd.Context(), id)); err != nil {
				return err
			}
			return a.out.message("模板已删除")
		},
	}

	cmd.AddCommand(list, apply, save, del)
	return cmd
}
