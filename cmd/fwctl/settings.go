package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fwpanel/fwctl/pkg/api"
	"github.com/spf13/cobra"
)

func (a *app) settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "系统设置",
	}

	get := &cobra.Command{
		Use:   "get [key...]",
		Short: "显示系统设置",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			if err := a.shell.Settings.Refresh(cmd.Context()); err != nil {
				return err
			}
			records := a.shell.Settings.Records()
			if len(args) > 0 {
				wanted := make(map[string]bool, len(args))
				for _, k := range args {
					wanted[k] = true
				}
				filtered := records[:0]
				for _, r := range records {
					if wanted[r.Key] {
						filtered = append(filtered, r)
					}
				}
				records = filtered
			}
			return a.out.result(records, []string{"KEY", "VALUE", "DESCRIPTION", "UPDATED"}, func() [][]string {
				rows := make([][]string, 0, len(records))
				for _, r := range records {
					rows = append(rows, []string{r.Key, string(r.Value), orDash(r.Description), fmtTime(r.UpdatedAt)})
				}
				return rows
			})
		},
	}

	var dryRun bool
	set := &cobra.Command{
		Use:   "set <key=value>...",
		Short: "修改系统设置并显示差异",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			changes := make(map[string]string, len(args))
			for _, arg := range args {
				key, value, ok := strings.Cut(arg, "=")
				if !ok || key == "" {
					return api.ValidationError(fmt.Sprintf("参数格式应为 key=value: %s", arg))
				}
				changes[key] = value
			}

			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			if err := a.shell.Settings.Refresh(cmd.Context()); err != nil {
				return err
			}

			before := a.shell.Settings.Settings()
			after := before.Clone()
			for k, v := range changes {
				after.Set(k, v)
			}

			diff, err := settingsDiff(before, after)
			if err != nil {
				return err
			}
			if diff == "" {
				return a.out.message("设置没有变化")
			}
			if !a.out.isJSON() {
				fmt.Fprint(cmd.OutOrStdout(), diff)
			}
			if dryRun {
				return nil
			}

			if err := a.applied(cmd, a.shell.Settings.Save(cmd.Context(), after)); err != nil {
				return err
			}
			if a.out.isJSON() {
				return a.out.json(a.shell.Settings.Settings())
			}
			a.out.line("设置已保存")
			return nil
		},
	}
	set.Flags().BoolVar(&dryRun, "dry-run", false, "只显示差异，不保存")

	cmd.AddCommand(get, set)
	return cmd
}

func (a *app) backupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "系统备份与恢复",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "列出备份",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			if err := a.shell.Settings.Refresh(cmd.Context()); err != nil {
				return err
			}
			backups := a.shell.Settings.Backups()
			return a.out.result(backups, []string{"ID", "DESCRIPTION", "SIZE", "CREATED"}, func() [][]string {
				rows := make([][]string, 0, len(backups))
				for _, b := range backups {
					rows = append(rows, []string{
						strconv.FormatInt(b.ID, 10),
						orDash(b.Description),
						humanize.Bytes(uint64(b.Size)),
						fmtTime(b.CreatedAt),
					})
				}
				return rows
			})
		},
	}

	var description string
	create := &cobra.Command{
		Use:   "create",
		Short: "创建备份",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			backup, err := a.shell.Settings.CreateBackup(cmd.Context(), description)
			if err = a.applied(cmd, err); err != nil {
				return err
			}
			if a.out.isJSON() {
				return a.out.json(backup)
			}
			a.out.line("备份已创建 #%d (%s)", backup.ID, humanize.Bytes(uint64(backup.Size)))
			return nil
		},
	}
	create.Flags().StringVarP(&description, "description", "d", "", "备份说明")

	var yes bool
	restore := &cobra.Command{
		Use:   "restore <id>",
		Short: "从备份恢复系统，会覆盖当前的规则和设置",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if !yes {
				fmt.Fprintln(os.Stderr, "恢复备份会覆盖当前的规则和设置，请添加 --yes 确认")
				return api.ValidationError("未确认恢复操作")
			}
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			msg, err := a.shell.Settings.RestoreBackup(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.out.message(msg)
		},
	}
	restore.Flags().BoolVarP(&yes, "yes", "y", false, "确认恢复")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "删除备份",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			if err := a.applied(cmd, a.shell.Settings.DeleteBackup(cmd.Context(), id)); err != nil {
				return err
			}
			return a.out.message("备份已删除")
		},
	}

	cmd.AddCommand(list, create, restore, del)
	return cmd
}
