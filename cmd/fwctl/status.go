package main

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fwpanel/fwctl/pkg/api"
	"github.com/fwpanel/fwctl/pkg/dashboard"
	"github.com/spf13/cobra"
)

func (a *app) statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "防火墙服务状态和连接统计",
	}
	cmd.AddCommand(a.statusShowCmd(), a.statusConnectionsCmd(), a.statusControlCmd(), a.statusWatchCmd())
	return cmd
}

func (a *app) statusShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "显示各防火墙服务的运行状态",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			if err := a.shell.Status.Refresh(cmd.Context()); err != nil {
				return err
			}
			return a.printStatus(a.shell.Status.Status())
		},
	}
}

func (a *app) printStatus(status api.ServiceStatus) error {
	services := make([]string, 0, len(status))
	for svc := range status {
		services = append(services, string(svc))
	}
	sort.Strings(services)

	return a.out.result(status, []string{"SERVICE", "STATUS", "LAST CHECKED"}, func() [][]string {
		rows := make([][]string, 0, len(services))
		for _, svc := range services {
			st := status[api.Service(svc)]
			rows = append(rows, []string{svc, fmtRunning(st.Status), fmtTime(st.LastChecked)})
		}
		return rows
	})
}

func (a *app) statusConnectionsCmd() *cobra.Command {
	var (
		timeRange string
		graph     bool
	)

	cmd := &cobra.Command{
		Use:   "connections",
		Short: "显示连接统计",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			if timeRange == "" {
				timeRange = a.shell.Status.TimeRange()
			}
			if err := a.shell.Status.SetTimeRange(cmd.Context(), timeRange); err != nil {
				return err
			}

			history := a.shell.Status.History()
			if graph && !a.out.isJSON() {
				series := history.Series(func(s api.ConnectionStat) int { return s.TotalConnections })
				a.out.line(connectionGraph(series, fmt.Sprintf("总连接数 (%s)", timeRange)))
				return nil
			}

			stats := history.Snapshot()
			return a.out.result(stats, []string{"TIME", "TOTAL", "ESTABLISHED", "TIME_WAIT", "CLOSE_WAIT", "SYN_SENT", "UDP"}, func() [][]string {
				rows := make([][]string, 0, len(stats))
				for _, s := range stats {
					rows = append(rows, []string{
						s.Timestamp.Local().Format("2006-01-02 15:04:05"),
						humanize.Comma(int64(s.TotalConnections)),
						strconv.Itoa(s.Established),
						strconv.Itoa(s.TimeWait),
						strconv.Itoa(s.CloseWait),
						strconv.Itoa(s.SynSent),
						strconv.Itoa(s.UDPConnections),
					})
				}
				return rows
			})
		},
	}

	cmd.Flags().StringVarP(&timeRange, "range", "r", "", "时间范围 (1h, 6h, 24h, 7d)，默认取配置")
	cmd.Flags().BoolVarP(&graph, "graph", "g", false, "以趋势图显示总连接数")
	return cmd
}

func (a *app) statusControlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "control <service> <start|stop|restart>",
		Short: "启动、停止或重启防火墙服务",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			msg, err := a.shell.Status.Control(cmd.Context(), api.Service(args[0]), api.ServiceAction(args[1]))
			if err != nil {
				return err
			}
			return a.out.message(msg)
		},
	}
}

func (a *app) statusWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "订阅实时状态推送，按 Ctrl+C 退出",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.authed(ctx); err != nil {
				return err
			}

			view := a.shell.Status
			view.OnUpdate(func() {
				a.printWatchLine(view)
			})
			if _, err := a.shell.Route(ctx, dashboard.ViewStatus); err != nil {
				return err
			}
			a.printWatchLine(view)

			<-ctx.Done()
			view.Deactivate()
			return nil
		},
	}
}

func (a *app) printWatchLine(view *dashboard.StatusView) {
	status := view.Status()
	latest, ok := view.Latest()

	if a.out.isJSON() {
		_ = a.out.json(map[string]interface{}{
			"status":     status,
			"connection": latest,
		})
		return
	}

	total := "-"
	if ok {
		total = humanize.Comma(int64(latest.TotalConnections))
	}
	a.out.line("[%s] iptables=%s nftables=%s connections=%s",
		time.Now().Format("15:04:05"),
		fmtRunning(status[api.ServiceIPTables].Status),
		fmtRunning(status[api.ServiceNFTables].Status),
		total)
}
