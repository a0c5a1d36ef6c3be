package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fwpanel/fwctl/pkg/api"
	"github.com/guptarohit/asciigraph"
	"github.com/pmezard/go-difflib/difflib"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

// printer 按输出格式打印命令结果，可在多个goroutine中使用
type printer struct {
	mu     sync.Mutex
	w      io.Writer
	format string
}

func newPrinter(w io.Writer, format string) *printer {
	return &printer{w: w, format: format}
}

func (p *printer) isJSON() bool {
	return p.format == formatJSON
}

func (p *printer) json(v interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) table(headers []string, rows [][]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// result JSON格式输出v，表格格式输出rows
func (p *printer) result(v interface{}, headers []string, rows func() [][]string) error {
	if p.isJSON() {
		return p.json(v)
	}
	return p.table(headers, rows())
}

// message 打印操作结果消息
func (p *printer) message(msg string) error {
	if p.isJSON() {
		return p.json(map[string]string{"message": msg})
	}
	p.line(msg)
	return nil
}

func (p *printer) line(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(args) == 0 {
		fmt.Fprintln(p.w, format)
		return
	}
	fmt.Fprintf(p.w, format+"\n", args...)
}

func fmtTime(ts *api.Timestamp) string {
	if ts == nil || ts.IsZero() {
		return "-"
	}
	return humanize.Time(ts.Time)
}

func fmtEnabled(enabled bool) string {
	if enabled {
		return "启用"
	}
	return "禁用"
}

func fmtRunning(running bool) string {
	if running {
		return "运行中"
	}
	return "已停止"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// connectionGraph 绘制连接数趋势图
func connectionGraph(series []float64, caption string) string {
	if len(series) == 0 {
		return "暂无连接统计数据"
	}
	// 单个数据点无法绘制折线
	if len(series) == 1 {
		series = append(series, series[0])
	}
	return asciigraph.Plot(series,
		asciigraph.Height(10),
		asciigraph.Width(60),
		asciigraph.Caption(caption))
}

// settingsLines 按键排序输出 "key: value" 行
func settingsLines(s api.Settings) []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s\n", k, s[k]))
	}
	return lines
}

// settingsDiff 生成设置修改前后的统一diff，无变化时返回空字符串
func settingsDiff(before, after api.Settings) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        settingsLines(before),
		B:        settingsLines(after),
		FromFile: "当前设置",
		ToFile:   "新设置",
		Context:  1,
	})
}
