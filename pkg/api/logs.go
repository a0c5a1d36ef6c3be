package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// DefaultLogPageSize 日志默认每页条数
const DefaultLogPageSize = 50

// 日志分析支持的时间范围
var analysisTimeRanges = map[string]bool{"1h": true, "6h": true, "24h": true, "7d": true, "30d": true}

// ValidAnalysisRange 时间范围是否被日志分析接口支持
func ValidAnalysisRange(timeRange string) bool {
	return analysisTimeRanges[timeRange]
}

// LogsService 日志与分析接口
type LogsService struct {
	client *Client
}

// Values 转换为查询参数，空条件不发送
func (q LogQuery) Values() url.Values {
	values := url.Values{}
	page := q.Page
	if page < 1 {
		page = 1
	}
	perPage := q.PerPage
	if perPage < 1 {
		perPage = DefaultLogPageSize
	}
	values.Set("page", strconv.Itoa(page))
	values.Set("per_page", strconv.Itoa(perPage))

	set := func(key, value string) {
		if value != "" {
			values.Set(key, value)
		}
	}
	set("source_ip", q.Filter.SourceIP)
	set("destination_ip", q.Filter.DestinationIP)
	set("action", q.Filter.Action)
	set("protocol", q.Filter.Protocol)
	set("start_date", q.Filter.StartDate)
	set("end_date", q.Filter.EndDate)
	return values
}

// List 分页获取日志，筛选在服务端完成
func (s *LogsService) List(ctx context.Context, q LogQuery) (*LogPage, error) {
	var entries []LogEntry
	env, err := s.client.do(ctx, http.MethodGet, "/api/logs", q.Values(), nil, &entries)
	if err != nil {
		return nil, err
	}

	page := &LogPage{Entries: entries}
	if env.Pagination != nil {
		page.Pagination = *env.Pagination
	} else {
		page.Pagination = Pagination{Total: len(entries), Pages: 1, CurrentPage: 1, PerPage: len(entries)}
	}
	return page, nil
}

func (s *LogsService) analysis(ctx context.Context, kind AnalysisType, timeRange string, out interface{}) error {
	if timeRange == "" {
		timeRange = "24h"
	}
	if !ValidAnalysisRange(timeRange) {
		return ValidationError(fmt.Sprintf("invalid time_range: %s", timeRange))
	}
	query := url.Values{"type": {string(kind)}, "time_range": {timeRange}}
	_, err := s.client.do(ctx, http.MethodGet, "/api/logs/analysis", query, nil, out)
	return err
}

// Traffic 流量模式分析
func (s *LogsService) Traffic(ctx context.Context, timeRange string) (*TrafficAnalysis, error) {
	var result TrafficAnalysis
	if err := s.analysis(ctx, AnalysisTraffic, timeRange, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Anomalies 异常检测
func (s *LogsService) Anomalies(ctx context.Context, timeRange string) ([]Anomaly, error) {
	var anomalies []Anomaly
	if err := s.analysis(ctx, AnalysisAnomalies, timeRange, &anomalies); err != nil {
		return nil, err
	}
	return anomalies, nil
}

// TopSources 访问量最高的源地址
func (s *LogsService) TopSources(ctx context.Context, timeRange string) ([]TopEntry, error) {
	var entries []TopEntry
	if err := s.analysis(ctx, AnalysisTopSources, timeRange, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// TopDestinations 访问量最高的目标地址
func (s *LogsService) TopDestinations(ctx context.Context, timeRange string) ([]TopEntry, error) {
	var entries []TopEntry
	if err := s.analysis(ctx, AnalysisTopDestinations, timeRange, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Analysis 按类型获取分析结果
type Analysis struct {
	Type      AnalysisType
	Traffic   *TrafficAnalysis
	Anomalies []Anomaly
	Top       []TopEntry
}

// Analysis 按类型执行日志分析
func (s *LogsService) Analysis(ctx context.Context, kind AnalysisType, timeRange string) (*Analysis, error) {
	result := &Analysis{Type: kind}
	var err error
	switch kind {
	case AnalysisTraffic:
		result.Traffic, err = s.Traffic(ctx, timeRange)
	case AnalysisAnomalies:
		result.Anomalies, err = s.Anomalies(ctx, timeRange)
	case AnalysisTopSources:
		result.Top, err = s.TopSources(ctx, timeRange)
	case AnalysisTopDestinations:
		result.Top, err = s.TopDestinations(ctx, timeRange)
	default:
		return nil, ValidationError(fmt.Sprintf("Unknown analysis type: %s", kind))
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Collect 手动触发日志收集，返回服务端消息
func (s *LogsService) Collect(ctx context.Context) (string, error) {
	env, err := s.client.do(ctx, http.MethodPost, "/api/logs/collect", nil, nil, nil)
	if err != nil {
		return "", err
	}
	return env.message(), nil
}
