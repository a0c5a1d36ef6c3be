package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// 连接统计支持的时间范围
var connectionTimeRanges = map[string]bool{"1h": true, "6h": true, "24h": true, "7d": true}

// ValidConnectionRange 时间范围是否被连接统计接口支持
func ValidConnectionRange(timeRange string) bool {
	return connectionTimeRanges[timeRange]
}

// StatusService 防火墙状态接口
type StatusService struct {
	client *Client
}

// Get 获取各防火墙服务状态
func (s *StatusService) Get(ctx context.Context) (ServiceStatus, error) {
	status := ServiceStatus{}
	if _, err := s.client.do(ctx, http.MethodGet, "/api/status", nil, nil, &status); err != nil {
		return nil, err
	}
	return status, nil
}

// Connections 获取时间范围内的连接统计，按时间升序
func (s *StatusService) Connections(ctx context.Context, timeRange string) ([]ConnectionStat, error) {
	if timeRange == "" {
		timeRange = "1h"
	}
	if !ValidConnectionRange(timeRange) {
		return nil, ValidationError(fmt.Sprintf("invalid time_range: %s", timeRange))
	}

	var stats []ConnectionStat
	query := url.Values{"time_range": {timeRange}}
	if _, err := s.client.do(ctx, http.MethodGet, "/api/status/connections", query, nil, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// Control 启动、停止或重启防火墙服务
func (s *StatusService) Control(ctx context.Context, service Service, action ServiceAction) (*ControlResult, error) {
	req := ControlRequest{Service: service, Action: action}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	result := &ControlResult{}
	env, err := s.client.do(ctx, http.MethodPost, "/api/status/control", nil, req, &result.Data)
	if err != nil {
		return nil, err
	}
	result.Message = env.message()
	return result, nil
}
