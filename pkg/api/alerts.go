package api

import (
	"context"
	"fmt"
	"net/http"
)

// AlertsService 告警配置接口
type AlertsService struct {
	client *Client
}

func alertPath(id int64) string {
	return fmt.Sprintf("/api/logs/alerts/%d", id)
}

// List 获取全部告警配置
func (s *AlertsService) List(ctx context.Context) ([]AlertRule, error) {
	var alerts []AlertRule
	if _, err := s.client.do(ctx, http.MethodGet, "/api/logs/alerts", nil, nil, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// Get 获取单个告警配置
func (s *AlertsService) Get(ctx context.Context, id int64) (*AlertRule, error) {
	var alert AlertRule
	if _, err := s.client.do(ctx, http.MethodGet, alertPath(id), nil, nil, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

// Create 创建告警配置
func (s *AlertsService) Create(ctx context.Context, alert AlertRule) (*AlertRule, error) {
	if alert.ActionConfig == "" {
		alert.ActionConfig = "{}"
	}
	if err := alert.Validate(); err != nil {
		return nil, err
	}
	alert.ID = 0

	var created AlertRule
	if _, err := s.client.do(ctx, http.MethodPost, "/api/logs/alerts", nil, alert, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Update 整体替换告警配置
func (s *AlertsService) Update(ctx context.Context, id int64, alert AlertRule) (*AlertRule, error) {
	if err := alert.Validate(); err != nil {
		return nil, err
	}
	alert.ID = id

	var updated AlertRule
	if _, err := s.client.do(ctx, http.MethodPut, alertPath(id), nil, alert, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Patch 部分更新告警配置
func (s *AlertsService) Patch(ctx context.Context, id int64, patch AlertPatch) (*AlertRule, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Update(ctx, id, patch.Apply(*current))
}

// SetEnabled 启用或禁用告警
func (s *AlertsService) SetEnabled(ctx context.Context, id int64, enabled bool) (*AlertRule, error) {
	return s.Patch(ctx, id, AlertPatch{Enabled: &enabled})
}

// Delete 删除告警配置
func (s *AlertsService) Delete(ctx context.Context, id int64) error {
	_, err := s.client.do(ctx, http.MethodDelete, alertPath(id), nil, nil, nil)
	return err
}
