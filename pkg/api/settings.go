package api

import (
	"context"
	"net/http"
)

// SettingsService 系统设置接口
type SettingsService struct {
	client *Client
}

// GetRecords 获取设置的原始记录
func (s *SettingsService) GetRecords(ctx context.Context) ([]Setting, error) {
	var records []Setting
	if _, err := s.client.do(ctx, http.MethodGet, "/api/settings", nil, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Get 获取全部设置并转换为键值表
func (s *SettingsService) Get(ctx context.Context) (Settings, error) {
	records, err := s.GetRecords(ctx)
	if err != nil {
		return nil, err
	}
	return SettingsFromPairs(records), nil
}

// Save 以对象形式提交设置，返回服务端更新后的设置项
func (s *SettingsService) Save(ctx context.Context, settings Settings) (Settings, error) {
	if len(settings) == 0 {
		return nil, ValidationError("Invalid settings data")
	}

	var records []Setting
	if _, err := s.client.do(ctx, http.MethodPost, "/api/settings", nil, settings, &records); err != nil {
		return nil, err
	}
	return SettingsFromPairs(records), nil
}
