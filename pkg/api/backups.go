package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// BackupsService 系统备份接口
type BackupsService struct {
	client *Client
}

func backupPath(id int64) string {
	return fmt.Sprintf("/api/settings/backups/%d", id)
}

// List 获取全部备份，按创建时间倒序
func (s *BackupsService) List(ctx context.Context) ([]Backup, error) {
	var backups []Backup
	if _, err := s.client.do(ctx, http.MethodGet, "/api/settings/backups", nil, nil, &backups); err != nil {
		return nil, err
	}
	return backups, nil
}

// Create 创建备份，描述为空时由服务端生成
func (s *BackupsService) Create(ctx context.Context, description string) (*Backup, error) {
	body := map[string]string{}
	if description != "" {
		body["description"] = description
	}

	var backup Backup
	if _, err := s.client.do(ctx, http.MethodPost, "/api/settings/backups", nil, body, &backup); err != nil {
		return nil, err
	}
	return &backup, nil
}

// Restore 从备份恢复系统，恢复后所有本地数据都应重新加载
func (s *BackupsService) Restore(ctx context.Context, id int64) (string, json.RawMessage, error) {
	var result json.RawMessage
	env, err := s.client.do(ctx, http.MethodPost, backupPath(id), nil, nil, &result)
	if err != nil {
		return "", nil, err
	}
	return env.message(), result, nil
}

// Delete 删除备份
func (s *BackupsService) Delete(ctx context.Context, id int64) error {
	_, err := s.client.do(ctx, http.MethodDelete, backupPath(id), nil, nil, nil)
	return err
}
