package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
)

// RulesService 防火墙规则接口
type RulesService struct {
	client *Client
}

func rulePath(id int64) string {
	return fmt.Sprintf("/api/rules/%d", id)
}

// List 获取全部规则
func (s *RulesService) List(ctx context.Context) ([]Rule, error) {
	var rules []Rule
	if _, err := s.client.do(ctx, http.MethodGet, "/api/rules", nil, nil, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// Get 获取单条规则
func (s *RulesService) Get(ctx context.Context, id int64) (*Rule, error) {
	var rule Rule
	if _, err := s.client.do(ctx, http.MethodGet, rulePath(id), nil, nil, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// Create 创建规则，返回服务端记录
func (s *RulesService) Create(ctx context.Context, rule Rule) (*Rule, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	rule.ID = 0

	var created Rule
	if _, err := s.client.do(ctx, http.MethodPost, "/api/rules", nil, rule, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Update 整体替换规则
func (s *RulesService) Update(ctx context.Context, id int64, rule Rule) (*Rule, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	rule.ID = id

	var updated Rule
	if _, err := s.client.do(ctx, http.MethodPut, rulePath(id), nil, rule, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Patch 部分更新规则
// 后端只有PUT，先读取当前记录再合并提交
func (s *RulesService) Patch(ctx context.Context, id int64, patch RulePatch) (*Rule, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Update(ctx, id, patch.Apply(*current))
}

// SetEnabled 启用或禁用规则
func (s *RulesService) SetEnabled(ctx context.Context, id int64, enabled bool) (*Rule, error) {
	return s.Patch(ctx, id, RulePatch{Enabled: &enabled})
}

// Delete 删除规则
func (s *RulesService) Delete(ctx context.Context, id int64) error {
	_, err := s.client.do(ctx, http.MethodDelete, rulePath(id), nil, nil, nil)
	return err
}

// Export 导出规则，ruleType为空或 "all" 时导出全部
func (s *RulesService) Export(ctx context.Context, ruleType string) ([]Rule, error) {
	query := url.Values{}
	if ruleType == "" {
		ruleType = "all"
	}
	query.Set("type", ruleType)

	var rules []Rule
	if _, err := s.client.do(ctx, http.MethodGet, "/api/rules/export", query, nil, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// Import 以multipart上传规则文件（JSON数组），返回导入的规则
func (s *RulesService) Import(ctx context.Context, filename string, r io.Reader) ([]Rule, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("创建上传表单失败: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, "", fmt.Errorf("读取规则文件失败: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("创建上传表单失败: %w", err)
	}

	var rules []Rule
	env, err := s.client.send(ctx, &request{
		method:      http.MethodPost,
		path:        "/api/rules/import",
		rawBody:     buf.Bytes(),
		contentType: writer.FormDataContentType(),
	}, &rules)
	if err != nil {
		return nil, "", err
	}
	return rules, env.message(), nil
}

// Sync 从服务器当前防火墙同步规则
func (s *RulesService) Sync(ctx context.Context) ([]Rule, string, error) {
	var rules []Rule
	env, err := s.client.do(ctx, http.MethodPost, "/api/rules/sync", nil, nil, &rules)
	if err != nil {
		return nil, "", err
	}
	return rules, env.message(), nil
}

// Verify 验证规则是否已在防火墙中生效
func (s *RulesService) Verify(ctx context.Context, id int64) (*VerifyResult, error) {
	var result VerifyResult
	if _, err := s.client.do(ctx, http.MethodPost, fmt.Sprintf("/api/status/verify/%d", id), nil, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
