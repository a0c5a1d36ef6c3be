package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// TemplatesService 规则模板接口
type TemplatesService struct {
	client *Client
}

// List 获取全部模板
func (s *TemplatesService) List(ctx context.Context) ([]RuleTemplate, error) {
	var templates []RuleTemplate
	if _, err := s.client.do(ctx, http.MethodGet, "/api/rules/templates", nil, nil, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

// Get 获取单个模板
func (s *TemplatesService) Get(ctx context.Context, id int64) (*RuleTemplate, error) {
	var tpl RuleTemplate
	if _, err := s.client.do(ctx, http.MethodGet, fmt.Sprintf("/api/rules/templates/%d", id), nil, nil, &tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// Create 创建模板，名称不能重复
func (s *TemplatesService) Create(ctx context.Context, tpl RuleTemplate) (*RuleTemplate, error) {
	if strings.TrimSpace(tpl.Name) == "" || tpl.RuleJSON == "" {
		return nil, ValidationError("Missing required fields: name or rule_json")
	}
	if _, err := tpl.Rule(); err != nil {
		return nil, ValidationError(err.Error())
	}

	var created RuleTemplate
	if _, err := s.client.do(ctx, http.MethodPost, "/api/rules/templates", nil, tpl, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Update 更新模板
func (s *TemplatesService) Update(ctx context.Context, id int64, tpl RuleTemplate) (*RuleTemplate, error) {
	var updated RuleTemplate
	if _, err := s.client.do(ctx, http.MethodPut, fmt.Sprintf("/api/rules/templates/%d", id), nil, tpl, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete 删除模板
func (s *TemplatesService) Delete(ctx context.Context, id int64) error {
	_, err := s.client.do(ctx, http.MethodDelete, fmt.Sprintf("/api/rules/templates/%d", id), nil, nil, nil)
	return err
}

// TemplateFromRule 由现有规则生成模板
func TemplateFromRule(name, description string, rule Rule) (RuleTemplate, error) {
	rule.ID = 0
	rule.CreatedAt = nil
	rule.UpdatedAt = nil
	data, err := jsonString(rule)
	if err != nil {
		return RuleTemplate{}, err
	}
	return RuleTemplate{Name: name, Description: description, RuleJSON: data}, nil
}
