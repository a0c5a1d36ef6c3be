package api

import (
	"encoding/json"
	"fmt"
	"strings"
)

var (
	validRuleTypes = map[RuleType]bool{RuleTypeIPTables: true, RuleTypeNFTables: true}
	validActions   = map[RuleAction]bool{ActionAccept: true, ActionDrop: true, ActionReject: true, ActionLog: true}

	validConditions   = map[ConditionType]bool{ConditionRateLimit: true, ConditionPatternMatch: true, ConditionAny: true}
	validAlertActions = map[AlertAction]bool{AlertLog: true, AlertEmail: true, AlertWebhook: true}

	validServices       = map[Service]bool{ServiceIPTables: true, ServiceNFTables: true}
	validServiceActions = map[ServiceAction]bool{ServiceStart: true, ServiceStop: true, ServiceRestart: true}
)

// Validate 校验规则必填字段和枚举值
func (r Rule) Validate() error {
	if !validRuleTypes[r.RuleType] {
		return ValidationError(fmt.Sprintf("invalid rule_type: %q", r.RuleType))
	}
	if strings.TrimSpace(r.Chain) == "" {
		return ValidationError("chain is required")
	}
	if r.Action == "" {
		return ValidationError("action is required")
	}
	if !validActions[r.Action] {
		return ValidationError(fmt.Sprintf("invalid action: %q", r.Action))
	}
	if r.Priority < 0 {
		return ValidationError("priority must not be negative")
	}
	return nil
}

// Validate 校验告警配置
func (a AlertRule) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ValidationError("name is required")
	}
	if !validConditions[a.ConditionType] {
		return ValidationError(fmt.Sprintf("invalid condition_type: %q", a.ConditionType))
	}
	if a.ConditionType != ConditionAny && strings.TrimSpace(a.ConditionValue) == "" {
		return ValidationError("condition_value is required")
	}
	if !validAlertActions[a.Action] {
		return ValidationError(fmt.Sprintf("invalid action: %q", a.Action))
	}
	if a.ActionConfig != "" && !json.Valid([]byte(a.ActionConfig)) {
		return ValidationError("action_config must be valid JSON")
	}
	return nil
}

// Validate 校验个人设置更新
func (p ProfileUpdate) Validate() error {
	if p.Password == "" {
		if p.ConfirmPassword != "" {
			return ValidationError("passwords do not match")
		}
		if !p.RegenerateAPIKey {
			return ValidationError("nothing to update")
		}
		return nil
	}
	if len(p.Password) < minPasswordLength {
		return ValidationError(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if p.Password != p.ConfirmPassword {
		return ValidationError("passwords do not match")
	}
	return nil
}

// Validate 校验服务控制请求
func (r ControlRequest) Validate() error {
	if !validServices[r.Service] {
		return ValidationError(fmt.Sprintf("Invalid service: %s", r.Service))
	}
	if !validServiceActions[r.Action] {
		return ValidationError(fmt.Sprintf("Invalid action: %s", r.Action))
	}
	return nil
}
