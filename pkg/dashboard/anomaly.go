package dashboard

import (
	"fmt"
	"strconv"

	"github.com/fwpanel/fwctl/pkg/api"
)

// 阻止规则的优先级，高于默认的100
const blockRulePriority = 50

// AnomalyName 异常类型的显示名称
func AnomalyName(kind string) string {
	switch kind {
	case "rate_limit":
		return "速率超限"
	case "pattern_match":
		return "模式匹配"
	case "port_scan":
		return "端口扫描"
	default:
		return kind
	}
}

// BlockRuleFromAnomaly 根据异常生成丢弃该源地址流量的规则
func BlockRuleFromAnomaly(anomaly api.Anomaly) (api.Rule, error) {
	if anomaly.SourceIP == "" {
		return api.Rule{}, api.ValidationError("无法创建规则：缺少源IP地址")
	}

	rule := api.NewRule()
	rule.RuleType = api.RuleTypeIPTables
	rule.Chain = "INPUT"
	rule.Protocol = "all"
	rule.Source = anomaly.SourceIP
	rule.Destination = "any"
	rule.Port = "any"
	rule.Action = api.ActionDrop
	rule.Comment = fmt.Sprintf("自动创建: 阻止异常流量 (%s)", anomaly.Type)
	rule.Priority = blockRulePriority
	rule.Enabled = true
	return rule, nil
}

// AlertFromAnomaly 根据异常生成告警配置草稿，不会提交到服务端
func AlertFromAnomaly(anomaly api.Anomaly) api.AlertRule {
	alert := api.NewAlertRule()
	name := AnomalyName(anomaly.Type)
	alert.Name = "告警: " + name

	alert.Description = anomaly.Description
	if alert.Description == "" {
		alert.Description = fmt.Sprintf("检测%s类型的异常流量", name)
	}

	switch anomaly.Type {
	case "rate_limit":
		alert.ConditionType = api.ConditionRateLimit
		alert.ConditionValue = "100"
		if anomaly.Threshold > 0 {
			alert.ConditionValue = strconv.Itoa(anomaly.Threshold)
		}
	case "pattern_match":
		alert.ConditionType = api.ConditionPatternMatch
		alert.ConditionValue = anomaly.Pattern
	default:
		alert.ConditionType = api.ConditionAny
		alert.ConditionValue = ""
	}
	return alert
}
