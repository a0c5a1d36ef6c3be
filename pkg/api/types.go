package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// envelope 后端统一响应结构
type envelope struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Pagination *Pagination     `json:"pagination,omitempty"`
}

// Timestamp 兼容后端isoformat输出（可能不带时区）的时间类型
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp 按后端支持的格式解析时间，无时区信息时按UTC处理
func ParseTimestamp(s string) (Timestamp, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("无法解析时间: %q", s)
}

// UnmarshalJSON 实现json.Unmarshaler
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*t = Timestamp{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalJSON 实现json.Marshaler
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format("2006-01-02T15:04:05.999999"))
}

// --- 用户 ---

// User 当前用户信息
type User struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	APIKey    string     `json:"api_key,omitempty"`
	LastLogin *Timestamp `json:"last_login,omitempty"`
	CreatedAt *Timestamp `json:"created_at,omitempty"`
}

// Credentials 登录凭据
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult 登录结果
type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// ProfileUpdate 个人设置更新请求
type ProfileUpdate struct {
	Password         string `json:"password,omitempty"`
	ConfirmPassword  string `json:"-"`
	RegenerateAPIKey bool   `json:"regenerate_api_key"`
}

// ChangesPassword 是否包含密码修改（修改后需要重新登录）
func (p ProfileUpdate) ChangesPassword() bool {
	return p.Password != ""
}

// --- 规则 ---

// RuleType 防火墙后端类型
type RuleType string

const (
	RuleTypeIPTables RuleType = "iptables"
	RuleTypeNFTables RuleType = "nftables"
)

// RuleAction 规则动作
type RuleAction string

const (
	ActionAccept RuleAction = "ACCEPT"
	ActionDrop   RuleAction = "DROP"
	ActionReject RuleAction = "REJECT"
	ActionLog    RuleAction = "LOG"
)

// Rule 防火墙规则，ID由服务端分配
type Rule struct {
	ID          int64      `json:"id,omitempty"`
	RuleType    RuleType   `json:"rule_type"`
	Chain       string     `json:"chain"`
	Protocol    string     `json:"protocol"`
	Source      string     `json:"source"`
	Destination string     `json:"destination"`
	Port        string     `json:"port"`
	Action      RuleAction `json:"action"`
	Comment     string     `json:"comment"`
	Priority    int        `json:"priority"`
	Enabled     bool       `json:"enabled"`
	CreatedAt   *Timestamp `json:"created_at,omitempty"`
	UpdatedAt   *Timestamp `json:"updated_at,omitempty"`
}

// NewRule 返回带有默认值的新规则
func NewRule() Rule {
	return Rule{
		RuleType:    RuleTypeIPTables,
		Chain:       "INPUT",
		Protocol:    "all",
		Source:      "any",
		Destination: "any",
		Port:        "any",
		Action:      ActionAccept,
		Priority:    100,
		Enabled:     true,
	}
}

// RulePatch 规则的部分更新，nil字段保持不变
type RulePatch struct {
	RuleType    *RuleType
	Chain       *string
	Protocol    *string
	Source      *string
	Destination *string
	Port        *string
	Action      *RuleAction
	Comment     *string
	Priority    *int
	Enabled     *bool
}

// Apply 将补丁应用到规则副本上
func (p RulePatch) Apply(r Rule) Rule {
	if p.RuleType != nil {
		r.RuleType = *p.RuleType
	}
	if p.Chain != nil {
		r.Chain = *p.Chain
	}
	if p.Protocol != nil {
		r.Protocol = *p.Protocol
	}
	if p.Source != nil {
		r.Source = *p.Source
	}
	if p.Destination != nil {
		r.Destination = *p.Destination
	}
	if p.Port != nil {
		r.Port = *p.Port
	}
	if p.Action != nil {
		r.Action = *p.Action
	}
	if p.Comment != nil {
		r.Comment = *p.Comment
	}
	if p.Priority != nil {
		r.Priority = *p.Priority
	}
	if p.Enabled != nil {
		r.Enabled = *p.Enabled
	}
	return r
}

// VerifyResult 规则生效验证结果
type VerifyResult struct {
	RuleID    int64  `json:"rule_id"`
	Effective bool   `json:"effective"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
}

// RuleTemplate 规则模板
type RuleTemplate struct {
	ID          int64      `json:"id,omitempty"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	RuleJSON    string     `json:"rule_json"`
	CreatedAt   *Timestamp `json:"created_at,omitempty"`
}

// Rule 解析模板中的规则内容
func (t RuleTemplate) Rule() (Rule, error) {
	rule := NewRule()
	if err := json.Unmarshal([]byte(t.RuleJSON), &rule); err != nil {
		return Rule{}, fmt.Errorf("解析模板规则失败: %w", err)
	}
	rule.ID = 0
	rule.CreatedAt = nil
	rule.UpdatedAt = nil
	return rule, nil
}

// --- 状态 ---

// Service 防火墙服务名称
type Service string

const (
	ServiceIPTables Service = "iptables"
	ServiceNFTables Service = "nftables"
)

// ServiceAction 服务控制动作
type ServiceAction string

const (
	ServiceStart   ServiceAction = "start"
	ServiceStop    ServiceAction = "stop"
	ServiceRestart ServiceAction = "restart"
)

// ServiceState 单个服务的状态
type ServiceState struct {
	Status      bool       `json:"status"`
	LastChecked *Timestamp `json:"last_checked"`
}

// ServiceStatus 各服务状态快照
type ServiceStatus map[Service]ServiceState

// AnyActive 任一服务处于运行状态
func (s ServiceStatus) AnyActive() bool {
	for _, st := range s {
		if st.Status {
			return true
		}
	}
	return false
}

// ControlRequest 服务控制请求
type ControlRequest struct {
	Service Service       `json:"service"`
	Action  ServiceAction `json:"action"`
}

// ControlResult 服务控制结果
type ControlResult struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ConnectionStat 连接统计
type ConnectionStat struct {
	ID               int64     `json:"id,omitempty"`
	Timestamp        Timestamp `json:"timestamp"`
	TotalConnections int       `json:"total_connections"`
	Established      int       `json:"established"`
	TimeWait         int       `json:"time_wait"`
	CloseWait        int       `json:"close_wait"`
	SynSent          int       `json:"syn_sent"`
	UDPConnections   int       `json:"udp_connections"`
}

// --- 日志 ---

// LogEntry 防火墙日志（只读）
type LogEntry struct {
	ID            int64      `json:"id"`
	Timestamp     *Timestamp `json:"timestamp"`
	SourceIP      string     `json:"source_ip"`
	DestinationIP string     `json:"destination_ip"`
	Protocol      string     `json:"protocol"`
	Action        string     `json:"action"`
	Chain         string     `json:"chain"`
	Interface     string     `json:"interface"`
	RawLog        string     `json:"raw_log"`
	ProcessedAt   *Timestamp `json:"processed_at,omitempty"`
}

// LogFilter 日志筛选条件，服务端过滤
type LogFilter struct {
	SourceIP      string
	DestinationIP string
	Action        string
	Protocol      string
	StartDate     string
	EndDate       string
}

// IsZero 是否没有任何筛选条件
func (f LogFilter) IsZero() bool {
	return f == LogFilter{}
}

// LogQuery 日志分页查询
type LogQuery struct {
	Page    int
	PerPage int
	Filter  LogFilter
}

// Pagination 分页信息
type Pagination struct {
	Total       int `json:"total"`
	Pages       int `json:"pages"`
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
}

// LogPage 单页日志
type LogPage struct {
	Entries    []LogEntry
	Pagination Pagination
}

// AnalysisType 日志分析类型
type AnalysisType string

const (
	AnalysisTraffic         AnalysisType = "traffic"
	AnalysisAnomalies       AnalysisType = "anomalies"
	AnalysisTopSources      AnalysisType = "top_sources"
	AnalysisTopDestinations AnalysisType = "top_destinations"
)

// TrafficAnalysis 流量模式分析结果
type TrafficAnalysis struct {
	ProtocolStats    map[string]int `json:"protocol_stats"`
	SourceStats      map[string]int `json:"source_stats"`
	DestinationStats map[string]int `json:"destination_stats"`
	TimeStats        map[string]int `json:"time_stats"`
}

// Anomaly 异常检测结果
type Anomaly struct {
	Type        string `json:"type"`
	SourceIP    string `json:"source_ip,omitempty"`
	Count       int    `json:"count,omitempty"`
	Threshold   int    `json:"threshold,omitempty"`
	Pattern     string `json:"pattern,omitempty"`
	PortCount   int    `json:"port_count,omitempty"`
	Description string `json:"description"`
	Sample      string `json:"sample,omitempty"`
}

// TopEntry 排行统计项
type TopEntry struct {
	SourceIP      string `json:"source_ip,omitempty"`
	DestinationIP string `json:"destination_ip,omitempty"`
	Count         int    `json:"count"`
}

// Address 返回排行项对应的地址
func (e TopEntry) Address() string {
	if e.SourceIP != "" {
		return e.SourceIP
	}
	return e.DestinationIP
}

// --- 告警 ---

// ConditionType 告警条件类型
type ConditionType string

const (
	ConditionRateLimit    ConditionType = "rate_limit"
	ConditionPatternMatch ConditionType = "pattern_match"
	ConditionAny          ConditionType = "any"
)

// AlertAction 告警动作
type AlertAction string

const (
	AlertLog     AlertAction = "log"
	AlertEmail   AlertAction = "email"
	AlertWebhook AlertAction = "webhook"
)

// AlertRule 告警配置，ActionConfig为JSON编码字符串
type AlertRule struct {
	ID             int64         `json:"id,omitempty"`
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	ConditionType  ConditionType `json:"condition_type"`
	ConditionValue string        `json:"condition_value"`
	Action         AlertAction   `json:"action"`
	ActionConfig   string        `json:"action_config"`
	Enabled        bool          `json:"enabled"`
	CreatedAt      *Timestamp    `json:"created_at,omitempty"`
	UpdatedAt      *Timestamp    `json:"updated_at,omitempty"`
}

// NewAlertRule 返回带有默认值的告警配置
func NewAlertRule() AlertRule {
	return AlertRule{
		ConditionType:  ConditionRateLimit,
		ConditionValue: "100",
		Action:         AlertLog,
		ActionConfig:   "{}",
		Enabled:        true,
	}
}

// AlertPatch 告警配置的部分更新
type AlertPatch struct {
	Name           *string
	Description    *string
	ConditionType  *ConditionType
	ConditionValue *string
	Action         *AlertAction
	ActionConfig   *string
	Enabled        *bool
}

// Apply 将补丁应用到告警配置副本上
func (p AlertPatch) Apply(a AlertRule) AlertRule {
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.Description != nil {
		a.Description = *p.Description
	}
	if p.ConditionType != nil {
		a.ConditionType = *p.ConditionType
	}
	if p.ConditionValue != nil {
		a.ConditionValue = *p.ConditionValue
	}
	if p.Action != nil {
		a.Action = *p.Action
	}
	if p.ActionConfig != nil {
		a.ActionConfig = *p.ActionConfig
	}
	if p.Enabled != nil {
		a.Enabled = *p.Enabled
	}
	return a
}

// --- 设置与备份 ---

// Setting 单个系统设置（读取时的线上格式）
type Setting struct {
	ID          int64      `json:"id,omitempty"`
	Key         string     `json:"key"`
	Value       FlexString `json:"value"`
	Description string     `json:"description,omitempty"`
	UpdatedAt   *Timestamp `json:"updated_at,omitempty"`
}

// FlexString 接受字符串、数字或布尔值的JSON字段，统一保存为字符串
type FlexString string

// UnmarshalJSON 实现json.Unmarshaler
func (f *FlexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(bytes.TrimSpace(data))
	return nil
}

// Settings 扁平的设置键值表
// 读取时服务端返回 [{key, value}] 数组，写入时发送 {key: value} 对象
type Settings map[string]string

// SettingsFromPairs 将数组格式转换为键值表，重复键以后者为准
func SettingsFromPairs(pairs []Setting) Settings {
	s := make(Settings, len(pairs))
	for _, p := range pairs {
		s[p.Key] = string(p.Value)
	}
	return s
}

// Set 设置任意标量值，统一以字符串保存
func (s Settings) Set(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s[key] = v
	case bool:
		s[key] = strconv.FormatBool(v)
	case int:
		s[key] = strconv.Itoa(v)
	case int64:
		s[key] = strconv.FormatInt(v, 10)
	case float64:
		s[key] = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		s[key] = fmt.Sprint(v)
	}
}

// Int 以整数读取设置值
func (s Settings) Int(key string) (int, error) {
	v, ok := s[key]
	if !ok {
		return 0, fmt.Errorf("设置项 %s 不存在", key)
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("设置项 %s 不是整数: %q", key, v)
	}
	return n, nil
}

// Bool 以布尔值读取设置值
func (s Settings) Bool(key string) (bool, error) {
	v, ok := s[key]
	if !ok {
		return false, fmt.Errorf("设置项 %s 不存在", key)
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("设置项 %s 不是布尔值: %q", key, v)
	}
	return b, nil
}

// Clone 复制设置表
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Backup 备份快照记录，不可编辑
type Backup struct {
	ID          int64      `json:"id"`
	Filename    string     `json:"filename,omitempty"`
	Description string     `json:"description"`
	Size        int64      `json:"size"`
	CreatedAt   *Timestamp `json:"created_at"`
}

func jsonString(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
