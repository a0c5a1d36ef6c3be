package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{`"2024-05-01T10:00:00"`, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{`"2024-05-01T10:00:00.5"`, time.Date(2024, 5, 1, 10, 0, 0, 500000000, time.UTC)},
		{`"2024-05-01T10:00:00+08:00"`, time.Date(2024, 5, 1, 2, 0, 0, 0, time.UTC)},
		{`"2024-05-01 10:00:00"`, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(tt.in), &ts), tt.in)
		assert.True(t, tt.want.Equal(ts.Time), "%s => %v", tt.in, ts.Time)
	}

	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`null`), &ts))
	assert.True(t, ts.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}

func TestServiceStatusDecode(t *testing.T) {
	data := `{"iptables":{"id":3,"service_name":"iptables","status":true,"last_checked":"2024-05-01T10:00:00"},
	          "nftables":{"status":false,"last_checked":null}}`
	status := ServiceStatus{}
	require.NoError(t, json.Unmarshal([]byte(data), &status))

	assert.True(t, status[ServiceIPTables].Status)
	assert.False(t, status[ServiceNFTables].Status)
	assert.Nil(t, status[ServiceNFTables].LastChecked)
	assert.True(t, status.AnyActive())
}

func TestSettingsFlexibleValues(t *testing.T) {
	var records []Setting
	require.NoError(t, json.Unmarshal([]byte(`[{"key":"a","value":"x"},{"key":"b","value":30},{"key":"c","value":true},{"key":"d","value":null}]`), &records))

	s := SettingsFromPairs(records)
	assert.Equal(t, "x", s["a"])
	assert.Equal(t, "30", s["b"])
	assert.Equal(t, "true", s["c"])
	assert.Equal(t, "", s["d"])

	n, err := s.Int("b")
	require.NoError(t, err)
	assert.Equal(t, 30, n)

	b, err := s.Bool("c")
	require.NoError(t, err)
	assert.True(t, b)

	_, err = s.Int("a")
	assert.Error(t, err)
	_, err = s.Int("missing")
	assert.Error(t, err)
}

func TestRulePatchApply(t *testing.T) {
	rule := NewRule()
	rule.ID = 4
	rule.Comment = "keep"

	enabled := false
	port := "443"
	out := RulePatch{Enabled: &enabled, Port: &port}.Apply(rule)

	assert.False(t, out.Enabled)
	assert.Equal(t, "443", out.Port)
	assert.Equal(t, "keep", out.Comment)
	assert.Equal(t, int64(4), out.ID)
	assert.True(t, rule.Enabled)
}

func TestTemplateRule(t *testing.T) {
	rule := NewRule()
	rule.Port = "80"
	rule.Protocol = "tcp"
	tpl, err := TemplateFromRule("web", "http", rule)
	require.NoError(t, err)

	back, err := tpl.Rule()
	require.NoError(t, err)
	assert.Equal(t, "80", back.Port)
	assert.Equal(t, "tcp", back.Protocol)

	_, err = RuleTemplate{RuleJSON: "{"}.Rule()
	assert.Error(t, err)
}

func TestProfileUpdateValidate(t *testing.T) {
	tests := []struct {
		name   string
		update ProfileUpdate
		ok     bool
	}{
		{"仅重新生成密钥", ProfileUpdate{RegenerateAPIKey: true}, true},
		{"密码一致", ProfileUpdate{Password: "secret1", ConfirmPassword: "secret1"}, true},
		{"密码过短", ProfileUpdate{Password: "abc", ConfirmPassword: "abc"}, false},
		{"确认不一致", ProfileUpdate{Password: "secret1", ConfirmPassword: "secret2"}, false},
		{"无任何修改", ProfileUpdate{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.update.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, IsKind(err, KindValidation))
			}
		})
	}
}

func TestAlertRuleValidate(t *testing.T) {
	alert := NewAlertRule()
	assert.True(t, IsKind(alert.Validate(), KindValidation))

	alert.Name = "too many drops"
	assert.NoError(t, alert.Validate())

	alert.ActionConfig = "{bad"
	assert.True(t, IsKind(alert.Validate(), KindValidation))

	alert.ActionConfig = `{"url":"https://hooks.example.com"}`
	alert.ConditionType = "weird"
	assert.True(t, IsKind(alert.Validate(), KindValidation))
}
