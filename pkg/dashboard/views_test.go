package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/fwpanel/fwctl/pkg/api"
	"github.com/fwpanel/fwctl/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRulesViewLifecycle(t *testing.T) {
	backend := newFakeBackend()
	shell := newTestShell(t, backend)
	login(t, shell)
	ctx := context.Background()

	require.NoError(t, shell.Rules.Activate(ctx))
	assert.Empty(t, shell.Rules.Rules())
	assert.Equal(t, state.Loaded, shell.Rules.State())

	rule := api.NewRule()
	rule.Port = "22"
	created, err := shell.Rules.Create(ctx, rule)
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)
	require.Len(t, shell.Rules.Rules(), 1)

	enabled, err := shell.Rules.Toggle(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, enabled)
	assert.False(t, shell.Rules.Rules()[0].Enabled)
	assert.Equal(t, "22", shell.Rules.Rules()[0].Port)

	require.NoError(t, shell.Rules.Delete(ctx, created.ID))
	assert.Empty(t, shell.Rules.Rules())

	err = shell.Rules.Delete(ctx, 42)
	assert.True(t, api.IsNotFound(err))
}

func TestRulesViewCreateKeepsRecordWhenReloadFails(t *testing.T) {
	backend := newFakeBackend()
	shell := newTestShell(t, backend)
	login(t, shell)
	ctx := context.Background()
	require.NoError(t, shell.Rules.Activate(ctx))

	backend.mu.Lock()
	backend.listFail = true
	backend.mu.Unlock()

	rule := api.NewRule()
	rule.Port = "443"
	created, err := shell.Rules.Create(ctx, rule)
	require.Error(t, err)
	assert.True(t, state.Applied(err))
	require.NotNil(t, created)
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, state.Failed, shell.Rules.State())

	enabled, err := shell.Rules.Toggle(ctx, created.ID)
	assert.True(t, state.Applied(err))
	assert.False(t, enabled)
	backend.mu.Lock()
	assert.Equal(t, false, backend.rules[1]["enabled"])
	backend.mu.Unlock()
}

func TestRulesViewRejectsInvalidRule(t *testing.T) {
	backend := newFakeBackend()
	shell := newTestShell(t, backend)
	login(t, shell)

	rule := api.NewRule()
	rule.Action = "ALLOW"
	_, err := shell.Rules.Create(context.Background(), rule)
	assert.True(t, api.IsKind(err, api.KindValidation))
	assert.Equal(t, 0, backend.count("POST /api/rules"))
}

func TestBlockSource(t *testing.T) {
	backend := newFakeBackend()
	shell := newTestShell(t, backend)
	login(t, shell)
	ctx := context.Background()

	created, err := shell.Rules.BlockSource(ctx, api.Anomaly{Type: "port_scan", SourceIP: "203.0.113.9"})
	require.NoError(t, err)
	assert.Equal(t, api.ActionDrop, created.Action)
	assert.Equal(t, 50, created.Priority)
	assert.Equal(t, "203.0.113.9", created.Source)

	_, err = shell.Rules.BlockSource(ctx, api.Anomaly{Type: "rate_limit"})
	assert.Error(t, err)
	assert.Equal(t, 1, backend.count("POST /api/rules"))
}

func TestStatusViewUpdates(t *testing.T) {
	backend := newFakeBackend()
	shell := newTestShell(t, backend)
	login(t, shell)
	ctx := context.Background()

	require.NoError(t, shell.Status.Refresh(ctx))
	assert.Equal(t, state.Loaded, shell.Status.State())
	assert.Equal(t, 2, shell.Status.History().Len())

	latest, ok := shell.Status.Latest()
	require.True(t, ok)
	assert.Equal(t, 11, latest.TotalConnections)

	// 推送只包含部分服务时保留其余服务的状态
	shell.Status.OnStatusUpdate(api.ServiceStatus{api.ServiceIPTables: {Status: false}})
	status := shell.Status.Status()
	assert.False(t, status[api.ServiceIPTables].Status)
	_, known := status[api.ServiceNFTables]
	assert.True(t, known)

	ts := api.Timestamp{Time: time.Date(2024, 5, 1, 10, 2, 0, 0, time.UTC)}
	shell.Status.OnConnectionUpdate(api.ConnectionStat{Timestamp: ts, TotalConnections: 12})
	assert.Equal(t, 3, shell.Status.History().Len())
	latest, _ = shell.Status.Latest()
	assert.Equal(t, 12, latest.TotalConnections)
}

func TestStatusViewTimeRange(t *testing.T) {
	shell := newTestShell(t, newFakeBackend())
	login(t, shell)
	ctx := context.Background()

	require.NoError(t, shell.Status.SetTimeRange(ctx, "24h"))
	assert.Equal(t, "24h", shell.Status.TimeRange())

	err := shell.Status.SetTimeRange(ctx, "2w")
	assert.True(t, api.IsKind(err, api.KindValidation))
	assert.Equal(t, "24h", shell.Status.TimeRange())
}

func TestLogsViewFilterResetsPage(t *testing.T) {
	backend := newFakeBackend()
	shell := newTestShell(t, backend)
	login(t, shell)
	ctx := context.Background()

	require.NoError(t, shell.Logs.Activate(ctx))
	page := shell.Logs.Page()
	assert.Len(t, page.Entries, 1)
	assert.Equal(t, 3, page.Pagination.Pages)

	require.NoError(t, shell.Logs.GoToPage(ctx, 3))
	assert.Equal(t, 3, shell.Logs.Query().Page)

	require.NoError(t, shell.Logs.SetFilter(ctx, api.LogFilter{SourceIP: "10.0.0.1"}))
	assert.Equal(t, 1, shell.Logs.Query().Page)

	backend.mu.Lock()
	last := backend.logQs[len(backend.logQs)-1]
	backend.mu.Unlock()
	assert.Contains(t, last, "page=1")
	assert.Contains(t, last, "source_ip=10.0.0.1")

	require.NoError(t, shell.Logs.ResetFilter(ctx))
	assert.True(t, shell.Logs.Query().Filter.IsZero())
}

func TestLogsViewCollectRefetches(t *testing.T) {
	backend := newFakeBackend()
	shell := newTestShell(t, backend)
	login(t, shell)
	ctx := context.Background()

	before := backend.count("GET /api/logs")
	msg, err := shell.Logs.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Successfully collected 3 log entries", msg)
	assert.Equal(t, before+1, backend.count("GET /api/logs"))
}

func TestLogsViewAlerts(t *testing.T) {
	backend := newFakeBackend()
	shell := newTestShell(t, backend)
	login(t, shell)
	ctx := context.Background()

	draft := shell.Logs.AlertFromAnomaly(api.Anomaly{Type: "rate_limit", Threshold: 250})
	created, err := shell.Logs.CreateAlert(ctx, draft)
	require.NoError(t, err)
	assert.Equal(t, "250", created.ConditionValue)
	require.Len(t, shell.Logs.Alerts(), 1)

	_, err = shell.Logs.CreateAlert(ctx, api.NewAlertRule())
	assert.True(t, api.IsKind(err, api.KindValidation))
}

func TestSettingsViewSave(t *testing.T) {
	backend := newFakeBackend()
	shell := newTestShell(t, backend)
	login(t, shell)
	ctx := context.Background()

	require.NoError(t, shell.Settings.Activate(ctx))
	assert.Equal(t, "60", shell.Settings.Settings()["monitor_interval"])

	settings := shell.Settings.Settings()
	settings.Set("monitor_interval", 30)
	require.NoError(t, shell.Settings.Save(ctx, settings))
	interval, err := shell.Settings.Settings().Int("monitor_interval")
	require.NoError(t, err)
	assert.Equal(t, 30, interval)
}
