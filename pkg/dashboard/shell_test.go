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

func login(t *testing.T, shell *Shell) {
	t.Helper()
	_, err := shell.Login(context.Background(), "admin", "secret")
	require.NoError(t, err)
}

func TestShellLogin(t *testing.T) {
	backend := newFakeBackend()
	shell := newTestShell(t, backend)

	_, err := shell.Login(context.Background(), "admin", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Invalid username or password", api.ErrorMessage(err))
	assert.False(t, shell.Session().IsAuthenticated)

	login(t, shell)
	assert.True(t, shell.Session().IsAuthenticated)
	assert.Equal(t, "admin", shell.Session().Username)
	assert.True(t, shell.FirewallEnabled())
}

func TestShellRestore(t *testing.T) {
	backend := newFakeBackend()
	cfg := newTestConfig(t, backend)
	login(t, buildShell(t, cfg))

	// 同一令牌存储上的新实例可以恢复会话
	other := buildShell(t, cfg)
	s, ok := other.Start(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "admin", s.Username)
	assert.True(t, other.FirewallEnabled())

	backend.mu.Lock()
	backend.expired = true
	backend.mu.Unlock()

	_, ok = buildShell(t, cfg).Start(context.Background())
	assert.False(t, ok)
}

func TestToggleFirewall(t *testing.T) {
	backend := newFakeBackend()
	shell := newTestShell(t, backend)
	login(t, shell)
	ctx := context.Background()

	enabled, err := shell.ToggleFirewall(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)
	assert.False(t, shell.FirewallEnabled())

	backend.mu.Lock()
	backend.controlFail = true
	backend.mu.Unlock()

	enabled, err = shell.ToggleFirewall(ctx)
	require.Error(t, err)
	assert.Contains(t, api.ErrorMessage(err), "permission denied")
	// 失败后恢复为操作前的值
	assert.False(t, enabled)
	assert.False(t, shell.FirewallEnabled())
}

func TestPasswordChangeForcesRelogin(t *testing.T) {
	backend := newFakeBackend()
	shell := newTestShell(t, backend)
	login(t, shell)

	_, err := shell.UpdateProfile(context.Background(), api.ProfileUpdate{RegenerateAPIKey: true})
	require.NoError(t, err)
	assert.True(t, shell.Session().IsAuthenticated)

	_, err = shell.UpdateProfile(context.Background(), api.ProfileUpdate{Password: "newpass", ConfirmPassword: "newpass"})
	require.NoError(t, err)
	assert.False(t, shell.Session().IsAuthenticated)

	_, err = shell.UpdateProfile(context.Background(), api.ProfileUpdate{Password: "abc", ConfirmPassword: "abc"})
	assert.True(t, api.IsKind(err, api.KindValidation))
}

func TestExpiredTokenLogsOutOnce(t *testing.T) {
	backend := newFakeBackend()
	shell := newTestShell(t, backend)
	login(t, shell)

	var reasons []string
	shell.session.OnLogout(func(r string) { reasons = append(reasons, r) })

	backend.mu.Lock()
	backend.expired = true
	backend.mu.Unlock()

	err := shell.Reload(context.Background())
	require.Error(t, err)
	assert.True(t, api.IsUnauthorized(err))
	assert.False(t, shell.Session().IsAuthenticated)
	assert.Equal(t, []string{"unauthorized"}, reasons)
}

func TestRouteRequiresLogin(t *testing.T) {
	shell := newTestShell(t, newFakeBackend())
	_, err := shell.Route(context.Background(), ViewRules)
	assert.True(t, api.IsUnauthorized(err))

	login(t, shell)
	_, err = shell.Route(context.Background(), "nowhere")
	assert.Error(t, err)
}

func TestRouteSwitchesViews(t *testing.T) {
	backend := newFakeBackend()
	shell := newTestShell(t, backend)
	login(t, shell)
	ctx := context.Background()

	v, err := shell.Route(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, ViewStatus, v.Name())
	assert.Eventually(t, shell.Status.Feed().Connected, 5*time.Second, 10*time.Millisecond)

	v, err = shell.Route(ctx, ViewRules)
	require.NoError(t, err)
	assert.Equal(t, ViewRules, v.Name())
	assert.Equal(t, state.Loaded, shell.Rules.State())
	// 离开状态视图后推送断开
	assert.False(t, shell.Status.Feed().Running())
	assert.Equal(t, shell.Rules, shell.Active())
}

func TestRestoreBackupReloadsEverything(t *testing.T) {
	backend := newFakeBackend()
	shell := newTestShell(t, backend)
	login(t, shell)
	ctx := context.Background()

	require.NoError(t, shell.Settings.Activate(ctx))
	require.Len(t, shell.Settings.Backups(), 1)

	before := backend.count("GET /api/rules")
	msg, err := shell.Settings.RestoreBackup(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "System restored successfully", msg)

	assert.Equal(t, before+1, backend.count("GET /api/rules"))
	assert.GreaterOrEqual(t, backend.count("GET /api/logs"), 1)
	assert.GreaterOrEqual(t, backend.count("GET /api/settings"), 2)
}

func TestFeedRejectionLogsOutWithoutHanging(t *testing.T) {
	backend := newFakeBackend()
	backend.wsReject = true
	shell := newTestShell(t, backend)
	login(t, shell)

	_, err := shell.Route(context.Background(), ViewStatus)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return !shell.Session().IsAuthenticated }, 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return !shell.Status.Feed().Running() }, 2*time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		shell.Status.Deactivate()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("推送被拒绝后停止推送没有返回")
	}
}
