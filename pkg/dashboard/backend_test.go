package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/fwpanel/fwctl/pkg/api"
	"github.com/fwpanel/fwctl/pkg/config"
	"github.com/fwpanel/fwctl/pkg/session"
	"github.com/gorilla/websocket"
)

// fakeBackend 内存中的防火墙管理后端
type fakeBackend struct {
	mu sync.Mutex

	token       string
	iptables    bool
	nftables    bool
	controlFail bool
	expired     bool
	wsReject    bool
	listFail    bool

	rules    map[int64]map[string]interface{}
	nextRule int64
	settings map[string]string
	alerts   []map[string]interface{}

	calls map[string]int
	logQs []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		token:    "jwt",
		iptables: true,
		rules:    map[int64]map[string]interface{}{},
		settings: map[string]string{"monitor_interval": "60"},
		calls:    map[string]int{},
	}
}

func (b *fakeBackend) count(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[key]
}

func reply(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func ok(w http.ResponseWriter, data interface{}) {
	reply(w, http.StatusOK, map[string]interface{}{"success": true, "data": data})
}

var testUpgrader = websocket.Upgrader{}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/ws" {
		b.mu.Lock()
		reject := b.wsReject
		b.mu.Unlock()
		if reject {
			reply(w, http.StatusUnauthorized, map[string]interface{}{"success": false, "message": "Invalid or expired token"})
			return
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	key := r.Method + " " + r.URL.Path
	b.calls[key]++

	if r.URL.Path == "/api/users/login" {
		var creds map[string]string
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds["password"] != "secret" {
			reply(w, http.StatusUnauthorized, map[string]interface{}{"success": false, "message": "Invalid username or password"})
			return
		}
		ok(w, map[string]interface{}{"token": b.token, "user": map[string]interface{}{"id": 1, "username": creds["username"]}})
		return
	}

	if b.expired || r.Header.Get("Authorization") != "Bearer "+b.token {
		reply(w, http.StatusUnauthorized, map[string]interface{}{"success": false, "message": "Invalid or expired token"})
		return
	}

	switch {
	case key == "GET /api/users/profile":
		ok(w, map[string]interface{}{"id": 1, "username": "admin"})
	case key == "PUT /api/users/profile":
		ok(w, map[string]interface{}{"id": 1, "username": "admin"})
	case key == "GET /api/status":
		ok(w, map[string]interface{}{
			"iptables": map[string]interface{}{"status": b.iptables, "last_checked": "2024-05-01T10:00:00"},
			"nftables": map[string]interface{}{"status": b.nftables, "last_checked": nil},
		})
	case key == "POST /api/status/control":
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if b.controlFail {
			reply(w, http.StatusInternalServerError, map[string]interface{}{"success": false, "message": "Failed to " + req["action"] + " iptables: permission denied"})
			return
		}
		b.iptables = req["action"] != "stop"
		reply(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Successfully " + req["action"] + "ed iptables", "data": map[string]interface{}{}})
	case key == "GET /api/status/connections":
		ok(w, []map[string]interface{}{
			{"timestamp": "2024-05-01T10:00:00", "total_connections": 10},
			{"timestamp": "2024-05-01T10:01:00", "total_connections": 11},
		})
	case key == "GET /api/rules":
		if b.listFail {
			reply(w, http.StatusOK, map[string]interface{}{"success": false, "message": "database is locked"})
			return
		}
		list := []map[string]interface{}{}
		for i := int64(1); i <= b.nextRule; i++ {
			if rule, found := b.rules[i]; found {
				list = append(list, rule)
			}
		}
		ok(w, list)
	case key == "POST /api/rules":
		var rule map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&rule)
		b.nextRule++
		rule["id"] = b.nextRule
		b.rules[b.nextRule] = rule
		ok(w, rule)
	case strings.HasPrefix(r.URL.Path, "/api/rules/"):
		id, _ := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/api/rules/"), 10, 64)
		rule, found := b.rules[id]
		if !found {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodPut:
			var body map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&body)
			for k, v := range body {
				if k != "id" {
					rule[k] = v
				}
			}
		case http.MethodDelete:
			delete(b.rules, id)
		}
		ok(w, rule)
	case key == "GET /api/logs":
		b.logQs = append(b.logQs, r.URL.RawQuery)
		reply(w, http.StatusOK, map[string]interface{}{
			"success":    true,
			"data":       []map[string]interface{}{{"id": 1, "source_ip": "1.2.3.4", "action": "DROP"}},
			"pagination": map[string]interface{}{"total": 120, "pages": 3, "current_page": 1, "per_page": 50},
		})
	case key == "POST /api/logs/collect":
		reply(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Successfully collected 3 log entries"})
	case key == "GET /api/logs/alerts":
		ok(w, b.alerts)
	case key == "POST /api/logs/alerts":
		var alert map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&alert)
		alert["id"] = len(b.alerts) + 1
		b.alerts = append(b.alerts, alert)
		ok(w, alert)
	case key == "GET /api/settings":
		list := []map[string]interface{}{}
		for k, v := range b.settings {
			list = append(list, map[string]interface{}{"key": k, "value": v})
		}
		ok(w, list)
	case key == "POST /api/settings":
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		for k, v := range body {
			b.settings[k] = v
		}
		ok(w, []interface{}{})
	case key == "GET /api/settings/backups":
		ok(w, []map[string]interface{}{{"id": 1, "filename": "b.zip", "description": "nightly", "size": 2048, "created_at": "2024-05-01T00:00:00"}})
	case key == "POST /api/settings/backups/1":
		b.settings["monitor_interval"] = "60"
		reply(w, http.StatusOK, map[string]interface{}{"success": true, "message": "System restored successfully", "data": map[string]interface{}{}})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestShell(t *testing.T, backend *fakeBackend) *Shell {
	t.Helper()
	return buildShell(t, newTestConfig(t, backend))
}

// newTestConfig 启动后端并返回指向它的配置
func newTestConfig(t *testing.T, backend *fakeBackend) *config.Config {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.API.BaseURL = srv.URL
	cfg.API.Timeout = 5
	cfg.Session.Path = filepath.Join(t.TempDir(), "token")
	return cfg
}

func buildShell(t *testing.T, cfg *config.Config) *Shell {
	t.Helper()
	client := api.NewClient(cfg.API, api.WithUserAgent("test"))
	store, err := session.NewStore(cfg.Session)
	if err != nil {
		t.Fatal(err)
	}
	shell := NewShell(cfg, client, session.NewManager(store, client.Users))
	t.Cleanup(shell.Close)
	return shell
}
