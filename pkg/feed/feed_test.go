package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fwpanel/fwctl/pkg/api"
	"github.com/fwpanel/fwctl/pkg/config"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	status chan api.ServiceStatus
	conns  chan api.ConnectionStat
}

func newRecorder() *recorder {
	return &recorder{
		status: make(chan api.ServiceStatus, 10),
		conns:  make(chan api.ConnectionStat, 10),
	}
}

func (r *recorder) OnStatusUpdate(s api.ServiceStatus) {
	select {
	case r.status <- s:
	default:
	}
}

func (r *recorder) OnConnectionUpdate(c api.ConnectionStat) {
	select {
	case r.conns <- c:
	default:
	}
}

var upgrader = websocket.Upgrader{}

func fastBackOff() backoff.BackOff {
	return backoff.NewConstantBackOff(10 * time.Millisecond)
}

func newTestFeed(srv *httptest.Server, handler Handler, token string) *Feed {
	apiCfg := config.APIConfig{BaseURL: srv.URL, Timeout: 5}
	feedCfg := config.FeedConfig{Path: "/api/ws", ReadTimeout: 5}
	return New(apiCfg, feedCfg, api.TokenFunc(func() string { return token }), handler, WithBackOff(fastBackOff))
}

func TestFeedReceivesEvents(t *testing.T) {
	auth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ws", r.URL.Path)
		select {
		case auth <- r.Header.Get("Authorization"):
		default:
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"event":"status_update","data":{"iptables":{"status":true,"last_checked":"2024-05-01T10:00:00"}}}`))

		bin, err := EncodeFrame(EventConnectionUpdate, map[string]interface{}{
			"timestamp":         "2024-05-01T10:00:05",
			"total_connections": 12,
			"established":       7,
		})
		if err == nil {
			_ = conn.WriteMessage(websocket.BinaryMessage, bin)
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"something_else","data":{}}`))

		// 保持连接直到客户端关闭
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	rec := newRecorder()
	f := newTestFeed(srv, rec, "jwt")
	require.NoError(t, f.Start(context.Background()))
	defer f.Stop()

	select {
	case s := <-rec.status:
		assert.True(t, s[api.ServiceIPTables].Status)
		_, hasNft := s[api.ServiceNFTables]
		assert.False(t, hasNft)
	case <-time.After(5 * time.Second):
		t.Fatal("未收到status_update")
	}

	select {
	case c := <-rec.conns:
		assert.Equal(t, 12, c.TotalConnections)
		assert.Equal(t, 7, c.Established)
		assert.Equal(t, 5, c.Timestamp.Second())
	case <-time.After(5 * time.Second):
		t.Fatal("未收到connection_update")
	}

	assert.True(t, f.Connected())
	assert.Equal(t, "Bearer jwt", <-auth)
	assert.ErrorIs(t, f.Start(context.Background()), ErrRunning)
}

func TestFeedReconnects(t *testing.T) {
	var conns int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := atomic.AddInt32(&conns, 1)
		if n == 1 {
			// 第一次连接立即断开
			conn.Close()
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"event":"status_update","data":{"nftables":{"status":false}}}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	rec := newRecorder()
	f := newTestFeed(srv, rec, "jwt")
	require.NoError(t, f.Start(context.Background()))
	defer f.Stop()

	select {
	case s := <-rec.status:
		assert.False(t, s[api.ServiceNFTables].Status)
	case <-time.After(5 * time.Second):
		t.Fatal("重连后未收到消息")
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&conns), int32(2))
}

func TestFeedUnauthorizedStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	f := newTestFeed(srv, newRecorder(), "expired")
	called := make(chan struct{})
	var once sync.Once
	f.OnUnauthorized(func() { once.Do(func() { close(called) }) })

	require.NoError(t, f.Start(context.Background()))

	select {
	case <-called:
	case <-time.After(5 * time.Second):
		t.Fatal("未触发401回调")
	}

	assert.Eventually(t, func() bool { return !f.Running() }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, f.Connected())
	f.Stop()
}

func TestFeedUnauthorizedHookCanStop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	f := newTestFeed(srv, newRecorder(), "expired")
	stopped := make(chan struct{})
	f.OnUnauthorized(func() {
		// 会话失效的监听者会在回调中停止推送
		f.Stop()
		close(stopped)
	})

	require.NoError(t, f.Start(context.Background()))

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("回调中的Stop没有返回")
	}
	assert.False(t, f.Running())
	f.Stop()
}

func TestFeedStopIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	f := newTestFeed(srv, newRecorder(), "jwt")
	require.NoError(t, f.Start(context.Background()))
	assert.Eventually(t, f.Connected, 5*time.Second, 10*time.Millisecond)

	f.Stop()
	f.Stop()
	assert.False(t, f.Connected())
	assert.False(t, f.Running())

	// 停止后可以重新启动
	require.NoError(t, f.Start(context.Background()))
	f.Stop()
}

func TestDecodeFrame(t *testing.T) {
	_, err := DecodeFrame(websocket.TextMessage, []byte(`not json`))
	assert.Error(t, err)

	_, err = DecodeFrame(websocket.TextMessage, []byte(`{"data":{}}`))
	assert.Error(t, err)

	_, err = DecodeFrame(websocket.BinaryMessage, []byte{0xff, 0xff})
	assert.Error(t, err)

	bin, err := EncodeFrame(EventStatusUpdate, map[string]interface{}{"iptables": map[string]interface{}{"status": true}})
	require.NoError(t, err)
	frame, err := DecodeFrame(websocket.BinaryMessage, bin)
	require.NoError(t, err)
	assert.Equal(t, EventStatusUpdate, frame.Event)

	status, err := frame.StatusUpdate()
	require.NoError(t, err)
	assert.True(t, status[api.ServiceIPTables].Status)
}

func TestBuildURL(t *testing.T) {
	f := New(config.APIConfig{BaseURL: "https://fw.example.com:8443"}, config.FeedConfig{Path: "/api/ws"}, api.TokenFunc(func() string { return "" }), newRecorder())
	u, err := f.buildURL()
	require.NoError(t, err)
	assert.Equal(t, "wss://fw.example.com:8443/api/ws", u)
}
