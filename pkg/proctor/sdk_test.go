package proctor

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	gorillaws "github.com/gorilla/websocket"
	"github.com/lk2023060901/xdooria-proctor/pkg/logger"
	"github.com/lk2023060901/xdooria-proctor/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const waitTimeout = 2 * time.Second

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

type testSDK struct {
	*SDK
	logs *observer.ObservedLogs
	reg  *prometheus.Registry
	url  string
}

func startSDK(t *testing.T) *testSDK {
	t.Helper()
	cfg, err := NewConfig(freePort(t), WithHost("127.0.0.1"))
	require.NoError(t, err)

	core, logs := observer.New(zap.DebugLevel)
	reg := prometheus.NewRegistry()
	sdk, err := New(cfg, WithLogger(logger.NewWithCore(core)), WithMetricsRegisterer(reg))
	require.NoError(t, err)
	require.NoError(t, sdk.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		_ = sdk.GracefulStop(ctx)
	})

	return &testSDK{SDK: sdk, logs: logs, reg: reg, url: "ws://" + sdk.Addr().String()}
}

type sessionRecorder struct {
	mu          sync.Mutex
	events      []session.Event
	violations  []session.Event
	disconnects int
	done        chan struct{}
}

func (r *sessionRecorder) attach(s *session.Session) {
	r.done = make(chan struct{})
	s.OnEvent(func(ev session.Event) {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
	})
	s.OnViolation(func(ev session.Event) {
		r.mu.Lock()
		r.violations = append(r.violations, ev)
		r.mu.Unlock()
	})
	s.OnDisconnect(func() {
		r.mu.Lock()
		r.disconnects++
		r.mu.Unlock()
		close(r.done)
	})
}

func (r *sessionRecorder) counts() (events, violations int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events), len(r.violations)
}

func dial(t *testing.T, url string) *gorillaws.Conn {
	t.Helper()
	c, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sendText(t *testing.T, c *gorillaws.Conn, s string) {
	t.Helper()
	require.NoError(t, c.WriteMessage(gorillaws.TextMessage, []byte(s)))
}

func closeNormally(t *testing.T, c *gorillaws.Conn) {
	t.Helper()
	require.NoError(t, c.WriteMessage(gorillaws.CloseMessage,
		gorillaws.FormatCloseMessage(gorillaws.CloseNormalClosure, "")))
}

func waitSession(t *testing.T, ch <-chan *session.Session) *session.Session {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(waitTimeout):
		t.Fatal("no session notification")
		return nil
	}
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.True(t, errors.Is(err, ErrConfiguration))

	cfg, err := NewConfig(8080, WithInstallerURLs(map[string]string{"windows": "http://localhost/dummy-installer.exe"}))
	require.NoError(t, err)
	sdk, err := New(cfg, WithLogger(logger.NewNoop()))
	require.NoError(t, err)

	assert.Nil(t, sdk.Addr())
	assert.Zero(t, sdk.SessionCount())
	assert.Same(t, cfg, sdk.Config())
	assert.Equal(t, map[string]string{"windows": "http://localhost/dummy-installer.exe"}, sdk.InstallerLinks())
	assert.NotNil(t, sdk.Registry())
	assert.NotNil(t, sdk.Handler())
}

// 连接、上报、违规、断开的完整流程
func TestSessionLifecycle(t *testing.T) {
	sdk := startSDK(t)

	sessions := make(chan *session.Session, 4)
	var rec sessionRecorder
	sdk.OnSession(func(s *session.Session) {
		rec.attach(s)
		sessions <- s
	})

	client := dial(t, sdk.url+"/exam1-stu9")
	s := waitSession(t, sessions)
	assert.Equal(t, "exam1-stu9", s.ID())
	assert.Equal(t, 1, sdk.SessionCount())

	sendText(t, client, `{"status":"ok"}`)
	require.Eventually(t, func() bool { e, _ := rec.counts(); return e == 1 }, waitTimeout, 10*time.Millisecond)
	_, v := rec.counts()
	assert.Zero(t, v)

	sendText(t, client, `{"status":"violation","type":"tab-switch"}`)
	require.Eventually(t, func() bool { e, v := rec.counts(); return e == 2 && v == 1 }, waitTimeout, 10*time.Millisecond)

	rec.mu.Lock()
	assert.Equal(t, session.Event{Value: map[string]interface{}{"status": "ok"}}, rec.events[0])
	assert.Equal(t, session.Event{Value: map[string]interface{}{"status": "violation", "type": "tab-switch"}}, rec.events[1])
	assert.Equal(t, rec.events[1], rec.violations[0])
	rec.mu.Unlock()

	closeNormally(t, client)
	waitClosed(t, rec.done, "disconnect")

	require.Eventually(t, func() bool { return sdk.SessionCount() == 0 }, waitTimeout, 10*time.Millisecond)
	_, ok := sdk.Registry().GetSession(s.Conn())
	assert.False(t, ok)

	rec.mu.Lock()
	assert.Equal(t, 1, rec.disconnects)
	rec.mu.Unlock()
	assert.Len(t, sessions, 0)
}

func TestSessionIDKeepsPercentEncoding(t *testing.T) {
	sdk := startSDK(t)

	sessions := make(chan *session.Session, 4)
	sdk.OnSession(func(s *session.Session) { sessions <- s })

	dial(t, sdk.url+"/exam%201%2Fstu")
	s := waitSession(t, sessions)
	assert.Equal(t, "exam%201%2Fstu", s.ID())

	dial(t, sdk.url+"/exam1/stu9")
	s = waitSession(t, sessions)
	assert.Equal(t, "exam1/stu9", s.ID())
}

func TestMissingSessionID(t *testing.T) {
	for _, path := range []string{"/", ""} {
		t.Run("path="+path, func(t *testing.T) {
			sdk := startSDK(t)

			var fired int
			var mu sync.Mutex
			sdk.OnSession(func(*session.Session) {
				mu.Lock()
				fired++
				mu.Unlock()
			})

			client := dial(t, sdk.url+path)
			_ = client.SetReadDeadline(time.Now().Add(waitTimeout))
			_, _, err := client.ReadMessage()

			var closeErr *gorillaws.CloseError
			require.ErrorAs(t, err, &closeErr)
			assert.Equal(t, 1008, closeErr.Code)
			assert.Equal(t, "Session ID is required.", closeErr.Text)

			mu.Lock()
			assert.Zero(t, fired)
			mu.Unlock()
			assert.Zero(t, sdk.SessionCount())
		})
	}
}

func TestMalformedMessage(t *testing.T) {
	sdk := startSDK(t)

	sessions := make(chan *session.Session, 1)
	var rec sessionRecorder
	sdk.OnSession(func(s *session.Session) {
		rec.attach(s)
		sessions <- s
	})

	client := dial(t, sdk.url+"/exam1-stu9")
	waitSession(t, sessions)

	sendText(t, client, `not json`)
	sendText(t, client, `{"status":`)
	sendText(t, client, `5`)
	sendText(t, client, `{"status":"ok"}`)

	require.Eventually(t, func() bool { e, _ := rec.counts(); return e == 2 }, waitTimeout, 10*time.Millisecond)
	e, v := rec.counts()
	assert.Equal(t, 2, e)
	assert.Zero(t, v)
	assert.Equal(t, 1, sdk.SessionCount())
	assert.Equal(t, 2, sdk.logs.FilterMessage("failed to parse client message").Len())

	rec.mu.Lock()
	assert.Equal(t, float64(5), rec.events[0].Value)
	rec.mu.Unlock()
}

func TestAbnormalDisconnect(t *testing.T) {
	sdk := startSDK(t)

	sessions := make(chan *session.Session, 1)
	var rec sessionRecorder
	sdk.OnSession(func(s *session.Session) {
		rec.attach(s)
		sessions <- s
	})

	client := dial(t, sdk.url+"/exam1-stu9")
	waitSession(t, sessions)

	require.NoError(t, client.UnderlyingConn().Close())
	waitClosed(t, rec.done, "disconnect")

	require.Eventually(t, func() bool { return sdk.SessionCount() == 0 }, waitTimeout, 10*time.Millisecond)
	entries := sdk.logs.FilterMessage("websocket connection error").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "exam1-stu9", entries[0].ContextMap()["session_id"])
}

func TestDuplicateSessionIDs(t *testing.T) {
	sdk := startSDK(t)

	sessions := make(chan *session.Session, 2)
	sdk.OnSession(func(s *session.Session) { sessions <- s })

	dial(t, sdk.url+"/shared")
	dial(t, sdk.url+"/shared")

	a := waitSession(t, sessions)
	b := waitSession(t, sessions)
	assert.Equal(t, a.ID(), b.ID())
	assert.NotEqual(t, a.ConnID(), b.ConnID())
	assert.Equal(t, 2, sdk.SessionCount())
}

func TestSessionListenerOrderAndPanic(t *testing.T) {
	sdk := startSDK(t)

	var mu sync.Mutex
	var order []string
	done := make(chan struct{})
	sdk.OnSession(func(*session.Session) { panic("boom") })
	sdk.OnSession(func(*session.Session) {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
	})
	sdk.OnSession(func(*session.Session) {
		mu.Lock()
		order = append(order, "third")
		mu.Unlock()
		close(done)
	})

	dial(t, sdk.url+"/exam1-stu9")
	waitClosed(t, done, "session listeners")

	mu.Lock()
	assert.Equal(t, []string{"second", "third"}, order)
	mu.Unlock()
	assert.Equal(t, 1, sdk.logs.FilterMessage("session listener panicked").Len())
}

func TestSessionDisconnectFromServer(t *testing.T) {
	sdk := startSDK(t)

	sessions := make(chan *session.Session, 1)
	var rec sessionRecorder
	sdk.OnSession(func(s *session.Session) {
		rec.attach(s)
		sessions <- s
	})

	client := dial(t, sdk.url+"/exam1-stu9")
	s := waitSession(t, sessions)

	require.NoError(t, s.Disconnect())
	waitClosed(t, rec.done, "disconnect")

	_ = client.SetReadDeadline(time.Now().Add(waitTimeout))
	_, _, err := client.ReadMessage()
	assert.True(t, gorillaws.IsCloseError(err, gorillaws.CloseNormalClosure), "got %v", err)
	require.Eventually(t, func() bool { return sdk.SessionCount() == 0 }, waitTimeout, 10*time.Millisecond)
}

func TestStartAndStop(t *testing.T) {
	sdk := startSDK(t)

	started := sdk.logs.FilterMessage("proctoring websocket server started").All()
	require.Len(t, started, 1)
	assert.Equal(t, sdk.url, started[0].ContextMap()["url"])

	// 重复启动失败
	assert.Error(t, sdk.Start())

	sessions := make(chan *session.Session, 1)
	var rec sessionRecorder
	sdk.OnSession(func(s *session.Session) {
		rec.attach(s)
		sessions <- s
	})
	dial(t, sdk.url+"/exam1-stu9")
	waitSession(t, sessions)

	require.NoError(t, sdk.Stop())
	waitClosed(t, sdk.Done(), "stop")
	waitClosed(t, rec.done, "disconnect")

	assert.Zero(t, sdk.SessionCount())
	assert.Equal(t, 1, sdk.logs.FilterMessage("proctoring websocket server stopped").Len())

	// 再次停止不重复记录
	require.NoError(t, sdk.Stop())
	require.NoError(t, sdk.GracefulStop(context.Background()))
	assert.Equal(t, 1, sdk.logs.FilterMessage("proctoring websocket server stopped").Len())

	_, _, err := gorillaws.DefaultDialer.Dial(sdk.url+"/late", nil)
	assert.Error(t, err)
}

func TestMetricsRegistered(t *testing.T) {
	sdk := startSDK(t)

	sessions := make(chan *session.Session, 1)
	sdk.OnSession(func(s *session.Session) { sessions <- s })
	dial(t, sdk.url+"/exam1-stu9")
	waitSession(t, sessions)

	for _, name := range []string{
		"proctor_session_active",
		"proctor_session_started_total",
		"proctor_websocket_active_connections",
		"proctor_websocket_connections_total",
	} {
		n, err := testutil.GatherAndCount(sdk.reg, name)
		require.NoError(t, err)
		assert.Equal(t, 1, n, name)
	}
}
