package session

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-proctor/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeConn struct {
	id string

	mu         sync.Mutex
	closed     bool
	closeCode  int
	closeText  string
	closeCalls int
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string         { return c.id }
func (c *fakeConn) RemoteAddr() string { return "127.0.0.1:50000" }

func (c *fakeConn) Close() error {
	return c.CloseWithCode(1000, "")
}

func (c *fakeConn) CloseWithCode(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	if !c.closed {
		c.closed = true
		c.closeCode = code
		c.closeText = reason
	}
	return nil
}

type recorder struct {
	mu          sync.Mutex
	events      []Event
	violations  []Event
	disconnects int
}

func (r *recorder) attach(s *Session) {
	s.OnEvent(func(ev Event) {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
	})
	s.OnViolation(func(ev Event) {
		r.mu.Lock()
		r.violations = append(r.violations, ev)
		r.mu.Unlock()
	})
	s.OnDisconnect(func() {
		r.mu.Lock()
		r.disconnects++
		r.mu.Unlock()
	})
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantErr   bool
		value     interface{}
		status    string
		violation bool
	}{
		{name: "status ok", raw: `{"status":"ok"}`, value: map[string]interface{}{"status": "ok"}, status: "ok"},
		{name: "violation", raw: `{"status":"violation","type":"tab-switch"}`, value: map[string]interface{}{"status": "violation", "type": "tab-switch"}, status: "violation", violation: true},
		{name: "no status", raw: `{"type":"heartbeat"}`, value: map[string]interface{}{"type": "heartbeat"}},
		{name: "non string status", raw: `{"status":1}`, value: map[string]interface{}{"status": float64(1)}},
		{name: "case sensitive", raw: `{"status":"Violation"}`, value: map[string]interface{}{"status": "Violation"}, status: "Violation"},
		{name: "empty object", raw: `{}`, value: map[string]interface{}{}},
		{name: "number", raw: `5`, value: float64(5)},
		{name: "string", raw: `"x"`, value: "x"},
		{name: "violation string", raw: `"violation"`, value: "violation"},
		{name: "array", raw: `[1,2]`, value: []interface{}{float64(1), float64(2)}},
		{name: "bool", raw: `true`, value: true},
		{name: "null", raw: `null`, value: nil},
		{name: "not json", raw: `not json`, wantErr: true},
		{name: "truncated", raw: `{"status":`, wantErr: true},
		{name: "empty", raw: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeEvent([]byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformedEvent))
				assert.Nil(t, ev.Value)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.value, ev.Value)
			assert.Equal(t, tt.status, ev.Status())
			assert.Equal(t, tt.violation, ev.IsViolation())
		})
	}
}

func TestEventJSON(t *testing.T) {
	for _, raw := range []string{`{"status":"violation"}`, `5`, `"x"`, `[1,2]`, `true`, `null`} {
		ev, err := DecodeEvent([]byte(raw))
		require.NoError(t, err)
		assert.JSONEq(t, raw, ev.String())

		var back Event
		require.NoError(t, back.UnmarshalJSON([]byte(raw)))
		assert.Equal(t, ev, back)
	}
}

func TestSessionHandleEventNonObject(t *testing.T) {
	reg := NewRegistry(nil)
	s, ok := reg.StartSession(newFakeConn("c1"), "exam1-stu9")
	require.True(t, ok)

	var rec recorder
	rec.attach(s)

	payloads := []string{`5`, `"x"`, `[1,2]`, `true`, `null`, `"violation"`}
	for _, p := range payloads {
		s.HandleEvent([]byte(p))
	}

	require.Len(t, rec.events, len(payloads))
	assert.Equal(t, float64(5), rec.events[0].Value)
	assert.Equal(t, "x", rec.events[1].Value)
	assert.Nil(t, rec.events[4].Value)
	assert.Empty(t, rec.violations, "only objects carry a status")
}

func TestSessionHandleEvent(t *testing.T) {
	reg := NewRegistry(nil)
	s, ok := reg.StartSession(newFakeConn("c1"), "exam1-stu9")
	require.True(t, ok)

	var rec recorder
	rec.attach(s)

	s.HandleEvent([]byte(`{"status":"ok"}`))
	assert.Len(t, rec.events, 1)
	assert.Empty(t, rec.violations)
	assert.Equal(t, Event{Value: map[string]interface{}{"status": "ok"}}, rec.events[0])

	s.HandleEvent([]byte(`{"status":"violation","type":"tab-switch"}`))
	require.Len(t, rec.events, 2)
	require.Len(t, rec.violations, 1)
	want := Event{Value: map[string]interface{}{"status": "violation", "type": "tab-switch"}}
	assert.Equal(t, want, rec.events[1])
	assert.Equal(t, want, rec.violations[0])

	// 非法消息不通知，会话保持可用
	s.HandleEvent([]byte(`not json`))
	assert.Len(t, rec.events, 2)
	assert.Len(t, rec.violations, 1)
	_, ok = reg.GetSession(s.Conn())
	assert.True(t, ok)

	s.HandleEvent([]byte(`{"status":"ok"}`))
	assert.Len(t, rec.events, 3)
}

func TestSessionListenerOrder(t *testing.T) {
	s := newSession("s1", newFakeConn("c1"), time.Now(), logger.NewNoop(), nil)

	var order []string
	s.OnViolation(func(Event) { order = append(order, "violation-1") })
	s.OnEvent(func(Event) { order = append(order, "event-1") })
	s.OnEvent(func(Event) { order = append(order, "event-2") })
	s.OnViolation(func(Event) { order = append(order, "violation-2") })

	s.HandleEvent([]byte(`{"status":"violation"}`))
	assert.Equal(t, []string{"event-1", "event-2", "violation-1", "violation-2"}, order)
}

func TestSessionLateSubscriber(t *testing.T) {
	s := newSession("s1", newFakeConn("c1"), time.Now(), logger.NewNoop(), nil)
	s.HandleEvent([]byte(`{"status":"ok"}`))

	var rec recorder
	rec.attach(s)
	assert.Empty(t, rec.events)
}

func TestSessionListenerPanic(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := newSession("s1", newFakeConn("c1"), time.Now(), logger.NewWithCore(core), nil)

	var called bool
	s.OnEvent(func(Event) { panic("boom") })
	s.OnEvent(func(Event) { called = true })

	assert.NotPanics(t, func() { s.HandleEvent([]byte(`{}`)) })
	assert.True(t, called)
	assert.Equal(t, 1, logs.FilterMessage("session listener panicked").Len())
}

func TestSessionMalformedLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := newSession("exam1-stu9", newFakeConn("c1"), time.Now(), logger.NewWithCore(core), nil)

	s.HandleEvent([]byte(`{oops`))

	entries := logs.FilterMessage("failed to parse client message").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, "exam1-stu9", entries[0].ContextMap()["session_id"])
}

func TestSessionDisconnect(t *testing.T) {
	conn := newFakeConn("c1")
	s := newSession("s1", conn, time.Now(), logger.NewNoop(), nil)

	require.NoError(t, s.Disconnect())
	assert.True(t, conn.closed)
	assert.Equal(t, 1000, conn.closeCode)
}

func TestSessionInfo(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := newSession("exam1-stu9", newFakeConn("c1"), start, logger.NewNoop(), nil)

	info := s.Info()
	assert.Equal(t, "exam1-stu9", info.ID)
	assert.Equal(t, "c1", info.ConnID)
	assert.Equal(t, "127.0.0.1:50000", info.RemoteAddr)
	assert.Equal(t, start, info.StartTime)
	assert.Equal(t, start, s.StartTime())
}

func TestRegistryStartSession(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var created []*Session
	reg := NewRegistry(func(s *Session) { created = append(created, s) },
		WithClock(func() time.Time { return start }))

	conn := newFakeConn("c1")
	s, ok := reg.StartSession(conn, "exam1-stu9")
	require.True(t, ok)
	assert.Equal(t, "exam1-stu9", s.ID())
	assert.Equal(t, "c1", s.ConnID())
	assert.Equal(t, start, s.StartTime())
	assert.Same(t, conn, s.Conn().(*fakeConn))
	require.Len(t, created, 1)
	assert.Same(t, s, created[0])
	assert.False(t, conn.closed)

	got, ok := reg.GetSession(conn)
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, 1, reg.Count())
}

func TestRegistryRejectsEmptyID(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	var created int
	reg := NewRegistry(func(*Session) { created++ }, WithMetrics(m))

	conn := newFakeConn("c1")
	s, ok := reg.StartSession(conn, "")
	assert.False(t, ok)
	assert.Nil(t, s)
	assert.Zero(t, created)
	assert.Zero(t, reg.Count())

	assert.True(t, conn.closed)
	assert.Equal(t, 1008, conn.closeCode)
	assert.Equal(t, "Session ID is required.", conn.closeText)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.rejected))

	_, ok = reg.GetSession(conn)
	assert.False(t, ok)
}

func TestRegistryEndSession(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	reg := NewRegistry(nil, WithMetrics(m))

	conn := newFakeConn("c1")
	s, ok := reg.StartSession(conn, "exam1-stu9")
	require.True(t, ok)

	var rec recorder
	rec.attach(s)

	var registeredDuringNotify bool
	s.OnDisconnect(func() {
		_, registeredDuringNotify = reg.GetSession(conn)
	})

	reg.EndSession(conn)
	assert.Equal(t, 1, rec.disconnects)
	assert.True(t, registeredDuringNotify)

	_, ok = reg.GetSession(conn)
	assert.False(t, ok)
	assert.Zero(t, reg.Count())

	// 未注册的连接无操作
	reg.EndSession(conn)
	reg.EndSession(newFakeConn("unknown"))
	assert.Equal(t, 1, rec.disconnects)

	assert.Equal(t, float64(0), testutil.ToFloat64(m.active))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.total))
}

func TestRegistryDuplicateSessionID(t *testing.T) {
	reg := NewRegistry(nil)

	a, ok := reg.StartSession(newFakeConn("c1"), "exam1-stu9")
	require.True(t, ok)
	b, ok := reg.StartSession(newFakeConn("c2"), "exam1-stu9")
	require.True(t, ok)

	assert.NotSame(t, a, b)
	assert.Equal(t, 2, reg.Count())

	ids := map[string]string{}
	reg.Range(func(s *Session) bool {
		ids[s.ConnID()] = s.ID()
		return true
	})
	assert.Equal(t, map[string]string{"c1": "exam1-stu9", "c2": "exam1-stu9"}, ids)
}

func TestRegistryReplaceSameConn(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	reg := NewRegistry(nil, WithMetrics(m))
	conn := newFakeConn("c1")

	first, _ := reg.StartSession(conn, "a")
	second, _ := reg.StartSession(conn, "b")

	got, ok := reg.GetSession(conn)
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.NotSame(t, first, got)
	assert.Equal(t, 1, reg.Count())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.active))
}

func TestRegistryOnCreatePanic(t *testing.T) {
	reg := NewRegistry(func(*Session) { panic("boom") })

	var s *Session
	var ok bool
	assert.NotPanics(t, func() { s, ok = reg.StartSession(newFakeConn("c1"), "s1") })
	assert.True(t, ok)
	assert.NotNil(t, s)
	assert.Equal(t, 1, reg.Count())
}

func TestRegistryConcurrent(t *testing.T) {
	reg := NewRegistry(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := newFakeConn(strconv.Itoa(i))
			s, ok := reg.StartSession(conn, "s")
			if !ok {
				return
			}
			s.HandleEvent([]byte(`{"status":"violation"}`))
			_ = reg.Count()
			reg.EndSession(conn)
		}(i)
	}
	wg.Wait()

	assert.Zero(t, reg.Count())
}
