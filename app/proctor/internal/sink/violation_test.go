package sink

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-proctor/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	key     string
	value   []byte
	headers map[string]string
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []published
	err      error
	closed   bool
}

func (p *fakePublisher) PublishJSON(ctx context.Context, key string, value []byte, headers map[string]string) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("publish without deadline")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, published{key: key, value: value, headers: headers})
	return nil
}

func (p *fakePublisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// gatedPublisher 在 gate 关闭前阻塞发布
type gatedPublisher struct {
	fakePublisher
	started chan struct{}
	gate    chan struct{}
}

func (p *gatedPublisher) PublishJSON(ctx context.Context, key string, value []byte, headers map[string]string) error {
	select {
	case p.started <- struct{}{}:
	default:
	}
	<-p.gate
	return p.fakePublisher.PublishJSON(ctx, key, value, headers)
}

type fakeConn struct{ id string }

func (c *fakeConn) ID() string                                  { return c.id }
func (c *fakeConn) RemoteAddr() string                          { return "10.0.0.7:51000" }
func (c *fakeConn) Close() error                                { return nil }
func (c *fakeConn) CloseWithCode(code int, reason string) error { return nil }

func newSession(t *testing.T, id string) *session.Session {
	t.Helper()
	reg := session.NewRegistry(nil)
	sess, ok := reg.StartSession(&fakeConn{id: "conn-1"}, id)
	require.True(t, ok)
	return sess
}

func TestViolationSinkPublish(t *testing.T) {
	pub := &fakePublisher{}
	s := New(pub, nil, time.Second, 0)
	occurred := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return occurred }

	sess := newSession(t, "exam1-stu9")
	ev, err := session.DecodeEvent([]byte(`{"status":"violation","type":"tab_switch"}`))
	require.NoError(t, err)

	require.True(t, s.Enabled())
	require.NoError(t, s.Publish(sess, ev))

	require.Len(t, pub.messages, 1)
	msg := pub.messages[0]
	assert.Equal(t, "exam1-stu9", msg.key)
	assert.Equal(t, "violation", msg.headers["kind"])

	var rec Record
	require.NoError(t, json.Unmarshal(msg.value, &rec))
	assert.Equal(t, "exam1-stu9", rec.SessionID)
	assert.Equal(t, "conn-1", rec.ConnID)
	assert.Equal(t, "10.0.0.7:51000", rec.RemoteAddr)
	assert.True(t, occurred.Equal(rec.OccurredAt))
	assert.Equal(t, "tab_switch", rec.Event.Get("type"))
}

func TestViolationSinkPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	s := New(pub, nil, 0, 0)
	assert.Equal(t, defaultPublishTimeout, s.timeout)

	err := s.Publish(newSession(t, "exam1-stu1"), session.Event{Value: map[string]interface{}{"status": "violation"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestViolationSinkDisabled(t *testing.T) {
	s, err := NewFromClient(nil, &Config{Topic: "proctor.violations"}, nil)
	require.NoError(t, err)

	assert.False(t, s.Enabled())
	assert.NoError(t, s.Publish(newSession(t, "exam1-stu1"), session.Event{Value: map[string]interface{}{"status": "violation"}}))
	assert.NoError(t, s.Close())
}

func TestViolationSinkClose(t *testing.T) {
	pub := &fakePublisher{}
	s := New(pub, nil, time.Second, 0)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, pub.closed)
}

func TestViolationSinkEnqueue(t *testing.T) {
	pub := &fakePublisher{}
	s := New(pub, nil, time.Second, 0)

	ev, err := session.DecodeEvent([]byte(`{"status":"violation","type":"tab_switch"}`))
	require.NoError(t, err)
	assert.True(t, s.Enqueue(newSession(t, "exam1-stu1"), ev))
	assert.True(t, s.Enqueue(newSession(t, "exam1-stu2"), ev))

	require.NoError(t, s.Close())
	require.Len(t, pub.messages, 2)
	assert.Equal(t, "exam1-stu1", pub.messages[0].key)
	assert.Equal(t, "exam1-stu2", pub.messages[1].key)
	assert.True(t, pub.closed)

	assert.False(t, s.Enqueue(newSession(t, "exam1-stu3"), ev), "closed sink drops records")
}

func TestViolationSinkEnqueueFull(t *testing.T) {
	pub := &gatedPublisher{started: make(chan struct{}, 1), gate: make(chan struct{})}
	s := New(pub, nil, time.Second, 1)
	ev := session.Event{Value: map[string]interface{}{"status": "violation"}}

	require.True(t, s.Enqueue(newSession(t, "exam1-stu1"), ev))
	select {
	case <-pub.started:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not pick up the first record")
	}

	assert.True(t, s.Enqueue(newSession(t, "exam1-stu2"), ev))
	assert.False(t, s.Enqueue(newSession(t, "exam1-stu3"), ev), "queue full")

	close(pub.gate)
	require.NoError(t, s.Close())
	require.Len(t, pub.messages, 2)
	assert.Equal(t, "exam1-stu2", pub.messages[1].key)
}

func TestViolationSinkEnqueueDisabled(t *testing.T) {
	s := New(nil, nil, time.Second, 0)
	assert.False(t, s.Enqueue(newSession(t, "exam1-stu1"), session.Event{}))
	assert.NoError(t, s.Close())
}
