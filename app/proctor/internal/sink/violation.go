// Package sink 把监考违规记录转发到外部消息系统。
package sink

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-proctor/pkg/logger"
	"github.com/lk2023060901/xdooria-proctor/pkg/mq/kafka"
	"github.com/lk2023060901/xdooria-proctor/pkg/session"
)

const (
	defaultPublishTimeout = 5 * time.Second
	defaultQueueSize      = 1024
)

// Config 违规转发配置
type Config struct {
	Enable         bool          `mapstructure:"enable"`
	Topic          string        `mapstructure:"topic"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	QueueSize      int           `mapstructure:"queue_size"`

	kafka.Config `mapstructure:",squash"`
}

// Publisher 违规记录发布者，*kafka.Producer 实现了该接口
type Publisher interface {
	PublishJSON(ctx context.Context, key string, value []byte, headers map[string]string) error
	Close() error
}

// Record 一条违规记录
type Record struct {
	SessionID  string        `json:"session_id"`
	ConnID     string        `json:"conn_id"`
	RemoteAddr string        `json:"remote_addr"`
	StartedAt  time.Time     `json:"started_at"`
	OccurredAt time.Time     `json:"occurred_at"`
	Event      session.Event `json:"event"`
}

type pending struct {
	key   string
	value []byte
}

// ViolationSink 按会话 ID 作为 Key 发布违规记录，同一会话的记录进入同一分区。
// Enqueue 只入队，由后台协程发布，不阻塞连接读协程。
type ViolationSink struct {
	publisher Publisher
	logger    logger.Logger
	timeout   time.Duration
	now       func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan pending
	wg     sync.WaitGroup
}

// New 创建 ViolationSink，publisher 为 nil 时只丢弃记录，queueSize <= 0 时使用默认长度
func New(p Publisher, l logger.Logger, timeout time.Duration, queueSize int) *ViolationSink {
	if l == nil {
		l = logger.NewNoop()
	}
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	s := &ViolationSink{
		publisher: p,
		logger:    l.Named("sink.violation"),
		timeout:   timeout,
		now:       time.Now,
	}
	if p != nil {
		s.queue = make(chan pending, queueSize)
		s.wg.Add(1)
		go s.loop()
	}
	return s
}

// NewFromClient 从 Kafka 客户端创建，client 为 nil 时返回不发布的 sink
func NewFromClient(client *kafka.Client, cfg *Config, l logger.Logger) (*ViolationSink, error) {
	if client == nil {
		return New(nil, l, cfg.PublishTimeout, cfg.QueueSize), nil
	}
	producer, err := client.Producer(cfg.Topic)
	if err != nil {
		return nil, errors.Wrap(err, "create violation producer")
	}
	return New(producer, l, cfg.PublishTimeout, cfg.QueueSize), nil
}

// Enabled 是否会真正发布
func (s *ViolationSink) Enabled() bool {
	return s.publisher != nil
}

// Publish 同步发布一条违规记录
func (s *ViolationSink) Publish(sess *session.Session, ev session.Event) error {
	if s.publisher == nil {
		return nil
	}
	p, err := s.encode(sess, ev)
	if err != nil {
		return err
	}
	return s.send(p)
}

// Enqueue 把违规记录放入发布队列，队列已满或 sink 已关闭时丢弃并返回 false
func (s *ViolationSink) Enqueue(sess *session.Session, ev session.Event) bool {
	if s.publisher == nil {
		return false
	}
	p, err := s.encode(sess, ev)
	if err != nil {
		s.logger.Error("failed to encode violation", "session_id", sess.ID(), "error", err)
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.queue <- p:
		return true
	default:
		s.logger.Warn("violation queue full, record dropped", "session_id", p.key)
		return false
	}
}

func (s *ViolationSink) encode(sess *session.Session, ev session.Event) (pending, error) {
	info := sess.Info()
	value, err := json.Marshal(Record{
		SessionID:  info.ID,
		ConnID:     info.ConnID,
		RemoteAddr: info.RemoteAddr,
		StartedAt:  info.StartTime,
		OccurredAt: s.now(),
		Event:      ev,
	})
	if err != nil {
		return pending{}, errors.Wrap(err, "encode violation record")
	}
	return pending{key: info.ID, value: value}, nil
}

func (s *ViolationSink) send(p pending) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.publisher.PublishJSON(ctx, p.key, p.value, map[string]string{"kind": "violation"}); err != nil {
		s.logger.Error("failed to publish violation", "session_id", p.key, "error", err)
		return err
	}
	return nil
}

func (s *ViolationSink) loop() {
	defer s.wg.Done()
	for p := range s.queue {
		_ = s.send(p)
	}
}

// Close 停止接收新记录，发布完队列中剩余记录后关闭发布者
func (s *ViolationSink) Close() error {
	if s.publisher == nil {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
	return s.publisher.Close()
}
