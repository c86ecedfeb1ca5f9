package kafka

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"
)

// Producer 单个 topic 的生产者
type Producer struct {
	client *Client
	topic  string
	writer *kafka.Writer
	async  bool

	publish PublishFunc

	produced  atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	lastNanos atomic.Int64

	closed atomic.Bool
}

// newProducer 创建生产者
func newProducer(c *Client, topic string, transport *kafka.Transport) *Producer {
	cfg := c.config.Producer

	p := &Producer{
		client: c,
		topic:  topic,
		async:  cfg.Async,
	}

	p.writer = &kafka.Writer{
		Addr:                   kafka.TCP(c.config.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		MaxAttempts:            cfg.MaxRetries + 1,
		WriteTimeout:           cfg.WriteTimeout,
		ReadTimeout:            cfg.ReadTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Async:                  cfg.Async,
		Compression:            parseCompression(cfg.Compression),
		AllowAutoTopicCreation: true,
	}
	if transport != nil {
		p.writer.Transport = transport
	}
	if cfg.Async {
		p.writer.Completion = p.onCompletion
	}

	// 中间件按注册顺序由外到内包裹
	publish := p.write
	for i := len(c.producerMiddlewares) - 1; i >= 0; i-- {
		mw := c.producerMiddlewares[i]
		next := publish
		publish = func(ctx context.Context, msg *Message) error {
			return mw(ctx, msg, next)
		}
	}
	p.publish = publish

	return p
}

// Publish 发布单条消息
// 异步模式下消息进入发送队列即返回，投递结果体现在 Stats 中
func (p *Producer) Publish(ctx context.Context, msg *Message) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	msg.Topic = p.topic
	p.produced.Add(1)

	if err := p.publish(ctx, msg); err != nil {
		p.failed.Add(1)
		return err
	}
	if !p.async {
		p.markSucceeded(1)
	}
	return nil
}

// PublishWithKey 发布带 Key 的消息
func (p *Producer) PublishWithKey(ctx context.Context, key string, value []byte) error {
	return p.Publish(ctx, &Message{
		Key:   []byte(key),
		Value: value,
	})
}

// PublishJSON 发布 JSON 消息
func (p *Producer) PublishJSON(ctx context.Context, key string, value []byte, headers map[string]string) error {
	h := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		h[k] = v
	}
	h["content-type"] = "application/json"

	return p.Publish(ctx, &Message{
		Key:     []byte(key),
		Value:   value,
		Headers: h,
	})
}

// write 写入 kafka
func (p *Producer) write(ctx context.Context, msg *Message) error {
	km := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Time:  msg.Timestamp,
	}
	if len(msg.Headers) > 0 {
		km.Headers = make([]kafka.Header, 0, len(msg.Headers))
		for k, v := range msg.Headers {
			km.Headers = append(km.Headers, kafka.Header{Key: k, Value: []byte(v)})
		}
	}

	if err := p.writer.WriteMessages(ctx, km); err != nil {
		return errors.Wrapf(err, "kafka: write to %s", p.topic)
	}
	return nil
}

// onCompletion 异步投递结果回调
func (p *Producer) onCompletion(messages []kafka.Message, err error) {
	if err != nil {
		p.failed.Add(int64(len(messages)))
		p.client.logger.Warn("async publish failed", "topic", p.topic, "count", len(messages), "error", err)
		return
	}
	p.markSucceeded(len(messages))
}

func (p *Producer) markSucceeded(n int) {
	p.succeeded.Add(int64(n))
	p.lastNanos.Store(time.Now().UnixNano())
}

// Topic 返回 topic 名称
func (p *Producer) Topic() string {
	return p.topic
}

// Stats 返回统计信息
func (p *Producer) Stats() ProducerStats {
	stats := ProducerStats{
		MessagesProduced:  p.produced.Load(),
		MessagesSucceeded: p.succeeded.Load(),
		MessagesFailed:    p.failed.Load(),
	}
	if n := p.lastNanos.Load(); n > 0 {
		stats.LastMessageTime = time.Unix(0, n)
	}
	return stats
}

// Close 关闭生产者，异步模式下会先刷出队列中的消息
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.client.logger.Debug("producer closing", "topic", p.topic)
	return p.writer.Close()
}

// IsClosed 是否已关闭
func (p *Producer) IsClosed() bool {
	return p.closed.Load()
}

// parseCompression 解析压缩算法
func parseCompression(s string) kafka.Compression {
	switch s {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return 0
	}
}
