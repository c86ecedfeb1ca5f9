package kafka

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-proctor/pkg/config"
	"github.com/lk2023060901/xdooria-proctor/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// ClientOption 客户端选项
type ClientOption func(*Client)

// WithLogger 设置日志
func WithLogger(l logger.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithProducerMiddleware 添加生产者中间件
func WithProducerMiddleware(mw ...ProducerMiddleware) ClientOption {
	return func(c *Client) {
		c.producerMiddlewares = append(c.producerMiddlewares, mw...)
	}
}

// Client Kafka 客户端，按 topic 缓存生产者
type Client struct {
	config    *Config
	logger    logger.Logger
	transport *kafka.Transport

	producers  map[string]*Producer
	producerMu sync.Mutex

	producerMiddlewares []ProducerMiddleware

	closed atomic.Bool
}

// New 创建 Kafka 客户端，cfg 中的非零值覆盖默认配置
func New(cfg *Config, opts ...ClientOption) (*Client, error) {
	merged, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}

	transport, err := newTransport(merged)
	if err != nil {
		return nil, errors.Wrap(err, "kafka: build transport")
	}

	c := &Client{
		config:    merged,
		logger:    logger.NewNoop(),
		transport: transport,
		producers: make(map[string]*Producer),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Producer 获取或创建指定 topic 的生产者
func (c *Client) Producer(topic string) (*Producer, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	c.producerMu.Lock()
	defer c.producerMu.Unlock()

	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if p, ok := c.producers[topic]; ok {
		return p, nil
	}

	p := newProducer(c, topic, c.transport)
	c.producers[topic] = p
	c.logger.Debug("producer created", "topic", topic)
	return p, nil
}

// Close 关闭所有生产者
func (c *Client) Close() error {
	c.producerMu.Lock()
	defer c.producerMu.Unlock()

	if c.closed.Swap(true) {
		return nil
	}

	var errs error
	for topic, p := range c.producers {
		if err := p.Close(); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "close producer %s", topic))
		}
	}
	return errs
}

// IsClosed 是否已关闭
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}

// Config 返回生效的配置
func (c *Client) Config() *Config {
	return c.config
}
