package kafka

import (
	"context"
	"time"
)

// Message 消息结构
type Message struct {
	// Topic 主题，由生产者填充
	Topic string

	// Key 消息键，同一 Key 路由到同一分区
	Key []byte

	// Value 消息值
	Value []byte

	// Headers 消息头
	Headers map[string]string

	// Timestamp 时间戳，为零时由 broker 填充
	Timestamp time.Time
}

// PublishFunc 发布函数
type PublishFunc func(ctx context.Context, msg *Message) error

// ProducerMiddleware 生产者中间件
type ProducerMiddleware func(ctx context.Context, msg *Message, next PublishFunc) error

// ProducerStats 生产者统计
type ProducerStats struct {
	// MessagesProduced 提交发送的消息数
	MessagesProduced int64

	// MessagesSucceeded 发送成功的消息数
	MessagesSucceeded int64

	// MessagesFailed 发送失败的消息数
	MessagesFailed int64

	// LastMessageTime 最后一条成功消息的时间
	LastMessageTime time.Time
}
