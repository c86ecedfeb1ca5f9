package kafka

import (
	"context"
	"time"

	"github.com/lk2023060901/xdooria-proctor/pkg/logger"
)

// ProducerLoggingMiddleware 生产者日志中间件
func ProducerLoggingMiddleware(log logger.Logger) ProducerMiddleware {
	return func(ctx context.Context, msg *Message, next PublishFunc) error {
		start := time.Now()
		err := next(ctx, msg)

		if err != nil {
			log.Error("message publish failed",
				"topic", msg.Topic,
				"key", string(msg.Key),
				"duration", time.Since(start),
				"error", err,
			)
			return err
		}
		log.Debug("message published",
			"topic", msg.Topic,
			"key", string(msg.Key),
			"duration", time.Since(start),
		)
		return nil
	}
}

// ProducerRecoveryMiddleware 生产者恢复中间件
func ProducerRecoveryMiddleware(log logger.Logger) ProducerMiddleware {
	return func(ctx context.Context, msg *Message, next PublishFunc) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("producer panic recovered",
					"topic", msg.Topic,
					"key", string(msg.Key),
					"panic", r,
				)
				err = ErrProducerPanic
			}
		}()
		return next(ctx, msg)
	}
}
