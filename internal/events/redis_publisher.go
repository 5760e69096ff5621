package events

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStreamPublisher appends messages to one Redis stream per topic.
type RedisStreamPublisher struct {
	client  redis.Cmdable
	prefix  string
	maxLen  int64
	timeout time.Duration
}

// NewRedisStreamPublisher builds a publisher writing to prefix+topic streams.
func NewRedisStreamPublisher(client redis.Cmdable, prefix string, maxLen int64, timeout time.Duration) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client, prefix: prefix, maxLen: maxLen, timeout: timeout}
}

// Publish issues XADD with approximate trimming.
func (p *RedisStreamPublisher) Publish(ctx context.Context, topic string, body []byte) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	args := &redis.XAddArgs{
		Stream: p.prefix + topic,
		Values: map[string]interface{}{"body": body},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	return p.client.XAdd(ctx, args).Err()
}
