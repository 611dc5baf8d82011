package signaling

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisFanout backs the signaling bus with Redis pub/sub channels.
type RedisFanout struct {
	client *redis.Client
}

func NewRedisFanout(url, password string, db int) (*RedisFanout, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	opts.DB = db

	return &RedisFanout{client: redis.NewClient(opts)}, nil
}

func (f *RedisFanout) Publish(ctx context.Context, channel string, data []byte) error {
	return f.client.Publish(ctx, channel, data).Err()
}

func (f *RedisFanout) Subscribe(ctx context.Context, patterns ...string) (<-chan FanoutMessage, error) {
	sub := f.client.PSubscribe(ctx, patterns...)

	// Force the subscription onto the wire before we report success.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, err
	}

	out := make(chan FanoutMessage, 64)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				out <- FanoutMessage{Channel: msg.Channel, Data: []byte(msg.Payload)}
			}
		}
	}()
	return out, nil
}

func (f *RedisFanout) Close() error {
	return f.client.Close()
}
