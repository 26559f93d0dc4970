package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisPublisher publishes envelopes on a Redis pub/sub channel
type RedisPublisher struct {
	rdb     redis.UniversalClient
	channel string
}

// NewRedisPublisher creates a publisher for channel
func NewRedisPublisher(rdb redis.UniversalClient, channel string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: channel}
}

// Publish encodes env as JSON and publishes it
func (p *RedisPublisher) Publish(ctx context.Context, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// Subscribe feeds every envelope published on channel to handle until ctx is cancelled.
// Undecodable payloads are logged and skipped.
func Subscribe(ctx context.Context, rdb redis.UniversalClient, channel string, handle func(Envelope)) error {
	sub := rdb.Subscribe(ctx, channel)
	defer sub.Close()
	// Wait for the subscription to be confirmed before reporting readiness
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	logrus.WithField("channel", channel).Info("Subscribed to notification channel")
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				logrus.WithError(err).WithField("channel", channel).Warn("Dropping malformed notification envelope")
				continue
			}
			handle(env)
		}
	}
}
