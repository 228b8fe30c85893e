package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBus implements Bus on a Redis list (LPUSH by callers, BRPOP by the
// engine) and Redis pub/sub channels named after the topics.
type RedisBus struct {
	rdb   *redis.Client
	queue string
	// block bounds each BRPOP so cancellation is noticed promptly.
	block time.Duration
}

// NewRedisBus uses rdb with the list named queue.
func NewRedisBus(rdb *redis.Client, queue string) *RedisBus {
	return &RedisBus{rdb: rdb, queue: queue, block: time.Second}
}

// Ping checks the connection.
func (b *RedisBus) Ping(ctx context.Context) error {
	if err := b.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func (b *RedisBus) Enqueue(ctx context.Context, envelope []byte) error {
	if err := b.rdb.LPush(ctx, b.queue, envelope).Err(); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

func (b *RedisBus) Dequeue(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := b.rdb.BRPop(ctx, b.block, b.queue).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("dequeue: %w", err)
		}
		// res is [list, value].
		return []byte(res[1]), nil
	}
}

func (b *RedisBus) Publish(ctx context.Context, topic, key string, value []byte) error {
	raw, err := json.Marshal(wireMessage{Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := b.rdb.Publish(ctx, topic, raw).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, topics ...string) (Subscription, error) {
	ps := b.rdb.Subscribe(ctx, topics...)
	// Wait for the subscription to be confirmed so no message published
	// after Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %v: %w", topics, err)
	}

	s := &redisSubscription{ps: ps, out: make(chan Message, 256), done: make(chan struct{})}
	go s.pump()
	return s, nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	out  chan Message
	done chan struct{}
	once sync.Once
}

func (s *redisSubscription) pump() {
	defer close(s.out)
	for msg := range s.ps.Channel() {
		var w wireMessage
		if err := json.Unmarshal([]byte(msg.Payload), &w); err != nil {
			slog.Warn("dropping malformed bus message", "topic", msg.Channel, "err", err)
			continue
		}
		select {
		case s.out <- Message{Topic: msg.Channel, Key: w.Key, Value: w.Value}:
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Messages() <-chan Message { return s.out }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
