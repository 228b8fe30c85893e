// Package bus carries command envelopes to the engine over a FIFO queue and
// carries responses and broadcast events back out over keyed pub/sub topics.
// Implementations include Redis (production) and in-memory (tests and
// single-process runs).
package bus

import (
	"context"
	"encoding/json"
	"errors"
)

// Topics the engine publishes on.
const (
	TopicResponses        = "responses"
	TopicMarketUpdates    = "market-updates"
	TopicOrderbookUpdates = "orderbook-updates"
)

var (
	ErrTimeout = errors.New("bus: timed out waiting for response")
	ErrClosed  = errors.New("bus: closed")
)

// Message is one pub/sub delivery. Key is the correlation id on the
// responses topic and the market symbol on broadcast topics.
type Message struct {
	Topic string
	Key   string
	Value json.RawMessage
}

// wireMessage is the encoded form of a published message.
type wireMessage struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Queue is a FIFO of encoded envelopes with a single consumer.
type Queue interface {
	// Enqueue appends an envelope.
	Enqueue(ctx context.Context, envelope []byte) error

	// Dequeue blocks until the oldest envelope is available or ctx is done.
	Dequeue(ctx context.Context) ([]byte, error)
}

// Publisher delivers a keyed message to every current subscriber of topic.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Subscriber opens subscriptions to one or more topics.
type Subscriber interface {
	Subscribe(ctx context.Context, topics ...string) (Subscription, error)
}

// Subscription streams messages until closed. The channel is closed after
// Close or when the underlying transport goes away.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

// Bus bundles every capability of a transport.
type Bus interface {
	Queue
	Publisher
	Subscriber
}

// PublishJSON encodes v and publishes it on topic under key.
func PublishJSON(ctx context.Context, p Publisher, topic, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.Publish(ctx, topic, key, raw)
}
