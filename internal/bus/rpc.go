package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Mishragini/OpiniXchange/internal/command"
)

// DefaultTimeout is how long a caller waits for the engine's response.
const DefaultTimeout = 120 * time.Second

// Client is the caller side of the request/response protocol. Each call
// registers a one-shot waiter under a fresh correlation id, enqueues the
// envelope and waits for the matching message on the responses topic.
//
// A response arriving after its caller gave up is dropped. The engine may
// still have applied the command.
type Client struct {
	queue   Queue
	sub     Subscription
	timeout time.Duration
	newID   func() string

	mu      sync.Mutex
	waiters map[string]chan json.RawMessage
	closed  bool
	done    chan struct{}
}

// NewClient subscribes to the responses topic and starts routing responses
// to waiters. A non-positive timeout selects DefaultTimeout.
func NewClient(ctx context.Context, queue Queue, subscriber Subscriber, timeout time.Duration) (*Client, error) {
	sub, err := subscriber.Subscribe(ctx, TopicResponses)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		queue:   queue,
		sub:     sub,
		timeout: timeout,
		newID:   func() string { return uuid.New().String() },
		waiters: make(map[string]chan json.RawMessage),
		done:    make(chan struct{}),
	}
	go c.route()
	return c, nil
}

func (c *Client) route() {
	defer close(c.done)
	for msg := range c.sub.Messages() {
		c.mu.Lock()
		w, ok := c.waiters[msg.Key]
		if ok {
			delete(c.waiters, msg.Key)
		}
		c.mu.Unlock()

		if !ok {
			slog.Debug("dropping response without waiter", "correlation_id", msg.Key)
			continue
		}
		w <- msg.Value
	}

	c.mu.Lock()
	c.closed = true
	for id, w := range c.waiters {
		close(w)
		delete(c.waiters, id)
	}
	c.mu.Unlock()
}

// Call sends a command of kind with payload and returns the raw response
// envelope. It fails with ErrTimeout when no response arrives in time and
// with ErrClosed once the client is closed.
func (c *Client) Call(ctx context.Context, kind command.Kind, payload any) (json.RawMessage, error) {
	id := c.newID()
	env, err := command.NewEnvelope(kind, payload, id)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	// Buffered so route never blocks on a waiter that already gave up.
	w := make(chan json.RawMessage, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.waiters[id] = w
	c.mu.Unlock()
	defer c.forget(id)

	if err := c.queue.Enqueue(ctx, raw); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-w:
		if !ok {
			return nil, ErrClosed
		}
		return resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s %s", ErrTimeout, kind, id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.waiters, id)
	c.mu.Unlock()
}

// Pending reports the number of callers waiting for a response.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Close stops routing responses and fails pending calls with ErrClosed.
func (c *Client) Close() error {
	err := c.sub.Close()
	<-c.done
	return err
}
