package bus

import (
	"context"
	"log/slog"
	"sync"
)

// MemoryBus implements Bus in process. Used for testing and single-process
// development runs.
type MemoryBus struct {
	queue chan []byte

	mu     sync.RWMutex
	subs   map[string]map[*memorySubscription]struct{}
	closed bool
}

// NewMemoryBus creates a bus whose queue holds up to capacity envelopes.
func NewMemoryBus(capacity int) *MemoryBus {
	return &MemoryBus{
		queue: make(chan []byte, capacity),
		subs:  make(map[string]map[*memorySubscription]struct{}),
	}
}

func (b *MemoryBus) Enqueue(ctx context.Context, envelope []byte) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	select {
	case b.queue <- envelope:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemoryBus) Dequeue(ctx context.Context) ([]byte, error) {
	select {
	case env := <-b.queue:
		return env, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Publish never blocks. A subscriber whose buffer is full misses the
// message.
func (b *MemoryBus) Publish(_ context.Context, topic, key string, value []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	msg := Message{Topic: topic, Key: key, Value: append([]byte(nil), value...)}
	for s := range b.subs[topic] {
		select {
		case s.out <- msg:
		default:
			slog.Warn("subscriber buffer full, dropping message", "topic", topic, "key", key)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, topics ...string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	s := &memorySubscription{bus: b, topics: topics, out: make(chan Message, 1024)}
	for _, t := range topics {
		if b.subs[t] == nil {
			b.subs[t] = make(map[*memorySubscription]struct{})
		}
		b.subs[t][s] = struct{}{}
	}
	return s, nil
}

// Close ends every subscription and rejects further use.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, set := range b.subs {
		for s := range set {
			s.closeLocked()
		}
	}
	b.subs = make(map[string]map[*memorySubscription]struct{})
	return nil
}

type memorySubscription struct {
	bus    *MemoryBus
	topics []string
	out    chan Message
	done   bool
}

func (s *memorySubscription) Messages() <-chan Message { return s.out }

func (s *memorySubscription) Close() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	for _, t := range s.topics {
		delete(s.bus.subs[t], s)
	}
	s.closeLocked()
	return nil
}

// closeLocked requires bus.mu held for writing.
func (s *memorySubscription) closeLocked() {
	if !s.done {
		s.done = true
		close(s.out)
	}
}
