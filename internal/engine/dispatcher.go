package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/Mishragini/OpiniXchange/internal/bus"
	"github.com/Mishragini/OpiniXchange/internal/command"
	"github.com/Mishragini/OpiniXchange/internal/metrics"
)

const (
	msgUnauthorized = "unauthorized"
	msgInternal     = "internal error"
)

var errPanic = errors.New("handler panicked")

// Dispatcher is the engine's single consumer. It pops one envelope at a
// time, executes it to completion and publishes its response before popping
// the next. Running more than one Dispatcher over the same Engine or queue
// breaks the engine's consistency.
type Dispatcher struct {
	engine    *Engine
	queue     bus.Queue
	publisher bus.Publisher
	backoff   time.Duration
	log       *slog.Logger
}

// NewDispatcher wires engine to a request queue and a publisher.
func NewDispatcher(engine *Engine, queue bus.Queue, publisher bus.Publisher) *Dispatcher {
	return &Dispatcher{
		engine:    engine,
		queue:     queue,
		publisher: publisher,
		backoff:   500 * time.Millisecond,
		log:       slog.Default().With("component", "dispatcher"),
	}
}

// Run consumes the queue until ctx is cancelled. Dequeue failures are
// logged and retried after a short backoff.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info("dispatcher started")
	for {
		raw, err := d.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				d.log.Info("dispatcher stopped")
				return nil
			}
			metrics.DequeueErrors.Inc()
			d.log.Warn("dequeue failed", "err", err)
			select {
			case <-time.After(d.backoff):
				continue
			case <-ctx.Done():
				d.log.Info("dispatcher stopped")
				return nil
			}
		}
		d.Process(ctx, raw)
	}
}

// Process executes one encoded envelope and publishes its response and
// broadcasts. It never panics.
func (d *Dispatcher) Process(ctx context.Context, raw []byte) {
	var env command.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		d.log.Warn("dropping malformed envelope", "err", err, "size", len(raw))
		return
	}
	log := d.log.With("type", env.Type, "correlation_id", env.CorrelationID)
	start := time.Now()

	out, err := d.execute(&env)
	outcome := classify(err)
	label := string(env.Type)
	if errors.Is(err, command.ErrUnknownCommand) {
		label = "unknown"
	}
	metrics.CommandsTotal.WithLabelValues(label, outcome).Inc()
	metrics.CommandLatency.WithLabelValues(label).Observe(time.Since(start).Seconds())

	var resp *command.Response
	if err != nil {
		if outcome != "panic" {
			log.Warn("command failed", "err", err)
		}
		resp = command.Failure(env.Type, failureMessage(err))
	} else {
		resp = command.Success(env.Type, out.Data)
		log.Debug("command handled", "duration", time.Since(start))
	}

	if err := bus.PublishJSON(ctx, d.publisher, bus.TopicResponses, env.CorrelationID, resp); err != nil {
		metrics.PublishFailures.WithLabelValues(bus.TopicResponses).Inc()
		log.Error("publish response failed", "err", err)
	}
	if out == nil {
		return
	}
	for _, b := range out.Events {
		if err := bus.PublishJSON(ctx, d.publisher, b.Topic, b.Key, b.Event); err != nil {
			metrics.PublishFailures.WithLabelValues(b.Topic).Inc()
			log.Error("publish event failed", "topic", b.Topic, "key", b.Key, "err", err)
		}
	}
}

// execute decodes and runs one envelope, converting a handler panic into
// errPanic.
func (d *Dispatcher) execute(env *command.Envelope) (out *Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("handler panic",
				"type", env.Type,
				"correlation_id", env.CorrelationID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			out, err = nil, errPanic
		}
	}()

	cmd, err := command.Decode(env)
	if err != nil {
		return nil, err
	}
	return d.engine.Handle(cmd)
}

func classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errPanic):
		return "panic"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, command.ErrUnknownCommand), errors.Is(err, command.ErrInvalidPayload):
		return "invalid"
	default:
		return "rejected"
	}
}

// failureMessage is the client-facing reason for err. Auth failures and
// panics are reported generically.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, errPanic):
		return msgInternal
	case errors.Is(err, ErrUnauthorized):
		return msgUnauthorized
	default:
		return err.Error()
	}
}
