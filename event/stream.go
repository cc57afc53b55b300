package event

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"goa.design/agentcore/message"
)

// ErrOverflow is returned by Publish when a bounded consumer could not drain
// in time and the pending event was not eligible for coalescing.
var ErrOverflow = errors.New("event: consumer overflow")

// Option configures a Stream at construction.
type Option func(*streamConfig)

type streamConfig struct {
	bufferSize   int
	drainBudget  time.Duration
	drainRetries int
}

// WithBufferSize bounds each consumer's pending-event queue to n. Once the
// queue is full, a message_update event for the same message ID as the
// queue's tail event is coalesced (replacing the tail) instead of growing
// the queue; any other event blocks the producer until the queue drains or
// the drain budget is exhausted, at which point Publish returns ErrOverflow.
// n <= 0 (the default) means strict, unbounded delivery: Publish never drops
// or coalesces an event.
func WithBufferSize(n int) Option {
	return func(c *streamConfig) { c.bufferSize = n }
}

// WithDrainBudget bounds how long Publish waits for a full bounded consumer
// to drain before giving up and returning ErrOverflow. Defaults to 2s spread
// over a handful of retries, paced by a rate.Limiter so a consumer that is
// merely slow (not stuck) gets several chances to catch up.
func WithDrainBudget(d time.Duration) Option {
	return func(c *streamConfig) { c.drainBudget = d }
}

// Stream is a single-producer, multi-consumer ordered channel of AgentEvent.
// Call NewConsumer before the producer starts; Publish delivers to every
// consumer registered at call time. Close terminates the stream: further
// Publish calls panic, matching the contract that exactly one agent_end is
// ever produced and it is always the last event.
type Stream struct {
	cfg streamConfig

	mu        sync.Mutex
	consumers []*Consumer
	closed    bool
}

// New constructs a Stream. Default configuration is strict unbounded
// delivery, matching §4.1's "unbounded buffering is permitted" allowance.
func New(opts ...Option) *Stream {
	cfg := streamConfig{drainBudget: 2 * time.Second, drainRetries: 8}
	for _, o := range opts {
		o(&cfg)
	}
	return &Stream{cfg: cfg}
}

// Consumer receives events from a Stream in publish order.
type Consumer struct {
	stream *Stream

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []AgentEvent
	closed bool
}

// NewConsumer registers a new consumer. Must be called before the producer
// begins publishing events the caller cares not to miss.
func (s *Stream) NewConsumer() *Consumer {
	c := &Consumer{stream: s}
	c.cond = sync.NewCond(&c.mu)

	s.mu.Lock()
	s.consumers = append(s.consumers, c)
	s.mu.Unlock()
	return c
}

// Next blocks until an event is available or the stream has closed and the
// queue has drained, in which case ok is false.
func (c *Consumer) Next(ctx context.Context) (ev AgentEvent, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.queue) == 0 && !c.closed {
		if ctx.Err() != nil {
			return AgentEvent{}, false
		}
		c.cond.Wait()
	}
	if len(c.queue) == 0 {
		return AgentEvent{}, false
	}
	ev = c.queue[0]
	c.queue = c.queue[1:]
	c.cond.Signal()
	return ev, true
}

// Close detaches this consumer; a blocked Next returns ok=false.
func (c *Consumer) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cond.Broadcast()
}

func (c *Consumer) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// coalesceMessageUpdate replaces the queue's tail event with ev when both are
// message_update events for the same message ID, and reports whether it did.
func (c *Consumer) coalesceMessageUpdate(ev AgentEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return false
	}
	tail := &c.queue[len(c.queue)-1]
	if tail.Kind != KindMessageUpdate || ev.Kind != KindMessageUpdate {
		return false
	}
	if tail.Message == nil || ev.Message == nil {
		return false
	}
	if message.ID(tail.Message.Message) != message.ID(ev.Message.Message) {
		return false
	}
	*tail = ev
	return true
}

// Publish delivers ev to every registered consumer, in the order Publish
// was called. It blocks on a bounded, full consumer up to the stream's drain
// budget before returning ErrOverflow; unbounded (default) consumers never
// block here beyond the mutex critical section.
func (s *Stream) Publish(ctx context.Context, ev AgentEvent) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		panic("event: Publish called after stream closed")
	}
	consumers := make([]*Consumer, len(s.consumers))
	copy(consumers, s.consumers)
	s.mu.Unlock()

	for _, c := range consumers {
		if err := s.deliver(ctx, c, ev); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stream) deliver(ctx context.Context, c *Consumer, ev AgentEvent) error {
	if s.cfg.bufferSize <= 0 {
		c.mu.Lock()
		c.queue = append(c.queue, ev)
		c.mu.Unlock()
		c.cond.Signal()
		return nil
	}

	if c.len() < s.cfg.bufferSize {
		c.mu.Lock()
		c.queue = append(c.queue, ev)
		c.mu.Unlock()
		c.cond.Signal()
		return nil
	}

	if ev.Kind == KindMessageUpdate && c.coalesceMessageUpdate(ev) {
		return nil
	}

	limiter := rate.NewLimiter(rate.Every(s.cfg.drainBudget/time.Duration(s.cfg.drainRetries+1)), 1)
	deadline := time.Now().Add(s.cfg.drainBudget)
	for c.len() >= s.cfg.bufferSize {
		if time.Now().After(deadline) {
			return ErrOverflow
		}
		if err := limiter.Wait(ctx); err != nil {
			return ErrOverflow
		}
		if ev.Kind == KindMessageUpdate && c.coalesceMessageUpdate(ev) {
			return nil
		}
	}
	c.mu.Lock()
	c.queue = append(c.queue, ev)
	c.mu.Unlock()
	c.cond.Signal()
	return nil
}

// Close terminates the stream and every registered consumer. Must be called
// exactly once, after the terminal agent_end event has been published.
func (s *Stream) Close() {
	s.mu.Lock()
	s.closed = true
	consumers := make([]*Consumer, len(s.consumers))
	copy(consumers, s.consumers)
	s.mu.Unlock()

	for _, c := range consumers {
		c.Close()
	}
}
