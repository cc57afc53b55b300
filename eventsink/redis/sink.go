// Package redis implements an event-replay sink (spec "Buffered events
// during replay"): it republishes an Agent's AgentEvents onto a Redis
// stream, and replays a buffered stream back into a fresh Agent via
// EmitExternal so a reconnecting controller can reconstruct UI state. The
// XAdd/XRange/TTL usage here plays the role the teacher fills with its own
// goa.design/pulse-backed result-stream manager.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"goa.design/agentcore/agent"
	"goa.design/agentcore/event"
)

// DefaultTTL matches the teacher's default mapping TTL for ephemeral,
// session-scoped Redis state.
const DefaultTTL = 5 * time.Minute

// DefaultMaxLen bounds a session's event stream so a forgotten/never-closed
// session does not grow Redis memory unboundedly; XAdd trims approximately
// (MAXLEN ~) rather than exactly, trading strict bounding for write throughput.
const DefaultMaxLen = 10_000

// Sink republishes one Agent's events onto a Redis stream.
type Sink struct {
	rdb       *goredis.Client
	keyPrefix string
	ttl       time.Duration
	maxLen    int64
}

// Option configures a Sink at construction.
type Option func(*Sink)

// WithKeyPrefix overrides the default "agentcore:events:" stream key prefix.
func WithKeyPrefix(p string) Option { return func(s *Sink) { s.keyPrefix = p } }

// WithTTL overrides DefaultTTL for the Redis key backing a session's stream.
func WithTTL(d time.Duration) Option { return func(s *Sink) { s.ttl = d } }

// WithMaxLen overrides DefaultMaxLen.
func WithMaxLen(n int64) Option { return func(s *Sink) { s.maxLen = n } }

// NewSink constructs a Sink backed by rdb.
func NewSink(rdb *goredis.Client, opts ...Option) *Sink {
	s := &Sink{rdb: rdb, keyPrefix: "agentcore:events:", ttl: DefaultTTL, maxLen: DefaultMaxLen}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Sink) streamKey(sessionID string) string {
	return fmt.Sprintf("%s%s", s.keyPrefix, sessionID)
}

// Attach subscribes to a and republishes every event it produces onto
// sessionID's Redis stream, refreshing the key's TTL on each write so an
// active session never expires mid-run. Publish failures are logged via
// onErr (nil is a valid no-op) rather than surfaced to the agent: a replay
// sink outage must not interrupt a live run. The returned function detaches
// the subscription.
func (s *Sink) Attach(ctx context.Context, sessionID string, a *agent.Agent, onErr func(error)) func() {
	return a.Subscribe(func(ev event.AgentEvent) {
		if err := s.Publish(ctx, sessionID, ev); err != nil && onErr != nil {
			onErr(err)
		}
	})
}

// Publish appends ev to sessionID's Redis stream.
func (s *Sink) Publish(ctx context.Context, sessionID string, ev event.AgentEvent) error {
	payload, err := encodeEvent(ev)
	if err != nil {
		return fmt.Errorf("eventsink/redis: encode event: %w", err)
	}
	key := s.streamKey(sessionID)
	if err := s.rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: key,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{"data": payload},
	}).Err(); err != nil {
		return fmt.Errorf("eventsink/redis: xadd: %w", err)
	}
	if s.ttl > 0 {
		if err := s.rdb.Expire(ctx, key, s.ttl).Err(); err != nil {
			return fmt.Errorf("eventsink/redis: expire: %w", err)
		}
	}
	return nil
}

// Replay reads every buffered event for sessionID, in stream order, and
// re-injects it into dst via EmitExternal, reconstructing dst's local
// subscribers' view of a prior run without having participated in it.
func (s *Sink) Replay(ctx context.Context, sessionID string, dst *agent.Agent) error {
	msgs, err := s.rdb.XRange(ctx, s.streamKey(sessionID), "-", "+").Result()
	if err != nil {
		return fmt.Errorf("eventsink/redis: xrange: %w", err)
	}
	for _, m := range msgs {
		raw, ok := m.Values["data"].(string)
		if !ok {
			continue
		}
		ev, err := decodeEvent([]byte(raw))
		if err != nil {
			return err
		}
		if err := dst.EmitExternal(ctx, ev); err != nil {
			return fmt.Errorf("eventsink/redis: emit external: %w", err)
		}
	}
	return nil
}

// Discard removes sessionID's buffered events, for use once a replay
// consumer has fully caught up and no further reconnect is expected.
func (s *Sink) Discard(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, s.streamKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("eventsink/redis: del: %w", err)
	}
	return nil
}
