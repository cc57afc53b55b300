package assembler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/agentcore/event"
	"goa.design/agentcore/message"
)

type fakeStreamer struct {
	events []StreamEvent
	idx    int
	final  message.AssistantMessage
	err    error
}

func (f *fakeStreamer) Recv(ctx context.Context) (StreamEvent, error) {
	if f.idx >= len(f.events) {
		// Exhausted fixtures: block until the caller cancels ctx, so tests
		// that rely on mid-stream abort don't race a synthetic "no more
		// events" transport error against the real cancellation.
		<-ctx.Done()
		return StreamEvent{}, ctx.Err()
	}
	ev := f.events[f.idx]
	f.idx++
	return ev, nil
}

func (f *fakeStreamer) Result(ctx context.Context) (message.AssistantMessage, error) {
	return f.final, f.err
}

func (f *fakeStreamer) Close() error { return nil }

func fixedClock() time.Time { return time.Unix(0, 0) }

func drain(t *testing.T, c *event.Consumer) []event.Kind {
	t.Helper()
	var kinds []event.Kind
	ctx := context.Background()
	for {
		ev, ok := c.Next(ctx)
		if !ok {
			return kinds
		}
		kinds = append(kinds, ev.Kind)
		if ev.Kind == event.KindMessageEnd {
			return kinds
		}
	}
}

func TestAssembleHappyPath(t *testing.T) {
	final := message.AssistantMessage{
		ID:         "m1",
		Content:    []message.AssistantPart{message.TextPart{Text: "hello"}},
		StopReason: message.StopEnd,
	}
	streamer := &fakeStreamer{
		events: []StreamEvent{
			{Kind: EventStart, Partial: message.AssistantMessage{ID: "m1"}},
			{Kind: EventTextDelta, Partial: message.AssistantMessage{ID: "m1", Content: []message.AssistantPart{message.TextPart{Text: "hel"}}}},
			{Kind: EventDone},
		},
		final: final,
	}

	s := event.New()
	c := s.NewConsumer()

	go func() {
		_, _ = Assemble(context.Background(), s, streamer, fixedClock)
	}()

	kinds := drain(t, c)
	assert.Equal(t, []event.Kind{event.KindMessageStart, event.KindMessageUpdate, event.KindMessageEnd}, kinds)
}

func TestAssembleNoStartBeforeDoneEmitsSyntheticStart(t *testing.T) {
	final := message.AssistantMessage{ID: "m1", StopReason: message.StopEnd}
	streamer := &fakeStreamer{
		events: []StreamEvent{{Kind: EventDone}},
		final:  final,
	}

	s := event.New()
	c := s.NewConsumer()

	resultCh := make(chan message.AssistantMessage, 1)
	go func() {
		m, _ := Assemble(context.Background(), s, streamer, fixedClock)
		resultCh <- m
	}()

	kinds := drain(t, c)
	assert.Equal(t, []event.Kind{event.KindMessageStart, event.KindMessageEnd}, kinds)

	got := <-resultCh
	assert.Equal(t, message.StopEnd, got.StopReason)
}

func TestAssembleAbortMidStreamPreservesPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	streamer := &fakeStreamer{
		events: []StreamEvent{
			{Kind: EventStart, Partial: message.AssistantMessage{ID: "m1"}},
			{Kind: EventTextDelta, Partial: message.AssistantMessage{
				ID:      "m1",
				Content: []message.AssistantPart{message.TextPart{Text: "partial text"}},
			}},
		},
	}

	s := event.New()
	c := s.NewConsumer()

	resultCh := make(chan message.AssistantMessage, 1)
	go func() {
		// The fixture holds two events; the third Recv blocks on ctx until
		// the test cancels it after observing both.
		m, _ := Assemble(ctx, s, streamer, fixedClock)
		resultCh <- m
	}()

	first, ok := c.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, event.KindMessageStart, first.Kind)
	second, ok := c.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, event.KindMessageUpdate, second.Kind)

	cancel()

	got := <-resultCh
	assert.Equal(t, message.StopAborted, got.StopReason)
	assert.Equal(t, "Request was aborted", got.ErrorMessage)
	assert.Equal(t, []message.AssistantPart{message.TextPart{Text: "partial text"}}, got.Content)
}
