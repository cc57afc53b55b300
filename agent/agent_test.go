package agent

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/agentcore/assembler"
	"goa.design/agentcore/event"
	"goa.design/agentcore/message"
)

var errStreamEnded = errors.New("fake stream ended")

func fixedClock() time.Time { return time.Unix(0, 0) }

func idGen() func() string {
	var n int64
	return func() string {
		return fmt.Sprintf("id%d", atomic.AddInt64(&n, 1))
	}
}

type fakeStreamer struct {
	events []assembler.StreamEvent
	idx    int
	final  message.AssistantMessage
	block  chan struct{} // if non-nil, Recv blocks on this after emitting events until closed
}

func (f *fakeStreamer) Recv(ctx context.Context) (assembler.StreamEvent, error) {
	if f.idx < len(f.events) {
		ev := f.events[f.idx]
		f.idx++
		return ev, nil
	}
	if f.block != nil {
		select {
		case <-f.block:
			return assembler.StreamEvent{}, errStreamEnded
		case <-ctx.Done():
			return assembler.StreamEvent{}, ctx.Err()
		}
	}
	<-ctx.Done()
	return assembler.StreamEvent{}, ctx.Err()
}

func (f *fakeStreamer) Result(ctx context.Context) (message.AssistantMessage, error) {
	return f.final, nil
}

func (f *fakeStreamer) Close() error { return nil }

func textOnlyStreamer(id, text string) *fakeStreamer {
	final := message.AssistantMessage{
		ID:         id,
		Content:    []message.AssistantPart{message.TextPart{Text: text}},
		StopReason: message.StopEnd,
	}
	return &fakeStreamer{
		events: []assembler.StreamEvent{
			{Kind: assembler.EventStart, Partial: message.AssistantMessage{ID: id}},
			{Kind: assembler.EventDone, Partial: final},
		},
		final: final,
	}
}

// scriptedTransport returns one streamer per Stream call, in order; the last
// streamer repeats for any call beyond the script's length.
type scriptedTransport struct {
	streamers []*fakeStreamer
	idx       int
}

func (s *scriptedTransport) Stream(ctx context.Context, history []message.Message) (assembler.Streamer, error) {
	i := s.idx
	if i >= len(s.streamers) {
		i = len(s.streamers) - 1
	}
	s.idx++
	return s.streamers[i], nil
}

func drainN(c *event.Consumer, n int) []event.AgentEvent {
	var out []event.AgentEvent
	ctx := context.Background()
	for i := 0; i < n; i++ {
		ev, ok := c.Next(ctx)
		if !ok {
			return out
		}
		out = append(out, ev)
	}
	return out
}

// TestPromptBoundaryBehaviorTenEventSequence implements §8 boundary
// behavior 10: a fresh agent, empty tool set, immediate stopReason=end
// produces exactly agent_start..agent_end with no tool events.
func TestPromptBoundaryBehaviorTenEventSequence(t *testing.T) {
	transport := &scriptedTransport{streamers: []*fakeStreamer{textOnlyStreamer("asst1", "hello")}}
	a := New(transport, WithClock(fixedClock), WithIDGenerator(idGen()))

	unsub := a.Subscribe(func(event.AgentEvent) {})
	defer unsub()
	c := a.stream.NewConsumer()

	outcome, err := a.PromptText(context.Background(), "hi")
	require.NoError(t, err)
	require.Len(t, outcome.Appended, 2)

	events := drainN(c, 8)
	want := []event.Kind{
		event.KindAgentStart,
		event.KindTurnStart,
		event.KindMessageStart, event.KindMessageEnd, // user
		event.KindMessageStart, event.KindMessageEnd, // assistant
		event.KindTurnEnd,
		event.KindAgentEnd,
	}
	got := make([]event.Kind, len(events))
	for i, e := range events {
		got[i] = e.Kind
	}
	assert.Equal(t, want, got)
	assert.False(t, a.IsStreaming())
}

// TestPromptRejectsConcurrentPrompt covers the BusyError path: a second
// Prompt call while the first is still streaming must fail immediately.
func TestPromptRejectsConcurrentPrompt(t *testing.T) {
	block := make(chan struct{})
	st := &fakeStreamer{
		events: []assembler.StreamEvent{{Kind: assembler.EventStart, Partial: message.AssistantMessage{ID: "asst1"}}},
		final:  message.AssistantMessage{ID: "asst1", StopReason: message.StopEnd},
		block:  block,
	}
	transport := &scriptedTransport{streamers: []*fakeStreamer{st}}
	a := New(transport, WithClock(fixedClock), WithIDGenerator(idGen()))

	done := make(chan struct{})
	go func() {
		_, _ = a.PromptText(context.Background(), "hi")
		close(done)
	}()

	// Give the first run a chance to claim isStreaming.
	for !a.IsStreaming() {
		time.Sleep(time.Millisecond)
	}

	_, err := a.PromptText(context.Background(), "again")
	assert.ErrorAs(t, err, new(BusyError))

	close(block)
	<-done
}

// TestContinueEmptyHistoryErrors covers §8.11.
func TestContinueEmptyHistoryErrors(t *testing.T) {
	a := New(&scriptedTransport{}, WithClock(fixedClock), WithIDGenerator(idGen()))
	_, err := a.Continue(context.Background())
	assert.ErrorIs(t, err, ErrEmptyHistory)
}

// TestContinueOnAssistantWithoutQueueErrors and
// TestContinueOnAssistantConsumesQueuedSteering cover §8.12.
func TestContinueOnAssistantWithoutQueueErrors(t *testing.T) {
	transport := &scriptedTransport{streamers: []*fakeStreamer{textOnlyStreamer("asst1", "done")}}
	a := New(transport, WithClock(fixedClock), WithIDGenerator(idGen()))

	_, err := a.PromptText(context.Background(), "hi")
	require.NoError(t, err)

	_, err = a.Continue(context.Background())
	assert.ErrorIs(t, err, ErrContinueOnAssistant)
}

func TestContinueOnAssistantConsumesQueuedSteering(t *testing.T) {
	transport := &scriptedTransport{streamers: []*fakeStreamer{
		textOnlyStreamer("asst1", "first"),
		textOnlyStreamer("asst2", "second"),
	}}
	a := New(transport, WithClock(fixedClock), WithIDGenerator(idGen()))

	_, err := a.PromptText(context.Background(), "hi")
	require.NoError(t, err)

	a.Steer(message.UserMessage{ID: "steer1", Content: []message.UserPart{message.TextUserPart{Text: "instead do this"}}})

	outcome, err := a.Continue(context.Background())
	require.NoError(t, err)

	var sawSteer bool
	for _, m := range outcome.Appended {
		if um, ok := m.(message.UserMessage); ok && um.ID == "steer1" {
			sawSteer = true
		}
	}
	assert.True(t, sawSteer)
}

// TestAbortSignalsRunCancelToken confirms Abort cancels the run-wide token,
// producing an aborted assistant message.
func TestAbortSignalsRunCancelToken(t *testing.T) {
	block := make(chan struct{})
	st := &fakeStreamer{
		events: []assembler.StreamEvent{{Kind: assembler.EventStart, Partial: message.AssistantMessage{ID: "asst1"}}},
		final:  message.AssistantMessage{ID: "asst1", StopReason: message.StopEnd},
		block:  block,
	}
	transport := &scriptedTransport{streamers: []*fakeStreamer{st}}
	a := New(transport, WithClock(fixedClock), WithIDGenerator(idGen()))

	done := make(chan struct{})
	var outcome Outcome
	go func() {
		outcome, _ = a.PromptText(context.Background(), "hi")
		close(done)
	}()

	for !a.IsStreaming() {
		time.Sleep(time.Millisecond)
	}
	a.Abort()
	<-done

	require.Len(t, outcome.Appended, 2)
	asst, ok := outcome.Appended[1].(message.AssistantMessage)
	require.True(t, ok)
	assert.Equal(t, message.StopAborted, asst.StopReason)
}
