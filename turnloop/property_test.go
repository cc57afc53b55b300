package turnloop

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"goa.design/agentcore/assembler"
	"goa.design/agentcore/event"
	"goa.design/agentcore/message"
	"goa.design/agentcore/tools"
)

// turnFixture is one generated single-turn run: a batch of toolCallIDs the
// first transport call emits, and whether that turn ends normally (with a
// second transport call producing a final text reply) or fails mid-batch
// (error/aborted stopReason, no second transport call).
type turnFixture struct {
	toolIDs []string
	failure bool
	aborted bool
}

func genTurnFixture() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, 5),
		gen.Bool(),
		gen.Bool(),
	).Map(func(vals []any) turnFixture {
		n := vals[0].(int)
		failure := vals[1].(bool)
		aborted := vals[2].(bool)
		ids := make([]string, n)
		for i := range ids {
			ids[i] = fmt.Sprintf("call%d", i)
		}
		// A failure requires at least one in-flight tool call; with zero
		// calls there is nothing to fail mid-batch, so fall back to the
		// success path.
		if n == 0 {
			failure = false
		}
		return turnFixture{toolIDs: ids, failure: failure, aborted: failure && aborted}
	})
}

func noopToolRegistry(ids []string) *tools.Registry {
	descs := make([]tools.Descriptor, len(ids))
	for i, id := range ids {
		descs[i] = tools.Descriptor{
			Name:        tools.Ident(id),
			Concurrency: tools.Shared,
			Execute: func(_ context.Context, call tools.Call) (tools.Result, error) {
				return tools.Result{Content: "ok"}, nil
			},
		}
	}
	return tools.NewRegistry(descs...)
}

func failureStreamer(id string, calls []message.ToolCallPart, reason message.StopReason, errMsg string) *fakeStreamer {
	parts := make([]message.AssistantPart, len(calls))
	for i, c := range calls {
		parts[i] = c
	}
	final := message.AssistantMessage{ID: id, Content: parts, StopReason: reason, ErrorMessage: errMsg}
	return &fakeStreamer{
		events: []assembler.StreamEvent{
			{Kind: assembler.EventStart, Partial: message.AssistantMessage{ID: id}},
			{Kind: assembler.EventError, Partial: final, ErrorMessage: errMsg},
		},
		final: final,
	}
}

func buildFixtureTransport(tc turnFixture) *scriptedTransport {
	calls := make([]message.ToolCallPart, len(tc.toolIDs))
	for i, id := range tc.toolIDs {
		calls[i] = message.ToolCallPart{ID: id, Name: id, Arguments: map[string]any{}}
	}
	if tc.failure {
		reason := message.StopError
		errMsg := "rate limited"
		if tc.aborted {
			reason = message.StopAborted
			errMsg = "Request was aborted"
		}
		return &scriptedTransport{streamers: []*fakeStreamer{failureStreamer("asst1", calls, reason, errMsg)}}
	}
	streamers := []*fakeStreamer{toolCallStreamer("asst1", calls...)}
	if len(tc.toolIDs) > 0 {
		streamers = append(streamers, textOnlyStreamer("asst2", "done"))
	}
	return &scriptedTransport{streamers: streamers}
}

func runFixture(tc turnFixture) (Outcome, []event.AgentEvent, error) {
	transport := buildFixtureTransport(tc)
	registry := noopToolRegistry(tc.toolIDs)

	s := event.New()
	c := s.NewConsumer()
	var events []event.AgentEvent
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			ev, ok := c.Next(context.Background())
			if !ok {
				return
			}
			events = append(events, ev)
		}
	}()

	user := message.UserMessage{ID: "u1", Content: []message.UserPart{message.TextUserPart{Text: "go"}}}
	out, err := Run(context.Background(), s, Config{
		Transport: transport,
		Registry:  registry,
		Now:       fixedClock,
		NewID:     idGen(),
	}, nil, []message.Message{user})
	s.Close()
	<-done
	return out, events, err
}

// TestToolResultPairingAcrossTurnsProperty verifies Invariant M1: every
// toolCall in an appended assistant message is immediately followed, in
// order, by a toolResult with a matching ToolCallID, on the success path.
func TestToolResultPairingAcrossTurnsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("tool results immediately follow their assistant message in call order", prop.ForAll(
		func(tc turnFixture) bool {
			tc.failure = false
			tc.aborted = false
			out, _, err := runFixture(tc)
			if err != nil {
				return false
			}
			for i, m := range out.Appended {
				asst, ok := m.(message.AssistantMessage)
				if !ok {
					continue
				}
				calls := asst.ToolCalls()
				if len(calls) == 0 {
					continue
				}
				if i+len(calls) >= len(out.Appended) {
					return false
				}
				for j, call := range calls {
					res, ok := out.Appended[i+1+j].(message.ToolResultMessage)
					if !ok || res.ToolCallID != call.ID {
						return false
					}
				}
			}
			return true
		},
		genTurnFixture(),
	))

	properties.TestingRun(t)
}

// TestPlaceholderSynthesisProperty verifies Invariant M1's error/abort side:
// when a turn ends in error or aborted after emitting tool calls, every one
// of those calls gets a synthesized placeholder toolResult, immediately
// after the assistant message, before agent_end.
func TestPlaceholderSynthesisProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("every unresolved tool call gets a placeholder result on error/abort", prop.ForAll(
		func(tc turnFixture) bool {
			out, _, err := runFixture(tc)
			if err != nil {
				return false
			}
			// The assistant message is appended, then exactly one
			// placeholder per call, in order, and nothing else follows.
			idx := -1
			for i, m := range out.Appended {
				if _, ok := m.(message.AssistantMessage); ok {
					idx = i
				}
			}
			if idx == -1 || idx+len(tc.toolIDs) != len(out.Appended)-1 {
				return false
			}
			for j, id := range tc.toolIDs {
				res, ok := out.Appended[idx+1+j].(message.ToolResultMessage)
				if !ok || res.ToolCallID != id || !res.IsError {
					return false
				}
			}
			return true
		},
		genTurnFixture().SuchThat(func(tc turnFixture) bool { return tc.failure }),
	))

	properties.TestingRun(t)
}

// TestAgentEndExactlyOnceAndLastProperty verifies Run publishes exactly one
// agent_end, and that it is the last event on the stream, regardless of
// whether the run succeeded, errored, or was aborted.
func TestAgentEndExactlyOnceAndLastProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("agent_end is emitted exactly once, as the final event", prop.ForAll(
		func(tc turnFixture) bool {
			_, events, err := runFixture(tc)
			if err != nil {
				return false
			}
			if len(events) == 0 {
				return false
			}
			count := 0
			for _, ev := range events {
				if ev.Kind == event.KindAgentEnd {
					count++
				}
			}
			return count == 1 && events[len(events)-1].Kind == event.KindAgentEnd
		},
		genTurnFixture(),
	))

	properties.TestingRun(t)
}

// drainingSource always returns an empty slice, regardless of how many times
// Drain is called, and never advances any hidden state.
type drainingSource struct {
	calls int
}

func (d *drainingSource) Drain(QueueMode) []message.Message {
	d.calls++
	return nil
}

// TestEmptyDrainIdempotenceProperty verifies draining an empty queue any
// number of times yields the empty list every time and does not change the
// run's outcome.
func TestEmptyDrainIdempotenceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("draining an always-empty follow-up source never extends the run", prop.ForAll(
		func(drains int) bool {
			source := &drainingSource{}
			for i := 0; i < drains; i++ {
				if len(source.Drain(DrainAll)) != 0 {
					return false
				}
			}
			transport := &scriptedTransport{streamers: []*fakeStreamer{textOnlyStreamer("asst1", "hi")}}

			s := event.New()
			c := s.NewConsumer()
			go func() {
				for {
					if _, ok := c.Next(context.Background()); !ok {
						return
					}
				}
			}()

			user := message.UserMessage{ID: "u1", Content: []message.UserPart{message.TextUserPart{Text: "go"}}}
			out, err := Run(context.Background(), s, Config{
				Transport:      transport,
				Registry:       tools.NewRegistry(),
				FollowUpSource: source,
				FollowUp:       DrainAll,
				Now:            fixedClock,
				NewID:          idGen(),
			}, nil, []message.Message{user})
			s.Close()
			if err != nil {
				return false
			}
			// user + one assistant reply, nothing synthesized from the
			// empty follow-up queue.
			return len(out.Appended) == 2 && source.calls >= 1
		},
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}
