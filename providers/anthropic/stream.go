package anthropic

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"goa.design/agentcore/assembler"
	"goa.design/agentcore/message"
)

// streamer adapts an Anthropic Messages SSE stream to assembler.Streamer,
// translating content-block lifecycle events into assembler.StreamEvents and
// assembling the running AssistantMessage as it goes.
type streamer struct {
	cancel context.CancelFunc
	sdk    *ssestream.Stream[sdk.MessageStreamEventUnion]

	events chan assembler.StreamEvent

	mu    sync.Mutex
	final message.AssistantMessage
}

func newStreamer(ctx context.Context, s *ssestream.Stream[sdk.MessageStreamEventUnion]) *streamer {
	cctx, cancel := context.WithCancel(ctx)
	st := &streamer{cancel: cancel, sdk: s, events: make(chan assembler.StreamEvent, 32)}
	go st.run(cctx)
	return st
}

func (s *streamer) Recv(ctx context.Context) (assembler.StreamEvent, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			return assembler.StreamEvent{}, ctx.Err()
		}
		return ev, nil
	case <-ctx.Done():
		return assembler.StreamEvent{}, ctx.Err()
	}
}

func (s *streamer) Result(context.Context) (message.AssistantMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.final, nil
}

func (s *streamer) Close() error {
	s.cancel()
	if s.sdk == nil {
		return nil
	}
	return s.sdk.Close()
}

func (s *streamer) setFinal(m message.AssistantMessage) {
	s.mu.Lock()
	s.final = m
	s.mu.Unlock()
}

// run drains the SDK stream, building up an AssistantMessage block by block
// and emitting one assembler.StreamEvent per lifecycle transition.
func (s *streamer) run(ctx context.Context) {
	defer close(s.events)

	b := &builder{}
	emit := func(ev assembler.StreamEvent) bool {
		select {
		case s.events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for s.sdk.Next() {
		if ctx.Err() != nil {
			return
		}
		if !b.handle(s.sdk.Current(), emit) {
			return
		}
	}
	if err := s.sdk.Err(); err != nil {
		s.setFinal(b.snapshot())
		emit(assembler.StreamEvent{Kind: assembler.EventError, ErrorMessage: err.Error()})
		return
	}
	s.setFinal(b.snapshot())
	emit(assembler.StreamEvent{Kind: assembler.EventDone})
}

// builder accumulates content blocks across SSE events into an
// AssistantMessage, indexed by Anthropic's content_block index.
type builder struct {
	id    string
	model string
	usage message.Usage

	parts    []message.AssistantPart
	toolJSON map[int]*strings.Builder

	stopReason string
}

func (b *builder) snapshot() message.AssistantMessage {
	parts := append([]message.AssistantPart(nil), b.parts...)
	return message.AssistantMessage{
		ID:         b.id,
		Content:    parts,
		Provider:   "anthropic",
		Model:      b.model,
		Usage:      b.usage,
		StopReason: mapStopReason(b.stopReason),
	}
}

func (b *builder) handle(event sdk.MessageStreamEventUnion, emit func(assembler.StreamEvent) bool) bool {
	switch ev := event.AsAny().(type) {
	case sdk.MessageStartEvent:
		b.id = ev.Message.ID
		b.model = string(ev.Message.Model)
		b.usage.Input = int(ev.Message.Usage.InputTokens)
		b.usage.CacheRead = int(ev.Message.Usage.CacheReadInputTokens)
		b.usage.CacheWrite = int(ev.Message.Usage.CacheCreationInputTokens)
		return emit(assembler.StreamEvent{Kind: assembler.EventStart, Partial: b.snapshot()})

	case sdk.ContentBlockStartEvent:
		idx := int(ev.Index)
		switch blk := ev.ContentBlock.AsAny().(type) {
		case sdk.TextBlock:
			b.setPart(idx, message.TextPart{Text: blk.Text})
			return emit(assembler.StreamEvent{Kind: assembler.EventTextStart, Partial: b.snapshot()})
		case sdk.ThinkingBlock:
			b.setPart(idx, message.ThinkingPart{Text: blk.Thinking})
			return emit(assembler.StreamEvent{Kind: assembler.EventThinkingStart, Partial: b.snapshot()})
		case sdk.ToolUseBlock:
			b.setPart(idx, message.ToolCallPart{ID: blk.ID, Name: blk.Name})
			if b.toolJSON == nil {
				b.toolJSON = make(map[int]*strings.Builder)
			}
			b.toolJSON[idx] = &strings.Builder{}
			return emit(assembler.StreamEvent{
				Kind: assembler.EventToolCallStart, ToolCallID: blk.ID, ToolCallName: blk.Name,
				Partial: b.snapshot(),
			})
		}
		return true

	case sdk.ContentBlockDeltaEvent:
		idx := int(ev.Index)
		switch delta := ev.Delta.AsAny().(type) {
		case sdk.TextDelta:
			if delta.Text == "" {
				return true
			}
			if tp, ok := b.part(idx).(message.TextPart); ok {
				tp.Text += delta.Text
				b.setPart(idx, tp)
			}
			return emit(assembler.StreamEvent{Kind: assembler.EventTextDelta, TextDelta: delta.Text, Partial: b.snapshot()})
		case sdk.ThinkingDelta:
			if delta.Thinking == "" {
				return true
			}
			if tp, ok := b.part(idx).(message.ThinkingPart); ok {
				tp.Text += delta.Thinking
				b.setPart(idx, tp)
			}
			return emit(assembler.StreamEvent{Kind: assembler.EventThinkingDelta, ThinkingDelta: delta.Thinking, Partial: b.snapshot()})
		case sdk.InputJSONDelta:
			if delta.PartialJSON == "" {
				return true
			}
			if buf := b.toolJSON[idx]; buf != nil {
				buf.WriteString(delta.PartialJSON)
			}
			tc, _ := b.part(idx).(message.ToolCallPart)
			return emit(assembler.StreamEvent{
				Kind: assembler.EventToolCallDelta, ToolCallID: tc.ID, ToolCallName: tc.Name,
				ToolCallArgsDelta: delta.PartialJSON, Partial: b.snapshot(),
			})
		}
		return true

	case sdk.ContentBlockStopEvent:
		idx := int(ev.Index)
		switch p := b.part(idx).(type) {
		case message.TextPart:
			return emit(assembler.StreamEvent{Kind: assembler.EventTextEnd, Partial: b.snapshot()})
		case message.ThinkingPart:
			return emit(assembler.StreamEvent{Kind: assembler.EventThinkingEnd, Partial: b.snapshot()})
		case message.ToolCallPart:
			if buf := b.toolJSON[idx]; buf != nil {
				p.Arguments = parseArgs(buf.String())
				delete(b.toolJSON, idx)
				b.setPart(idx, p)
			}
			return emit(assembler.StreamEvent{Kind: assembler.EventToolCallEnd, ToolCallID: p.ID, ToolCallName: p.Name, Partial: b.snapshot()})
		}
		return true

	case sdk.MessageDeltaEvent:
		b.stopReason = string(ev.Delta.StopReason)
		b.usage.Output = int(ev.Usage.OutputTokens)
		b.usage.Total = b.usage.Input + b.usage.Output
		return true

	case sdk.MessageStopEvent:
		return true
	}
	return true
}

func (b *builder) setPart(idx int, p message.AssistantPart) {
	for len(b.parts) <= idx {
		b.parts = append(b.parts, nil)
	}
	b.parts[idx] = p
}

func (b *builder) part(idx int) message.AssistantPart {
	if idx < 0 || idx >= len(b.parts) {
		return nil
	}
	return b.parts[idx]
}

func parseArgs(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "{}"
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return map[string]any{}
	}
	return m
}

func mapStopReason(s string) message.StopReason {
	switch s {
	case "end_turn", "stop_sequence":
		return message.StopEnd
	case "tool_use":
		return message.StopToolUse
	case "max_tokens":
		return message.StopMaxTokens
	default:
		return message.StopEnd
	}
}
