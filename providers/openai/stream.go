package openai

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"

	"goa.design/agentcore/assembler"
	"goa.design/agentcore/message"
)

// streamer adapts a Chat Completions SSE stream to assembler.Streamer. Chat
// Completions chunks are coarser-grained than Anthropic's content-block
// events (no explicit start/stop markers, only a growing delta per choice),
// so lifecycle boundaries here are inferred: a tool-call index's first sight
// is its start, and the stream's final chunk (no more deltas) is every open
// part's end, emitted as end events just before the Done event.
type streamer struct {
	cancel context.CancelFunc
	sdk    *ssestream.Stream[sdk.ChatCompletionChunk]

	events chan assembler.StreamEvent

	mu    sync.Mutex
	final message.AssistantMessage
}

func newStreamer(ctx context.Context, s *ssestream.Stream[sdk.ChatCompletionChunk]) *streamer {
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

	first := true
	for s.sdk.Next() {
		if ctx.Err() != nil {
			return
		}
		chunk := s.sdk.Current()
		if first {
			b.id = chunk.ID
			b.model = chunk.Model
			if !emit(assembler.StreamEvent{Kind: assembler.EventStart, Partial: b.snapshot()}) {
				return
			}
			first = false
		}
		if !b.handle(chunk, emit) {
			return
		}
	}
	if err := s.sdk.Err(); err != nil {
		s.setFinal(b.snapshot())
		emit(assembler.StreamEvent{Kind: assembler.EventError, ErrorMessage: err.Error()})
		return
	}
	if !b.finalizeParts(emit) {
		return
	}
	s.setFinal(b.snapshot())
	emit(assembler.StreamEvent{Kind: assembler.EventDone})
}

// builder accumulates a single choice's delta content across chunks, keyed
// by content part (there is at most one text part, plus any number of
// parallel tool calls indexed by the API's own tool_call index).
type builder struct {
	id    string
	model string
	usage message.Usage

	textIdx  int
	hasText  bool
	textPart message.TextPart

	order    []int // tool-call indices in first-seen order
	toolIdx  map[int]int // tool-call index -> position in parts
	toolArgs map[int]*strings.Builder

	parts []message.AssistantPart

	stopReason string
}

func (b *builder) snapshot() message.AssistantMessage {
	parts := append([]message.AssistantPart(nil), b.parts...)
	return message.AssistantMessage{
		ID:         b.id,
		Content:    parts,
		Provider:   "openai",
		Model:      b.model,
		Usage:      b.usage,
		StopReason: mapStopReason(b.stopReason),
	}
}

func (b *builder) handle(chunk sdk.ChatCompletionChunk, emit func(assembler.StreamEvent) bool) bool {
	if chunk.Usage.TotalTokens > 0 {
		b.usage.Input = int(chunk.Usage.PromptTokens)
		b.usage.Output = int(chunk.Usage.CompletionTokens)
		b.usage.Total = int(chunk.Usage.TotalTokens)
	}
	if len(chunk.Choices) == 0 {
		return true
	}
	choice := chunk.Choices[0]
	if choice.FinishReason != "" {
		b.stopReason = choice.FinishReason
	}

	if choice.Delta.Content != "" {
		if !b.hasText {
			b.hasText = true
			b.textIdx = len(b.parts)
			b.parts = append(b.parts, message.TextPart{})
			if !emit(assembler.StreamEvent{Kind: assembler.EventTextStart, Partial: b.snapshot()}) {
				return false
			}
		}
		b.textPart.Text += choice.Delta.Content
		b.parts[b.textIdx] = b.textPart
		if !emit(assembler.StreamEvent{Kind: assembler.EventTextDelta, TextDelta: choice.Delta.Content, Partial: b.snapshot()}) {
			return false
		}
	}

	for _, tc := range choice.Delta.ToolCalls {
		idx := int(tc.Index)
		if b.toolIdx == nil {
			b.toolIdx = make(map[int]int)
			b.toolArgs = make(map[int]*strings.Builder)
		}
		pos, seen := b.toolIdx[idx]
		if !seen {
			pos = len(b.parts)
			b.toolIdx[idx] = pos
			b.toolArgs[idx] = &strings.Builder{}
			b.order = append(b.order, idx)
			b.parts = append(b.parts, message.ToolCallPart{ID: tc.ID, Name: tc.Function.Name})
			if !emit(assembler.StreamEvent{Kind: assembler.EventToolCallStart, ToolCallID: tc.ID, ToolCallName: tc.Function.Name, Partial: b.snapshot()}) {
				return false
			}
		}
		if tc.Function.Arguments != "" {
			b.toolArgs[idx].WriteString(tc.Function.Arguments)
			tcPart, _ := b.parts[pos].(message.ToolCallPart)
			if !emit(assembler.StreamEvent{
				Kind: assembler.EventToolCallDelta, ToolCallID: tcPart.ID, ToolCallName: tcPart.Name,
				ToolCallArgsDelta: tc.Function.Arguments, Partial: b.snapshot(),
			}) {
				return false
			}
		}
	}
	return true
}

// finalizeParts parses accumulated tool-call argument fragments and emits
// end events for every open part; called once, just before Done.
func (b *builder) finalizeParts(emit func(assembler.StreamEvent) bool) bool {
	if b.hasText {
		if !emit(assembler.StreamEvent{Kind: assembler.EventTextEnd, Partial: b.snapshot()}) {
			return false
		}
	}
	for _, idx := range b.order {
		pos := b.toolIdx[idx]
		tc, _ := b.parts[pos].(message.ToolCallPart)
		tc.Arguments = parseArgs(b.toolArgs[idx].String())
		b.parts[pos] = tc
		if !emit(assembler.StreamEvent{Kind: assembler.EventToolCallEnd, ToolCallID: tc.ID, ToolCallName: tc.Name, Partial: b.snapshot()}) {
			return false
		}
	}
	return true
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
	case "stop":
		return message.StopEnd
	case "tool_calls":
		return message.StopToolUse
	case "length":
		return message.StopMaxTokens
	default:
		return message.StopEnd
	}
}
