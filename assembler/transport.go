// Package assembler implements the Streaming Message Assembler (§4.2): it
// drives a transport's stream of fine-grained events into a complete
// AssistantMessage, forwarding message lifecycle events onto the Event
// Stream as it goes.
package assembler

import (
	"context"

	"goa.design/agentcore/message"
)

// EventKind discriminates one transport StreamEvent.
type EventKind string

const (
	EventStart EventKind = "start"

	EventTextStart EventKind = "text_start"
	EventTextDelta EventKind = "text_delta"
	EventTextEnd   EventKind = "text_end"

	EventThinkingStart EventKind = "thinking_start"
	EventThinkingDelta EventKind = "thinking_delta"
	EventThinkingEnd   EventKind = "thinking_end"

	EventToolCallStart EventKind = "toolcall_start"
	EventToolCallDelta EventKind = "toolcall_delta"
	EventToolCallEnd   EventKind = "toolcall_end"

	EventDone  EventKind = "done"
	EventError EventKind = "error"
)

// StreamEvent is one fine-grained event from the transport. Per §4.2, every
// delta carries the full up-to-date partial message so the assembler never
// needs to reconstruct state from an event type alone.
type StreamEvent struct {
	Kind EventKind

	// Partial is the up-to-date assistant message as of this event. Present
	// on every kind except Done/Error, whose final message instead comes
	// from Streamer.Result.
	Partial message.AssistantMessage

	// TextDelta/ThinkingDelta/ToolCallArgsDelta carry the incremental text
	// for *Delta kinds, redundant with Partial but convenient for a
	// consumer that only wants the delta.
	TextDelta          string
	ThinkingDelta      string
	ToolCallID         string
	ToolCallName       string
	ToolCallArgsDelta  string

	// ErrorMessage is populated for EventError.
	ErrorMessage string
}

// Streamer is the per-response half of the LLM transport contract (§6.1): a
// lazy sequence of StreamEvent terminated by Done or Error, after which
// Result returns the assembled final message.
type Streamer interface {
	// Recv returns the next StreamEvent. A non-nil error indicates a
	// transport-level failure (distinct from an in-band EventError) and is
	// treated the same way: terminal for this response, surfaced as
	// StopError on the assistant message.
	Recv(ctx context.Context) (StreamEvent, error)
	// Result returns the transport's own assembled final message, called
	// once after Recv has yielded Done or Error (or failed).
	Result(ctx context.Context) (message.AssistantMessage, error)
	// Close releases transport resources; safe to call more than once.
	Close() error
}
