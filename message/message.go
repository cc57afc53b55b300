// Package message defines the discriminated Message/Part union that forms
// the conversation history the turn loop reads and appends to. A Message is
// one of UserMessage, AssistantMessage, ToolResultMessage, or an
// application-defined ExtensionMessage the core carries but never inspects.
package message

import (
	"time"

	"goa.design/agentcore/toolerrors"
)

// Role tags a Message's discriminated variant.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "toolResult"
	// RoleExtension tags application-defined variants the core passes
	// through untouched; the Kind field further discriminates them.
	RoleExtension Role = "extension"
)

// Message is implemented by every history entry. isMessage is unexported so
// the union is closed to this package and its intended variants.
type Message interface {
	Role() Role
	isMessage()
}

// ID returns m's identifier, used by consumers (e.g. the event stream's
// message_update coalescing) that need to compare messages by identity
// without a type switch of their own.
func ID(m Message) string {
	switch v := m.(type) {
	case UserMessage:
		return v.ID
	case AssistantMessage:
		return v.ID
	case ToolResultMessage:
		return v.ID
	case ExtensionMessage:
		return v.ID
	default:
		return ""
	}
}

// StopReason classifies why an assistant message stopped producing content.
type StopReason string

const (
	StopEnd       StopReason = "end"
	StopToolUse   StopReason = "toolUse"
	StopAborted   StopReason = "aborted"
	StopError     StopReason = "error"
	StopMaxTokens StopReason = "maxTokens"
)

// Usage carries token/cost accounting for one assistant message.
type Usage struct {
	Input     int
	Output    int
	CacheRead int
	CacheWrite int
	Total     int
	CostUSD   float64
}

// UserPart is one element of a UserMessage's content: text or an image.
type UserPart interface {
	isUserPart()
}

// TextUserPart is a plain text segment of user input.
type TextUserPart struct {
	Text string
}

func (TextUserPart) isUserPart() {}

// ImageUserPart is an inline image segment of user input.
type ImageUserPart struct {
	// MediaType is the image's MIME type (e.g. "image/png").
	MediaType string
	// Data is the base64-encoded (or provider-native reference) image payload.
	Data string
}

func (ImageUserPart) isUserPart() {}

// UserMessage is the `user` Message variant.
type UserMessage struct {
	ID        string
	Content   []UserPart
	Timestamp time.Time
}

func (UserMessage) Role() Role { return RoleUser }
func (UserMessage) isMessage() {}

// AssistantPart is one element of an AssistantMessage's content.
type AssistantPart interface {
	isAssistantPart()
}

// TextPart is a block of assistant-generated text.
type TextPart struct {
	Text string
}

func (TextPart) isAssistantPart() {}

// ThinkingPart is a block of assistant reasoning/thinking content.
type ThinkingPart struct {
	Text string
	// Redacted marks thinking content the provider returned encrypted/opaque.
	Redacted bool
}

func (ThinkingPart) isAssistantPart() {}

// ToolCallPart is a request by the assistant to invoke a tool.
type ToolCallPart struct {
	ID   string
	Name string
	// Arguments is the tool call's argument object as a key→value map, the
	// shape the wire protocol and the scheduler both operate on.
	Arguments map[string]any
	// Intent is populated from the reserved "_i" schema field when intent
	// tracing is enabled (§6.6); empty otherwise.
	Intent string
}

func (ToolCallPart) isAssistantPart() {}

// AssistantMessage is the `assistant` Message variant.
type AssistantMessage struct {
	ID       string
	Content  []AssistantPart
	Provider string
	Model    string
	Usage    Usage

	StopReason   StopReason
	ErrorMessage string

	Timestamp time.Time
}

func (AssistantMessage) Role() Role { return RoleAssistant }
func (AssistantMessage) isMessage() {}

// ToolCalls returns the ToolCallPart entries in content order.
func (m AssistantMessage) ToolCalls() []ToolCallPart {
	var out []ToolCallPart
	for _, p := range m.Content {
		if tc, ok := p.(ToolCallPart); ok {
			out = append(out, tc)
		}
	}
	return out
}

// ResultPart is one element of a ToolResultMessage's content.
type ResultPart struct {
	Text string
}

// ToolResultMessage is the `toolResult` Message variant, pairing back to a
// ToolCallPart by ToolCallID per Invariant M1.
type ToolResultMessage struct {
	ID         string
	ToolCallID string
	ToolName   string
	Content    []ResultPart
	// Details is an optional structured payload alongside the text content.
	Details any
	IsError bool
	// Err carries the structured failure behind IsError, if any. A caller
	// deciding whether to retry the same call should consult Err.Transient
	// rather than pattern-matching Content's text.
	Err *toolerrors.ToolError
	// Preview is a short, whitespace-normalized rendering of Text(), bounded
	// to previewMaxLen runes, for UI/terminal consumers that don't want to
	// render full result content.
	Preview string
	// RetryHint, set only when IsError is true, offers structured guidance
	// (restrict to this tool, the failure's category) alongside Err.
	RetryHint *toolerrors.RetryHint
	Timestamp time.Time
}

func (ToolResultMessage) Role() Role { return RoleToolResult }
func (ToolResultMessage) isMessage() {}

// Text concatenates all ResultPart text, the common case of a single-part result.
func (m ToolResultMessage) Text() string {
	if len(m.Content) == 0 {
		return ""
	}
	if len(m.Content) == 1 {
		return m.Content[0].Text
	}
	var out string
	for _, p := range m.Content {
		out += p.Text
	}
	return out
}

// ExtensionMessage is the escape hatch for application-defined message
// variants. The core appends and orders these like any other Message but
// never interprets Kind or Payload.
type ExtensionMessage struct {
	ID        string
	Kind      string
	Payload   any
	Timestamp time.Time
}

func (ExtensionMessage) Role() Role { return RoleExtension }
func (ExtensionMessage) isMessage() {}
