package redis

import (
	"encoding/json"
	"fmt"
	"time"

	"goa.design/agentcore/event"
	"goa.design/agentcore/message"
	"goa.design/agentcore/toolerrors"
)

// wireEvent is the JSON envelope an AgentEvent is serialized to before
// XAdd, mirroring event.AgentEvent's discriminated-union shape field for
// field. StreamEvent (the fine-grained transport delta on message_update)
// is not carried over the wire: a replayed message_update only needs the
// up-to-date Message, which is already present, so nothing observable by
// §8's invariants is lost.
type wireEvent struct {
	Kind event.Kind `json:"kind"`

	AgentEnd   *wireAgentEnd   `json:"agentEnd,omitempty"`
	TurnEnd    *wireTurnEnd    `json:"turnEnd,omitempty"`
	Message    *wireMessage    `json:"message,omitempty"`
	ToolStart  *wireToolStart  `json:"toolStart,omitempty"`
	ToolUpdate *wireToolUpdate `json:"toolUpdate,omitempty"`
	ToolEnd    *wireToolEnd    `json:"toolEnd,omitempty"`
}

type wireAgentEnd struct {
	Messages []wireAnyMessage `json:"messages"`
}

type wireTurnEnd struct {
	Assistant   wireAssistantMessage    `json:"assistant"`
	ToolResults []wireToolResultMessage `json:"toolResults,omitempty"`
}

type wireMessage struct {
	Message wireAnyMessage `json:"message"`
}

type wireToolStart struct {
	CallID   string         `json:"callID"`
	ToolName string         `json:"toolName"`
	Args     map[string]any `json:"args,omitempty"`
	Intent   string         `json:"intent,omitempty"`
}

type wireToolUpdate struct {
	CallID        string `json:"callID"`
	ToolName      string `json:"toolName"`
	PartialResult any    `json:"partialResult,omitempty"`
}

type wireToolEnd struct {
	CallID   string               `json:"callID"`
	ToolName string               `json:"toolName"`
	Result   wireToolResultMessage `json:"result"`
	IsError  bool                 `json:"isError"`
}

// wireAnyMessage discriminates the message.Message union by Role, carrying
// exactly one of the four variant payloads.
type wireAnyMessage struct {
	Role       message.Role           `json:"role"`
	User       *wireUserMessage       `json:"user,omitempty"`
	Assistant  *wireAssistantMessage  `json:"assistant,omitempty"`
	ToolResult *wireToolResultMessage `json:"toolResult,omitempty"`
	Extension  *wireExtensionMessage  `json:"extension,omitempty"`
}

type wireUserMessage struct {
	ID        string         `json:"id"`
	Content   []wireUserPart `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
}

type wireUserPart struct {
	Kind      string `json:"kind"` // "text" | "image"
	Text      string `json:"text,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
	Data      string `json:"data,omitempty"`
}

type wireAssistantMessage struct {
	ID           string              `json:"id"`
	Content      []wireAssistantPart `json:"content"`
	Provider     string              `json:"provider,omitempty"`
	Model        string              `json:"model,omitempty"`
	Usage        message.Usage       `json:"usage"`
	StopReason   message.StopReason  `json:"stopReason"`
	ErrorMessage string              `json:"errorMessage,omitempty"`
	Timestamp    time.Time           `json:"timestamp"`
}

type wireAssistantPart struct {
	Kind      string         `json:"kind"` // "text" | "thinking" | "toolCall"
	Text      string         `json:"text,omitempty"`
	Redacted  bool           `json:"redacted,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Intent    string         `json:"intent,omitempty"`
}

type wireToolResultMessage struct {
	ID         string               `json:"id"`
	ToolCallID string               `json:"toolCallID"`
	ToolName   string               `json:"toolName"`
	Content    []message.ResultPart `json:"content"`
	Details    any                  `json:"details,omitempty"`
	IsError    bool                 `json:"isError"`
	Preview    string               `json:"preview,omitempty"`
	Err        *wireToolError       `json:"err,omitempty"`
	RetryHint  *wireRetryHint       `json:"retryHint,omitempty"`
	Timestamp  time.Time            `json:"timestamp"`
}

// wireToolError flattens a *toolerrors.ToolError's causal chain into its
// rendered message: the chain exists so in-process callers can errors.Is/As
// through it, which has no meaning once replayed from the wire.
type wireToolError struct {
	Message   string `json:"message"`
	Transient bool   `json:"transient,omitempty"`
}

type wireRetryHint struct {
	Reason         string `json:"reason"`
	Tool           string `json:"tool"`
	RestrictToTool bool   `json:"restrictToTool,omitempty"`
	Message        string `json:"message,omitempty"`
}

type wireExtensionMessage struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func encodeEvent(ev event.AgentEvent) ([]byte, error) {
	w := wireEvent{Kind: ev.Kind}
	if ev.AgentEnd != nil {
		msgs := make([]wireAnyMessage, len(ev.AgentEnd.Messages))
		for i, m := range ev.AgentEnd.Messages {
			msgs[i] = encodeMessage(m)
		}
		w.AgentEnd = &wireAgentEnd{Messages: msgs}
	}
	if ev.TurnEnd != nil {
		results := make([]wireToolResultMessage, len(ev.TurnEnd.ToolResults))
		for i, r := range ev.TurnEnd.ToolResults {
			results[i] = encodeToolResultMessage(r)
		}
		w.TurnEnd = &wireTurnEnd{
			Assistant:   encodeAssistantMessage(ev.TurnEnd.Assistant),
			ToolResults: results,
		}
	}
	if ev.Message != nil {
		w.Message = &wireMessage{Message: encodeMessage(ev.Message.Message)}
	}
	if ev.ToolStart != nil {
		w.ToolStart = &wireToolStart{
			CallID: ev.ToolStart.CallID, ToolName: ev.ToolStart.ToolName,
			Args: ev.ToolStart.Args, Intent: ev.ToolStart.Intent,
		}
	}
	if ev.ToolUpdate != nil {
		w.ToolUpdate = &wireToolUpdate{
			CallID: ev.ToolUpdate.CallID, ToolName: ev.ToolUpdate.ToolName,
			PartialResult: ev.ToolUpdate.PartialResult,
		}
	}
	if ev.ToolEnd != nil {
		w.ToolEnd = &wireToolEnd{
			CallID: ev.ToolEnd.CallID, ToolName: ev.ToolEnd.ToolName,
			Result: encodeToolResultMessage(ev.ToolEnd.Result), IsError: ev.ToolEnd.IsError,
		}
	}
	return json.Marshal(w)
}

func decodeEvent(raw []byte) (event.AgentEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return event.AgentEvent{}, fmt.Errorf("eventsink/redis: decode event: %w", err)
	}
	out := event.AgentEvent{Kind: w.Kind}
	if w.AgentEnd != nil {
		msgs := make([]message.Message, len(w.AgentEnd.Messages))
		for i, m := range w.AgentEnd.Messages {
			msgs[i] = decodeMessage(m)
		}
		out.AgentEnd = &event.AgentEndPayload{Messages: msgs}
	}
	if w.TurnEnd != nil {
		results := make([]message.ToolResultMessage, len(w.TurnEnd.ToolResults))
		for i, r := range w.TurnEnd.ToolResults {
			results[i] = decodeToolResultMessage(r)
		}
		out.TurnEnd = &event.TurnEndPayload{
			Assistant:   decodeAssistantMessage(w.TurnEnd.Assistant),
			ToolResults: results,
		}
	}
	if w.Message != nil {
		out.Message = &event.MessagePayload{Message: decodeMessage(w.Message.Message)}
	}
	if w.ToolStart != nil {
		out.ToolStart = &event.ToolExecutionStartPayload{
			CallID: w.ToolStart.CallID, ToolName: w.ToolStart.ToolName,
			Args: w.ToolStart.Args, Intent: w.ToolStart.Intent,
		}
	}
	if w.ToolUpdate != nil {
		out.ToolUpdate = &event.ToolExecutionUpdatePayload{
			CallID: w.ToolUpdate.CallID, ToolName: w.ToolUpdate.ToolName,
			PartialResult: w.ToolUpdate.PartialResult,
		}
	}
	if w.ToolEnd != nil {
		out.ToolEnd = &event.ToolExecutionEndPayload{
			CallID: w.ToolEnd.CallID, ToolName: w.ToolEnd.ToolName,
			Result: decodeToolResultMessage(w.ToolEnd.Result), IsError: w.ToolEnd.IsError,
		}
	}
	return out, nil
}

func encodeMessage(m message.Message) wireAnyMessage {
	switch v := m.(type) {
	case message.UserMessage:
		parts := make([]wireUserPart, len(v.Content))
		for i, p := range v.Content {
			switch up := p.(type) {
			case message.TextUserPart:
				parts[i] = wireUserPart{Kind: "text", Text: up.Text}
			case message.ImageUserPart:
				parts[i] = wireUserPart{Kind: "image", MediaType: up.MediaType, Data: up.Data}
			}
		}
		return wireAnyMessage{Role: message.RoleUser, User: &wireUserMessage{
			ID: v.ID, Content: parts, Timestamp: v.Timestamp,
		}}
	case message.AssistantMessage:
		asst := encodeAssistantMessage(v)
		return wireAnyMessage{Role: message.RoleAssistant, Assistant: &asst}
	case message.ToolResultMessage:
		tr := encodeToolResultMessage(v)
		return wireAnyMessage{Role: message.RoleToolResult, ToolResult: &tr}
	case message.ExtensionMessage:
		return wireAnyMessage{Role: message.RoleExtension, Extension: &wireExtensionMessage{
			ID: v.ID, Kind: v.Kind, Payload: v.Payload, Timestamp: v.Timestamp,
		}}
	default:
		return wireAnyMessage{}
	}
}

func decodeMessage(w wireAnyMessage) message.Message {
	switch w.Role {
	case message.RoleUser:
		if w.User == nil {
			return nil
		}
		parts := make([]message.UserPart, len(w.User.Content))
		for i, p := range w.User.Content {
			if p.Kind == "image" {
				parts[i] = message.ImageUserPart{MediaType: p.MediaType, Data: p.Data}
			} else {
				parts[i] = message.TextUserPart{Text: p.Text}
			}
		}
		return message.UserMessage{ID: w.User.ID, Content: parts, Timestamp: w.User.Timestamp}
	case message.RoleAssistant:
		if w.Assistant == nil {
			return nil
		}
		return decodeAssistantMessage(*w.Assistant)
	case message.RoleToolResult:
		if w.ToolResult == nil {
			return nil
		}
		return decodeToolResultMessage(*w.ToolResult)
	case message.RoleExtension:
		if w.Extension == nil {
			return nil
		}
		return message.ExtensionMessage{
			ID: w.Extension.ID, Kind: w.Extension.Kind, Payload: w.Extension.Payload, Timestamp: w.Extension.Timestamp,
		}
	default:
		return nil
	}
}

func encodeAssistantMessage(m message.AssistantMessage) wireAssistantMessage {
	parts := make([]wireAssistantPart, len(m.Content))
	for i, p := range m.Content {
		switch v := p.(type) {
		case message.TextPart:
			parts[i] = wireAssistantPart{Kind: "text", Text: v.Text}
		case message.ThinkingPart:
			parts[i] = wireAssistantPart{Kind: "thinking", Text: v.Text, Redacted: v.Redacted}
		case message.ToolCallPart:
			parts[i] = wireAssistantPart{Kind: "toolCall", ID: v.ID, Name: v.Name, Arguments: v.Arguments, Intent: v.Intent}
		}
	}
	return wireAssistantMessage{
		ID: m.ID, Content: parts, Provider: m.Provider, Model: m.Model, Usage: m.Usage,
		StopReason: m.StopReason, ErrorMessage: m.ErrorMessage, Timestamp: m.Timestamp,
	}
}

func decodeAssistantMessage(w wireAssistantMessage) message.AssistantMessage {
	parts := make([]message.AssistantPart, len(w.Content))
	for i, p := range w.Content {
		switch p.Kind {
		case "thinking":
			parts[i] = message.ThinkingPart{Text: p.Text, Redacted: p.Redacted}
		case "toolCall":
			parts[i] = message.ToolCallPart{ID: p.ID, Name: p.Name, Arguments: p.Arguments, Intent: p.Intent}
		default:
			parts[i] = message.TextPart{Text: p.Text}
		}
	}
	return message.AssistantMessage{
		ID: w.ID, Content: parts, Provider: w.Provider, Model: w.Model, Usage: w.Usage,
		StopReason: w.StopReason, ErrorMessage: w.ErrorMessage, Timestamp: w.Timestamp,
	}
}

func encodeToolResultMessage(m message.ToolResultMessage) wireToolResultMessage {
	w := wireToolResultMessage{
		ID: m.ID, ToolCallID: m.ToolCallID, ToolName: m.ToolName, Content: m.Content,
		Details: m.Details, IsError: m.IsError, Preview: m.Preview, Timestamp: m.Timestamp,
	}
	if m.Err != nil {
		w.Err = &wireToolError{Message: m.Err.Error(), Transient: m.Err.Transient}
	}
	if m.RetryHint != nil {
		w.RetryHint = &wireRetryHint{
			Reason: string(m.RetryHint.Reason), Tool: m.RetryHint.Tool,
			RestrictToTool: m.RetryHint.RestrictToTool, Message: m.RetryHint.Message,
		}
	}
	return w
}

func decodeToolResultMessage(w wireToolResultMessage) message.ToolResultMessage {
	m := message.ToolResultMessage{
		ID: w.ID, ToolCallID: w.ToolCallID, ToolName: w.ToolName, Content: w.Content,
		Details: w.Details, IsError: w.IsError, Preview: w.Preview, Timestamp: w.Timestamp,
	}
	if w.Err != nil {
		m.Err = &toolerrors.ToolError{Message: w.Err.Message, Transient: w.Err.Transient}
	}
	if w.RetryHint != nil {
		m.RetryHint = &toolerrors.RetryHint{
			Reason: toolerrors.RetryReason(w.RetryHint.Reason), Tool: w.RetryHint.Tool,
			RestrictToTool: w.RetryHint.RestrictToTool, Message: w.RetryHint.Message,
		}
	}
	return m
}
