// Package event implements the Event Stream (§4.1): a single-producer,
// ordered, terminable channel of AgentEvent values with a typed terminal
// payload.
package event

import (
	"goa.design/agentcore/message"
)

// Kind discriminates an AgentEvent's payload.
type Kind string

const (
	KindAgentStart Kind = "agent_start"
	KindAgentEnd   Kind = "agent_end"

	KindTurnStart Kind = "turn_start"
	KindTurnEnd   Kind = "turn_end"

	KindMessageStart  Kind = "message_start"
	KindMessageUpdate Kind = "message_update"
	KindMessageEnd    Kind = "message_end"

	KindToolExecutionStart  Kind = "tool_execution_start"
	KindToolExecutionUpdate Kind = "tool_execution_update"
	KindToolExecutionEnd    Kind = "tool_execution_end"
)

// AgentEvent is one lifecycle event on the stream. At most one of the typed
// payload fields is populated, selected by Kind (agent_start and turn_start
// carry none); this mirrors a
// discriminated union without runtime type assertions on every read.
type AgentEvent struct {
	Kind Kind

	AgentEnd  *AgentEndPayload
	TurnEnd   *TurnEndPayload
	Message   *MessagePayload
	ToolStart *ToolExecutionStartPayload
	ToolUpdate *ToolExecutionUpdatePayload
	ToolEnd   *ToolExecutionEndPayload
}

// AgentEndPayload is agent_end's terminal payload: every message produced
// during the run.
type AgentEndPayload struct {
	Messages []message.Message
}

// TurnEndPayload carries the assistant message and tool results of one turn.
type TurnEndPayload struct {
	Assistant   message.AssistantMessage
	ToolResults []message.ToolResultMessage
}

// MessagePayload backs message_start/message_update/message_end. StreamEvent
// is only populated for message_update, carrying the transport delta that
// produced this update.
type MessagePayload struct {
	Message      message.Message
	StreamEvent  any
}

// ToolExecutionStartPayload backs tool_execution_start.
type ToolExecutionStartPayload struct {
	CallID   string
	ToolName string
	Args     map[string]any
	Intent   string
}

// ToolExecutionUpdatePayload backs tool_execution_update.
type ToolExecutionUpdatePayload struct {
	CallID        string
	ToolName      string
	PartialResult any
}

// ToolExecutionEndPayload backs tool_execution_end.
type ToolExecutionEndPayload struct {
	CallID   string
	ToolName string
	Result   message.ToolResultMessage
	IsError  bool
}

// Simple event constructors, used by the assembler/scheduler/turnloop so
// payload assembly lives in one place.

func AgentStart() AgentEvent { return AgentEvent{Kind: KindAgentStart} }

func AgentEnd(messages []message.Message) AgentEvent {
	return AgentEvent{Kind: KindAgentEnd, AgentEnd: &AgentEndPayload{Messages: messages}}
}

func TurnStart() AgentEvent { return AgentEvent{Kind: KindTurnStart} }

func TurnEnd(assistant message.AssistantMessage, results []message.ToolResultMessage) AgentEvent {
	return AgentEvent{Kind: KindTurnEnd, TurnEnd: &TurnEndPayload{Assistant: assistant, ToolResults: results}}
}

func MessageStart(m message.Message) AgentEvent {
	return AgentEvent{Kind: KindMessageStart, Message: &MessagePayload{Message: m}}
}

func MessageUpdate(m message.Message, streamEvent any) AgentEvent {
	return AgentEvent{Kind: KindMessageUpdate, Message: &MessagePayload{Message: m, StreamEvent: streamEvent}}
}

func MessageEnd(m message.Message) AgentEvent {
	return AgentEvent{Kind: KindMessageEnd, Message: &MessagePayload{Message: m}}
}

func ToolExecutionStart(callID, toolName string, args map[string]any, intent string) AgentEvent {
	return AgentEvent{Kind: KindToolExecutionStart, ToolStart: &ToolExecutionStartPayload{
		CallID: callID, ToolName: toolName, Args: args, Intent: intent,
	}}
}

func ToolExecutionUpdate(callID, toolName string, partial any) AgentEvent {
	return AgentEvent{Kind: KindToolExecutionUpdate, ToolUpdate: &ToolExecutionUpdatePayload{
		CallID: callID, ToolName: toolName, PartialResult: partial,
	}}
}

func ToolExecutionEnd(callID, toolName string, result message.ToolResultMessage, isError bool) AgentEvent {
	return AgentEvent{Kind: KindToolExecutionEnd, ToolEnd: &ToolExecutionEndPayload{
		CallID: callID, ToolName: toolName, Result: result, IsError: isError,
	}}
}
