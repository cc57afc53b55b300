package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/agentcore/event"
	"goa.design/agentcore/message"
)

func TestEncodeDecodeEventRoundTrip(t *testing.T) {
	ts := time.Unix(1700000000, 0).UTC()

	cases := []struct {
		name string
		ev   event.AgentEvent
	}{
		{"agent_start", event.AgentStart()},
		{"agent_end", event.AgentEnd([]message.Message{
			message.UserMessage{ID: "u1", Content: []message.UserPart{message.TextUserPart{Text: "hi"}}, Timestamp: ts},
			message.AssistantMessage{
				ID:      "a1",
				Content: []message.AssistantPart{message.TextPart{Text: "hello"}, message.ToolCallPart{ID: "tc1", Name: "search", Arguments: map[string]any{"q": "go"}}},
				StopReason: message.StopToolUse, Timestamp: ts,
			},
			message.ToolResultMessage{ID: "tr1", ToolCallID: "tc1", ToolName: "search", Content: []message.ResultPart{{Text: "result"}}, Timestamp: ts},
			message.ExtensionMessage{ID: "ext1", Kind: "debug", Payload: map[string]any{"k": "v"}, Timestamp: ts},
		})},
		{"turn_end", event.TurnEnd(
			message.AssistantMessage{ID: "a2", Content: []message.AssistantPart{message.ThinkingPart{Text: "thinking", Redacted: true}}, StopReason: message.StopEnd, Timestamp: ts},
			[]message.ToolResultMessage{{ID: "tr2", ToolCallID: "tc2", ToolName: "x", IsError: true, Timestamp: ts}},
		)},
		{"message_update", event.MessageUpdate(message.AssistantMessage{ID: "a3", Timestamp: ts}, "dropped")},
		{"tool_execution_start", event.ToolExecutionStart("c1", "search", map[string]any{"q": "x"}, "intent-x")},
		{"tool_execution_update", event.ToolExecutionUpdate("c1", "search", map[string]any{"progress": 0.5})},
		{"tool_execution_end", event.ToolExecutionEnd("c1", "search", message.ToolResultMessage{ID: "tr3", ToolCallID: "c1", ToolName: "search", Timestamp: ts}, false)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := encodeEvent(tc.ev)
			require.NoError(t, err)

			got, err := decodeEvent(raw)
			require.NoError(t, err)

			assert.Equal(t, tc.ev.Kind, got.Kind)

			switch tc.ev.Kind {
			case event.KindAgentEnd:
				require.NotNil(t, got.AgentEnd)
				assert.Equal(t, tc.ev.AgentEnd.Messages, got.AgentEnd.Messages)
			case event.KindTurnEnd:
				require.NotNil(t, got.TurnEnd)
				assert.Equal(t, tc.ev.TurnEnd.Assistant, got.TurnEnd.Assistant)
				assert.Equal(t, tc.ev.TurnEnd.ToolResults, got.TurnEnd.ToolResults)
			case event.KindMessageUpdate:
				require.NotNil(t, got.Message)
				assert.Equal(t, tc.ev.Message.Message, got.Message.Message)
				assert.Nil(t, got.Message.StreamEvent)
			case event.KindToolExecutionStart:
				assert.Equal(t, *tc.ev.ToolStart, *got.ToolStart)
			case event.KindToolExecutionUpdate:
				assert.Equal(t, *tc.ev.ToolUpdate, *got.ToolUpdate)
			case event.KindToolExecutionEnd:
				assert.Equal(t, *tc.ev.ToolEnd, *got.ToolEnd)
			}
		})
	}
}
