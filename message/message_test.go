package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAssistantMessageToolCalls(t *testing.T) {
	m := AssistantMessage{
		Content: []AssistantPart{
			TextPart{Text: "checking..."},
			ToolCallPart{ID: "t1", Name: "ls"},
			ThinkingPart{Text: "hmm"},
			ToolCallPart{ID: "t2", Name: "cat"},
		},
	}

	calls := m.ToolCalls()
	assert.Len(t, calls, 2)
	assert.Equal(t, "t1", calls[0].ID)
	assert.Equal(t, "t2", calls[1].ID)
}

func TestToolResultMessageText(t *testing.T) {
	single := ToolResultMessage{Content: []ResultPart{{Text: "a"}}}
	assert.Equal(t, "a", single.Text())

	multi := ToolResultMessage{Content: []ResultPart{{Text: "a"}, {Text: "b"}}}
	assert.Equal(t, "ab", multi.Text())

	empty := ToolResultMessage{}
	assert.Equal(t, "", empty.Text())
}

func TestNewSkippedResult(t *testing.T) {
	now := func() time.Time { return time.Unix(0, 0) }
	r := NewSkippedResult("r1", "t1", "ls", now)
	assert.True(t, r.IsError)
	assert.Equal(t, SkippedText, r.Text())
	assert.Equal(t, "t1", r.ToolCallID)
}

func TestMessageRolesAreDiscriminated(t *testing.T) {
	var msgs []Message = []Message{
		UserMessage{},
		AssistantMessage{},
		ToolResultMessage{},
		ExtensionMessage{Kind: "custom"},
	}

	want := []Role{RoleUser, RoleAssistant, RoleToolResult, RoleExtension}
	for i, m := range msgs {
		assert.Equal(t, want[i], m.Role())
	}
}
