package message

import (
	"time"

	"goa.design/agentcore/toolerrors"
)

// SkippedText is the fixed placeholder content for a tool call that never
// ran because a steering interrupt fired before it started.
const SkippedText = "Skipped due to queued user message."

// NewErrorResult builds a placeholder ToolResultMessage reporting failure,
// used both by the scheduler (per-tool execution errors) and the turn loop
// (Invariant M1 synthesis on a terminal transport/abort error).
func NewErrorResult(id, toolCallID, toolName, text string, now func() time.Time) ToolResultMessage {
	return NewErrorResultWithErr(id, toolCallID, toolName, toolerrors.New(text), now)
}

// NewErrorResultWithErr builds a placeholder ToolResultMessage carrying a
// structured ToolError, so retry decisions downstream can consult
// err.Transient instead of pattern-matching Content's text.
func NewErrorResultWithErr(id, toolCallID, toolName string, err *toolerrors.ToolError, now func() time.Time) ToolResultMessage {
	return NewErrorResultWithHint(id, toolCallID, toolName, err, nil, now)
}

// NewErrorResultWithHint builds a placeholder ToolResultMessage carrying both
// a structured ToolError and, when the failure warrants it, a RetryHint a
// policy layer can act on without parsing Content's text.
func NewErrorResultWithHint(id, toolCallID, toolName string, err *toolerrors.ToolError, hint *toolerrors.RetryHint, now func() time.Time) ToolResultMessage {
	text := err.Error()
	return ToolResultMessage{
		ID:         id,
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Content:    []ResultPart{{Text: text}},
		IsError:    true,
		Err:        err,
		RetryHint:  hint,
		Preview:    FormatPreview(text),
		Timestamp:  now(),
	}
}

// NewSkippedResult builds the fixed skipped-tool placeholder result.
func NewSkippedResult(id, toolCallID, toolName string, now func() time.Time) ToolResultMessage {
	return NewErrorResult(id, toolCallID, toolName, SkippedText, now)
}
