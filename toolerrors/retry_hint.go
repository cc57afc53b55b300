package toolerrors

// RetryReason categorizes the failure that produced a RetryHint, so a policy
// engine can pick a recovery strategy without parsing the error text.
type RetryReason string

const (
	// RetryReasonInvalidArguments marks a schema-validation failure.
	RetryReasonInvalidArguments RetryReason = "invalid_arguments"
	// RetryReasonToolNotFound marks a call naming a tool absent from the
	// registry (a hallucinated or stale tool name).
	RetryReasonToolNotFound RetryReason = "tool_not_found"
	// RetryReasonToolUnavailable marks a transient provider-side failure
	// (e.g. a service_unavailable ServiceError) worth retrying unchanged.
	RetryReasonToolUnavailable RetryReason = "tool_unavailable"
)

// RetryHint carries structured guidance alongside a failed ToolResult, so a
// caller can decide whether to retry the same call, restrict the model to
// one tool, or surface a clarifying question, without pattern-matching the
// rendered error text.
type RetryHint struct {
	// Reason categorizes the failure.
	Reason RetryReason
	// Tool names the tool the hint applies to.
	Tool string
	// RestrictToTool, if true, signals the caller should allow only Tool on
	// the next turn rather than letting the model retry any tool.
	RestrictToTool bool
	// Message is a human-readable suggestion to relay back to the model.
	Message string
}
