package agent

import "errors"

// BusyError is returned by Prompt when a run is already streaming.
type BusyError struct{}

func (BusyError) Error() string { return "agent: a run is already in progress" }

// ErrEmptyHistory is returned by Continue when there is no history to
// resume against.
var ErrEmptyHistory = errors.New("agent: continue requires non-empty history")

// ErrContinueOnAssistant is returned by Continue when the last history
// message is already an assistant message and no steering/follow-up
// message is queued to consume instead.
var ErrContinueOnAssistant = errors.New("agent: continue on an assistant-terminated history requires a queued message")
