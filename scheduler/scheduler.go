// Package scheduler implements the Tool Scheduler (§4.3): given an assistant
// message's tool calls, it validates arguments, dispatches execution under
// the shared/exclusive concurrency discipline, watches for steering
// interrupts, and produces an ordered ToolResult for every call.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	goa "goa.design/goa/v3/pkg"

	"goa.design/agentcore/event"
	"goa.design/agentcore/message"
	"goa.design/agentcore/schema"
	"goa.design/agentcore/telemetry"
	"goa.design/agentcore/toolerrors"
	"goa.design/agentcore/tools"
)

// InterruptMode controls when the scheduler polls the steering source.
type InterruptMode int

const (
	// Immediate polls the steering source after every tool completion.
	Immediate InterruptMode = iota
	// Wait never polls mid-batch; steering is consulted only at turn
	// boundaries by the turn loop.
	Wait
)

// SteeringSource is pulled to check for an interrupting steering message.
// Implementations SHOULD be non-blocking; if they suspend, the scheduler
// suspends with them.
type SteeringSource func(ctx context.Context) ([]message.Message, error)

// ArgTransform optionally rewrites a tool's validated arguments before
// Execute is invoked (e.g. deobfuscation).
type ArgTransform func(ctx context.Context, call tools.Call) (map[string]any, error)

// ContextResolver optionally produces a per-call context passed to Execute,
// for late-bound values a tool needs (credentials, request-scoped state).
type ContextResolver func(ctx context.Context, call tools.Call) context.Context

// Options configures one Run call.
type Options struct {
	InterruptMode   InterruptMode
	Steering        SteeringSource
	IntentTracing   bool
	ArgTransform    ArgTransform
	ContextResolver ContextResolver
	// OnProgress, if set, is invoked for every tool_execution_update in
	// addition to the event being published to the stream.
	OnProgress func(callID, toolName string, partial any)
	// Now returns the current time; defaults to time.Now.
	Now func() time.Time
	// NewID synthesizes a message ID for the result/synthetic messages; nil
	// defaults to a generator returning "". The agent facade passes its own
	// generator through the turn loop, since this package stays uuid-agnostic.
	NewID func() string

	// Logger instruments dispatch (Debug on start/end of each call) and the
	// steering-interrupt suspension point (Warn); nil defaults to a noop
	// implementation. Metrics and Tracer are accepted but not used by this
	// package.
	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer
}

// Result is the scheduler's output: one ToolResultMessage per input call, in
// original order, plus any steering messages observed while scheduling.
type Result struct {
	ToolResults      []message.ToolResultMessage
	SteeringMessages []message.Message
}

// callState tracks one call's progress through the batch.
type callState struct {
	call   message.ToolCallPart
	desc   tools.Descriptor
	known  bool
	result message.ToolResultMessage
}

// Run schedules and executes every tool call in assistant's content, per the
// shared/exclusive discipline of §4.3, publishing lifecycle events onto
// stream as it goes.
func Run(ctx context.Context, stream *event.Stream, registry *tools.Registry, assistant message.AssistantMessage, opts Options) (Result, error) {
	calls := assistant.ToolCalls()
	if len(calls) == 0 {
		return Result{}, nil
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return "" }
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}

	states := make([]*callState, len(calls))
	for i, c := range calls {
		desc, ok := registry.Lookup(tools.Ident(c.Name))
		states[i] = &callState{call: c, desc: desc, known: ok}
	}

	steeringCtx, cancelSteering := context.WithCancel(context.Background())
	defer cancelSteering()
	runCtx, cancelCombined := withCombinedCancel(ctx, steeringCtx)
	defer cancelCombined()

	var (
		mu           sync.Mutex
		interrupted  bool
		steeringMsgs []message.Message
	)

	triggerInterrupt := func(msgs []message.Message) {
		mu.Lock()
		defer mu.Unlock()
		if interrupted {
			return
		}
		interrupted = true
		steeringMsgs = msgs
		logger.Warn(ctx, "steering interrupt fired, cancelling in-flight batch", "steeringCount", len(msgs))
		cancelSteering()
	}

	isInterrupted := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return interrupted
	}

	pollSteering := func() {
		if opts.Steering == nil || opts.InterruptMode != Immediate {
			return
		}
		if isInterrupted() {
			return
		}
		msgs, err := opts.Steering(ctx)
		if err != nil || len(msgs) == 0 {
			return
		}
		triggerInterrupt(msgs)
	}

	// Build barrier groups: a contiguous run of Shared calls, or a single
	// Exclusive call, per §4.3's lastExclusive/sharedInFlight algorithm.
	type group struct {
		indices   []int
		exclusive bool
	}
	var groups []group
	for i, st := range states {
		excl := st.known && st.desc.Concurrency == tools.Exclusive
		if excl {
			groups = append(groups, group{indices: []int{i}, exclusive: true})
			continue
		}
		if len(groups) > 0 && !groups[len(groups)-1].exclusive {
			g := &groups[len(groups)-1]
			g.indices = append(g.indices, i)
		} else {
			groups = append(groups, group{indices: []int{i}})
		}
	}

	// run executes call i, unless an interrupt had already fired before
	// this goroutine got a chance to start it — in which case it is
	// skipped without ever calling Execute, per §4.3's "any tool not yet
	// started is marked skipped". A call already past this check when the
	// interrupt fires is left to run to completion; its own cancel token
	// (runCtx, derived from the steering cancel) is what lets an abortable
	// tool notice and return promptly.
	run := func(i int) {
		st := states[i]
		if isInterrupted() {
			skip(ctx, stream, st, opts)
			return
		}

		prep, failure, hint := prepare(runCtx, ctx, stream, isInterrupted, st, opts)
		publishToolStart(ctx, stream, st)
		logger.Debug(ctx, "tool dispatch starting", "callID", st.call.ID, "tool", st.call.Name)
		if failure != "" {
			st.result = errorResultWithHint(st, opts, toolerrors.New(failure), hint)
		} else {
			st.result = invoke(runCtx, st, prep, opts)
		}
		logger.Debug(ctx, "tool dispatch finished", "callID", st.call.ID, "tool", st.call.Name, "isError", st.result.IsError)
		publishToolEnd(ctx, stream, st)

		if opts.InterruptMode == Immediate {
			pollSteering()
		}
	}

	for _, g := range groups {
		if isInterrupted() {
			// Once interrupted, every remaining not-yet-dispatched call in
			// every remaining group is skipped without starting.
			for _, i := range g.indices {
				skip(ctx, stream, states[i], opts)
			}
			continue
		}
		if g.exclusive {
			run(g.indices[0])
			continue
		}
		var wg errgroup.Group
		for _, i := range g.indices {
			i := i
			wg.Go(func() error {
				run(i)
				return nil
			})
		}
		_ = wg.Wait()
	}

	results := make([]message.ToolResultMessage, len(states))
	for i, st := range states {
		results[i] = st.result
	}

	// §4.3 result materialization: once every tool_execution_end for the
	// batch has been emitted (above), publish message_start/message_end for
	// each toolResult message in original call order.
	for _, r := range results {
		_ = stream.Publish(ctx, event.MessageStart(r))
		_ = stream.Publish(ctx, event.MessageEnd(r))
	}

	return Result{ToolResults: results, SteeringMessages: steeringMsgs}, nil
}

func skip(ctx context.Context, stream *event.Stream, st *callState, opts Options) {
	publishToolStart(ctx, stream, st)
	st.result = skippedResult(st, opts)
	publishToolEnd(ctx, stream, st)
}

func skippedResult(st *callState, opts Options) message.ToolResultMessage {
	return message.NewSkippedResult(opts.NewID(), st.call.ID, st.call.Name, opts.Now)
}

func publishToolStart(ctx context.Context, stream *event.Stream, st *callState) {
	_ = stream.Publish(ctx, event.ToolExecutionStart(st.call.ID, st.call.Name, st.call.Arguments, st.call.Intent))
}

func publishToolEnd(ctx context.Context, stream *event.Stream, st *callState) {
	_ = stream.Publish(ctx, event.ToolExecutionEnd(st.call.ID, st.call.Name, st.result, st.result.IsError))
}

// prepare runs §4.3 steps 1-4: lookup, schema validation, intent stripping,
// and the optional argument transform. On success it returns the tools.Call
// ready for Execute and mutates st.call's Arguments/Intent in place so the
// tool_execution_start event (published by the caller immediately after)
// reflects the stripped args and resolved intent, per §6.6 and S6. On
// failure it returns a human-readable failure reason instead. publishCtx,
// stream, and interrupted let the returned Call's Progress forward a
// tool_execution_update event (§4.3 step 6) instead of just the Go-level
// OnProgress callback; interrupted gates both so a call still running past
// the batch's interrupt point stops updating once it fires.
func prepare(ctx, publishCtx context.Context, stream *event.Stream, interrupted func() bool, st *callState, opts Options) (tools.Call, string, *toolerrors.RetryHint) {
	if !st.known {
		return tools.Call{}, fmt.Sprintf("Tool %s not found", st.call.Name), &toolerrors.RetryHint{
			Reason:         toolerrors.RetryReasonToolNotFound,
			Tool:           st.call.Name,
			RestrictToTool: false,
			Message:        fmt.Sprintf("%q is not a registered tool; do not call it again.", st.call.Name),
		}
	}

	compiled, err := schema.Compile(string(st.desc.Name), st.desc.Schema, opts.IntentTracing)
	if err != nil {
		return tools.Call{}, fmt.Sprintf("invalid tool schema: %s", err), nil
	}

	validated, err := compiled.Validate(st.call.Arguments, st.desc.LenientArgValidation)
	if err != nil {
		return tools.Call{}, err.Error(), &toolerrors.RetryHint{
			Reason:         toolerrors.RetryReasonInvalidArguments,
			Tool:           st.call.Name,
			RestrictToTool: true,
			Message:        fmt.Sprintf("Arguments for %q did not match its schema: %s", st.call.Name, err),
		}
	}

	st.call.Arguments = validated.Args
	st.call.Intent = validated.Intent

	call := tools.Call{
		ID:        st.call.ID,
		Name:      tools.Ident(st.call.Name),
		Arguments: validated.Args,
		Intent:    validated.Intent,
		Progress: func(partial any) {
			if interrupted() {
				return
			}
			_ = stream.Publish(publishCtx, event.ToolExecutionUpdate(st.call.ID, st.call.Name, partial))
			if opts.OnProgress != nil {
				opts.OnProgress(st.call.ID, st.call.Name, partial)
			}
		},
	}

	if opts.ArgTransform != nil {
		transformed, err := opts.ArgTransform(ctx, call)
		if err != nil {
			return tools.Call{}, err.Error(), nil
		}
		call.Arguments = transformed
	}

	return call, "", nil
}

// invoke runs §4.3 steps 5-7: dispatch Execute under the appropriate cancel
// context and fold the outcome into a ToolResultMessage.
func invoke(ctx context.Context, st *callState, call tools.Call, opts Options) message.ToolResultMessage {
	callCtx := ctx
	if st.desc.NonAbortable {
		callCtx = context.WithoutCancel(ctx)
	}
	if opts.ContextResolver != nil {
		callCtx = opts.ContextResolver(callCtx, call)
	}

	res, err := st.desc.Execute(callCtx, call)
	if err != nil {
		toolErr, hint := classifyError(st.call.Name, err)
		return errorResultWithHint(st, opts, toolErr, hint)
	}
	return message.ToolResultMessage{
		ID:         opts.NewID(),
		ToolCallID: st.call.ID,
		ToolName:   st.call.Name,
		Content:    []message.ResultPart{{Text: res.Content}},
		Details:    res.Data,
		IsError:    false,
		Preview:    message.FormatPreview(res.Content),
		Timestamp:  opts.Now(),
	}
}

func errorResultWithHint(st *callState, opts Options, err *toolerrors.ToolError, hint *toolerrors.RetryHint) message.ToolResultMessage {
	return message.NewErrorResultWithHint(opts.NewID(), st.call.ID, st.call.Name, err, hint, opts.Now)
}

// classifyError converts an execution error into a ToolError plus, for a
// recognized failure category, a RetryHint — marking a "service_unavailable"
// ServiceError as Transient and unavailable so callers can retry the same
// call unchanged (mirrors retryHintFromExecutionError's ToolUnavailable case).
func classifyError(toolName string, err error) (*toolerrors.ToolError, *toolerrors.RetryHint) {
	var svcErr *goa.ServiceError
	if errors.As(err, &svcErr) && svcErr.Name == "service_unavailable" {
		msg := fmt.Sprintf("Tool execution failed because the provider is temporarily unavailable: %s", err.Error())
		toolErr := toolerrors.NewWithCause(msg, err).AsTransient()
		hint := &toolerrors.RetryHint{
			Reason:  toolerrors.RetryReasonToolUnavailable,
			Tool:    toolName,
			Message: "The provider is temporarily unavailable. Retry the same tool call with the same arguments.",
		}
		return toolErr, hint
	}
	msg := fmt.Sprintf("Tool execution failed due to an error: %s", err.Error())
	return toolerrors.NewWithCause(msg, err), nil
}

// withCombinedCancel derives a context cancelled when either parent is
// cancelled, mirroring §5's run-wide-OR-steering cancel-token combination.
func withCombinedCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(a, cancel)
	stop2 := context.AfterFunc(b, cancel)
	return ctx, func() {
		cancel()
		stop()
		stop2()
	}
}
