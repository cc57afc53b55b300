// Package turnloop drives one run (§4.4): the outer loop over follow-up
// messages and the inner loop over assistant turns, splicing steering and
// follow-up messages into history at the right boundaries and synthesizing
// placeholder tool-results to preserve Invariant M1 on error or abort.
package turnloop

import (
	"context"
	"time"

	"goa.design/agentcore/assembler"
	"goa.design/agentcore/event"
	"goa.design/agentcore/message"
	"goa.design/agentcore/scheduler"
	"goa.design/agentcore/telemetry"
	"goa.design/agentcore/tools"
)

// QueueMode controls how many queued messages a drain consumes at once.
type QueueMode int

const (
	// DrainAll pops every currently-queued message in one drain.
	DrainAll QueueMode = iota
	// DrainOne pops only the head of the queue.
	DrainOne
)

// Source pulls queued messages; see queue in package agent for the concrete
// FIFO implementation the facade uses. Kept as an interface here so the turn
// loop stays agnostic of queue internals.
type Source interface {
	// Drain returns and removes queued messages according to mode. An empty
	// result is valid and must not advance any other state (§8.8).
	Drain(mode QueueMode) []message.Message
}

// Transport produces a Streamer for one assistant response. Converter turns
// the current history into the transport's expected message shape;
// ContextTransform optionally rewrites the context before each call (§6.2/§6.3).
type Transport interface {
	Stream(ctx context.Context, llmMessages []message.Message) (assembler.Streamer, error)
}

type ContextTransform func(ctx context.Context, history []message.Message) ([]message.Message, error)
type Converter func(history []message.Message) []message.Message

// Config bundles the collaborators and options for one Run call.
type Config struct {
	Transport        Transport
	ContextTransform ContextTransform
	Converter        Converter

	Registry *tools.Registry

	Steering QueueMode
	FollowUp QueueMode

	SteeringSource Source
	FollowUpSource Source

	InterruptMode scheduler.InterruptMode
	IntentTracing bool
	ArgTransform  scheduler.ArgTransform
	ContextResolver scheduler.ContextResolver
	OnProgress    func(callID, toolName string, partial any)

	// Logger, Metrics, and Tracer instrument the suspension points named in
	// §5: turn start/end, tool dispatch (forwarded to scheduler.Options),
	// cancellation, and terminal run failure. Nil defaults to a noop
	// implementation, so callers that don't care about observability pay
	// nothing for it.
	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer

	Now   func() time.Time
	NewID func() string
}

// Outcome is returned by Run: the full set of messages appended during the
// run (in append order), for the agent_end payload and for the facade to
// fold into long-lived history.
type Outcome struct {
	Appended []message.Message
}

// Run executes the outer/inner loop of §4.4 against ctx (the run-wide
// cancel-token) for one prompt/continue invocation. priorHistory is the
// conversation history already persisted before this run (never re-emitted
// or re-appended); pending is the run's first batch of new messages — the
// user's prompt on a fresh run, or any already-queued steering/follow-up
// message on a continue() — drained as pendingMessages in the first inner
// iteration per §4.4 step 2.
func Run(ctx context.Context, stream *event.Stream, cfg Config, priorHistory []message.Message, pending []message.Message) (Outcome, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return "" }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}

	ctx, span := tracer.Start(ctx, "turnloop.Run")
	defer span.End()
	start := cfg.Now()
	logger.Debug(ctx, "run starting", "pendingCount", len(pending))
	metrics.IncCounter("agentcore.runs", 1)

	var appended []message.Message
	history := append([]message.Message(nil), priorHistory...)

	appendMsg := func(m message.Message) {
		history = append(history, m)
		appended = append(appended, m)
	}

	pendingMessages := pending
	hasMoreToolCalls := true

	for {
		// Inner loop: repeats while hasMoreToolCalls OR pendingMessages
		// non-empty.
		for hasMoreToolCalls || len(pendingMessages) > 0 {
			logger.Debug(ctx, "turn starting")
			if err := stream.Publish(ctx, event.TurnStart()); err != nil {
				return Outcome{Appended: appended}, err
			}

			for _, m := range pendingMessages {
				appendMsg(m)
				if err := stream.Publish(ctx, event.MessageStart(m)); err != nil {
					return Outcome{Appended: appended}, err
				}
				if err := stream.Publish(ctx, event.MessageEnd(m)); err != nil {
					return Outcome{Appended: appended}, err
				}
			}
			pendingMessages = nil

			llmHistory := history
			if cfg.ContextTransform != nil {
				transformed, err := cfg.ContextTransform(ctx, history)
				if err != nil {
					return Outcome{Appended: appended}, err
				}
				llmHistory = transformed
			}
			if cfg.Converter != nil {
				llmHistory = cfg.Converter(llmHistory)
			}

			streamer, err := cfg.Transport.Stream(ctx, llmHistory)
			if err != nil {
				logTurnFailure(ctx, logger, "transport stream failed", err)
				return Outcome{Appended: appended}, err
			}

			assistantMsg, err := assembler.Assemble(ctx, stream, streamer, cfg.Now)
			_ = streamer.Close()
			if err != nil {
				logTurnFailure(ctx, logger, "assembler failed", err)
				return Outcome{Appended: appended}, err
			}
			if assistantMsg.ID == "" {
				assistantMsg.ID = cfg.NewID()
			}
			appendMsg(assistantMsg)

			if assistantMsg.StopReason == message.StopError || assistantMsg.StopReason == message.StopAborted {
				if assistantMsg.StopReason == message.StopAborted {
					logger.Warn(ctx, "run aborted", "assistantID", assistantMsg.ID)
				} else {
					logger.Error(ctx, "turn ended in error", "assistantID", assistantMsg.ID, "errorMessage", assistantMsg.ErrorMessage)
				}
				placeholders := synthesizePlaceholders(assistantMsg, cfg)
				for _, p := range placeholders {
					appendMsg(p)
				}
				results := make([]message.ToolResultMessage, len(placeholders))
				copy(results, placeholders)
				if err := stream.Publish(ctx, event.TurnEnd(assistantMsg, results)); err != nil {
					return Outcome{Appended: appended}, err
				}
				if err := stream.Publish(ctx, event.AgentEnd(appended)); err != nil {
					return Outcome{Appended: appended}, err
				}
				metrics.RecordTimer("agentcore.run.duration", cfg.Now().Sub(start))
				return Outcome{Appended: appended}, nil
			}

			toolCalls := assistantMsg.ToolCalls()
			var toolResults []message.ToolResultMessage
			var steeringMsgs []message.Message
			if len(toolCalls) == 0 {
				hasMoreToolCalls = false
			} else {
				schedRes, err := scheduler.Run(ctx, stream, cfg.Registry, assistantMsg, scheduler.Options{
					InterruptMode:   cfg.InterruptMode,
					Steering:        adaptSource(cfg.SteeringSource, cfg.Steering),
					IntentTracing:   cfg.IntentTracing,
					ArgTransform:    cfg.ArgTransform,
					ContextResolver: cfg.ContextResolver,
					OnProgress:      cfg.OnProgress,
					Logger:          logger,
					Metrics:         metrics,
					Tracer:          tracer,
					Now:             cfg.Now,
					NewID:           cfg.NewID,
				})
				if err != nil {
					return Outcome{Appended: appended}, err
				}
				toolResults = schedRes.ToolResults
				steeringMsgs = schedRes.SteeringMessages
				// The scheduler already published message_start/message_end
				// for each toolResult as part of its result materialization
				// (§4.3); the turn loop only owns appending to history.
				for _, r := range toolResults {
					appendMsg(r)
				}
			}

			if err := stream.Publish(ctx, event.TurnEnd(assistantMsg, toolResults)); err != nil {
				return Outcome{Appended: appended}, err
			}
			logger.Debug(ctx, "turn ended", "stopReason", string(assistantMsg.StopReason), "toolResultCount", len(toolResults))
			metrics.IncCounter("agentcore.turns", 1)

			if len(steeringMsgs) > 0 {
				pendingMessages = steeringMsgs
			} else if cfg.SteeringSource != nil {
				pendingMessages = cfg.SteeringSource.Drain(cfg.Steering)
			}
		}

		if cfg.FollowUpSource == nil {
			break
		}
		followUps := cfg.FollowUpSource.Drain(cfg.FollowUp)
		if len(followUps) == 0 {
			break
		}
		pendingMessages = followUps
		hasMoreToolCalls = true
	}

	if err := stream.Publish(ctx, event.AgentEnd(appended)); err != nil {
		return Outcome{Appended: appended}, err
	}
	logger.Debug(ctx, "run completed", "appendedCount", len(appended))
	metrics.RecordTimer("agentcore.run.duration", cfg.Now().Sub(start))
	return Outcome{Appended: appended}, nil
}

// synthesizePlaceholders preserves Invariant M1 when a turn ends in error or
// abort after the model emitted tool calls: every unresolved toolCall gets a
// placeholder toolResult.
func synthesizePlaceholders(assistantMsg message.AssistantMessage, cfg Config) []message.ToolResultMessage {
	calls := assistantMsg.ToolCalls()
	if len(calls) == 0 {
		return nil
	}
	text := "Tool execution failed due to an error: " + assistantMsg.ErrorMessage
	out := make([]message.ToolResultMessage, len(calls))
	for i, c := range calls {
		out[i] = message.NewErrorResult(cfg.NewID(), c.ID, c.Name, text, cfg.Now)
	}
	return out
}

// logTurnFailure logs a non-placeholder-path failure at Warn when it was
// caused by ctx cancellation (the caller's Abort, or a parent deadline), and
// at Error otherwise, per §5's cancellation-vs-terminal-failure distinction.
func logTurnFailure(ctx context.Context, logger telemetry.Logger, msg string, err error) {
	if ctx.Err() != nil {
		logger.Warn(ctx, msg, "error", err)
		return
	}
	logger.Error(ctx, msg, "error", err)
}

func adaptSource(s Source, mode QueueMode) scheduler.SteeringSource {
	if s == nil {
		return nil
	}
	return func(ctx context.Context) ([]message.Message, error) {
		return s.Drain(mode), nil
	}
}
