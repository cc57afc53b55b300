// Package agent implements the Agent Facade (§4.5): the long-lived,
// session-scoped object an application holds onto. It owns conversation
// history and the steering/follow-up queues, serializes prompt/continue
// calls against the run-wide streaming flag, and drives the Turn Loop once
// per prompt()/continue() invocation.
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"goa.design/agentcore/event"
	"goa.design/agentcore/message"
	"goa.design/agentcore/scheduler"
	"goa.design/agentcore/telemetry"
	"goa.design/agentcore/tools"
	"goa.design/agentcore/turnloop"
)

// Outcome is returned by Prompt/Continue: the messages appended to history
// during that run.
type Outcome = turnloop.Outcome

// Agent is the facade. Zero value is not usable; construct with New.
type Agent struct {
	transport turnloop.Transport
	stream    *event.Stream

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer

	now   func() time.Time
	newID func() string

	contextTransform turnloop.ContextTransform
	converter        turnloop.Converter
	argTransform     scheduler.ArgTransform
	contextResolver  scheduler.ContextResolver
	onProgress       func(callID, toolName string, partial any)

	mu sync.Mutex

	systemPrompt  string
	model         string
	registry      *tools.Registry
	thinkingLevel string
	sessionID     string
	samplingParams any

	interruptMode scheduler.InterruptMode
	steeringMode  turnloop.QueueMode
	followUpMode  turnloop.QueueMode
	intentTracing bool

	history      []message.Message
	steeringQ    queue
	followUpQ    queue
	isStreaming  bool
	runCancel    context.CancelFunc
}

// New constructs an Agent bound to transport, applying any Options.
func New(transport turnloop.Transport, opts ...Option) *Agent {
	a := &Agent{
		transport: transport,
		stream:    event.New(),
		logger:    telemetry.NewNoopLogger(),
		metrics:   telemetry.NewNoopMetrics(),
		tracer:    telemetry.NewNoopTracer(),
		now:       time.Now,
		newID:     uuid.NewString,
		registry:  tools.NewRegistry(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Option configures an Agent at construction time.
type Option func(*Agent)

func WithSystemPrompt(s string) Option  { return func(a *Agent) { a.systemPrompt = s } }
func WithModel(m string) Option         { return func(a *Agent) { a.model = m } }
func WithTools(r *tools.Registry) Option { return func(a *Agent) { a.registry = r } }
func WithThinkingLevel(l string) Option { return func(a *Agent) { a.thinkingLevel = l } }
func WithSessionID(id string) Option    { return func(a *Agent) { a.sessionID = id } }
func WithSamplingParams(p any) Option   { return func(a *Agent) { a.samplingParams = p } }

func WithInterruptMode(m scheduler.InterruptMode) Option { return func(a *Agent) { a.interruptMode = m } }
func WithSteeringMode(m turnloop.QueueMode) Option       { return func(a *Agent) { a.steeringMode = m } }
func WithFollowUpMode(m turnloop.QueueMode) Option       { return func(a *Agent) { a.followUpMode = m } }
func WithIntentTracing(b bool) Option                    { return func(a *Agent) { a.intentTracing = b } }

func WithContextTransform(f turnloop.ContextTransform) Option {
	return func(a *Agent) { a.contextTransform = f }
}
func WithConverter(f turnloop.Converter) Option { return func(a *Agent) { a.converter = f } }
func WithArgTransform(f scheduler.ArgTransform) Option {
	return func(a *Agent) { a.argTransform = f }
}
func WithContextResolver(f scheduler.ContextResolver) Option {
	return func(a *Agent) { a.contextResolver = f }
}
func WithOnProgress(f func(callID, toolName string, partial any)) Option {
	return func(a *Agent) { a.onProgress = f }
}

func WithLogger(l telemetry.Logger) Option   { return func(a *Agent) { a.logger = l } }
func WithMetrics(m telemetry.Metrics) Option { return func(a *Agent) { a.metrics = m } }
func WithTracer(t telemetry.Tracer) Option   { return func(a *Agent) { a.tracer = t } }

func WithClock(now func() time.Time) Option    { return func(a *Agent) { a.now = now } }
func WithIDGenerator(f func() string) Option   { return func(a *Agent) { a.newID = f } }

// Setters. Per §4.5, while isStreaming these MAY be called but only take
// effect from the next turn boundary: since one Run call may span several
// assistant turns with no external reconfiguration hook mid-run, the facade
// snapshots its config at the start of each Prompt/Continue call, so a
// setter invoked during a run is visible starting with the *next*
// Prompt/Continue, never mid-batch. The system prompt, model, thinking level,
// session ID and sampling parameters are stored on the Agent only: they are
// not part of that snapshot and are not passed to the turn loop or the
// transport.

func (a *Agent) SetSystemPrompt(s string) { a.mu.Lock(); a.systemPrompt = s; a.mu.Unlock() }
func (a *Agent) SetModel(m string)        { a.mu.Lock(); a.model = m; a.mu.Unlock() }
func (a *Agent) SetTools(r *tools.Registry) {
	a.mu.Lock()
	a.registry = r
	a.mu.Unlock()
}
func (a *Agent) SetThinkingLevel(l string) { a.mu.Lock(); a.thinkingLevel = l; a.mu.Unlock() }
func (a *Agent) SetSessionID(id string)    { a.mu.Lock(); a.sessionID = id; a.mu.Unlock() }
func (a *Agent) SetSamplingParams(p any)   { a.mu.Lock(); a.samplingParams = p; a.mu.Unlock() }
func (a *Agent) SetInterruptMode(m scheduler.InterruptMode) {
	a.mu.Lock()
	a.interruptMode = m
	a.mu.Unlock()
}
func (a *Agent) SetSteeringMode(m turnloop.QueueMode) { a.mu.Lock(); a.steeringMode = m; a.mu.Unlock() }
func (a *Agent) SetFollowUpMode(m turnloop.QueueMode) { a.mu.Lock(); a.followUpMode = m; a.mu.Unlock() }
func (a *Agent) SetIntentTracing(b bool)              { a.mu.Lock(); a.intentTracing = b; a.mu.Unlock() }

// Steer enqueues a steering message, consumed by the scheduler at its next
// interrupt-poll point (or spliced by Continue if the run is idle).
func (a *Agent) Steer(m message.Message) { a.steeringQ.push(m) }

// FollowUp enqueues a follow-up message, consumed at the next outer-loop
// boundary (or by Continue if the run is idle).
func (a *Agent) FollowUp(m message.Message) { a.followUpQ.push(m) }

// Subscribe registers fn to receive every AgentEvent published from this
// point on, starting a goroutine that drains a dedicated Consumer. The
// returned function unsubscribes.
func (a *Agent) Subscribe(fn func(event.AgentEvent)) func() {
	c := a.stream.NewConsumer()
	go func() {
		ctx := context.Background()
		for {
			ev, ok := c.Next(ctx)
			if !ok {
				return
			}
			fn(ev)
		}
	}()
	return c.Close
}

// EmitExternal publishes an externally-sourced AgentEvent onto this agent's
// stream, for a replay sink (e.g. eventsink/redis) re-injecting
// previously-buffered events into a reconnected subscriber without a live
// run in progress. The event is delivered to every current Subscribe
// consumer exactly as a Run-produced event would be.
func (a *Agent) EmitExternal(ctx context.Context, ev event.AgentEvent) error {
	return a.stream.Publish(ctx, ev)
}

// History returns a snapshot of the agent's conversation history.
func (a *Agent) History() []message.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]message.Message, len(a.history))
	copy(out, a.history)
	return out
}

// IsStreaming reports whether a run is currently between agent_start and
// agent_end.
func (a *Agent) IsStreaming() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isStreaming
}

// Prompt starts a new run with messages as the first pending batch. It
// fails with BusyError if a run is already streaming.
func (a *Agent) Prompt(ctx context.Context, messages []message.Message) (Outcome, error) {
	return a.run(ctx, messages)
}

// PromptText is a convenience wrapper building a single-part UserMessage.
func (a *Agent) PromptText(ctx context.Context, text string) (Outcome, error) {
	return a.Prompt(ctx, []message.Message{message.UserMessage{
		ID:        a.newID(),
		Content:   []message.UserPart{message.TextUserPart{Text: text}},
		Timestamp: a.now(),
	}})
}

// Continue restarts the turn loop against current history: used after a
// transient error, or to consume a queued steering/follow-up message that
// arrived while idle (§8.11, §8.12).
func (a *Agent) Continue(ctx context.Context) (Outcome, error) {
	a.mu.Lock()
	if a.isStreaming {
		a.mu.Unlock()
		return Outcome{}, BusyError{}
	}
	if len(a.history) == 0 {
		a.mu.Unlock()
		return Outcome{}, ErrEmptyHistory
	}
	lastIsAssistant := a.history[len(a.history)-1].Role() == message.RoleAssistant
	a.mu.Unlock()

	var pending []message.Message
	if lastIsAssistant {
		pending = a.steeringQ.Drain(turnloop.DrainOne)
		if len(pending) == 0 {
			pending = a.followUpQ.Drain(turnloop.DrainOne)
		}
		if len(pending) == 0 {
			return Outcome{}, ErrContinueOnAssistant
		}
	}
	return a.run(ctx, pending)
}

// Abort signals the run-wide cancel-token, if a run is in progress.
// Non-blocking: it returns immediately without waiting for the run to
// observe cancellation.
func (a *Agent) Abort() {
	a.mu.Lock()
	cancel := a.runCancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// run is the shared body of Prompt/Continue: claims isStreaming, builds a
// turnloop.Config snapshot, runs it, and folds the result into history.
func (a *Agent) run(ctx context.Context, pending []message.Message) (Outcome, error) {
	a.mu.Lock()
	if a.isStreaming {
		a.mu.Unlock()
		return Outcome{}, BusyError{}
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.isStreaming = true
	a.runCancel = cancel
	priorHistory := append([]message.Message(nil), a.history...)
	cfg := turnloop.Config{
		Transport:        a.transport,
		ContextTransform: a.contextTransform,
		Converter:        a.converter,
		Registry:         a.registry,
		Steering:         a.steeringMode,
		FollowUp:         a.followUpMode,
		SteeringSource:   &a.steeringQ,
		FollowUpSource:   &a.followUpQ,
		InterruptMode:    a.interruptMode,
		IntentTracing:    a.intentTracing,
		ArgTransform:     a.argTransform,
		ContextResolver:  a.contextResolver,
		OnProgress:       a.onProgress,
		Logger:           a.logger,
		Metrics:          a.metrics,
		Tracer:           a.tracer,
		Now:              a.now,
		NewID:            a.newID,
	}
	a.mu.Unlock()

	if err := a.stream.Publish(runCtx, event.AgentStart()); err != nil {
		a.finishRun(cancel)
		return Outcome{}, err
	}

	outcome, err := turnloop.Run(runCtx, a.stream, cfg, priorHistory, pending)

	a.mu.Lock()
	a.history = append(a.history, outcome.Appended...)
	a.mu.Unlock()
	a.finishRun(cancel)

	return outcome, err
}

func (a *Agent) finishRun(cancel context.CancelFunc) {
	cancel()
	a.mu.Lock()
	a.isStreaming = false
	a.runCancel = nil
	a.mu.Unlock()
}
