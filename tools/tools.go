// Package tools describes the tools an agent can call: their schemas,
// concurrency class, and execution functions. A Descriptor is a plain
// runtime value — tools are registered programmatically, never generated
// from a design language.
package tools

import (
	"context"
	"encoding/json"
)

// Concurrency classifies how a tool may be scheduled relative to other
// in-flight tool calls within the same turn.
type Concurrency int

const (
	// Shared tools may run concurrently with any number of other Shared
	// tools. They must not touch state another Shared tool could race on.
	Shared Concurrency = iota
	// Exclusive tools run alone: the scheduler drains all in-flight Shared
	// calls before starting one, and holds off starting any other call
	// (Shared or Exclusive) until it completes.
	Exclusive
)

// String implements fmt.Stringer.
func (c Concurrency) String() string {
	switch c {
	case Shared:
		return "shared"
	case Exclusive:
		return "exclusive"
	default:
		return "unknown"
	}
}

// Call is one model-issued tool invocation handed to a Descriptor's Execute
// function.
type Call struct {
	// ID correlates this call with its eventual result; it mirrors the
	// model's tool_use/tool_call identifier.
	ID string
	// Name is the tool being invoked.
	Name Ident
	// Arguments is the tool call's argument object, already validated
	// against the tool's schema (and stripped of the reserved
	// intent-tracing field) by the time Execute sees it.
	Arguments map[string]any
	// Intent is the trimmed value of the stripped intent-tracing field,
	// empty when intent tracing is off.
	Intent string
	// Progress, if non-nil, reports a partial result while Execute is still
	// running. The scheduler forwards each call as a tool_execution_update
	// event; calls after the run's interrupt flag fires are dropped.
	Progress func(partial any)
}

// Report forwards a partial result to the caller's progress sink, if one was
// supplied. Safe to call when Progress is nil.
func (c Call) Report(partial any) {
	if c.Progress != nil {
		c.Progress(partial)
	}
}

// Result is what a tool's Execute function returns on success. Content is
// the text the model will see in the tool_result; Data is an optional
// structured value a caller may want for logging or UI purposes but that is
// not itself sent back to the model.
type Result struct {
	Content string
	Data    any
}

// Execute performs the invocation described by a Call. Implementations
// should respect ctx cancellation promptly: the turn loop cancels ctx on
// abort unless the Descriptor is marked NonAbortable.
type Execute func(ctx context.Context, call Call) (Result, error)

// Descriptor fully describes one tool: its identity, its schema, and how to
// run it.
type Descriptor struct {
	// Name is the tool's unique identifier as seen by the model.
	Name Ident
	// Label is a short human-facing name, used in logs and UI surfaces
	// distinct from Name (which is also the wire identifier).
	Label string
	// Description is the natural-language text presented to the model.
	Description string
	// Schema is the tool's JSON Schema for its argument object.
	Schema json.RawMessage
	// Concurrency controls scheduling relative to other tool calls.
	Concurrency Concurrency
	// NonAbortable marks a tool whose Execute must run to completion even
	// if the run is aborted or steered; the scheduler still lets the call
	// finish and folds its result in as usual.
	NonAbortable bool
	// LenientArgValidation passes the raw arguments through to Execute when
	// they fail schema validation for any reason (extra fields, missing
	// required fields, wrong types) instead of producing a validation error.
	LenientArgValidation bool
	// Execute runs the tool.
	Execute Execute
}

// Registry is an immutable, name-keyed set of Descriptors built once per
// agent configuration.
type Registry struct {
	byName map[Ident]Descriptor
	order  []Ident
}

// NewRegistry builds a Registry from the given descriptors. Later entries
// with a duplicate Name overwrite earlier ones; their position in Names
// stays at first occurrence.
func NewRegistry(descs ...Descriptor) *Registry {
	r := &Registry{byName: make(map[Ident]Descriptor, len(descs))}
	for _, d := range descs {
		if _, exists := r.byName[d.Name]; !exists {
			r.order = append(r.order, d.Name)
		}
		r.byName[d.Name] = d
	}
	return r
}

// Lookup returns the Descriptor registered under name, if any.
func (r *Registry) Lookup(name Ident) (Descriptor, bool) {
	if r == nil {
		return Descriptor{}, false
	}
	d, ok := r.byName[name]
	return d, ok
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []Ident {
	if r == nil {
		return nil
	}
	out := make([]Ident, len(r.order))
	copy(out, r.order)
	return out
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.byName)
}
