// Package schema compiles tool JSON Schemas and validates tool call
// arguments against them, including the reserved "_i" intent-tracing
// property (§6.6).
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// IntentField is the reserved property name the core injects into a tool's
// schema, and strips from validated arguments, when intent tracing is
// enabled.
const IntentField = "_i"

// Compiled wraps a compiled JSON Schema for one tool.
type Compiled struct {
	schema *jsonschema.Schema
	// intentTracing records whether Compile was called with intentTracing
	// set, so Validate knows to special-case the reserved field.
	intentTracing bool
}

// Compile parses and compiles a tool's raw JSON Schema. If intentTracing is
// true, the reserved "_i" string property is injected as the first required
// property before compilation, per §6.6.
func Compile(name string, raw json.RawMessage, intentTracing bool) (*Compiled, error) {
	var doc map[string]any
	if len(raw) == 0 {
		doc = map[string]any{"type": "object"}
	} else if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("schema: tool %q: invalid schema json: %w", name, err)
	}

	if intentTracing {
		injectIntentField(doc)
	}

	compiler := jsonschema.NewCompiler()
	resourceName := "tool://" + name
	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("schema: tool %q: re-encoding schema: %w", name, err)
	}
	res, err := jsonschema.UnmarshalJSON(bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("schema: tool %q: unmarshal for compiler: %w", name, err)
	}
	if err := compiler.AddResource(resourceName, res); err != nil {
		return nil, fmt.Errorf("schema: tool %q: add resource: %w", name, err)
	}
	sch, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("schema: tool %q: compile: %w", name, err)
	}
	return &Compiled{schema: sch, intentTracing: intentTracing}, nil
}

// injectIntentField adds a required, first-in-order "_i" string property to
// an object schema document, creating "properties"/"required" as needed.
func injectIntentField(doc map[string]any) {
	props, _ := doc["properties"].(map[string]any)
	if props == nil {
		props = map[string]any{}
	}
	// Rebuild the properties map with _i first; Go maps have no order, but
	// encoding/json on a map sorts keys, so "true" first-in-order is only
	// observable via an ordered representation upstream of this function
	// (e.g. the transport's property-order-preserving encoder). We still
	// record the requirement so validators and transports that respect key
	// order can place it first.
	props[IntentField] = map[string]any{"type": "string"}
	doc["properties"] = props

	required, _ := doc["required"].([]any)
	already := false
	for _, r := range required {
		if s, ok := r.(string); ok && s == IntentField {
			already = true
		}
	}
	if !already {
		doc["required"] = append([]any{IntentField}, required...)
	}
	if _, ok := doc["type"]; !ok {
		doc["type"] = "object"
	}
}

// Result is the outcome of validating one tool call's arguments.
type Result struct {
	// Args is the (possibly stripped) argument map to hand to Execute.
	Args map[string]any
	// Intent is the trimmed, non-empty value of the stripped "_i" field, or
	// empty if intent tracing was off or the field was blank.
	Intent string
}

// Validate checks args against the compiled schema. If the schema carries
// the reserved intent field, it is stripped from the returned Args before
// validation-result construction (but validated as part of the schema, so a
// missing "_i" is still a validation error upstream of stripping).
//
// If lenient is true and validation fails, Validate returns the original
// args unmodified with a nil error, per the tool's lenientArgValidation flag.
func (c *Compiled) Validate(args map[string]any, lenient bool) (Result, error) {
	if args == nil {
		args = map[string]any{}
	}

	if err := c.schema.Validate(toAny(args)); err != nil {
		if lenient {
			return Result{Args: args}, nil
		}
		return Result{}, fmt.Errorf("argument validation failed: %w", err)
	}

	if !c.intentTracing {
		return Result{Args: args}, nil
	}

	out := make(map[string]any, len(args))
	var intent string
	for k, v := range args {
		if k == IntentField {
			if s, ok := v.(string); ok {
				intent = strings.TrimSpace(s)
			}
			continue
		}
		out[k] = v
	}
	return Result{Args: out, Intent: intent}, nil
}

// toAny round-trips a map[string]any through JSON to the plain any-tree
// shape jsonschema.Validate expects (nested maps/slices of primitives),
// since callers may have embedded typed values.
func toAny(v map[string]any) any {
	b, err := json.Marshal(v)
	if err != nil {
		// args already came from json.Unmarshal in the common path; a
		// marshal failure here means a caller embedded a non-JSON value.
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}
