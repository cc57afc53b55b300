package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoDescriptor() Descriptor {
	return Descriptor{
		Name:        "echo",
		Label:       "Echo",
		Description: "returns its input",
		Concurrency: Shared,
		Execute: func(_ context.Context, call Call) (Result, error) {
			v, _ := call.Arguments["text"].(string)
			return Result{Content: v}, nil
		},
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry(echoDescriptor())

	d, ok := r.Lookup("echo")
	require.True(t, ok)
	assert.Equal(t, "Echo", d.Label)

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}

func TestRegistryNamesPreservesOrderAndDedupes(t *testing.T) {
	r := NewRegistry(
		Descriptor{Name: "a"},
		Descriptor{Name: "b"},
		Descriptor{Name: "a", Label: "second a"},
	)

	assert.Equal(t, []Ident{"a", "b"}, r.Names())
	assert.Equal(t, 2, r.Len())

	d, _ := r.Lookup("a")
	assert.Equal(t, "second a", d.Label)
}

func TestConcurrencyString(t *testing.T) {
	assert.Equal(t, "shared", Shared.String())
	assert.Equal(t, "exclusive", Exclusive.String())
}

func TestNilRegistrySafe(t *testing.T) {
	var r *Registry
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.Names())
	_, ok := r.Lookup("x")
	assert.False(t, ok)
}
