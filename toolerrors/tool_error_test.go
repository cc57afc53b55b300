package toolerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsMessage(t *testing.T) {
	e := New("")
	assert.Equal(t, "tool error", e.Error())
}

func TestNewWithCauseWrapsChain(t *testing.T) {
	root := errors.New("connection reset")
	wrapped := fmt.Errorf("fetch failed: %w", root)

	te := NewWithCause("could not fetch url", wrapped)
	require.NotNil(t, te.Cause)
	assert.Equal(t, "could not fetch url", te.Error())
	assert.Equal(t, "fetch failed: connection reset", te.Cause.Error())
}

func TestFromErrorPassesThroughToolError(t *testing.T) {
	orig := New("boom")
	got := FromError(orig)
	assert.Same(t, orig, got)
}

func TestFromErrorNil(t *testing.T) {
	assert.Nil(t, FromError(nil))
}

func TestErrorsIsAs(t *testing.T) {
	root := New("rate limited")
	wrapped := NewWithCause("tool call failed", root)

	var target *ToolError
	require.True(t, errors.As(wrapped, &target))
	assert.Equal(t, "tool call failed", target.Message)
	require.True(t, errors.As(errors.Unwrap(wrapped), &target))
	assert.Equal(t, "rate limited", target.Message)
}

func TestAsTransientCopies(t *testing.T) {
	orig := New("timeout")
	transient := orig.AsTransient()
	assert.False(t, orig.Transient)
	assert.True(t, transient.Transient)
}
