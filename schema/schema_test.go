package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rawSchema = `{
	"type": "object",
	"properties": {"path": {"type": "string"}},
	"required": ["path"],
	"additionalProperties": false
}`

func TestValidateSuccess(t *testing.T) {
	c, err := Compile("read_file", json.RawMessage(rawSchema), false)
	require.NoError(t, err)

	res, err := c.Validate(map[string]any{"path": "a.go"}, false)
	require.NoError(t, err)
	assert.Equal(t, "a.go", res.Args["path"])
	assert.Empty(t, res.Intent)
}

func TestValidateFailureStrict(t *testing.T) {
	c, err := Compile("read_file", json.RawMessage(rawSchema), false)
	require.NoError(t, err)

	_, err = c.Validate(map[string]any{}, false)
	assert.Error(t, err)
}

func TestValidateFailureLenientPassesThrough(t *testing.T) {
	c, err := Compile("read_file", json.RawMessage(rawSchema), false)
	require.NoError(t, err)

	res, err := c.Validate(map[string]any{"unexpected": 1}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Args["unexpected"])
}

func TestValidateIntentTracingStripsField(t *testing.T) {
	c, err := Compile("read_file", json.RawMessage(rawSchema), true)
	require.NoError(t, err)

	res, err := c.Validate(map[string]any{"path": "a.go", "_i": "  reading the file  "}, false)
	require.NoError(t, err)
	assert.Equal(t, "a.go", res.Args["path"])
	assert.NotContains(t, res.Args, IntentField)
	assert.Equal(t, "reading the file", res.Intent)
}

func TestValidateIntentTracingMissingFieldFails(t *testing.T) {
	c, err := Compile("read_file", json.RawMessage(rawSchema), true)
	require.NoError(t, err)

	_, err = c.Validate(map[string]any{"path": "a.go"}, false)
	assert.Error(t, err)
}

func TestCompileEmptySchemaDefaultsToObject(t *testing.T) {
	c, err := Compile("noop", nil, false)
	require.NoError(t, err)

	res, err := c.Validate(map[string]any{"anything": true}, false)
	require.NoError(t, err)
	assert.Equal(t, true, res.Args["anything"])
}
