// Package anthropic adapts the Anthropic Claude Messages API to the turn
// loop's Transport/Streamer contract (§6.1), translating this module's
// Message union and tool registry to/from github.com/anthropics/anthropic-sdk-go
// and back.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"goa.design/agentcore/assembler"
	"goa.design/agentcore/message"
	"goa.design/agentcore/tools"
)

// Options configures a Client.
type Options struct {
	// APIKey authenticates with the Anthropic API. Required: New returns an
	// error when it is empty.
	APIKey string
	// BaseURL overrides the default Anthropic API base URL.
	BaseURL string

	// Model is the Claude model identifier used for every Stream call (e.g.
	// "claude-sonnet-4-5-20250929").
	Model string
	// MaxTokens caps the completion length. Required, must be positive.
	MaxTokens int64
	// Temperature is optional; zero means "let the API default apply".
	Temperature float64
	// ThinkingBudget, when positive, enables extended thinking with this
	// token budget; must be less than MaxTokens.
	ThinkingBudget int64
	// System is the system prompt sent with every request.
	System string
}

// Client implements turnloop.Transport on top of Anthropic Messages.
type Client struct {
	sdk      sdk.Client
	opts     Options
	registry *tools.Registry
	toolList []sdk.ToolUnionParam
}

// New builds a Client authenticating with opts.APIKey, registering registry's
// tools once as Anthropic tool definitions.
func New(opts Options, registry *tools.Registry) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	if opts.Model == "" {
		return nil, errors.New("anthropic: model is required")
	}
	if opts.MaxTokens <= 0 {
		return nil, errors.New("anthropic: max_tokens must be positive")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	c := &Client{sdk: sdk.NewClient(reqOpts...), opts: opts, registry: registry}
	toolList, err := encodeTools(registry)
	if err != nil {
		return nil, err
	}
	c.toolList = toolList
	return c, nil
}

// Stream issues a Messages.NewStreaming call for history and adapts the
// resulting SSE stream into an assembler.Streamer.
func (c *Client) Stream(ctx context.Context, history []message.Message) (assembler.Streamer, error) {
	msgs, err := encodeMessages(history)
	if err != nil {
		return nil, err
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.opts.Model),
		MaxTokens: c.opts.MaxTokens,
		Messages:  msgs,
	}
	if c.opts.System != "" {
		params.System = []sdk.TextBlockParam{{Text: c.opts.System}}
	}
	if len(c.toolList) > 0 {
		params.Tools = c.toolList
	}
	if c.opts.Temperature > 0 {
		params.Temperature = sdk.Float(c.opts.Temperature)
	}
	if c.opts.ThinkingBudget > 0 {
		if c.opts.ThinkingBudget >= c.opts.MaxTokens {
			return nil, fmt.Errorf("anthropic: thinking budget %d must be less than max_tokens %d", c.opts.ThinkingBudget, c.opts.MaxTokens)
		}
		params.Thinking = sdk.ThinkingConfigParamOfEnabled(c.opts.ThinkingBudget)
	}
	stream := c.sdk.Messages.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic: messages.new stream: %w", err)
	}
	return newStreamer(ctx, stream), nil
}

func encodeMessages(history []message.Message) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, 0, len(history))
	for _, m := range history {
		switch v := m.(type) {
		case message.UserMessage:
			blocks, err := encodeUserParts(v.Content)
			if err != nil {
				return nil, err
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, sdk.NewUserMessage(blocks...))
		case message.AssistantMessage:
			blocks := encodeAssistantParts(v.Content)
			if len(blocks) == 0 {
				continue
			}
			out = append(out, sdk.NewAssistantMessage(blocks...))
		case message.ToolResultMessage:
			out = append(out, sdk.NewUserMessage(sdk.NewToolResultBlock(v.ToolCallID, v.Text(), v.IsError)))
		case message.ExtensionMessage:
			// Extension messages carry application-defined payloads the core
			// never interprets; they have no Anthropic wire representation.
			continue
		}
	}
	if len(out) == 0 {
		return nil, errors.New("anthropic: at least one user/assistant message is required")
	}
	return out, nil
}

func encodeUserParts(parts []message.UserPart) ([]sdk.ContentBlockParamUnion, error) {
	var blocks []sdk.ContentBlockParamUnion
	for _, p := range parts {
		switch v := p.(type) {
		case message.TextUserPart:
			if v.Text != "" {
				blocks = append(blocks, sdk.NewTextBlock(v.Text))
			}
		case message.ImageUserPart:
			blocks = append(blocks, sdk.ContentBlockParamUnion{
				OfImage: &sdk.ImageBlockParam{
					Source: sdk.ImageBlockParamSourceUnion{
						OfBase64: &sdk.Base64ImageSourceParam{
							Data:      v.Data,
							MediaType: sdk.Base64ImageSourceMediaType(v.MediaType),
						},
					},
				},
			})
		}
	}
	return blocks, nil
}

func encodeAssistantParts(parts []message.AssistantPart) []sdk.ContentBlockParamUnion {
	var blocks []sdk.ContentBlockParamUnion
	for _, p := range parts {
		switch v := p.(type) {
		case message.TextPart:
			if v.Text != "" {
				blocks = append(blocks, sdk.NewTextBlock(v.Text))
			}
		case message.ToolCallPart:
			blocks = append(blocks, sdk.NewToolUseBlock(v.ID, v.Arguments, v.Name))
		case message.ThinkingPart:
			// Thinking blocks require a provider signature to round-trip;
			// this module does not persist one, so thinking content is not
			// replayed back to Anthropic on subsequent turns.
		}
	}
	return blocks
}

func encodeTools(registry *tools.Registry) ([]sdk.ToolUnionParam, error) {
	if registry == nil || registry.Len() == 0 {
		return nil, nil
	}
	out := make([]sdk.ToolUnionParam, 0, registry.Len())
	for _, name := range registry.Names() {
		desc, _ := registry.Lookup(name)
		schema, err := toolInputSchema(desc.Schema)
		if err != nil {
			return nil, fmt.Errorf("anthropic: tool %q schema: %w", desc.Name, err)
		}
		u := sdk.ToolUnionParamOfTool(schema, string(desc.Name))
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(desc.Description)
		}
		out = append(out, u)
	}
	return out, nil
}

func toolInputSchema(raw json.RawMessage) (sdk.ToolInputSchemaParam, error) {
	if len(raw) == 0 {
		return sdk.ToolInputSchemaParam{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	return sdk.ToolInputSchemaParam{ExtraFields: m}, nil
}
