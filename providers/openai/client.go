// Package openai adapts the OpenAI Chat Completions streaming API to the
// turn loop's Transport/Streamer contract (§6.1), mirroring the structure of
// the Anthropic adapter in goa.design/agentcore/providers/anthropic against
// github.com/openai/openai-go instead.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"goa.design/agentcore/assembler"
	"goa.design/agentcore/message"
	"goa.design/agentcore/tools"
)

// Options configures a Client.
type Options struct {
	APIKey string
	BaseURL string

	// Model is the Chat Completions model identifier (e.g. "gpt-4o").
	Model string
	// MaxTokens caps the completion length. Zero leaves the API default.
	MaxTokens int64
	// Temperature is optional; zero means "let the API default apply".
	Temperature float64
	// System is sent as the first message with role "system".
	System string
}

// Client implements turnloop.Transport on top of OpenAI Chat Completions.
type Client struct {
	sdk      sdk.Client
	opts     Options
	registry *tools.Registry
	toolList []sdk.ChatCompletionToolParam
}

// New builds a Client authenticating with opts.APIKey, registering
// registry's tools once as Chat Completions function definitions.
func New(opts Options, registry *tools.Registry) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	if opts.Model == "" {
		return nil, errors.New("openai: model is required")
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

// Stream issues a Chat Completions streaming call for history and adapts
// the resulting SSE stream into an assembler.Streamer.
func (c *Client) Stream(ctx context.Context, history []message.Message) (assembler.Streamer, error) {
	msgs, err := encodeMessages(c.opts.System, history)
	if err != nil {
		return nil, err
	}
	params := sdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.opts.Model),
		Messages: msgs,
		StreamOptions: sdk.ChatCompletionStreamOptionsParam{
			IncludeUsage: sdk.Bool(true),
		},
	}
	if len(c.toolList) > 0 {
		params.Tools = c.toolList
	}
	if c.opts.MaxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(c.opts.MaxTokens)
	}
	if c.opts.Temperature > 0 {
		params.Temperature = sdk.Float(c.opts.Temperature)
	}
	stream := c.sdk.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai: chat.completions.new stream: %w", err)
	}
	return newStreamer(ctx, stream), nil
}

func encodeMessages(system string, history []message.Message) ([]sdk.ChatCompletionMessageParamUnion, error) {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(history)+1)
	if system != "" {
		out = append(out, sdk.SystemMessage(system))
	}
	for _, m := range history {
		switch v := m.(type) {
		case message.UserMessage:
			text, err := userText(v.Content)
			if err != nil {
				return nil, err
			}
			if text == "" {
				continue
			}
			out = append(out, sdk.UserMessage(text))
		case message.AssistantMessage:
			msg, ok := encodeAssistantMessage(v.Content)
			if !ok {
				continue
			}
			out = append(out, msg)
		case message.ToolResultMessage:
			out = append(out, sdk.ToolMessage(v.Text(), v.ToolCallID))
		case message.ExtensionMessage:
			// Extension messages have no Chat Completions wire representation.
			continue
		}
	}
	if len(out) == 0 {
		return nil, errors.New("openai: at least one user/assistant message is required")
	}
	return out, nil
}

// userText concatenates text parts. OpenAI Chat Completions supports
// multi-part (text+image) user content too, but this module's image
// transport is modeled against Anthropic's content-block shape; image
// parts are dropped here rather than mistranslated.
func userText(parts []message.UserPart) (string, error) {
	var text string
	for _, p := range parts {
		if tp, ok := p.(message.TextUserPart); ok {
			text += tp.Text
		}
	}
	return text, nil
}

func encodeAssistantMessage(parts []message.AssistantPart) (sdk.ChatCompletionMessageParamUnion, bool) {
	var (
		text      string
		toolCalls []sdk.ChatCompletionMessageToolCallParam
	)
	for _, p := range parts {
		switch v := p.(type) {
		case message.TextPart:
			text += v.Text
		case message.ToolCallPart:
			args, _ := json.Marshal(v.Arguments)
			toolCalls = append(toolCalls, sdk.ChatCompletionMessageToolCallParam{
				ID: v.ID,
				Function: sdk.ChatCompletionMessageToolCallFunctionParam{
					Name:      v.Name,
					Arguments: string(args),
				},
			})
		case message.ThinkingPart:
			// Chat Completions has no reasoning-content replay slot for this
			// SDK's non-reasoning models; thinking content is not sent back.
		}
	}
	if text == "" && len(toolCalls) == 0 {
		return sdk.ChatCompletionMessageParamUnion{}, false
	}
	asst := sdk.ChatCompletionAssistantMessageParam{}
	if text != "" {
		asst.Content.OfString = sdk.String(text)
	}
	asst.ToolCalls = toolCalls
	return sdk.ChatCompletionMessageParamUnion{OfAssistant: &asst}, true
}

func encodeTools(registry *tools.Registry) ([]sdk.ChatCompletionToolParam, error) {
	if registry == nil || registry.Len() == 0 {
		return nil, nil
	}
	out := make([]sdk.ChatCompletionToolParam, 0, registry.Len())
	for _, name := range registry.Names() {
		desc, _ := registry.Lookup(name)
		params, err := functionParameters(desc.Schema)
		if err != nil {
			return nil, fmt.Errorf("openai: tool %q schema: %w", desc.Name, err)
		}
		out = append(out, sdk.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        string(desc.Name),
				Description: sdk.String(desc.Description),
				Parameters:  params,
			},
		})
	}
	return out, nil
}

func functionParameters(raw json.RawMessage) (shared.FunctionParameters, error) {
	if len(raw) == 0 {
		return shared.FunctionParameters{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return shared.FunctionParameters(m), nil
}
