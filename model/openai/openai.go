// Package openai adapts the OpenAI Chat Completions API (including function
// / tool calling) to the generic model.Client interface.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/peakform/coachcore/core"
	"github.com/peakform/coachcore/model"
)

// Options configure the OpenAI client adapter. Fields mirror a subset of
// Chat Completion parameters intentionally kept minimal.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Client wraps the OpenAI Chat Completions API behind model.Client.
type Client struct {
	client *openai.Client
	opts   Options
}

// NewClient creates a new OpenAI client using the official SDK.
func NewClient(optFns ...func(o *Options)) *Client {
	client := openai.NewClient()
	return NewClientFromSDK(&client, optFns...)
}

// NewClientFromSDK wraps an existing SDK client.
func NewClientFromSDK(client *openai.Client, optFns ...func(o *Options)) *Client {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{client: client, opts: opts}
}

// Send implements model.Client.
func (c *Client) Send(ctx context.Context, req model.Request) (model.Response, error) {
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req),
		Model:               c.opts.Model,
		Temperature:         openai.Float(c.opts.Temperature),
		MaxCompletionTokens: openai.Int(c.opts.MaxCompletionTokens),
	}
	if len(req.Functions) > 0 {
		params.Tools = buildTools(req.Functions)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return model.Response{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return model.Response{}, model.NewError(model.KindModel, errors.New("no choices returned"))
	}

	choice := resp.Choices[0]
	out := model.Response{Text: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		out.FunctionCalls = append(out.FunctionCalls, core.FunctionCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

// Info implements model.Client.
func (c *Client) Info() model.Info {
	return model.Info{Name: c.opts.Model, Provider: "openai", SupportsFunctions: true}
}

// buildMessages converts the normalized request into OpenAI chat messages.
// Assistant function calls become tool_calls entries; function results
// become tool messages referencing their call IDs.
func buildMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		out = append(out, openai.SystemMessage(req.System))
	}

	for _, m := range req.Messages {
		switch m.Role {
		case core.RoleUser:
			if m.Content != "" {
				out = append(out, openai.UserMessage(m.Content))
			}
		case core.RoleAssistant:
			if m.FunctionCall == nil {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role: "assistant",
					ToolCalls: []openai.ChatCompletionMessageToolCallParam{{
						ID:   m.FunctionCall.ID,
						Type: "function",
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      m.FunctionCall.Name,
							Arguments: string(m.FunctionCall.Arguments),
						},
					}},
				},
			})
		case core.RoleFunction:
			if m.FunctionRes == nil {
				continue
			}
			out = append(out, openai.ToolMessage(functionResultText(*m.FunctionRes), m.FunctionRes.CallID))
		}
	}
	return out
}

func functionResultText(res core.FunctionResult) string {
	if res.Err != nil {
		data, err := json.Marshal(res.Err)
		if err != nil {
			return res.Err.Error()
		}
		return string(data)
	}
	if s, ok := res.Payload.(string); ok {
		return s
	}
	data, err := json.Marshal(res.Payload)
	if err != nil {
		return fmt.Sprintf("%v", res.Payload)
	}
	return string(data)
}

func buildTools(decls []model.FunctionDecl) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, len(decls))
	for i, decl := range decls {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        decl.Name,
				Description: openai.String(decl.Description),
				Parameters:  decl.Parameters,
			},
		}
	}
	return tools
}

// classify maps SDK failures onto the retryability taxonomy.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return model.NewError(model.KindRateLimited, err)
		case apiErr.StatusCode >= 500:
			return model.NewError(model.KindNetwork, err)
		default:
			return model.NewError(model.KindModel, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return model.NewError(model.KindNetwork, fmt.Errorf("openai api error: %w", err))
}
