// Package anthropic adapts the Anthropic Messages API (including function /
// tool calling) to the generic model.Client interface.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/peakform/coachcore/core"
	"github.com/peakform/coachcore/model"
)

// Options configures the Anthropic client adapter.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Client wraps the Anthropic Messages API behind model.Client.
type Client struct {
	client *anthropic.Client
	opts   Options
}

// NewClient creates a new Anthropic client using the official SDK.
func NewClient(optFns ...func(o *Options)) *Client {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)
	return &Client{client: &client, opts: opts}
}

// NewClientFromSDK wraps an existing SDK client.
func NewClientFromSDK(client *anthropic.Client, optFns ...func(o *Options)) *Client {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{client: client, opts: opts}
}

// Send implements model.Client.
func (c *Client) Send(ctx context.Context, req model.Request) (model.Response, error) {
	params := anthropic.MessageNewParams{
		Model:       c.opts.Model,
		Messages:    buildMessages(req.Messages),
		MaxTokens:   c.opts.MaxTokens,
		Temperature: anthropic.Float(c.opts.Temperature),
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Functions) > 0 {
		params.Tools = buildTools(req.Functions)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return model.Response{}, classify(err)
	}

	var out model.Response
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Text += block.AsText().Text
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := json.RawMessage("{}")
			if toolBlock.Input != nil {
				if data, err := json.Marshal(toolBlock.Input); err == nil {
					args = data
				}
			}
			out.FunctionCalls = append(out.FunctionCalls, core.FunctionCall{
				ID:        toolBlock.ID,
				Name:      toolBlock.Name,
				Arguments: args,
			})
		}
	}
	return out, nil
}

// Info implements model.Client.
func (c *Client) Info() model.Info {
	return model.Info{Name: string(c.opts.Model), Provider: "anthropic", SupportsFunctions: true}
}

// buildMessages converts conversation messages to the Anthropic format.
// Function results are emitted as user-role tool_result blocks referencing
// their originating tool_use IDs.
func buildMessages(msgs []core.ConversationMessage) []anthropic.MessageParam {
	var out []anthropic.MessageParam

	for _, m := range msgs {
		switch m.Role {
		case core.RoleUser:
			if m.Content != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		case core.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			if m.FunctionCall != nil {
				var input any
				if len(m.FunctionCall.Arguments) > 0 {
					if err := json.Unmarshal(m.FunctionCall.Arguments, &input); err != nil {
						input = string(m.FunctionCall.Arguments)
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(m.FunctionCall.ID, input, m.FunctionCall.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case core.RoleFunction:
			if m.FunctionRes == nil {
				continue
			}
			content := functionResultText(*m.FunctionRes)
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.FunctionRes.CallID, content, !m.FunctionRes.OK()),
			))
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

func buildTools(decls []model.FunctionDecl) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, len(decls))
	for i, decl := range decls {
		inputSchema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
		if decl.Parameters != nil {
			if properties, ok := decl.Parameters["properties"]; ok {
				inputSchema.Properties = properties
			}
			switch req := decl.Parameters["required"].(type) {
			case []string:
				inputSchema.Required = req
			case []any:
				for _, r := range req {
					if s, ok := r.(string); ok {
						inputSchema.Required = append(inputSchema.Required, s)
					}
				}
			}
		}
		tools[i] = anthropic.ToolUnionParamOfTool(inputSchema, decl.Name)
	}
	return tools
}

// classify maps SDK failures onto the retryability taxonomy: HTTP 429 is
// rate limiting, 5xx is retryable transport trouble, everything else is a
// model error.
func classify(err error) error {
	var apiErr *anthropic.Error
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
	return model.NewError(model.KindNetwork, fmt.Errorf("anthropic api error: %w", err))
}
