package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements Provider for Anthropic Claude.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Complete makes an API call to Anthropic Claude.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))

	for _, msg := range req.Messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))
		for _, block := range msg.Content {
			switch block.Type {
			case BlockText:
				blocks = append(blocks, anthropic.NewTextBlock(block.Text))
			case BlockToolUse:
				blocks = append(blocks, anthropic.NewToolUseBlock(block.ID, block.Input, block.Name))
			case BlockToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(block.ToolUseID, block.Content, false))
			default:
				return nil, fmt.Errorf("unsupported content block type: %s", block.Type)
			}
		}

		role := anthropic.MessageParamRoleUser
		if msg.Role == "assistant" {
			role = anthropic.MessageParamRoleAssistant
		}
		messages = append(messages, anthropic.MessageParam{Role: role, Content: blocks})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	if len(req.Tools) > 0 {
		toolParams := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
		for _, def := range req.Tools {
			tool := anthropic.ToolParam{
				Name:        string(def.Name),
				Description: anthropic.String(def.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: def.InputSchema["properties"],
				},
			}
			if required, ok := def.InputSchema["required"].([]interface{}); ok {
				names := make([]string, 0, len(required))
				for _, r := range required {
					if s, ok := r.(string); ok {
						names = append(names, s)
					}
				}
				tool.InputSchema.Required = names
			}
			toolParams = append(toolParams, anthropic.ToolUnionParam{OfTool: &tool})
		}
		params.Tools = toolParams
	}

	response, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	content := make([]ContentBlock, 0, len(response.Content))
	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content = append(content, ContentBlock{Type: BlockText, Text: b.Text})
		case anthropic.ToolUseBlock:
			var input map[string]interface{}
			if err := json.Unmarshal([]byte(b.JSON.Input.Raw()), &input); err != nil {
				return nil, fmt.Errorf("failed to parse tool input: %w", err)
			}
			content = append(content, ContentBlock{
				Type:  BlockToolUse,
				ID:    b.ID,
				Name:  b.Name,
				Input: input,
			})
		}
	}

	stop := StopEndTurn
	if response.StopReason == anthropic.StopReasonToolUse {
		stop = StopToolUse
	}

	return &Response{
		StopReason: stop,
		Content:    content,
		Usage: Usage{
			InputTokens:  int(response.Usage.InputTokens),
			OutputTokens: int(response.Usage.OutputTokens),
		},
	}, nil
}
