package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider implements Provider for OpenAI chat models.
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Complete makes an API call to OpenAI. The block model maps onto the chat
// completions shape: tool_use blocks become tool calls on an assistant
// message, tool_result blocks become tool-role messages.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}

	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}

	for _, msg := range req.Messages {
		converted, err := convertMessageToOpenAI(msg)
		if err != nil {
			return nil, err
		}
		messages = append(messages, converted...)
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	if len(req.Tools) > 0 {
		toolParams := make([]openai.ChatCompletionToolParam, 0, len(req.Tools))
		for _, def := range req.Tools {
			toolParams = append(toolParams, openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        string(def.Name),
					Description: openai.String(def.Description),
					Parameters:  openai.FunctionParameters(def.InputSchema),
				},
			})
		}
		params.Tools = toolParams
	}

	response, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	choice := response.Choices[0]

	content := []ContentBlock{}
	if choice.Message.Content != "" {
		content = append(content, ContentBlock{Type: BlockText, Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		var input map[string]interface{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
			return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
		}
		content = append(content, ContentBlock{
			Type:  BlockToolUse,
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: input,
		})
	}

	stop := StopEndTurn
	if len(choice.Message.ToolCalls) > 0 {
		stop = StopToolUse
	}

	return &Response{
		StopReason: stop,
		Content:    content,
		Usage: Usage{
			InputTokens:  int(response.Usage.PromptTokens),
			OutputTokens: int(response.Usage.CompletionTokens),
		},
	}, nil
}

func convertMessageToOpenAI(msg Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	var out []openai.ChatCompletionMessageParamUnion

	if msg.Role == "assistant" {
		text := ""
		toolCalls := []openai.ChatCompletionMessageToolCall{}
		for _, block := range msg.Content {
			switch block.Type {
			case BlockText:
				text += block.Text
			case BlockToolUse:
				args, err := json.Marshal(block.Input)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal tool input: %w", err)
				}
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
					ID:   block.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunction{
						Name:      block.Name,
						Arguments: string(args),
					},
				})
			}
		}

		if len(toolCalls) > 0 {
			assistantMsg := openai.ChatCompletionMessage{
				Role:      "assistant",
				Content:   text,
				ToolCalls: toolCalls,
			}
			out = append(out, assistantMsg.ToParam())
		} else {
			out = append(out, openai.AssistantMessage(text))
		}
		return out, nil
	}

	// User messages: leading tool results each become a tool-role message,
	// text blocks collapse into one user message.
	text := ""
	for _, block := range msg.Content {
		switch block.Type {
		case BlockText:
			text += block.Text
		case BlockToolResult:
			out = append(out, openai.ToolMessage(block.ToolUseID, block.Content))
		}
	}
	if text != "" {
		out = append(out, openai.UserMessage(text))
	}
	return out, nil
}
