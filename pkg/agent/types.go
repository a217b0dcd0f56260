package agent

import "fmt"

// Content block types. A message carries an ordered list of typed blocks.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// ContentBlock is one typed element of a message: plain text, a model-issued
// tool invocation, or the result answering one.
type ContentBlock struct {
	Type string `json:"type"`

	// Text payload, for text blocks.
	Text string `json:"text,omitempty"`

	// Tool invocation fields, for tool_use blocks. Produced only by the model.
	ID    string                 `json:"id,omitempty"`
	Name  string                 `json:"name,omitempty"`
	Input map[string]interface{} `json:"input,omitempty"`

	// Tool result fields, for tool_result blocks. ToolUseID pairs the result
	// with the invocation it answers.
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

// Message is one conversation turn.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// TextMessage builds a single-text-block message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{{Type: BlockText, Text: text}}}
}

// StopReason indicates why the model stopped generating.
type StopReason string

const (
	StopEndTurn StopReason = "end_turn"
	StopToolUse StopReason = "tool_use"
)

// Usage holds token counts for one model call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// UsageRecord accumulates token totals across the model calls of one ask and
// derives the monetary cost. Overwritten each call, not accumulated.
type UsageRecord struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// String formats the record for end-user cost footers.
func (u *UsageRecord) String() string {
	return fmt.Sprintf("$%.4f (%d in / %d out)", u.Cost, u.InputTokens, u.OutputTokens)
}
