// Package agent drives the model-call / tool-dispatch loop for one
// conversation.
package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/raka/paceline/pkg/tools"
)

// DefaultMaxTurns bounds the tool loop. A model that keeps requesting tools
// past the budget gets a give-up error instead of looping forever.
const DefaultMaxTurns = 15

// ErrTurnBudgetExceeded is returned when the model is still requesting tools
// after the final permitted turn.
var ErrTurnBudgetExceeded = fmt.Errorf("tool loop exceeded turn budget without a final answer")

// ToolDispatcher executes one tool invocation and returns its serialized
// payload. It never fails: errors come back inside the payload.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, name string, args map[string]interface{}) string
}

// SystemPromptFunc assembles the system context for one model call. The
// assembly itself lives outside the session.
type SystemPromptFunc func(ctx context.Context) string

// ProgressFunc receives short human-readable status notices while tools run.
type ProgressFunc func(status string)

// Session owns one conversation's history and drives the tool-use loop.
// A single mutex serializes Ask and ClearHistory, so concurrent callers on
// the same session cannot interleave history writes.
type Session struct {
	mu sync.Mutex

	provider     Provider
	dispatcher   ToolDispatcher
	systemPrompt SystemPromptFunc
	model        string
	maxTokens    int
	maxTurns     int
	logger       zerolog.Logger

	history   []Message
	lastUsage *UsageRecord
}

// SessionConfig configures a session.
type SessionConfig struct {
	Provider     Provider
	Dispatcher   ToolDispatcher
	SystemPrompt SystemPromptFunc
	Model        string
	MaxTokens    int
	MaxTurns     int
	Logger       zerolog.Logger
}

// NewSession creates a session.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("tool dispatcher is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	systemPrompt := cfg.SystemPrompt
	if systemPrompt == nil {
		systemPrompt = func(context.Context) string { return "" }
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &Session{
		provider:     cfg.Provider,
		dispatcher:   cfg.Dispatcher,
		systemPrompt: systemPrompt,
		model:        cfg.Model,
		maxTokens:    maxTokens,
		maxTurns:     maxTurns,
		logger:       cfg.Logger,
	}, nil
}

// Ask runs the question through the model, dispatching any requested tools,
// until the model answers in plain text or the turn budget runs out.
//
// Durable history receives the user question and the final answer; the
// intermediate tool rounds exist only in this call's working copy of the
// messages. A model-call error propagates to the caller untouched, leaving
// history with whatever it held before the failing call.
func (s *Session) Ask(ctx context.Context, question string, onProgress ProgressFunc) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, TextMessage("user", question))

	messages := make([]Message, len(s.history))
	copy(messages, s.history)

	system := s.systemPrompt(ctx)
	toolDefs := tools.Definitions()

	var inputTokens, outputTokens int

	for turn := 0; turn < s.maxTurns; turn++ {
		response, err := s.provider.Complete(ctx, Request{
			Model:     s.model,
			System:    system,
			MaxTokens: s.maxTokens,
			Tools:     toolDefs,
			Messages:  messages,
		})
		if err != nil {
			return "", err
		}

		inputTokens += response.Usage.InputTokens
		outputTokens += response.Usage.OutputTokens

		if response.StopReason != StopToolUse {
			final := ""
			for _, block := range response.Content {
				if block.Type == BlockText {
					final += block.Text
				}
			}

			s.lastUsage = &UsageRecord{
				InputTokens:  inputTokens,
				OutputTokens: outputTokens,
				Cost:         CalculateCost(s.model, inputTokens, outputTokens),
			}
			s.history = append(s.history, TextMessage("assistant", final))

			s.logger.Debug().
				Int("turns", turn+1).
				Int("input_tokens", inputTokens).
				Int("output_tokens", outputTokens).
				Msg("Ask completed")

			return final, nil
		}

		// One tool result per invocation, in the order given, folded into a
		// single user message so the pairing reaches the model intact.
		results := make([]ContentBlock, 0, len(response.Content))
		for _, block := range response.Content {
			if block.Type != BlockToolUse {
				continue
			}
			if onProgress != nil {
				onProgress(fmt.Sprintf("Running %s...", block.Name))
			}
			payload := s.dispatcher.Dispatch(ctx, block.Name, block.Input)
			results = append(results, ContentBlock{
				Type:      BlockToolResult,
				ToolUseID: block.ID,
				Content:   payload,
			})
		}

		messages = append(messages, Message{Role: "assistant", Content: response.Content})
		messages = append(messages, Message{Role: "user", Content: results})
	}

	s.lastUsage = &UsageRecord{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         CalculateCost(s.model, inputTokens, outputTokens),
	}
	return "", fmt.Errorf("%w (%d turns)", ErrTurnBudgetExceeded, s.maxTurns)
}

// ClearHistory resets the conversation to empty. The last usage record
// remains retrievable.
func (s *Session) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// History returns a copy of the conversation history.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// LastUsage returns the usage record of the most recent Ask, or nil if no
// ask has completed.
func (s *Session) LastUsage() *UsageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsage
}

// CostString formats the last usage for display, or "" when absent.
func (s *Session) CostString() string {
	if u := s.LastUsage(); u != nil {
		return u.String()
	}
	return ""
}
