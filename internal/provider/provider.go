// Package provider contains the model backends the agent loop calls.
package provider

import (
	"context"

	"github.com/agentd-dev/agentd/internal/domain"
)

// ModelRequest is one non-streaming model call: the conversation so far plus
// the tools the model may use. System overrides the backend's configured
// system prompt when non-empty.
type ModelRequest struct {
	Messages []domain.Message
	Tools    []domain.ToolSpec
	System   string
}

// ModelResponse is the model's reply with token accounting.
type ModelResponse struct {
	Message    domain.Message
	Usage      domain.Usage
	StopReason StopReason
}

// Backend is a model provider. Call blocks for the full response.
type Backend interface {
	Call(ctx context.Context, req ModelRequest) (*ModelResponse, error)
}

// StopReason reports why the model stopped generating. Values the API may
// return in the future are preserved verbatim rather than collapsed into a
// catch-all.
type StopReason string

const (
	StopEndTurn               StopReason = "end_turn"
	StopToolUse               StopReason = "tool_use"
	StopMaxTokens             StopReason = "max_tokens"
	StopStopSequence          StopReason = "stop_sequence"
	StopContextWindowExceeded StopReason = "model_context_window_exceeded"
)

// Known reports whether the stop reason is one this client understands.
func (s StopReason) Known() bool {
	switch s {
	case StopEndTurn, StopToolUse, StopMaxTokens, StopStopSequence, StopContextWindowExceeded:
		return true
	}
	return false
}
