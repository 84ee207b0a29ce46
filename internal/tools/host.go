// Package tools provides the tool hosts the agent loop executes against.
package tools

import (
	"context"
	"encoding/json"

	"github.com/agentd-dev/agentd/internal/domain"
)

// Host exposes tools to the agent loop. Specs returns a cached snapshot of
// the available tools; Execute runs one call. Execution failures come back
// as ToolError values so the loop can report them to the model as data.
type Host interface {
	Specs() []domain.ToolSpec
	Execute(ctx context.Context, call domain.ToolCall) (json.RawMessage, *domain.ToolError)
}

// EmptyHost has no tools. Every execute fails with not_found.
type EmptyHost struct{}

// Specs returns no tools.
func (EmptyHost) Specs() []domain.ToolSpec { return nil }

// Execute fails every call.
func (EmptyHost) Execute(_ context.Context, call domain.ToolCall) (json.RawMessage, *domain.ToolError) {
	return nil, domain.NotFoundError(call.Name)
}
