package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/agentd-dev/agentd/internal/domain"
	"github.com/agentd-dev/agentd/internal/mcp"
)

// toolClient is the slice of mcp.Client the host needs. Tests substitute
// fakes.
type toolClient interface {
	Name() string
	Tools() []mcp.Tool
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	Shutdown() error
}

// spawnClient starts and initializes one server. Swapped out in tests.
var spawnClient = func(ctx context.Context, cfg mcp.ServerConfig) (toolClient, error) {
	client, err := mcp.Spawn(cfg)
	if err != nil {
		return nil, err
	}
	if err := client.Initialize(ctx); err != nil {
		client.Shutdown()
		return nil, err
	}
	return client, nil
}

// MCPHost routes tool calls to one or more MCP servers by tool name.
type MCPHost struct {
	clients []toolClient
	specs   []domain.ToolSpec
	routes  map[string]toolClient
}

// NewMCPHost spawns and initializes the configured servers. A server that
// fails to start is reported on stderr and skipped; the host still serves
// the rest. When two servers declare the same tool name the first wins.
func NewMCPHost(ctx context.Context, configs []mcp.ServerConfig) (*MCPHost, error) {
	h := &MCPHost{routes: make(map[string]toolClient)}
	for _, cfg := range configs {
		client, err := spawnClient(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "agent: mcp server %s failed to start: %v\n", cfg.Name, err)
			continue
		}
		h.clients = append(h.clients, client)
		for _, tool := range client.Tools() {
			if _, taken := h.routes[tool.Name]; taken {
				fmt.Fprintf(os.Stderr, "agent: mcp server %s: duplicate tool %s ignored\n", cfg.Name, tool.Name)
				continue
			}
			h.routes[tool.Name] = client
			h.specs = append(h.specs, domain.ToolSpec{
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: tool.InputSchema,
			})
		}
	}
	return h, nil
}

// Specs returns the cached tool snapshot taken at initialization.
func (h *MCPHost) Specs() []domain.ToolSpec {
	out := make([]domain.ToolSpec, len(h.specs))
	copy(out, h.specs)
	return out
}

// Execute runs one tool call on the server that declared the tool.
func (h *MCPHost) Execute(ctx context.Context, call domain.ToolCall) (json.RawMessage, *domain.ToolError) {
	client, ok := h.routes[call.Name]
	if !ok {
		return nil, domain.NotFoundError(call.Name)
	}

	args, toolErr := toArguments(call.Input)
	if toolErr != nil {
		return nil, toolErr
	}

	result, err := client.CallTool(ctx, call.Name, args)
	if err != nil {
		if errors.Is(err, mcp.ErrTimeout) {
			return nil, domain.TimeoutError(mcp.DefaultTimeout.Milliseconds())
		}
		return nil, domain.ExecutionError(err.Error())
	}

	output, err := json.Marshal(result.Content)
	if err != nil {
		return nil, domain.ExecutionError(fmt.Sprintf("serialize result: %v", err))
	}
	return output, nil
}

// Close shuts down all servers.
func (h *MCPHost) Close() {
	for _, client := range h.clients {
		if err := client.Shutdown(); err != nil {
			fmt.Fprintf(os.Stderr, "agent: mcp server %s shutdown: %v\n", client.Name(), err)
		}
	}
}

// toArguments converts raw tool input to the wire argument map. Null (or
// absent) input means no arguments; anything but an object is invalid.
func toArguments(input json.RawMessage) (map[string]any, *domain.ToolError) {
	if len(input) == 0 {
		return nil, nil
	}
	var value any
	if err := json.Unmarshal(input, &value); err != nil {
		return nil, domain.InvalidInputError(fmt.Sprintf("tool input is not valid JSON: %v", err))
	}
	switch v := value.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	}
	return nil, domain.InvalidInputError("tool input must be a JSON object")
}
