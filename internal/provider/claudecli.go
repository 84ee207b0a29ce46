package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/agentd-dev/agentd/internal/domain"
)

// defaultCLICommand is the binary the CLI backend shells out to.
const defaultCLICommand = "claude"

// runCLI executes the backend command. Swapped out in tests.
var runCLI = func(ctx context.Context, command string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("claude CLI failed: %v: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// ClaudeCLIBackend shells out to the claude CLI for each call. Text only;
// tool specs in the request are ignored and no tool calls come back.
type ClaudeCLIBackend struct {
	command string
	model   string
	system  string
}

// NewClaudeCLI builds a CLI backend. Empty model uses the CLI's default.
func NewClaudeCLI(model, system string) *ClaudeCLIBackend {
	return &ClaudeCLIBackend{command: defaultCLICommand, model: model, system: system}
}

// SupportsTools reports that this backend cannot run the tool loop.
func (b *ClaudeCLIBackend) SupportsTools() bool { return false }

func (b *ClaudeCLIBackend) String() string {
	if b.model == "" {
		return "claude-cli"
	}
	return fmt.Sprintf("claude-cli(%s)", b.model)
}

type cliResponse struct {
	Result    string `json:"result"`
	SessionID string `json:"session_id"`
}

// Call flattens the conversation into a single prompt and parses the CLI's
// JSON output. Plain-text output is accepted as a fallback.
func (b *ClaudeCLIBackend) Call(ctx context.Context, req ModelRequest) (*ModelResponse, error) {
	args := []string{"-p", "--output-format", "json", "--dangerously-skip-permissions"}
	if b.model != "" {
		args = append(args, "--model", b.model)
	}
	system := b.system
	if req.System != "" {
		system = req.System
	}
	args = append(args, buildPrompt(req.Messages, system))

	out, err := runCLI(ctx, b.command, args)
	if err != nil {
		return nil, err
	}

	content := strings.TrimSpace(string(out))
	var parsed cliResponse
	if json.Unmarshal(out, &parsed) == nil && parsed.Result != "" {
		content = parsed.Result
	}

	return &ModelResponse{
		Message:    domain.AssistantMessage(content),
		StopReason: StopEndTurn,
	}, nil
}

// buildPrompt renders the conversation as labeled sections.
func buildPrompt(messages []domain.Message, system string) string {
	var parts []string
	if system != "" {
		parts = append(parts, fmt.Sprintf("[System]\n%s\n", system))
	}
	for _, m := range messages {
		var label string
		switch m.Role {
		case domain.RoleUser:
			label = "User"
		case domain.RoleAssistant:
			label = "Assistant"
		case domain.RoleSystem:
			label = "System"
		}
		parts = append(parts, fmt.Sprintf("[%s]\n%s\n", label, m.Text()))
	}
	return strings.Join(parts, "\n")
}
