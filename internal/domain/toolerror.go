package domain

import "fmt"

// ToolErrorKind enumerates the ways a tool call can fail.
type ToolErrorKind string

const (
	ToolErrNotFound         ToolErrorKind = "not_found"
	ToolErrInvalidInput     ToolErrorKind = "invalid_input"
	ToolErrCapabilityDenied ToolErrorKind = "capability_denied"
	ToolErrTimeout          ToolErrorKind = "timeout"
	ToolErrExecution        ToolErrorKind = "execution"
)

// ToolError is a tool-call failure. It is data, not a control-flow error:
// the agent loop reports it to the model as a failed tool result and
// continues the turn.
type ToolError struct {
	Kind      ToolErrorKind `json:"kind"`
	Message   string        `json:"message,omitempty"`
	TimeoutMs int64         `json:"timeout_ms,omitempty"`
}

// Error satisfies the error interface with a diagnostic string.
func (e *ToolError) Error() string {
	switch e.Kind {
	case ToolErrNotFound:
		return fmt.Sprintf("tool not found: %s", e.Message)
	case ToolErrInvalidInput:
		return fmt.Sprintf("invalid tool input: %s", e.Message)
	case ToolErrCapabilityDenied:
		return fmt.Sprintf("capability denied: %s", e.Message)
	case ToolErrTimeout:
		return fmt.Sprintf("tool timed out after %dms", e.TimeoutMs)
	case ToolErrExecution:
		return fmt.Sprintf("tool execution failed: %s", e.Message)
	}
	return fmt.Sprintf("tool error (%s): %s", e.Kind, e.Message)
}

// NotFoundError reports that no tool with the given name exists.
func NotFoundError(name string) *ToolError {
	return &ToolError{Kind: ToolErrNotFound, Message: name}
}

// InvalidInputError reports malformed tool input.
func InvalidInputError(msg string) *ToolError {
	return &ToolError{Kind: ToolErrInvalidInput, Message: msg}
}

// CapabilityDeniedError reports a policy denial.
func CapabilityDeniedError(reason string) *ToolError {
	return &ToolError{Kind: ToolErrCapabilityDenied, Message: reason}
}

// TimeoutError reports a tool call that exceeded its deadline.
func TimeoutError(ms int64) *ToolError {
	return &ToolError{Kind: ToolErrTimeout, TimeoutMs: ms}
}

// ExecutionError reports a runtime failure inside the tool or its transport.
func ExecutionError(msg string) *ToolError {
	return &ToolError{Kind: ToolErrExecution, Message: msg}
}
