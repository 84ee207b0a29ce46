package mcp

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when a server does not reply within the
	// client's timeout. The server process is left running.
	ErrTimeout = errors.New("mcp: request timed out")

	// ErrServerExited is returned when the server closes its stdout.
	ErrServerExited = errors.New("mcp: server exited")

	// ErrNotInitialized is returned for tool calls before the initialize
	// handshake has completed.
	ErrNotInitialized = errors.New("mcp: server not initialized")

	// ErrClosed is returned for requests after Shutdown.
	ErrClosed = errors.New("mcp: client closed")
)

// OutputTooLargeError reports a response line exceeding the output ceiling.
type OutputTooLargeError struct {
	Size int
	Max  int
}

func (e *OutputTooLargeError) Error() string {
	return fmt.Sprintf("mcp: output too large: %d bytes (max %d)", e.Size, e.Max)
}

// InvalidResponseError reports a reply that violates the framing contract.
type InvalidResponseError struct {
	Reason string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("mcp: invalid response: %s", e.Reason)
}

// ToolCallFailedError reports a tools/call result with the error flag set.
// The message is the concatenated text content of the result.
type ToolCallFailedError struct {
	Message string
}

func (e *ToolCallFailedError) Error() string {
	return fmt.Sprintf("mcp: tool call failed: %s", e.Message)
}
