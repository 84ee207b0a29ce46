package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event kind names as stored in the event log.
const (
	KindMessage      = "message"
	KindToolCall     = "tool_call"
	KindToolResult   = "tool_result"
	KindSessionStart = "session_start"
	KindSessionEnd   = "session_end"
)

// EventKind is the payload of a logged event. Kind selects the variant;
// the remaining fields are populated per kind:
//
//	message:       Role, Content
//	tool_call:     Name, Input
//	tool_result:   Name, Output (tool output JSON or ToolError JSON)
//	session_start: no fields
//	session_end:   no fields
type EventKind struct {
	Kind    string          `json:"kind"`
	Role    Role            `json:"role,omitempty"`
	Content string          `json:"content,omitempty"`
	Name    string          `json:"name,omitempty"`
	Input   json.RawMessage `json:"input,omitempty"`
	Output  json.RawMessage `json:"output,omitempty"`
}

// Event is one append-only record in a session's log.
type Event struct {
	ID        uuid.UUID `json:"id"`
	SessionID SessionID `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      EventKind `json:"kind"`
}

// NewEvent builds an event with a fresh ID and the current UTC time.
func NewEvent(session SessionID, kind EventKind) Event {
	return Event{
		ID:        uuid.New(),
		SessionID: session,
		Timestamp: time.Now().UTC(),
		Kind:      kind,
	}
}

// MessageEvent records a conversation message.
func MessageEvent(session SessionID, role Role, content string) Event {
	return NewEvent(session, EventKind{Kind: KindMessage, Role: role, Content: content})
}

// ToolCallEvent records a model-requested tool invocation.
func ToolCallEvent(session SessionID, name string, input json.RawMessage) Event {
	return NewEvent(session, EventKind{Kind: KindToolCall, Name: name, Input: input})
}

// ToolResultEvent records a tool's outcome. For failures, output is the
// ToolError serialized as JSON.
func ToolResultEvent(session SessionID, name string, output json.RawMessage) Event {
	return NewEvent(session, EventKind{Kind: KindToolResult, Name: name, Output: output})
}

// SessionStartEvent marks the beginning of a session.
func SessionStartEvent(session SessionID) Event {
	return NewEvent(session, EventKind{Kind: KindSessionStart})
}

// SessionEndEvent marks the end of a session.
func SessionEndEvent(session SessionID) Event {
	return NewEvent(session, EventKind{Kind: KindSessionEnd})
}
