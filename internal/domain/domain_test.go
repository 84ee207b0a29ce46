package domain

import (
	"encoding/json"
	"testing"
)

func TestSessionIDRoundTrip(t *testing.T) {
	id := NewSessionID()
	parsed, err := ParseSessionID(id.String())
	if err != nil {
		t.Fatalf("ParseSessionID: %v", err)
	}
	if parsed != id {
		t.Errorf("round trip mismatch: %s != %s", parsed, id)
	}
}

func TestParseSessionIDInvalid(t *testing.T) {
	if _, err := ParseSessionID("not-a-uuid"); err == nil {
		t.Error("expected error for invalid session id")
	}
}

func TestSessionIDJSON(t *testing.T) {
	id := NewSessionID()
	data, err := json.Marshal(id)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back SessionID
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != id {
		t.Errorf("JSON round trip mismatch: %s != %s", back, id)
	}
}

func TestParseRole(t *testing.T) {
	cases := []struct {
		in   string
		want Role
	}{
		{"user", RoleUser},
		{"USER", RoleUser},
		{"Assistant", RoleAssistant},
		{"system", RoleSystem},
	}
	for _, c := range cases {
		got, err := ParseRole(c.in)
		if err != nil {
			t.Errorf("ParseRole(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseRole(%q) = %q, want %q", c.in, got, c.want)
		}
	}
	if _, err := ParseRole("robot"); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestMessageText(t *testing.T) {
	msg := Message{Role: RoleAssistant, Parts: []Part{
		TextPart("hello "),
		ToolCallPart(ToolCall{ID: "t1", Name: "read_file", Input: json.RawMessage(`{}`)}),
		TextPart("world"),
	}}
	if got := msg.Text(); got != "hello world" {
		t.Errorf("Text() = %q, want %q", got, "hello world")
	}
}

func TestMessageToolCalls(t *testing.T) {
	msg := Message{Role: RoleAssistant, Parts: []Part{
		TextPart("checking"),
		ToolCallPart(ToolCall{ID: "a", Name: "first", Input: json.RawMessage(`{"x":1}`)}),
		ToolCallPart(ToolCall{ID: "b", Name: "second", Input: json.RawMessage(`null`)}),
	}}
	calls := msg.ToolCalls()
	if len(calls) != 2 {
		t.Fatalf("got %d tool calls, want 2", len(calls))
	}
	if calls[0].ID != "a" || calls[1].ID != "b" {
		t.Errorf("tool calls out of order: %v", calls)
	}
}

func TestToolResultsMessageRole(t *testing.T) {
	msg := ToolResultsMessage([]ToolResult{
		{ToolCallID: "a", Output: json.RawMessage(`"ok"`)},
		{ToolCallID: "b", Err: NotFoundError("missing")},
	})
	if msg.Role != RoleUser {
		t.Errorf("tool results message role = %q, want user", msg.Role)
	}
	for _, p := range msg.Parts {
		if p.Type != PartToolResult {
			t.Errorf("unexpected part type %q", p.Type)
		}
	}
}

func TestToolErrorJSONRoundTrip(t *testing.T) {
	errs := []*ToolError{
		NotFoundError("ghost"),
		InvalidInputError("not an object"),
		CapabilityDeniedError("exec denied"),
		TimeoutError(15000),
		ExecutionError("pipe closed"),
	}
	for _, e := range errs {
		data, err := json.Marshal(e)
		if err != nil {
			t.Fatalf("marshal %v: %v", e.Kind, err)
		}
		var back ToolError
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %v: %v", e.Kind, err)
		}
		if back != *e {
			t.Errorf("round trip mismatch for %v: %+v != %+v", e.Kind, back, *e)
		}
	}
}

func TestToolErrorStrings(t *testing.T) {
	if got := TimeoutError(500).Error(); got != "tool timed out after 500ms" {
		t.Errorf("timeout error string = %q", got)
	}
	if got := NotFoundError("x").Error(); got != "tool not found: x" {
		t.Errorf("not found error string = %q", got)
	}
}

func TestEventKindRoundTrip(t *testing.T) {
	session := NewSessionID()
	events := []Event{
		MessageEvent(session, RoleUser, "hi"),
		ToolCallEvent(session, "read_file", json.RawMessage(`{"path":"a.txt"}`)),
		ToolResultEvent(session, "read_file", json.RawMessage(`"contents"`)),
		SessionStartEvent(session),
		SessionEndEvent(session),
	}
	for _, ev := range events {
		data, err := json.Marshal(ev.Kind)
		if err != nil {
			t.Fatalf("marshal %s: %v", ev.Kind.Kind, err)
		}
		var back EventKind
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", ev.Kind.Kind, err)
		}
		if back.Kind != ev.Kind.Kind || back.Role != ev.Kind.Role ||
			back.Content != ev.Kind.Content || back.Name != ev.Kind.Name {
			t.Errorf("round trip mismatch: %+v != %+v", back, ev.Kind)
		}
	}
}

func TestUsageAdd(t *testing.T) {
	u := Usage{InputTokens: 10, OutputTokens: 20}
	u.Add(Usage{InputTokens: 5, OutputTokens: 7})
	if u.InputTokens != 15 || u.OutputTokens != 27 {
		t.Errorf("Add result = %+v", u)
	}
}
