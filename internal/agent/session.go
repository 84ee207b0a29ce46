// Package agent runs conversation sessions: it drives the model, executes
// tool calls under policy, and records everything in the event log.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentd-dev/agentd/internal/domain"
	"github.com/agentd-dev/agentd/internal/policy"
	"github.com/agentd-dev/agentd/internal/provider"
	"github.com/agentd-dev/agentd/internal/store"
	"github.com/agentd-dev/agentd/internal/tools"
)

// MaxToolSteps bounds the tool iterations within a single turn. A model that
// keeps requesting tools past this limit aborts the turn.
const MaxToolSteps = 8

// InvalidStateError reports a turn that cannot proceed.
type InvalidStateError struct {
	Msg string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state: %s", e.Msg)
}

// Session is one conversation: in-memory history plus the durable event log.
type Session struct {
	ID domain.SessionID

	store   *store.Store
	backend provider.Backend
	policy  policy.Policy
	host    tools.Host
	system  string

	messages   []domain.Message
	totalUsage domain.Usage
}

// Option configures a new session.
type Option func(*Session)

// WithSystem sets the system prompt.
func WithSystem(system string) Option {
	return func(s *Session) { s.system = system }
}

// WithHost sets the tool host. Without it the session runs toolless against
// an empty host.
func WithHost(host tools.Host) Option {
	return func(s *Session) { s.host = host }
}

// New starts a session and records its start event.
func New(st *store.Store, backend provider.Backend, pol policy.Policy, opts ...Option) (*Session, error) {
	s := &Session{
		ID:      domain.NewSessionID(),
		store:   st,
		backend: backend,
		policy:  pol,
		host:    tools.EmptyHost{},
	}
	for _, opt := range opts {
		opt(s)
	}

	ev := domain.SessionStartEvent(s.ID)
	if err := st.Append(&ev); err != nil {
		return nil, fmt.Errorf("record session start: %w", err)
	}
	return s, nil
}

// Usage returns the cumulative token usage across the session.
func (s *Session) Usage() domain.Usage { return s.totalUsage }

// Messages returns a copy of the in-memory conversation.
func (s *Session) Messages() []domain.Message {
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// System returns the system prompt.
func (s *Session) System() string { return s.system }

// CheckCapability evaluates a capability request against the session policy.
func (s *Session) CheckCapability(req policy.CapabilityRequest) policy.Decision {
	return s.policy.Check(req)
}

// RequireCapability returns an error when the policy denies the request.
func (s *Session) RequireCapability(req policy.CapabilityRequest) error {
	if d := s.policy.Check(req); !d.Allowed {
		return fmt.Errorf("capability denied: %s", d.Reason)
	}
	return nil
}

// Chat sends one user message and returns the assistant's final text along
// with the tokens this turn consumed. Tool calls requested by the model run
// within the turn, bounded by MaxToolSteps.
func (s *Session) Chat(ctx context.Context, input string) (string, domain.Usage, error) {
	userMsg := domain.UserMessage(input)
	s.messages = append(s.messages, userMsg)
	if err := s.logMessage(domain.RoleUser, input); err != nil {
		return "", domain.Usage{}, err
	}

	specs := s.host.Specs()
	var turnUsage domain.Usage

	for step := 0; step < MaxToolSteps; step++ {
		resp, err := s.callBackend(ctx, provider.ModelRequest{
			Messages: s.messages,
			Tools:    specs,
			System:   s.system,
		})
		if err != nil {
			return "", turnUsage, fmt.Errorf("backend call: %w", err)
		}
		turnUsage.Add(resp.Usage)

		s.messages = append(s.messages, resp.Message)
		if text := resp.Message.Text(); text != "" {
			if err := s.logMessage(domain.RoleAssistant, text); err != nil {
				return "", turnUsage, err
			}
		}

		// The loop keys off the presence of tool calls, not the stop
		// reason.
		calls := resp.Message.ToolCalls()
		if len(calls) == 0 {
			s.totalUsage.Add(turnUsage)
			return resp.Message.Text(), turnUsage, nil
		}

		results := make([]domain.ToolResult, 0, len(calls))
		for _, call := range calls {
			result, err := s.executeCall(ctx, call)
			if err != nil {
				return "", turnUsage, err
			}
			results = append(results, result)
		}
		s.messages = append(s.messages, domain.ToolResultsMessage(results))
	}

	return "", turnUsage, &InvalidStateError{Msg: "max tool steps exceeded"}
}

// executeCall runs one tool call under policy and logs both sides. Tool
// failures become result data for the model; only event-log errors abort.
func (s *Session) executeCall(ctx context.Context, call domain.ToolCall) (domain.ToolResult, error) {
	ev := domain.ToolCallEvent(s.ID, call.Name, call.Input)
	if err := s.store.Append(&ev); err != nil {
		return domain.ToolResult{}, fmt.Errorf("record tool call: %w", err)
	}

	output, toolErr := s.executeWithPolicy(ctx, call)

	result := domain.ToolResult{ToolCallID: call.ID}
	var logged json.RawMessage
	if toolErr != nil {
		result.Err = toolErr
		if data, err := json.Marshal(toolErr); err == nil {
			logged = data
		}
	} else {
		result.Output = output
		logged = output
	}
	ev = domain.ToolResultEvent(s.ID, call.Name, logged)
	if err := s.store.Append(&ev); err != nil {
		return domain.ToolResult{}, fmt.Errorf("record tool result: %w", err)
	}
	return result, nil
}

// executeWithPolicy gates each call on an exec capability for the tool's
// name. A denial never reaches the host.
func (s *Session) executeWithPolicy(ctx context.Context, call domain.ToolCall) (json.RawMessage, *domain.ToolError) {
	if d := s.policy.Check(policy.ExecRequest(call.Name)); !d.Allowed {
		return nil, domain.CapabilityDeniedError(d.Reason)
	}
	return s.host.Execute(ctx, call)
}

// End records the session end event.
func (s *Session) End() error {
	ev := domain.SessionEndEvent(s.ID)
	if err := s.store.Append(&ev); err != nil {
		return fmt.Errorf("record session end: %w", err)
	}
	return nil
}

func (s *Session) logMessage(role domain.Role, content string) error {
	ev := domain.MessageEvent(s.ID, role, content)
	if err := s.store.Append(&ev); err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	return nil
}
