package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/agentd-dev/agentd/internal/domain"
)

// AnthropicMessagesURL is the default Anthropic Messages API endpoint.
const AnthropicMessagesURL = "https://api.anthropic.com/v1/messages"

// TestAPIURL is overridden in tests to point at a local httptest server.
var TestAPIURL string

const (
	anthropicVersion = "2023-06-01"

	// DefaultModel is used when the config does not name one.
	DefaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 4096

	cliVersion        = "2.1.2"
	oauthBetaHeader   = "claude-code-20250219,oauth-2025-04-20,fine-grained-tool-streaming-2025-05-14,interleaved-thinking-2025-05-14"
	oauthSystemPrefix = "You are Claude Code, Anthropic's official CLI for Claude."
)

// AuthMode selects how requests authenticate.
type AuthMode string

const (
	AuthAPIKey AuthMode = "api_key"
	AuthOAuth  AuthMode = "claude_code_oauth"
)

// Auth is one of the two mutually exclusive credential modes.
type Auth struct {
	Mode  AuthMode
	Token string
}

// APIKeyAuth authenticates with a standard API key.
func APIKeyAuth(key string) Auth { return Auth{Mode: AuthAPIKey, Token: key} }

// OAuthAuth authenticates with an OAuth access token. Requests carry the
// CLI identification headers the token endpoint expects.
func OAuthAuth(token string) Auth { return Auth{Mode: AuthOAuth, Token: token} }

func (a Auth) String() string { return string(a.Mode) }

func (a Auth) applyHeaders(req *http.Request) {
	switch a.Mode {
	case AuthOAuth:
		req.Header.Set("anthropic-dangerous-direct-browser-access", "true")
		req.Header.Set("Authorization", "Bearer "+a.Token)
		req.Header.Set("anthropic-beta", oauthBetaHeader)
		req.Header.Set("user-agent", fmt.Sprintf("claude-cli/%s (external, cli)", cliVersion))
		req.Header.Set("x-app", "cli")
	default:
		req.Header.Set("x-api-key", a.Token)
	}
}

// buildSystem produces the system prompt wire value. OAuth tokens are only
// honored when the fixed prefix leads the system blocks, each marked with
// ephemeral cache control.
func (a Auth) buildSystem(system string) any {
	if a.Mode != AuthOAuth {
		if system == "" {
			return nil
		}
		return system
	}
	blocks := []apiSystemBlock{{
		Type:         "text",
		Text:         oauthSystemPrefix,
		CacheControl: apiCacheControl{Type: "ephemeral"},
	}}
	if system != "" {
		blocks = append(blocks, apiSystemBlock{
			Type:         "text",
			Text:         system,
			CacheControl: apiCacheControl{Type: "ephemeral"},
		})
	}
	return blocks
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	Messages  []apiMessage `json:"messages"`
	System    any          `json:"system,omitempty"`
	Tools     []apiTool    `json:"tools,omitempty"`
}

type apiSystemBlock struct {
	Type         string          `json:"type"`
	Text         string          `json:"text"`
	CacheControl apiCacheControl `json:"cache_control"`
}

type apiCacheControl struct {
	Type string `json:"type"`
}

type apiMessage struct {
	Role string `json:"role"`
	// Content is a plain string for single-text messages, otherwise a block
	// array.
	Content any `json:"content"`
}

type apiContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// tool_use fields.
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result fields.
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type apiTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type apiResponse struct {
	Content    []apiContentBlock `json:"content"`
	StopReason string            `json:"stop_reason"`
	Usage      apiUsage          `json:"usage"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ---------------------------------------------------------------------------
// Backend
// ---------------------------------------------------------------------------

// AnthropicConfig configures an Anthropic backend.
type AnthropicConfig struct {
	Auth      Auth
	Model     string
	MaxTokens int
	System    string
}

// AnthropicBackend calls the Anthropic Messages API without streaming.
type AnthropicBackend struct {
	client    *http.Client
	auth      Auth
	model     string
	maxTokens int
	system    string
}

// NewAnthropic builds a backend, filling in the default model and token
// ceiling when unset.
func NewAnthropic(cfg AnthropicConfig) *AnthropicBackend {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	return &AnthropicBackend{
		client:    &http.Client{Timeout: 120 * time.Second},
		auth:      cfg.Auth,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		system:    cfg.System,
	}
}

// Model returns the configured model ID.
func (b *AnthropicBackend) Model() string { return b.model }

func (b *AnthropicBackend) String() string {
	return fmt.Sprintf("anthropic(%s, auth=%s)", b.model, b.auth)
}

// Call sends the conversation and returns the model's reply.
func (b *AnthropicBackend) Call(ctx context.Context, req ModelRequest) (*ModelResponse, error) {
	messages := make([]apiMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		// System-role messages never go in the messages array; the system
		// prompt travels in its own field.
		if m.Role == domain.RoleSystem {
			continue
		}
		messages = append(messages, messageToAPI(m))
	}

	var tools []apiTool
	for _, spec := range req.Tools {
		tools = append(tools, apiTool{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: spec.InputSchema,
		})
	}

	system := b.system
	if req.System != "" {
		system = req.System
	}
	body, err := json.Marshal(apiRequest{
		Model:     b.model,
		MaxTokens: b.maxTokens,
		Messages:  messages,
		System:    b.auth.buildSystem(system),
		Tools:     tools,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := AnthropicMessagesURL
	if TestAPIURL != "" {
		url = TestAPIURL
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("accept", "application/json")
	b.auth.applyHeaders(httpReq)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		var errResp apiErrorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Error.Message != "" {
			return nil, NewAPIError(resp.StatusCode, errResp.Error.Type, errResp.Error.Message, resp.Header)
		}
		return nil, NewAPIError(resp.StatusCode, "", string(data), resp.Header)
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &ModelResponse{
		Message:    responseToMessage(apiResp.Content),
		Usage:      domain.Usage{InputTokens: apiResp.Usage.InputTokens, OutputTokens: apiResp.Usage.OutputTokens},
		StopReason: StopReason(apiResp.StopReason),
	}, nil
}

// messageToAPI maps one message to the wire shape. A single text part stays
// a plain string.
func messageToAPI(m domain.Message) apiMessage {
	role := "user"
	if m.Role == domain.RoleAssistant {
		role = "assistant"
	}

	if len(m.Parts) == 1 && m.Parts[0].Type == domain.PartText {
		return apiMessage{Role: role, Content: m.Parts[0].Text}
	}

	blocks := make([]apiContentBlock, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch p.Type {
		case domain.PartText:
			blocks = append(blocks, apiContentBlock{Type: "text", Text: p.Text})
		case domain.PartToolCall:
			input := p.ToolCall.Input
			if len(input) == 0 {
				input = json.RawMessage(`{}`)
			}
			blocks = append(blocks, apiContentBlock{
				Type:  "tool_use",
				ID:    p.ToolCall.ID,
				Name:  p.ToolCall.Name,
				Input: input,
			})
		case domain.PartToolResult:
			r := p.ToolResult
			block := apiContentBlock{Type: "tool_result", ToolUseID: r.ToolCallID}
			if r.Err != nil {
				block.Content = r.Err.Error()
				block.IsError = true
			} else {
				block.Content = string(r.Output)
			}
			blocks = append(blocks, block)
		}
	}
	return apiMessage{Role: role, Content: blocks}
}

// responseToMessage maps response blocks to an assistant message. Block
// types this client does not understand (thinking included) are skipped;
// the recognized blocks keep their order.
func responseToMessage(blocks []apiContentBlock) domain.Message {
	var parts []domain.Part
	for _, b := range blocks {
		switch b.Type {
		case "text":
			parts = append(parts, domain.TextPart(b.Text))
		case "tool_use":
			parts = append(parts, domain.ToolCallPart(domain.ToolCall{
				ID:    b.ID,
				Name:  b.Name,
				Input: b.Input,
			}))
		}
	}
	return domain.Message{Role: domain.RoleAssistant, Parts: parts}
}
