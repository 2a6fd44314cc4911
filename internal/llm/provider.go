package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/ppiankov/veracity/internal/model"
)

// Provider defines the interface for chat models that can call tools
type Provider interface {
	// Name returns the provider name
	Name() string

	// Model returns the model name requests default to
	Model() string

	// Complete sends the conversation and returns the next assistant message
	Complete(ctx context.Context, req Request) (*Response, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// Role is the author of a message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a provider-neutral conversation
type Message struct {
	Role    Role
	Content string

	// ToolCalls are set on assistant messages that request tools
	ToolCalls []ToolCall

	// ToolCallID links a tool message to the call it answers
	ToolCallID string

	// ToolError marks a tool message whose content describes a failed call
	ToolError bool
}

// ToolCall is a tool invocation requested by the model
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // Raw JSON, decoded by the tool registry
}

// ToolSpec declares a tool the model may call
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema
}

// Request is one model call
type Request struct {
	Messages    []Message
	Tools       []ToolSpec
	Model       string // Overrides the configured model when set
	MaxTokens   int
	Temperature float32
}

// Response is the model's reply
type Response struct {
	Message    Message
	Model      string
	StopReason string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "deepseek", "ollama", "anthropic" or "claude"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for hosted providers; Ollama needs none
	APIKey string

	// BaseURL for custom endpoints
	BaseURL string

	// Timeout for a single API request
	Timeout time.Duration

	MaxTokens   int
	Temperature float32

	// HTTPClient carries proxy and transport settings; nil uses a default client
	HTTPClient *http.Client
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return ConfigFromModel(model.DefaultConfig().LLM)
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(c model.LLMConfig) Config {
	return Config{
		Provider:    c.Provider,
		Model:       c.Model,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Timeout:     c.Timeout,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
	}
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func (c Config) maxTokens(override int) int {
	if override > 0 {
		return override
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 1500
}
