package llm

import (
	"fmt"
	"strings"
)

// OpenAI-compatible endpoints
const (
	deepseekBaseURL = "https://api.deepseek.com"
	ollamaBaseURL   = "http://localhost:11434/v1"
)

// NewProvider creates a new LLM provider based on configuration
func NewProvider(config Config) (Provider, error) {
	provider := strings.ToLower(strings.TrimSpace(config.Provider))

	switch provider {
	case "openai":
		return NewOpenAIProvider("openai", config)

	case "deepseek":
		if config.BaseURL == "" {
			config.BaseURL = deepseekBaseURL
		}
		if config.Model == "" {
			config.Model = "deepseek-chat"
		}
		return NewOpenAIProvider("deepseek", config)

	case "ollama":
		if config.BaseURL == "" {
			config.BaseURL = ollamaBaseURL
		}
		if config.APIKey == "" {
			config.APIKey = "ollama"
		}
		if config.Model == "" {
			config.Model = "llama3.1"
		}
		return NewOpenAIProvider("ollama", config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "":
		return nil, fmt.Errorf("no LLM provider configured (supported: openai, deepseek, ollama, anthropic)")

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, deepseek, ollama, anthropic)", config.Provider)
	}
}
