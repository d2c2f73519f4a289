package reason

import (
	"fmt"
	"strings"
)

// NewBackend creates the backend named by config.Backend
func NewBackend(config Config) (Backend, error) {
	switch strings.ToLower(config.Backend) {
	case "anthropic", "claude":
		return NewAnthropicBackend(config)

	case "openai":
		return NewOpenAIBackend(config)

	case "ollama", "local":
		return NewOllamaBackend(config)

	default:
		return nil, fmt.Errorf("unknown reasoning backend: %q (supported: anthropic, openai, ollama)", config.Backend)
	}
}
