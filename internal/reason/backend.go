// Package reason asks a language-model backend to judge a claim against its
// evidence and turns the reply into a persisted verdict
package reason

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/veritas/internal/model"
)

// Backend sends one prompt and returns the raw reply text
type Backend interface {
	// Name returns the backend name
	Name() string

	// Complete runs a single request. Failures are *BackendError values.
	Complete(ctx context.Context, req Request) (string, error)

	// IsAvailable checks if the backend is configured and reachable
	IsAvailable(ctx context.Context) bool
}

// Request is a single judgment request
type Request struct {
	ClaimID     string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Config holds backend configuration
type Config struct {
	// Backend name: "anthropic", "openai", "ollama"
	Backend string

	// Model name (backend-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints
	BaseURL string

	// Timeout bounds each call
	Timeout time.Duration

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
}

// ConfigFromModel converts model.ReasonConfig, filling keys and endpoints from the environment
func ConfigFromModel(cfg model.ReasonConfig) Config {
	c := Config{
		Backend:    strings.ToLower(strings.TrimSpace(cfg.Backend)),
		Model:      cfg.Model,
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.Timeout,
		HTTPProxy:  cfg.HTTPProxy,
		HTTPSProxy: cfg.HTTPSProxy,
	}

	switch c.Backend {
	case "anthropic", "claude":
		if c.APIKey == "" {
			c.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if c.Model == "" {
			c.Model = os.Getenv("CLAUDE_MODEL")
		}
	case "openai":
		if c.APIKey == "" {
			c.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	case "ollama", "local":
		if c.BaseURL == "" {
			c.BaseURL = firstNonEmpty(os.Getenv("OLLAMA_BASE_URL"), os.Getenv("OLLAMA_HOST"))
		}
		if c.Model == "" {
			c.Model = os.Getenv("OLLAMA_MODEL")
		}
	}
	return c
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// newProxyFunc prefers explicit proxies and falls back to the environment
func newProxyFunc(httpProxy, httpsProxy string) func(*http.Request) (*url.URL, error) {
	if httpProxy == "" && httpsProxy == "" {
		return http.ProxyFromEnvironment
	}

	return func(req *http.Request) (*url.URL, error) {
		if req.URL.Scheme == "https" && httpsProxy != "" {
			return url.Parse(httpsProxy)
		}
		if httpProxy != "" {
			return url.Parse(httpProxy)
		}
		return http.ProxyFromEnvironment(req)
	}
}

func newHTTPClient(config Config) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: newProxyFunc(config.HTTPProxy, config.HTTPSProxy),
		},
	}
}

func callTimeout(config Config, fallback time.Duration) time.Duration {
	if config.Timeout > 0 {
		return config.Timeout
	}
	return fallback
}
