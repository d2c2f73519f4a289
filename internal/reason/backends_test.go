package reason

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cannedReply = `{"verdict":"supported","confidence":0.9,"supporting_spans":[],"contradicting_spans":[],"reasoning":"ok"}`

func testRequest() Request {
	return Request{ClaimID: "1", System: SystemPrompt, Prompt: "CLAIM_ID: \"1\"", MaxTokens: 256, Temperature: 0.1}
}

func TestAnthropicBackend_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, defaultAnthropicModel, req.Model)
		assert.Equal(t, 256, req.MaxTokens)
		assert.Equal(t, SystemPrompt, req.System)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		_ = json.NewEncoder(w).Encode(anthropicResponse{
			Type:    "message",
			Role:    "assistant",
			Content: []anthropicContent{{Type: "text", Text: cannedReply}},
		})
	}))
	defer srv.Close()

	b, err := NewBackend(Config{Backend: "anthropic", APIKey: "test-key", BaseURL: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", b.Name())

	out, err := b.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, cannedReply, out)
}

func TestAnthropicBackend_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{529, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"some_error","message":"nope"}}`))
		}))

		b, err := NewAnthropicBackend(Config{APIKey: "k", BaseURL: srv.URL, Timeout: 5 * time.Second})
		require.NoError(t, err)
		_, err = b.Complete(context.Background(), testRequest())
		require.Error(t, err)
		assert.Equal(t, tt.transient, IsTransient(err), "status %d", tt.status)
		assert.Contains(t, err.Error(), "nope")
		srv.Close()
	}
}

func TestAnthropicBackend_EmptyContentIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"type":"message","content":[]}`))
	}))
	defer srv.Close()

	b, err := NewAnthropicBackend(Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = b.Complete(context.Background(), testRequest())
	assert.True(t, IsMalformed(err))
}

func TestAnthropicBackend_RequiresKey(t *testing.T) {
	_, err := NewAnthropicBackend(Config{})
	assert.Error(t, err)
}

func TestAnthropicBackend_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	b, err := NewAnthropicBackend(Config{APIKey: "k", BaseURL: url, Timeout: time.Second})
	require.NoError(t, err)
	_, err = b.Complete(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.False(t, b.IsAvailable(context.Background()))
}

func TestOpenAIBackend_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req["model"])
		format, _ := req["response_format"].(map[string]any)
		assert.Equal(t, "json_object", format["type"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": "```json\n" + cannedReply + "\n```"},
				"finish_reason": "stop",
			}},
		})
	}))
	defer srv.Close()

	b, err := NewBackend(Config{Backend: "openai", APIKey: "test-key", BaseURL: srv.URL + "/v1", Timeout: 5 * time.Second})
	require.NoError(t, err)

	out, err := b.Complete(context.Background(), testRequest())
	require.NoError(t, err)

	v, err := ParseVerdict(out, "1")
	require.NoError(t, err)
	assert.Equal(t, "supported", string(v.Verdict))
}

func TestOpenAIBackend_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"server_error"}}`))
		}))

		b, err := NewOpenAIBackend(Config{APIKey: "k", BaseURL: srv.URL + "/v1", Timeout: 5 * time.Second})
		require.NoError(t, err)
		_, err = b.Complete(context.Background(), testRequest())
		require.Error(t, err)
		assert.Equal(t, tt.transient, IsTransient(err), "status %d", tt.status)
		srv.Close()
	}
}

func TestOpenAIBackend_RequiresKey(t *testing.T) {
	_, err := NewOpenAIBackend(Config{})
	assert.Error(t, err)
}

func TestOllamaBackend_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, defaultOllamaModel, req.Model)
		assert.Equal(t, "json", req.Format)
		assert.False(t, req.Stream)
		assert.Equal(t, 256, req.Options.NumPredict)

		_ = json.NewEncoder(w).Encode(ollamaResponse{Model: req.Model, Response: cannedReply, Done: true})
	}))
	defer srv.Close()

	b, err := NewBackend(Config{Backend: "local", BaseURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "ollama", b.Name())

	out, err := b.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, cannedReply, out)
}

func TestOllamaBackend_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model crashed"}`))
	}))
	defer srv.Close()

	b, err := NewOllamaBackend(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = b.Complete(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Contains(t, err.Error(), "model crashed")
}

func TestOllamaBackend_IsAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"phi3:mini"},{"name":"llama3.1:latest"}]}`))
	}))
	defer srv.Close()

	b, err := NewOllamaBackend(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	assert.True(t, b.IsAvailable(context.Background()))

	b, err = NewOllamaBackend(Config{BaseURL: srv.URL, Model: "llama3.1"})
	require.NoError(t, err)
	assert.True(t, b.IsAvailable(context.Background()))

	b, err = NewOllamaBackend(Config{BaseURL: srv.URL, Model: "mistral"})
	require.NoError(t, err)
	assert.False(t, b.IsAvailable(context.Background()))
}

func TestNewBackend_Unknown(t *testing.T) {
	_, err := NewBackend(Config{Backend: "gemini"})
	assert.Error(t, err)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	t.Setenv("CLAUDE_MODEL", "claude-test")
	c := ConfigFromModel(reasonConfig("anthropic"))
	assert.Equal(t, "from-env", c.APIKey)
	assert.Equal(t, "claude-test", c.Model)

	c = ConfigFromModel(reasonConfig(" Anthropic "))
	assert.Equal(t, "anthropic", c.Backend)
	assert.Equal(t, "from-env", c.APIKey)

	t.Setenv("OLLAMA_BASE_URL", "")
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")
	t.Setenv("OLLAMA_MODEL", "")
	c = ConfigFromModel(reasonConfig("ollama"))
	assert.Equal(t, "http://gpu-box:11434", c.BaseURL)
	assert.Empty(t, c.Model)
}
