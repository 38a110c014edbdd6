package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulegen-backend/internal/config"
	"rulegen-backend/internal/engine"
)

func TestProvider_Complete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"rules\":[]}"}}]}`))
	}))
	defer srv.Close()

	p := NewProvider(srv.URL+"/", "secret", "gpt-test", time.Second)
	out, err := p.Complete(context.Background(), "hello", 2000, 0.3)
	require.NoError(t, err)
	assert.Equal(t, `{"rules":[]}`, out)
	assert.Equal(t, "gpt-test", got.Model)
	assert.Equal(t, 2000, got.MaxTokens)
	assert.InDelta(t, 0.3, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hello", got.Messages[0].Content)
}

func TestProvider_ErrorsAreTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, "secret", "gpt-test", time.Second)
	_, err := p.Complete(context.Background(), "hello", 10, 0)
	require.Error(t, err)
	assert.Equal(t, engine.CodeTransportError, engine.ErrorCode(err))
	assert.Contains(t, err.Error(), "bad key")

	unreachable := NewProvider("http://127.0.0.1:1", "secret", "gpt-test", time.Second)
	_, err = unreachable.Complete(context.Background(), "hello", 10, 0)
	assert.Equal(t, engine.CodeTransportError, engine.ErrorCode(err))
}

func TestProvider_NotConfigured(t *testing.T) {
	assert.Nil(t, NewProvider("", "k", "m", 0))
	assert.Nil(t, NewProvider("http://x", "", "m", 0))
}

func TestHuggingFace_Complete(t *testing.T) {
	var got hfRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/org/model", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`[{"generated_text":"generated"}]`))
	}))
	defer srv.Close()

	h := NewHuggingFace(srv.URL, "", "org/model", time.Second)
	out, err := h.Complete(context.Background(), "prompt", 2000, 0.3)
	require.NoError(t, err)
	assert.Equal(t, "generated", out)
	assert.Equal(t, "prompt", got.Inputs)
	assert.Equal(t, 2000, got.Parameters.MaxNewTokens)
	assert.False(t, got.Parameters.ReturnFullText)
}

func TestHuggingFace_SingleObjectAndError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models/loading" {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"Model is currently loading"}`))
			return
		}
		w.Write([]byte(`{"generated_text":"single"}`))
	}))
	defer srv.Close()

	out, err := NewHuggingFace(srv.URL, "", "tgi", time.Second).Complete(context.Background(), "p", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "single", out)

	_, err = NewHuggingFace(srv.URL, "", "loading", time.Second).Complete(context.Background(), "p", 1, 0)
	assert.Equal(t, engine.CodeTransportError, engine.ErrorCode(err))
	assert.Contains(t, err.Error(), "Model is currently loading")
}

func TestRateLimited(t *testing.T) {
	calls := 0
	next := engine.CompleterFunc(func(context.Context, string, int, float64) (string, error) {
		calls++
		return "ok", nil
	})

	assert.IsType(t, engine.CompleterFunc(nil), NewRateLimited(next, 0))

	limited := NewRateLimited(next, 1)
	out, err := limited.Complete(context.Background(), "p", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	// The bucket is empty; a short deadline aborts the wait without calling next.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = limited.Complete(ctx, "p", 1, 0)
	assert.Equal(t, engine.CodeTransportError, engine.ErrorCode(err))
	assert.Equal(t, 1, calls)
}

func TestNew(t *testing.T) {
	c, err := New(config.LLMConfig{Provider: "openai", BaseURL: "http://x", Model: "m"})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = New(config.LLMConfig{Provider: "huggingface", BaseURL: "http://x", Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &HuggingFace{}, c)

	c, err = New(config.LLMConfig{Provider: "openai", BaseURL: "http://x", APIKey: "k", Model: "m", RequestsPerMinute: 30})
	require.NoError(t, err)
	assert.IsType(t, &RateLimited{}, c)

	_, err = New(config.LLMConfig{Provider: "bogus"})
	assert.Error(t, err)
}

func TestHandler_Status(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app, NewHandler(config.LLMConfig{Provider: "openai", Model: "gpt", APIKey: "secret"}, true))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/llm/status", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body.Data["configured"])
	assert.Equal(t, "gpt", body.Data["model"])
	assert.NotContains(t, body.Data, "api_key")
}
