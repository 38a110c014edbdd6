package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"rulegen-backend/internal/engine"
)

// Provider is an OpenAI-compatible chat completions client.
type Provider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewProvider creates a new chat provider. Returns nil if not configured.
func NewProvider(baseURL, apiKey, model string, timeout time.Duration) *Provider {
	if baseURL == "" || apiKey == "" || model == "" {
		return nil
	}
	return &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// Model returns the configured model name.
func (p *Provider) Model() string {
	return p.model
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Messages    []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends the prompt as a single user message and returns the raw
// response text. The text is not interpreted here.
func (p *Provider) Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	body := chatRequest{
		Model:       p.model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
	}

	respBody, err := postJSON(ctx, p.client, p.baseURL+"/chat/completions", p.apiKey, body)
	if err != nil {
		return "", err
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", engine.TransportError("Failed to parse AI response envelope: %v", err)
	}
	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == "" {
		return "", engine.TransportError("AI provider returned empty response")
	}
	return chatResp.Choices[0].Message.Content, nil
}

// postJSON posts body and returns the response payload. Every failure is a
// TRANSPORT_ERROR.
func postJSON(ctx context.Context, client *http.Client, url, apiKey string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, engine.TransportError("Failed to marshal AI request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, engine.TransportError("Failed to create AI request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, engine.TransportError("Failed to connect to AI provider: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, engine.TransportError("Failed to read AI response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := string(respBody)
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			detail = apiErr.Error.Message
		} else {
			var hfErr struct {
				Error string `json:"error"`
			}
			if json.Unmarshal(respBody, &hfErr) == nil && hfErr.Error != "" {
				detail = hfErr.Error
			}
		}
		return nil, engine.TransportError("AI provider returned %d: %s", resp.StatusCode, detail)
	}
	return respBody, nil
}

var _ engine.Completer = (*Provider)(nil)
