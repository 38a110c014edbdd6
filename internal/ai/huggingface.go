package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"rulegen-backend/internal/engine"
)

// HuggingFace calls the text-generation task of the Hugging Face inference
// API (or a compatible text-generation-inference server).
type HuggingFace struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewHuggingFace returns nil when baseURL or model is missing. The API key
// is optional for self-hosted servers.
func NewHuggingFace(baseURL, apiKey, model string, timeout time.Duration) *HuggingFace {
	if baseURL == "" || model == "" {
		return nil
	}
	return &HuggingFace{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (h *HuggingFace) Model() string { return h.model }

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

type hfParameters struct {
	MaxNewTokens   int     `json:"max_new_tokens,omitempty"`
	Temperature    float64 `json:"temperature"`
	ReturnFullText bool    `json:"return_full_text"`
}

type hfGeneration struct {
	GeneratedText string `json:"generated_text"`
}

func (h *HuggingFace) Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	body := hfRequest{
		Inputs: prompt,
		Parameters: hfParameters{
			MaxNewTokens:   maxTokens,
			Temperature:    temperature,
			ReturnFullText: false,
		},
	}
	respBody, err := postJSON(ctx, h.client, h.baseURL+"/models/"+h.model, h.apiKey, body)
	if err != nil {
		return "", err
	}

	// The hosted API answers with a list, TGI servers with a single object.
	var list []hfGeneration
	if err := json.Unmarshal(respBody, &list); err == nil {
		if len(list) == 0 {
			return "", engine.TransportError("AI provider returned empty response")
		}
		return list[0].GeneratedText, nil
	}
	var single hfGeneration
	if err := json.Unmarshal(respBody, &single); err != nil {
		return "", engine.TransportError("Failed to parse AI response envelope: %v", err)
	}
	return single.GeneratedText, nil
}

var _ engine.Completer = (*HuggingFace)(nil)
