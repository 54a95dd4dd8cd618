package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mohammad-safakhou/aeoengine/config"
)

// NewLLMProvider creates the configured provider.
func NewLLMProvider(cfg config.LLMConfig) (LLMProvider, error) {
	switch cfg.Type {
	case "openai", "":
		return NewOpenAIProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider type: %s", cfg.Type)
	}
}

// OpenAIProvider talks to any OpenAI-compatible chat/embeddings API.
type OpenAIProvider struct {
	apiKey      string
	baseURL     string
	embedModel  string
	temperature float64
	maxTokens   int
	http        *HTTPClient
}

// NewOpenAIProvider creates a new OpenAI provider. Requests are never retried.
func NewOpenAIProvider(cfg config.LLMConfig) *OpenAIProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		embedModel:  cfg.EmbeddingModel,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		http:        NewHTTPClient(cfg.Timeout, 0, 0),
	}
}

type chatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatReq struct {
	Model       string    `json:"model"`
	Messages    []chatMsg `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// GenerateWithTokens generates text and returns token usage
func (p *OpenAIProvider) GenerateWithTokens(ctx context.Context, req Completion) (string, int64, int64, error) {
	if p.apiKey == "" {
		return "", 0, 0, fmt.Errorf("llm api key not configured")
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = p.temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}
	msgs := make([]chatMsg, 0, 2)
	if req.System != "" {
		msgs = append(msgs, chatMsg{Role: "system", Content: req.System})
	}
	msgs = append(msgs, chatMsg{Role: "user", Content: req.Prompt})

	var out chatResp
	err := p.http.DoJSON(ctx, http.MethodPost, p.baseURL+"/chat/completions", p.headers(), chatReq{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, &out)
	if err != nil {
		return "", 0, 0, fmt.Errorf("chat completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", 0, 0, fmt.Errorf("no choices")
	}
	return out.Choices[0].Message.Content, int64(out.Usage.PromptTokens), int64(out.Usage.CompletionTokens), nil
}

// Embed generates vector embeddings for the provided inputs.
func (p *OpenAIProvider) Embed(ctx context.Context, model string, input []string) ([][]float32, error) {
	if len(input) == 0 {
		return nil, nil
	}
	if p.apiKey == "" {
		return nil, fmt.Errorf("llm api key not configured")
	}
	if model == "" {
		model = p.embedModel
	}
	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	body := map[string]any{"model": model, "input": input}
	if err := p.http.DoJSON(ctx, http.MethodPost, p.baseURL+"/embeddings", p.headers(), body, &out); err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}
	if len(out.Data) != len(input) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d inputs", len(out.Data), len(input))
	}
	vecs := make([][]float32, len(input))
	for i, d := range out.Data {
		idx := d.Index
		if idx < 0 || idx >= len(vecs) {
			idx = i
		}
		vecs[idx] = d.Embedding
	}
	return vecs, nil
}

func (p *OpenAIProvider) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.apiKey}
}
