package llm

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Ollama speaks Ollama's native /api/chat endpoint.
type Ollama struct{}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Model           string  `json:"model"`
	Message         Message `json:"message"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

func (Ollama) Name() string     { return "ollama" }
func (Ollama) ChatPath() string { return "/api/chat" }

func (Ollama) BuildRequest(req CompletionRequest) (any, error) {
	body := ollamaRequest{Model: req.Model, Messages: req.messages()}
	if req.Temperature > 0 || req.MaxTokens > 0 {
		body.Options = &ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens}
	}
	if req.JSON {
		body.Format = "json"
	}
	return body, nil
}

func (Ollama) ParseResponse(body []byte) (*CompletionResponse, error) {
	var resp ollamaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}
	return &CompletionResponse{
		Content: resp.Message.Content,
		Model:   resp.Model,
		Usage: Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}, nil
}

// AuthHeaders sends the key as a bearer token for proxied deployments.
func (Ollama) AuthHeaders(apiKey string) map[string]string {
	if apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + apiKey}
}
