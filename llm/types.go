package llm

// Message represents a single chat message.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// CompletionRequest is the provider-neutral input of a completion.
type CompletionRequest struct {
	// Model overrides the client's default model.
	Model    string    `json:"model,omitempty"`
	Messages []Message `json:"messages"`
	// SystemPrompt is prepended as a system message.
	SystemPrompt string  `json:"systemPrompt,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	// MaxTokens limits the response length. 0 means provider default.
	MaxTokens int `json:"maxTokens,omitempty"`
	// JSON asks the provider to answer with a JSON object.
	JSON bool `json:"json,omitempty"`
}

// messages returns Messages with the system prompt prepended.
func (r CompletionRequest) messages() []Message {
	if r.SystemPrompt == "" {
		return r.Messages
	}
	return append([]Message{{Role: "system", Content: r.SystemPrompt}}, r.Messages...)
}

// CompletionResponse is the provider-neutral output of a completion.
type CompletionResponse struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   Usage  `json:"usage"`
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}
