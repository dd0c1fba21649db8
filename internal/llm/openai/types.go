package openai

// ChatRequest matches the OpenAI-compatible chat/completions request.
type ChatRequest struct {
	// Model is the provider model identifier.
	Model string `json:"model"`
	// Messages is the ordered conversation; explanations send a single user message.
	Messages []Message `json:"messages"`
	// Stream toggles server-sent events in the response.
	Stream bool `json:"stream,omitempty"`
	// Temperature controls randomness, if supported by the backend.
	Temperature *float64 `json:"temperature,omitempty"`
	// MaxTokens limits the model output, if supported by the backend.
	MaxTokens *int `json:"max_tokens,omitempty"`
}

// Message represents a chat message.
type Message struct {
	// Role is one of system, user, or assistant.
	Role string `json:"role"`
	// Content carries the message text.
	Content string `json:"content"`
}

// ChatResponse matches the OpenAI-compatible chat/completions response.
type ChatResponse struct {
	// ID is the request id from the provider.
	ID string `json:"id"`
	// Model is the model that served the request.
	Model string `json:"model,omitempty"`
	// Choices contains the assistant messages.
	Choices []ChatChoice `json:"choices"`
	// Usage reports token counts.
	Usage Usage `json:"usage"`
}

// ChatChoice represents a single completion choice.
type ChatChoice struct {
	// Index is the choice index.
	Index int `json:"index"`
	// Message is the assistant response.
	Message Message `json:"message"`
	// FinishReason indicates why generation stopped.
	FinishReason string `json:"finish_reason"`
}

// Usage represents token usage info.
type Usage struct {
	// PromptTokens counts input tokens.
	PromptTokens int `json:"prompt_tokens"`
	// CompletionTokens counts output tokens.
	CompletionTokens int `json:"completion_tokens"`
	// TotalTokens is the sum of prompt and completion tokens.
	TotalTokens int `json:"total_tokens"`
}
