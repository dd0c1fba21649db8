package openai

// StreamResponse is the OpenAI-compatible SSE response payload.
type StreamResponse struct {
	// ID is the provider request id.
	ID string `json:"id,omitempty"`
	// Model is the model identifier for the stream.
	Model string `json:"model,omitempty"`
	// Choices carries incremental delta updates.
	Choices []StreamChoice `json:"choices,omitempty"`
	// Usage reports tokens when the backend includes them.
	Usage *Usage `json:"usage,omitempty"`
	// Error is set by some gateways instead of choices when generation fails mid-stream.
	Error *StreamError `json:"error,omitempty"`
}

// StreamChoice represents a streaming choice delta.
type StreamChoice struct {
	// Index is the choice index.
	Index int `json:"index"`
	// Delta holds the incremental message update.
	Delta StreamDelta `json:"delta"`
	// FinishReason signals why generation stopped.
	FinishReason *string `json:"finish_reason,omitempty"`
}

// StreamDelta represents incremental message content.
type StreamDelta struct {
	// Role sets the assistant role on the first delta.
	Role string `json:"role,omitempty"`
	// Content holds streamed answer text.
	Content string `json:"content,omitempty"`
	// ReasoningContent holds intermediate "thinking" text from reasoning models.
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

// StreamError is an error object embedded in a stream frame.
type StreamError struct {
	// Message is the provider error message.
	Message string `json:"message,omitempty"`
	// Type is the provider error category.
	Type string `json:"type,omitempty"`
}

// StreamSummary captures metadata from a streaming response.
type StreamSummary struct {
	// ID is the stream request id.
	ID string
	// Model is the model identifier.
	Model string
	// FinishReason is the last finish reason seen.
	FinishReason string
	// Usage reports token usage if available.
	Usage Usage
	// HasUsage reports whether Usage is populated.
	HasUsage bool
	// Frames counts decoded data frames.
	Frames int
}
