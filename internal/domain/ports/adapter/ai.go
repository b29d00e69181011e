package adapter

import "context"

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Usage for a single model call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Image is raw image bytes with a sniffed content type.
type Image struct {
	Data     []byte
	MIMEType string
}

// AIServiceAdapter is the port for language, embedding and vision models.
type AIServiceAdapter interface {
	Provider() string

	// ChatJSON must return a JSON document only; the provider is asked for
	// JSON output mode where it supports one.
	ChatJSON(ctx context.Context, model string, messages []Message) (string, Usage, error)

	Embed(ctx context.Context, model string, inputs []string) ([][]float32, error)

	// Vision answers prompt about a single image.
	Vision(ctx context.Context, model, prompt string, img Image) (string, Usage, error)
}

// TokenCounter bounds evidence excerpts by model tokens.
type TokenCounter interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}
