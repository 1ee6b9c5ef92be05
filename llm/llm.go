// Package llm provides text generation model access with per-call usage
// accounting. Models are available through the OpenAI-compatible client or
// a langchaingo adapter; Tracked wraps any model with cost reporting.
package llm

import "context"

// Usage is the token consumption of a single model call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// TotalTokens returns the combined token count.
func (u Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// Model generates a completion for a prompt. Implementations return
// zero Usage when the provider does not report token counts; Tracked
// fills the gap with an estimate.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, Usage, error)
	// ModelName returns the provider model identifier, used for pricing.
	ModelName() string
}

// Embedder produces embedding vectors for texts.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// EstimateTokens approximates the token count of a text. OpenAI-family
// tokenizers average roughly four characters per token for English prose.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
