package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
)

// LangChainModel adapts any langchaingo llms.Model (Anthropic, Ollama,
// Mistral, ...) to the Model interface.
type LangChainModel struct {
	model llms.Model
	name  string
}

// NewLangChainModel wraps a langchaingo model. name is the identifier
// used for pricing lookups.
func NewLangChainModel(model llms.Model, name string) *LangChainModel {
	return &LangChainModel{model: model, name: name}
}

func (m *LangChainModel) ModelName() string {
	return m.name
}

func (m *LangChainModel) Generate(ctx context.Context, prompt string) (string, Usage, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	resp, err := m.model.GenerateContent(ctx, content)
	if err != nil {
		return "", Usage{}, fmt.Errorf("generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("model returned no choices")
	}

	choice := resp.Choices[0]
	return choice.Content, usageFromGenerationInfo(choice.GenerationInfo), nil
}

// usageFromGenerationInfo reads token counts out of langchaingo's
// provider-specific generation info. Providers that don't report usage
// leave the map empty; Tracked estimates in that case.
func usageFromGenerationInfo(info map[string]any) Usage {
	return Usage{
		InputTokens:  intFromInfo(info, "PromptTokens", "input_tokens"),
		OutputTokens: intFromInfo(info, "CompletionTokens", "output_tokens"),
	}
}

func intFromInfo(info map[string]any, keys ...string) int {
	for _, key := range keys {
		switch v := info[key].(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}
