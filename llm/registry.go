package llm

import (
	"fmt"

	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

// ProviderOptions selects and configures a provider-backed model.
type ProviderOptions struct {
	Provider    string // openai, deepseek, openrouter, langchain-openai
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	MaxTokens   int
}

// Default base URLs for OpenAI-compatible providers.
const (
	deepseekBaseURL   = "https://api.deepseek.com/v1"
	openRouterBaseURL = "https://openrouter.ai/api/v1"
)

// NewModel builds a Model for the configured provider. OpenAI-compatible
// providers share the go-openai client with a base URL override;
// langchain-openai goes through the langchaingo adapter and serves as the
// template for wiring other langchaingo backends.
func NewModel(opts ProviderOptions) (Model, error) {
	switch opts.Provider {
	case "", "openai":
		return NewOpenAIModel(OpenAIOptions{
			APIKey:      opts.APIKey,
			Model:       opts.Model,
			BaseURL:     opts.BaseURL,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
		})

	case "deepseek":
		baseURL := opts.BaseURL
		if baseURL == "" {
			baseURL = deepseekBaseURL
		}
		return NewOpenAIModel(OpenAIOptions{
			APIKey:      opts.APIKey,
			Model:       opts.Model,
			BaseURL:     baseURL,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
		})

	case "openrouter":
		baseURL := opts.BaseURL
		if baseURL == "" {
			baseURL = openRouterBaseURL
		}
		return NewOpenAIModel(OpenAIOptions{
			APIKey:      opts.APIKey,
			Model:       opts.Model,
			BaseURL:     baseURL,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
		})

	case "langchain-openai":
		llmOpts := []lcopenai.Option{
			lcopenai.WithModel(opts.Model),
			lcopenai.WithToken(opts.APIKey),
		}
		if opts.BaseURL != "" {
			llmOpts = append(llmOpts, lcopenai.WithBaseURL(opts.BaseURL))
		}
		model, err := lcopenai.New(llmOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create langchaingo model: %w", err)
		}
		return NewLangChainModel(model, opts.Model), nil

	default:
		return nil, fmt.Errorf("unknown llm provider %q", opts.Provider)
	}
}
