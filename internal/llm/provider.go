package llm

import "fmt"

// Provider names accepted by New.
const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
)

// New builds the model for the named provider.
func New(provider string, opts ClientOptions) (Model, error) {
	switch provider {
	case "", ProviderGemini:
		c, err := NewGeminiClient(opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	case ProviderOpenRouter:
		return NewOpenRouterClient(opts), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", provider)
	}
}
