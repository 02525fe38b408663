package backend

import (
	"context"
	"fmt"
)

// Provider is an interface for LLM API providers
type Provider interface {
	// Call makes an LLM API call
	Call(ctx context.Context, request LLMRequest) (*LLMResponse, error)

	// Provider returns the provider name
	Provider() string
}

// Turn roles understood by every provider.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMRequest contains the request parameters for LLM call
type LLMRequest struct {
	Model        string
	Messages     []Message
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// LLMResponse contains the response from LLM
type LLMResponse struct {
	Content string
	Usage   *TokenUsage
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ProviderProfile holds the credentials and options for one provider.
type ProviderProfile struct {
	Provider string `json:"provider"` // "gemini", "openai", "anthropic"
	APIKey   string `json:"api_key"`
	// BaseURL overrides the provider endpoint, for proxies and compatible
	// gateways.
	BaseURL string `json:"base_url,omitempty"`
	// EnableSearch turns on Google Search grounding. Gemini only.
	EnableSearch bool `json:"enable_search,omitempty"`
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(provider string) string {
	switch provider {
	case "openai":
		return "gpt-4o-mini"
	case "anthropic":
		return "claude-3-5-haiku-latest"
	default:
		return "gemini-2.0-flash"
	}
}

// ProviderCreator creates LLM providers from profiles.
type ProviderCreator interface {
	NewProvider(ctx context.Context, profile ProviderProfile) (Provider, error)
}

// ProviderFactory creates LLM providers
type ProviderFactory struct{}

// NewProvider creates a new LLM provider based on profile
func (f *ProviderFactory) NewProvider(ctx context.Context, profile ProviderProfile) (Provider, error) {
	switch profile.Provider {
	case "gemini", "":
		return NewGeminiProvider(ctx, profile)
	case "openai":
		return NewOpenAIProvider(profile), nil
	case "anthropic":
		return NewAnthropicProvider(profile), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, profile.Provider)
	}
}
