package backend

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider calls the Chat Completions API. BaseURL lets it target any
// OpenAI-compatible gateway.
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider creates an OpenAI provider. SDK retries are disabled
// because the responder owns the retry policy.
func NewOpenAIProvider(profile ProviderProfile) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(profile.APIKey),
		option.WithMaxRetries(0),
	}
	if profile.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(profile.BaseURL))
	}
	return &OpenAIProvider{client: openai.NewClient(opts...)}
}

// Provider returns the provider name
func (p *OpenAIProvider) Provider() string { return "openai" }

// Call makes an API call to OpenAI
func (p *OpenAIProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(request.Model),
		Messages: openAIMessages(request),
	}
	if request.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(request.MaxTokens))
	}
	if request.Temperature > 0 {
		params.Temperature = openai.Float(request.Temperature)
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("openai: completion has no choices")
	}

	return &LLMResponse{
		Content: completion.Choices[0].Message.Content,
		Usage: &TokenUsage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}, nil
}

// openAIMessages puts the system prompt first, followed by the turns.
// Turns with an unknown role are dropped.
func openAIMessages(request LLMRequest) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(request.Messages)+1)
	if request.SystemPrompt != "" {
		out = append(out, openai.SystemMessage(request.SystemPrompt))
	}
	for _, m := range request.Messages {
		switch m.Role {
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		}
	}
	return out
}
