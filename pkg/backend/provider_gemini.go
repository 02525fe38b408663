package backend

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider calls the Gemini API, optionally with Google Search
// grounding.
type GeminiProvider struct {
	client       *genai.Client
	enableSearch bool
}

// NewGeminiProvider creates a Gemini provider. A missing key is an error
// here, so a misconfigured daemon fails at startup.
func NewGeminiProvider(ctx context.Context, profile ProviderProfile) (*GeminiProvider, error) {
	if profile.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  profile.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if profile.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: profile.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{client: client, enableSearch: profile.EnableSearch}, nil
}

// Provider returns the provider name
func (p *GeminiProvider) Provider() string { return "gemini" }

// Call makes an API call to Gemini
func (p *GeminiProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	gc := &genai.GenerateContentConfig{}
	if request.SystemPrompt != "" {
		gc.SystemInstruction = genai.NewContentFromText(request.SystemPrompt, genai.RoleUser)
	}
	if request.Temperature > 0 {
		gc.Temperature = genai.Ptr(float32(request.Temperature))
	}
	if request.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(request.MaxTokens)
	}
	if p.enableSearch {
		gc.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	resp, err := p.client.Models.GenerateContent(ctx, request.Model, geminiContents(request.Messages), gc)
	if err != nil {
		return nil, err
	}

	out := &LLMResponse{Content: resp.Text()}
	if um := resp.UsageMetadata; um != nil {
		out.Usage = &TokenUsage{
			InputTokens:  int(um.PromptTokenCount),
			OutputTokens: int(um.CandidatesTokenCount),
		}
	}
	return out, nil
}

// geminiContents maps assistant turns to the model role; everything else
// is sent as user.
func geminiContents(turns []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(m.Content, role))
	}
	return out
}
