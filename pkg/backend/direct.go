package backend

import (
	"context"
)

// Direct sends each message to the model on its own, without history.
type Direct struct {
	llm          *llmCaller
	prompt       PromptRenderer
	enableSearch bool
}

// newDirect creates a stateless responder.
func newDirect(llm *llmCaller, prompt PromptRenderer, enableSearch bool) *Direct {
	return &Direct{llm: llm, prompt: prompt, enableSearch: enableSearch}
}

// Name returns the strategy name
func (d *Direct) Name() string {
	return StrategyDirect
}

// SearchEnabled reports whether replies may use web search grounding
func (d *Direct) SearchEnabled() bool {
	return d.enableSearch
}

// Respond answers req with one stateless model call
func (d *Direct) Respond(ctx context.Context, req Request) (string, error) {
	systemPrompt, err := d.prompt.Render(promptData(req))
	if err != nil {
		return "", err
	}

	return d.llm.call(ctx, systemPrompt, []Message{{Role: RoleUser, Content: req.Text}})
}
