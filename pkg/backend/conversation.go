package backend

import (
	"context"
	"fmt"

	"github.com/harun/sidebar/internal/tracing"
	"github.com/harun/sidebar/pkg/session"
)

// DefaultHistoryLimit bounds how many past turns are sent with each message.
const DefaultHistoryLimit = 50

// Conversation keeps multi-turn history per session. Requests without a
// session, or without a conversation id, are answered statelessly.
type Conversation struct {
	llm          *llmCaller
	prompt       PromptRenderer
	transcripts  Transcripts
	historyLimit int
	enableSearch bool
}

// newConversation creates a multi-turn responder.
func newConversation(llm *llmCaller, prompt PromptRenderer, transcripts Transcripts, historyLimit int, enableSearch bool) *Conversation {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Conversation{
		llm:          llm,
		prompt:       prompt,
		transcripts:  transcripts,
		historyLimit: historyLimit,
		enableSearch: enableSearch,
	}
}

// Name returns the strategy name
func (c *Conversation) Name() string {
	return StrategyConversation
}

// SearchEnabled reports whether replies may use web search grounding
func (c *Conversation) SearchEnabled() bool {
	return c.enableSearch
}

// Respond answers req with the session history as context and records
// both turns on success. Requests without a session are answered statelessly.
func (c *Conversation) Respond(ctx context.Context, req Request) (string, error) {
	systemPrompt, err := c.prompt.Render(promptData(req))
	if err != nil {
		return "", err
	}

	if req.Session == nil || req.Session.ConversationID == "" {
		return c.llm.call(ctx, systemPrompt, []Message{{Role: RoleUser, Content: req.Text}})
	}

	id := req.Session.ConversationID
	ctx = tracing.WithConversationID(ctx, id)

	history, err := c.transcripts.Load(ctx, id, c.historyLimit)
	if err != nil {
		return "", fmt.Errorf("failed to load history: %w", err)
	}

	messages := make([]Message, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, Message{Role: RoleUser, Content: req.Text})

	reply, err := c.llm.call(ctx, systemPrompt, messages)
	if err != nil {
		return "", err
	}

	// History is only extended by complete exchanges. A failed save loses
	// context for later turns but the reply itself is still good.
	for _, turn := range []session.Turn{
		{Role: RoleUser, Content: req.Text},
		{Role: RoleAssistant, Content: reply},
	} {
		if err := c.transcripts.Append(ctx, id, turn); err != nil {
			logger := tracing.LoggerFromContext(ctx, c.llm.logger)
			logger.Warn().
				Err(err).
				Str("role", turn.Role).
				Msg("Failed to save turn")
			break
		}
	}

	return reply, nil
}
