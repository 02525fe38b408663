package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/sidebar/internal/prompt"
	"github.com/harun/sidebar/pkg/session"
	"github.com/rs/zerolog"
)

// Strategy names.
const (
	StrategyEcho         = "echo"
	StrategyDirect       = "direct"
	StrategyConversation = "conversation"
)

// Responder turns one user message into one reply.
type Responder interface {
	Respond(ctx context.Context, req Request) (string, error)
	// Name returns the strategy name.
	Name() string
}

// Request is one message to answer. Session is nil for requests that are not
// bound to an AI channel, such as the ai command.
type Request struct {
	Text     string
	UserName string
	Session  *session.Session
}

// PromptRenderer renders the system prompt for a request.
type PromptRenderer interface {
	Render(data prompt.Data) (string, error)
}

// Transcripts is the conversation history used by the conversation strategy.
type Transcripts interface {
	Load(ctx context.Context, id string, limit int) ([]session.Turn, error)
	Append(ctx context.Context, id string, turn session.Turn) error
}

// Config selects and tunes a strategy.
type Config struct {
	Strategy     string
	Profile      ProviderProfile
	Model        string
	Temperature  float64
	MaxTokens    int
	MaxRetries   int
	RetryDelay   time.Duration
	HistoryLimit int
}

// Deps are the collaborators a strategy may need.
type Deps struct {
	Factory     ProviderCreator
	Prompt      PromptRenderer
	Transcripts Transcripts
	Logger      zerolog.Logger
}

// New builds the Responder selected by cfg.Strategy. Echo needs no provider.
func New(ctx context.Context, cfg Config, deps Deps) (Responder, error) {
	strategy := cfg.Strategy
	if strategy == "" {
		strategy = StrategyConversation
	}

	if strategy == StrategyEcho {
		return NewEcho(), nil
	}
	if strategy != StrategyDirect && strategy != StrategyConversation {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStrategy, strategy)
	}

	if deps.Factory == nil {
		deps.Factory = &ProviderFactory{}
	}
	if deps.Prompt == nil {
		tmpl, err := prompt.New(prompt.DefaultTemplate)
		if err != nil {
			return nil, err
		}
		deps.Prompt = tmpl
	}

	provider, err := deps.Factory.NewProvider(ctx, cfg.Profile)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	llm := newLLMCaller(provider, cfg, deps.Logger.With().Str("component", "backend").Logger())

	if strategy == StrategyDirect {
		return newDirect(llm, deps.Prompt, cfg.Profile.EnableSearch), nil
	}

	if deps.Transcripts == nil {
		return nil, fmt.Errorf("conversation strategy requires a transcript store")
	}
	return newConversation(llm, deps.Prompt, deps.Transcripts, cfg.HistoryLimit, cfg.Profile.EnableSearch), nil
}

// searcher is implemented by strategies that can ground replies in web search.
type searcher interface {
	SearchEnabled() bool
}

// Welcome returns the greeting posted in a freshly opened channel. The wording
// tells the user what the configured strategy can do.
func Welcome(r Responder, mention, channelName string) string {
	base := fmt.Sprintf("Hello %s! I'm %s.", mention, channelName)

	if r.Name() == StrategyEcho {
		return base + " AI replies are turned off right now, so I'll just repeat what you say."
	}
	if s, ok := r.(searcher); ok && s.SearchEnabled() {
		return base + " I can search the web for current information. Just talk to me naturally - no commands needed!"
	}
	return base + " Just talk to me naturally - no commands needed!"
}

func promptData(req Request) prompt.Data {
	data := prompt.Data{User: req.UserName}
	if req.Session != nil {
		data.ChannelName = req.Session.ChannelName
		if data.User == "" {
			data.User = req.Session.OwnerName
		}
	}
	if data.ChannelName == "" {
		data.ChannelName = "assistant"
	}
	if data.User == "" {
		data.User = "a Discord user"
	}
	return data
}
