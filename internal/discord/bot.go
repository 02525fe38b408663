package discord

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/harun/sidebar/internal/config"
	"github.com/harun/sidebar/internal/logger"
	"github.com/harun/sidebar/pkg/router"
	"github.com/rs/zerolog"
)

// Intents the bot needs: guild structure, guild and direct messages, and
// message text.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsMessageContent

// Bot represents a Discord bot connection
type Bot struct {
	session *discordgo.Session
	config  *config.DiscordConfig
	logger  zerolog.Logger

	// Handlers
	messageHandler MessageHandler
	channelHandler ChannelHandler

	// State
	mu       sync.Mutex
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc
	removers []func()
	inflight sync.WaitGroup
}

// MessageHandler handles incoming messages
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg router.InboundMessage) error
}

// ChannelHandler is told about channels deleted outside the bot's commands.
type ChannelHandler interface {
	HandleChannelDeleted(ctx context.Context, channelID string)
}

// New creates a Discord bot. It does not connect until Start.
func New(cfg *config.DiscordConfig, log *logger.Logger) (*Bot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("discord config is required")
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}

	session, err := discordgo.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = Intents

	return &Bot{
		session: session,
		config:  cfg,
		logger:  log.Component("discord"),
	}, nil
}

// SetMessageHandler sets the handler for incoming messages
func (b *Bot) SetMessageHandler(h MessageHandler) {
	b.messageHandler = h
}

// SetChannelHandler sets the handler for deleted channels
func (b *Bot) SetChannelHandler(h ChannelHandler) {
	b.channelHandler = h
}

// Start connects to the gateway and begins dispatching events
func (b *Bot) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("bot is already running")
	}

	b.logger.Info().Msg("Starting Discord bot")

	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.removers = []func(){
		b.session.AddHandler(b.onReady),
		b.session.AddHandler(b.onMessageCreate),
		b.session.AddHandler(b.onChannelDelete),
	}

	if err := b.session.Open(); err != nil {
		b.removeHandlers()
		b.cancel()
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}

	b.running = true
	b.logger.Info().Msg("Discord bot started")
	return nil
}

// Stop disconnects and waits for in-flight messages to finish
func (b *Bot) Stop() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return fmt.Errorf("bot is not running")
	}
	b.running = false
	b.removeHandlers()
	b.cancel()
	b.mu.Unlock()

	b.logger.Info().Msg("Stopping Discord bot")

	b.inflight.Wait()
	if err := b.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord gateway: %w", err)
	}

	b.logger.Info().Msg("Discord bot stopped")
	return nil
}

// IsRunning reports whether the gateway connection is open
func (b *Bot) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *Bot) removeHandlers() {
	for _, remove := range b.removers {
		remove()
	}
	b.removers = nil
}

// GetBotInfo returns bot information
func (b *Bot) GetBotInfo() map[string]interface{} {
	info := map[string]interface{}{
		"running": b.IsRunning(),
	}
	if user := b.selfUser(); user != nil {
		info["id"] = user.ID
		info["username"] = user.Username
	}
	return info
}

func (b *Bot) selfUser() *discordgo.User {
	if b.session.State == nil {
		return nil
	}
	return b.session.State.User
}
