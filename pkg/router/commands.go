package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/harun/sidebar/internal/observability"
	"github.com/harun/sidebar/internal/tracing"
	"github.com/harun/sidebar/pkg/backend"
	"github.com/harun/sidebar/pkg/session"
)

// Fixed user-facing texts.
const (
	MsgNotInCategory  = "This command can only be used in a channel under the '%s' category."
	MsgAIEmpty        = "🤖 I couldn't generate a response. Please try again."
	MsgAIFailed       = "Sorry, I couldn't get a response from the AI."
	MsgAIUsage        = "Usage: %sai <question>"
	MsgGuildOnly      = "This command only works in a server channel."
	MsgOpenFailed     = "Sorry, I couldn't create a sidebar channel. Please try again later."
	MsgSidebarCreated = "Sidebar created in %s"
	MsgPong           = "Pong!"
)

// CommandFunc is a function that handles a command
type CommandFunc func(ctx context.Context, cmd CommandContext) error

// CommandContext contains command metadata
type CommandContext struct {
	Message InboundMessage
	Command string
	Args    []string
	RawArgs string
}

type commandEntry struct {
	handler CommandFunc
	help    string
}

// Commands dispatches prefixed messages to handlers.
type Commands struct {
	router   *Router
	handlers map[string]commandEntry
}

func newCommands(r *Router) *Commands {
	c := &Commands{
		router:   r,
		handlers: make(map[string]commandEntry),
	}

	c.Register("sidebar", "open a private AI channel", c.openSession)
	c.Register("exit", "close the AI channel you are in", c.closeSession)
	c.Register("ai", "ask the AI a single question", c.askAI)
	c.Register("ping", "check the bot is alive", c.ping)
	c.Register("help", "list commands", c.help)

	return c
}

// Register registers a command handler
func (c *Commands) Register(command, help string, handler CommandFunc) {
	c.handlers[command] = commandEntry{handler: handler, help: help}
}

// Names returns registered commands in sorted order.
func (c *Commands) Names() []string {
	names := make([]string, 0, len(c.handlers))
	for name := range c.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle parses text after the prefix and runs the matching command. Unknown
// commands are ignored.
func (c *Commands) Handle(ctx context.Context, msg InboundMessage, body string) error {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return nil
	}

	command := strings.ToLower(fields[0])
	rawArgs := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(body), fields[0]))

	logger := tracing.LoggerFromContext(ctx, c.router.logger)

	entry, exists := c.handlers[command]
	if !exists {
		logger.Debug().Str("command", command).Msg("Unknown command ignored")
		return nil
	}

	logger.Debug().Str("command", command).Msg("Command received")

	err := entry.handler(ctx, CommandContext{
		Message: msg,
		Command: command,
		Args:    fields[1:],
		RawArgs: rawArgs,
	})
	observability.RecordCommand(command, err == nil)
	return err
}

// openSession creates a new AI channel for the author.
func (c *Commands) openSession(ctx context.Context, cmd CommandContext) error {
	r := c.router
	msg := cmd.Message
	logger := tracing.LoggerFromContext(ctx, r.logger)

	if msg.IsDirect() {
		_, err := r.platform.SendMessage(ctx, msg.ChannelID, MsgGuildOnly)
		return err
	}

	channelID, name, err := c.createChannel(ctx, msg.GuildID)
	if err != nil {
		observability.RecordPlatformError("create_channel")
		logger.Error().Err(err).Msg("Failed to create sidebar channel")
		if _, sendErr := r.platform.SendMessage(ctx, msg.ChannelID, MsgOpenFailed); sendErr != nil {
			logger.Warn().Err(sendErr).Msg("Failed to report sidebar failure")
		}
		return err
	}

	noticeID, err := r.platform.SendMessage(ctx, msg.ChannelID, fmt.Sprintf(MsgSidebarCreated, channelMention(channelID)))
	if err != nil {
		observability.RecordPlatformError("send")
		logger.Warn().Err(err).Msg("Failed to post sidebar notice")
	}

	sess := r.registry.Create(msg.GuildID, channelID, msg.AuthorID, session.Metadata{
		ChannelName:     name,
		OwnerName:       msg.AuthorName,
		OriginChannelID: msg.ChannelID,
		ConversationID:  uuid.New().String(),
		NoticeMessageID: noticeID,
	})

	observability.RecordSessionOpened()
	observability.RecordSessionAudit(ctx, "session_opened", msg.AuthorID, "success", map[string]interface{}{
		"guild_id":        sess.GuildID,
		"channel_id":      sess.ChannelID,
		"channel_name":    sess.ChannelName,
		"conversation_id": sess.ConversationID,
	})

	logger.Info().
		Str("session_channel_id", channelID).
		Str("channel_name", name).
		Msg("Sidebar opened")

	welcome := backend.Welcome(r.responder, msg.Mention(), name)
	if _, err := r.platform.SendMessage(ctx, channelID, welcome); err != nil {
		observability.RecordPlatformError("send")
		logger.Warn().Err(err).Msg("Failed to post welcome message")
	}

	return nil
}

func (c *Commands) createChannel(ctx context.Context, guildID string) (string, string, error) {
	r := c.router

	categoryID, found, err := r.platform.FindCategory(ctx, guildID, r.cfg.CategoryName)
	if err != nil {
		return "", "", fmt.Errorf("failed to look up category: %w", err)
	}
	if !found {
		categoryID, err = r.platform.CreateCategory(ctx, guildID, r.cfg.CategoryName)
		if err != nil {
			return "", "", fmt.Errorf("failed to create category: %w", err)
		}
	}

	existing, err := r.platform.ChannelNamesInCategory(ctx, guildID, categoryID)
	if err != nil {
		return "", "", fmt.Errorf("failed to list channels: %w", err)
	}

	name, err := r.namer.Next(existing)
	if err != nil {
		return "", "", fmt.Errorf("failed to pick channel name: %w", err)
	}

	channelID, err := r.platform.CreateTextChannel(ctx, guildID, categoryID, name)
	if err != nil {
		return "", "", fmt.Errorf("failed to create channel: %w", err)
	}
	return channelID, name, nil
}

// closeSession deletes the AI channel the command was sent in. It works on
// any channel under the AI category, tracked or not.
func (c *Commands) closeSession(ctx context.Context, cmd CommandContext) error {
	r := c.router
	msg := cmd.Message
	logger := tracing.LoggerFromContext(ctx, r.logger)

	category := ""
	if !msg.IsDirect() {
		var err error
		category, err = r.platform.ChannelCategoryName(ctx, msg.ChannelID)
		if err != nil {
			observability.RecordPlatformError("lookup_channel")
			return fmt.Errorf("failed to look up channel category: %w", err)
		}
	}

	if category != r.cfg.CategoryName {
		return r.platform.SendTemporary(ctx, msg.ChannelID, fmt.Sprintf(MsgNotInCategory, r.cfg.CategoryName), r.cfg.UsageTTL)
	}

	if sess, ok := r.registry.Delete(msg.GuildID, msg.ChannelID); ok {
		r.retire(ctx, sess, CloseReasonCommand, msg.AuthorID)
	}

	if err := r.platform.DeleteChannel(ctx, msg.ChannelID); err != nil {
		observability.RecordPlatformError("delete_channel")
		return fmt.Errorf("failed to delete channel: %w", err)
	}

	logger.Info().Msg("Sidebar closed")
	return nil
}

// askAI answers a one-off question in any channel.
func (c *Commands) askAI(ctx context.Context, cmd CommandContext) error {
	r := c.router
	msg := cmd.Message
	logger := tracing.LoggerFromContext(ctx, r.logger)

	if cmd.RawArgs == "" {
		_, err := r.platform.SendMessage(ctx, msg.ChannelID, fmt.Sprintf(MsgAIUsage, r.cfg.Prefix))
		return err
	}

	if err := r.platform.Typing(ctx, msg.ChannelID); err != nil {
		logger.Debug().Err(err).Msg("Typing indicator failed")
	}

	callCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	reply, err := r.responder.Respond(callCtx, backend.Request{
		Text:     cmd.RawArgs,
		UserName: msg.AuthorName,
	})

	switch {
	case errors.Is(err, backend.ErrEmptyResponse):
		_, sendErr := r.platform.SendMessage(ctx, msg.ChannelID, MsgAIEmpty)
		return sendErr
	case err != nil:
		logger.Error().Err(err).Msg("AI command failed")
		_, sendErr := r.platform.SendMessage(ctx, msg.ChannelID, MsgAIFailed)
		return sendErr
	}

	r.sendChunks(ctx, msg.ChannelID, "🤖 "+reply)
	return nil
}

func (c *Commands) ping(ctx context.Context, cmd CommandContext) error {
	_, err := c.router.platform.SendMessage(ctx, cmd.Message.ChannelID, MsgPong)
	return err
}

func (c *Commands) help(ctx context.Context, cmd CommandContext) error {
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, name := range c.Names() {
		fmt.Fprintf(&b, "`%s%s` - %s\n", c.router.cfg.Prefix, name, c.handlers[name].help)
	}
	b.WriteString("Inside an AI channel, just type. No command needed.")

	_, err := c.router.platform.SendMessage(ctx, cmd.Message.ChannelID, b.String())
	return err
}
