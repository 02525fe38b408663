package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/harun/sidebar/internal/tracing"
	"github.com/harun/sidebar/pkg/router"
)

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User == nil {
		return
	}
	b.logger.Info().
		Str("username", r.User.Username).
		Str("id", r.User.ID).
		Int("guilds", len(r.Guilds)).
		Msgf("Logged in as %s (ID: %s)", r.User.Username, r.User.ID)
}

// onMessageCreate runs on its own goroutine per event, so a slow reply in
// one channel does not hold up the gateway.
func (b *Bot) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Message == nil || m.Author == nil || b.messageHandler == nil {
		return
	}

	selfID := ""
	if user := b.selfUser(); user != nil {
		selfID = user.ID
	}
	msg := toInbound(m.Message, selfID)

	ctx, ok := b.begin()
	if !ok {
		return
	}
	defer b.inflight.Done()

	ctx = tracing.NewRequestContext(ctx)
	if err := b.messageHandler.HandleMessage(ctx, msg); err != nil {
		b.logger.Error().
			Err(err).
			Str("channel_id", msg.ChannelID).
			Str("message_id", msg.ID).
			Msg("Failed to handle message")
	}
}

func (b *Bot) onChannelDelete(_ *discordgo.Session, c *discordgo.ChannelDelete) {
	if c.Channel == nil || b.channelHandler == nil {
		return
	}

	ctx, ok := b.begin()
	if !ok {
		return
	}
	defer b.inflight.Done()

	b.channelHandler.HandleChannelDeleted(tracing.WithChannelID(ctx, c.ID), c.ID)
}

// begin registers an in-flight event unless the bot is stopping.
func (b *Bot) begin() (context.Context, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return nil, false
	}
	b.inflight.Add(1)
	return b.ctx, true
}

// toInbound converts a gateway message into the router's view of it.
func toInbound(m *discordgo.Message, selfID string) router.InboundMessage {
	msg := router.InboundMessage{
		ID:        m.ID,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorIsBot = m.Author.Bot
		msg.FromSelf = selfID != "" && m.Author.ID == selfID
		msg.AuthorName = displayName(m)
	}
	return msg
}

// displayName prefers the guild nickname, then the global display name,
// then the username.
func displayName(m *discordgo.Message) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}
