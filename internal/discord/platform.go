package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/harun/sidebar/pkg/router"
)

var _ router.Platform = (*Bot)(nil)

// FindCategory looks up a category channel by exact name.
func (b *Bot) FindCategory(ctx context.Context, guildID, name string) (string, bool, error) {
	channels, err := b.session.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", false, fmt.Errorf("failed to list guild channels: %w", err)
	}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildCategory && ch.Name == name {
			return ch.ID, true, nil
		}
	}
	return "", false, nil
}

// CreateCategory creates a category channel.
func (b *Bot) CreateCategory(ctx context.Context, guildID, name string) (string, error) {
	ch, err := b.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name: name,
		Type: discordgo.ChannelTypeGuildCategory,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to create category: %w", err)
	}

	b.logger.Info().Str("guild_id", guildID).Str("category", name).Msg("Category created")
	return ch.ID, nil
}

// ChannelNamesInCategory lists the names of channels whose parent is categoryID.
func (b *Bot) ChannelNamesInCategory(ctx context.Context, guildID, categoryID string) ([]string, error) {
	channels, err := b.session.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list guild channels: %w", err)
	}
	var names []string
	for _, ch := range channels {
		if ch.ParentID == categoryID {
			names = append(names, ch.Name)
		}
	}
	return names, nil
}

// CreateTextChannel creates a text channel under a category.
func (b *Bot) CreateTextChannel(ctx context.Context, guildID, categoryID, name string) (string, error) {
	ch, err := b.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:     name,
		Type:     discordgo.ChannelTypeGuildText,
		ParentID: categoryID,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to create text channel: %w", err)
	}
	return ch.ID, nil
}

// DeleteChannel deletes a channel.
func (b *Bot) DeleteChannel(ctx context.Context, channelID string) error {
	if _, err := b.session.ChannelDelete(channelID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to delete channel: %w", err)
	}
	return nil
}

// ChannelCategoryName returns the name of the channel's parent category.
func (b *Bot) ChannelCategoryName(ctx context.Context, channelID string) (string, error) {
	ch, err := b.channel(ctx, channelID)
	if err != nil {
		return "", err
	}
	if ch.ParentID == "" {
		return "", nil
	}
	parent, err := b.channel(ctx, ch.ParentID)
	if err != nil {
		return "", err
	}
	return parent.Name, nil
}

// channel reads from the gateway state cache before asking the API.
func (b *Bot) channel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	if b.session.State != nil {
		if ch, err := b.session.State.Channel(channelID); err == nil {
			return ch, nil
		}
	}
	ch, err := b.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get channel %s: %w", channelID, err)
	}
	return ch, nil
}

// SendMessage sends a text message and returns its id.
func (b *Bot) SendMessage(ctx context.Context, channelID, text string) (string, error) {
	msg, err := b.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	b.logger.Debug().
		Str("channel_id", channelID).
		Int("length", len(text)).
		Msg("Message sent")

	return msg.ID, nil
}

// SendTemporary sends a message and deletes it after ttl. The deletion is
// skipped when the bot stops first.
func (b *Bot) SendTemporary(ctx context.Context, channelID, text string, ttl time.Duration) error {
	id, err := b.SendMessage(ctx, channelID, text)
	if err != nil {
		return err
	}

	b.mu.Lock()
	stopped := b.ctx
	b.mu.Unlock()

	go func() {
		timer := time.NewTimer(ttl)
		defer timer.Stop()

		var done <-chan struct{}
		if stopped != nil {
			done = stopped.Done()
		}
		select {
		case <-timer.C:
		case <-done:
			return
		}
		if err := b.session.ChannelMessageDelete(channelID, id); err != nil {
			b.logger.Debug().Err(err).Str("channel_id", channelID).Msg("Failed to delete temporary message")
		}
	}()
	return nil
}

// Typing shows the typing indicator in a channel.
func (b *Bot) Typing(ctx context.Context, channelID string) error {
	return b.session.ChannelTyping(channelID, discordgo.WithContext(ctx))
}
