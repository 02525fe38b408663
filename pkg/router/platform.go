package router

import (
	"context"
	"fmt"
	"time"
)

// Platform is the chat service the router drives. Implementations must be
// safe for concurrent use.
type Platform interface {
	// FindCategory returns the id of the category named name in a guild.
	FindCategory(ctx context.Context, guildID, name string) (string, bool, error)
	CreateCategory(ctx context.Context, guildID, name string) (string, error)
	// ChannelNamesInCategory lists the names of the channels under a category.
	ChannelNamesInCategory(ctx context.Context, guildID, categoryID string) ([]string, error)
	CreateTextChannel(ctx context.Context, guildID, categoryID, name string) (string, error)
	DeleteChannel(ctx context.Context, channelID string) error
	// ChannelCategoryName returns the name of the channel's parent category,
	// or "" when it has none.
	ChannelCategoryName(ctx context.Context, channelID string) (string, error)

	// SendMessage posts text and returns the new message id.
	SendMessage(ctx context.Context, channelID, text string) (string, error)
	// SendTemporary posts text that removes itself after ttl.
	SendTemporary(ctx context.Context, channelID, text string, ttl time.Duration) error
	Typing(ctx context.Context, channelID string) error
}

// InboundMessage is a chat message as seen by the router.
type InboundMessage struct {
	ID          string
	GuildID     string // empty for direct messages
	ChannelID   string
	AuthorID    string
	AuthorName  string
	AuthorIsBot bool
	// FromSelf is set for messages the bot posted itself.
	FromSelf bool
	Content  string
}

// Mention returns the platform mention markup for the author.
func (m InboundMessage) Mention() string {
	return fmt.Sprintf("<@%s>", m.AuthorID)
}

// IsDirect reports whether the message was sent outside a guild.
func (m InboundMessage) IsDirect() bool {
	return m.GuildID == ""
}

func channelMention(channelID string) string {
	return fmt.Sprintf("<#%s>", channelID)
}
