package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// GuildIDKey is the context key for the guild a message came from
	GuildIDKey ContextKey = "guild_id"
	// ChannelIDKey is the context key for the channel a message came from
	ChannelIDKey ContextKey = "channel_id"
	// UserIDKey is the context key for the author of a message
	UserIDKey ContextKey = "user_id"
	// ConversationIDKey is the context key for the backend conversation id
	ConversationIDKey ContextKey = "conversation_id"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID        string
	GuildID        string
	ChannelID      string
	UserID         string
	ConversationID string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithGuildID adds a guild ID to the context
func WithGuildID(ctx context.Context, guildID string) context.Context {
	return context.WithValue(ctx, GuildIDKey, guildID)
}

// WithChannelID adds a channel ID to the context
func WithChannelID(ctx context.Context, channelID string) context.Context {
	return context.WithValue(ctx, ChannelIDKey, channelID)
}

// WithUserID adds a user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithConversationID adds a conversation ID to the context
func WithConversationID(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, ConversationIDKey, conversationID)
}

func getString(ctx context.Context, key ContextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	return getString(ctx, TraceIDKey)
}

// GetGuildID retrieves the guild ID from the context
func GetGuildID(ctx context.Context) string {
	return getString(ctx, GuildIDKey)
}

// GetChannelID retrieves the channel ID from the context
func GetChannelID(ctx context.Context) string {
	return getString(ctx, ChannelIDKey)
}

// GetUserID retrieves the user ID from the context
func GetUserID(ctx context.Context) string {
	return getString(ctx, UserIDKey)
}

// GetConversationID retrieves the conversation ID from the context
func GetConversationID(ctx context.Context) string {
	return getString(ctx, ConversationIDKey)
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:        GetTraceID(ctx),
		GuildID:        GetGuildID(ctx),
		ChannelID:      GetChannelID(ctx),
		UserID:         GetUserID(ctx),
		ConversationID: GetConversationID(ctx),
	}
}

// NewContext creates a new context with tracing information
func NewContext(ctx context.Context, tc *TraceContext) context.Context {
	if tc.TraceID != "" {
		ctx = WithTraceID(ctx, tc.TraceID)
	}
	if tc.GuildID != "" {
		ctx = WithGuildID(ctx, tc.GuildID)
	}
	if tc.ChannelID != "" {
		ctx = WithChannelID(ctx, tc.ChannelID)
	}
	if tc.UserID != "" {
		ctx = WithUserID(ctx, tc.UserID)
	}
	if tc.ConversationID != "" {
		ctx = WithConversationID(ctx, tc.ConversationID)
	}
	return ctx
}

// NewRequestContext creates a new context for a request with a new trace ID
func NewRequestContext(ctx context.Context) context.Context {
	return WithTraceID(ctx, NewTraceID())
}

// NewMessageContext creates the context for one inbound chat message.
func NewMessageContext(ctx context.Context, guildID, channelID, userID string) context.Context {
	ctx = NewRequestContext(ctx)
	ctx = WithGuildID(ctx, guildID)
	ctx = WithChannelID(ctx, channelID)
	return WithUserID(ctx, userID)
}
