package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToLogger adds tracing context to a zerolog logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	if tc.TraceID != "" {
		logger = logger.With().Str("trace_id", tc.TraceID).Logger()
	}
	if tc.GuildID != "" {
		logger = logger.With().Str("guild_id", tc.GuildID).Logger()
	}
	if tc.ChannelID != "" {
		logger = logger.With().Str("channel_id", tc.ChannelID).Logger()
	}
	if tc.UserID != "" {
		logger = logger.With().Str("user_id", tc.UserID).Logger()
	}
	if tc.ConversationID != "" {
		logger = logger.With().Str("conversation_id", tc.ConversationID).Logger()
	}

	return logger
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}

// MergeContext copies tracing values from source into target where target has none.
func MergeContext(target, source context.Context) context.Context {
	tc := FromContext(source)

	if tc.TraceID != "" && GetTraceID(target) == "" {
		target = WithTraceID(target, tc.TraceID)
	}
	if tc.GuildID != "" && GetGuildID(target) == "" {
		target = WithGuildID(target, tc.GuildID)
	}
	if tc.ChannelID != "" && GetChannelID(target) == "" {
		target = WithChannelID(target, tc.ChannelID)
	}
	if tc.UserID != "" && GetUserID(target) == "" {
		target = WithUserID(target, tc.UserID)
	}
	if tc.ConversationID != "" && GetConversationID(target) == "" {
		target = WithConversationID(target, tc.ConversationID)
	}

	return target
}

// CloneContext creates a new background context with the same tracing information.
func CloneContext(ctx context.Context) context.Context {
	return NewContext(context.Background(), FromContext(ctx))
}
