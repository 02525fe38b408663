package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harun/sidebar/internal/observability"
	"github.com/harun/sidebar/internal/tracing"
	"github.com/harun/sidebar/pkg/backend"
	"github.com/harun/sidebar/pkg/commandqueue"
	"github.com/harun/sidebar/pkg/session"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// MsgBackendError is sent when a reply could not be produced for a session message.
const MsgBackendError = "Sorry, I encountered an error. Please try again later."

// Close reasons reported in metrics and the audit log.
const (
	CloseReasonCommand        = "command"
	CloseReasonExpired        = "expired"
	CloseReasonChannelDeleted = "channel_deleted"
)

// Routing outcomes reported in metrics.
const (
	outcomeIgnored   = "ignored"
	outcomeCommand   = "command"
	outcomeUntracked = "untracked"
	outcomeReplied   = "replied"
	outcomeError     = "error"
	outcomeDropped   = "dropped"
	outcomeDuplicate = "duplicate"
)

// Config configures message routing.
type Config struct {
	Prefix           string
	CategoryName     string
	NamePool         []string
	MaxMessageLength int
	// Timeout bounds each backend call. Zero means no limit beyond the session lifetime.
	Timeout time.Duration
	// UsageTTL is how long the close-command usage hint stays visible.
	UsageTTL time.Duration
}

func (c *Config) applyDefaults() {
	if c.Prefix == "" {
		c.Prefix = "!"
	}
	if c.CategoryName == "" {
		c.CategoryName = "AIs"
	}
	if c.MaxMessageLength <= 0 {
		c.MaxMessageLength = DefaultMaxMessageLength
	}
	if c.UsageTTL <= 0 {
		c.UsageTTL = 10 * time.Second
	}
}

// TranscriptDisposer archives or deletes the history of a closed conversation.
type TranscriptDisposer func(ctx context.Context, conversationID string) error

// Deps are the router's collaborators.
type Deps struct {
	Platform  Platform
	Registry  *session.Registry
	Responder backend.Responder
	Queue     *commandqueue.CommandQueue
	// DisposeTranscript is optional.
	DisposeTranscript TranscriptDisposer
	Logger            zerolog.Logger
}

// Router applies the inbound message policy: commands first, then replies in
// tracked AI channels, everything else ignored.
type Router struct {
	cfg       Config
	platform  Platform
	registry  *session.Registry
	responder backend.Responder
	queue     *commandqueue.CommandQueue
	dispose   TranscriptDisposer
	commands  *Commands
	namer     *namer
	logger    zerolog.Logger
}

// New creates a router.
func New(cfg Config, deps Deps) (*Router, error) {
	if deps.Platform == nil {
		return nil, fmt.Errorf("platform is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("session registry is required")
	}
	if deps.Responder == nil {
		return nil, fmt.Errorf("responder is required")
	}
	if deps.Queue == nil {
		return nil, fmt.Errorf("command queue is required")
	}

	cfg.applyDefaults()

	r := &Router{
		cfg:       cfg,
		platform:  deps.Platform,
		registry:  deps.Registry,
		responder: deps.Responder,
		queue:     deps.Queue,
		dispose:   deps.DisposeTranscript,
		namer:     newNamer(cfg.NamePool),
		logger:    deps.Logger.With().Str("component", "router").Logger(),
	}
	r.commands = newCommands(r)
	return r, nil
}

// Commands returns the command table.
func (r *Router) Commands() *Commands {
	return r.commands
}

// HandleMessage routes one inbound message. It blocks until any reply has
// been sent.
func (r *Router) HandleMessage(ctx context.Context, msg InboundMessage) error {
	if msg.AuthorIsBot || msg.FromSelf {
		observability.RecordMessageRouted(outcomeIgnored)
		return nil
	}

	ctx = tracing.NewMessageContext(ctx, msg.GuildID, msg.ChannelID, msg.AuthorID)
	ctx, span := tracing.StartSpan(ctx, "sidebar.router", "router.handle_message",
		attribute.String("channel_id", msg.ChannelID),
	)
	defer span.End()

	if body, ok := strings.CutPrefix(msg.Content, r.cfg.Prefix); ok {
		observability.RecordMessageRouted(outcomeCommand)
		return r.commands.Handle(ctx, msg, body)
	}

	if msg.IsDirect() {
		observability.RecordMessageRouted(outcomeIgnored)
		return nil
	}

	if _, ok := r.registry.Get(msg.GuildID, msg.ChannelID); !ok {
		observability.RecordMessageRouted(outcomeUntracked)
		return nil
	}

	err := r.queue.Enqueue(ctx, laneFor(msg.ChannelID), func(taskCtx context.Context) error {
		r.reply(taskCtx, msg)
		return nil
	}, &commandqueue.TaskOptions{RequestID: msg.ID})

	switch {
	case errors.Is(err, commandqueue.ErrDuplicate):
		observability.RecordMessageRouted(outcomeDuplicate)
		return nil
	case errors.Is(err, commandqueue.ErrLaneReset), errors.Is(err, commandqueue.ErrClosed):
		observability.RecordMessageRouted(outcomeDropped)
		return nil
	}
	return err
}

// reply produces and sends the answer to a message in an AI channel. It runs
// inside the channel's lane.
func (r *Router) reply(ctx context.Context, msg InboundMessage) {
	// The session may have closed while the message waited in the lane.
	sess, ok := r.registry.Get(msg.GuildID, msg.ChannelID)
	if !ok {
		r.dropOrphan(msg)
		return
	}
	sessCtx, ok := r.registry.Context(msg.GuildID, msg.ChannelID)
	if !ok {
		r.dropOrphan(msg)
		return
	}
	ctx = tracing.WithConversationID(ctx, sess.ConversationID)
	logger := tracing.LoggerFromContext(ctx, r.logger)

	// The call stops when either the session closes or the queue shuts down.
	callCtx, cancel := context.WithCancel(tracing.MergeContext(sessCtx, ctx))
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	callCtx, cancelTimeout := r.withTimeout(callCtx)
	defer cancelTimeout()

	if err := r.platform.Typing(ctx, msg.ChannelID); err != nil {
		logger.Debug().Err(err).Msg("Typing indicator failed")
	}
	r.registry.Touch(msg.GuildID, msg.ChannelID)

	text, err := r.responder.Respond(callCtx, backend.Request{
		Text:     msg.Content,
		UserName: msg.AuthorName,
		Session:  &sess,
	})

	if sessCtx.Err() != nil {
		logger.Info().Msg("Session closed during backend call, dropping response")
		if _, open := r.registry.Get(msg.GuildID, msg.ChannelID); open {
			// Replaced by a newer session on the same channel; its lane stays.
			observability.RecordMessageRouted(outcomeDropped)
			return
		}
		r.dropOrphan(msg)
		return
	}

	if err != nil {
		logger.Error().Err(err).Str("strategy", r.responder.Name()).Msg("Backend call failed")
		observability.RecordMessageRouted(outcomeError)
		if _, sendErr := r.platform.SendMessage(ctx, msg.ChannelID, MsgBackendError); sendErr != nil {
			observability.RecordPlatformError("send")
			logger.Warn().Err(sendErr).Msg("Failed to send error notice")
		}
		return
	}

	r.sendChunks(ctx, msg.ChannelID, text)
	r.registry.Touch(msg.GuildID, msg.ChannelID)
	observability.RecordMessageRouted(outcomeReplied)
}

// dropOrphan discards a message whose session is gone. A close that raced
// with the enqueue may have removed the lane before this task recreated it,
// so the lane is removed again once the task returns.
func (r *Router) dropOrphan(msg InboundMessage) {
	observability.RecordMessageRouted(outcomeDropped)
	r.queue.RemoveLane(laneFor(msg.ChannelID))
}

// sendChunks posts text in order as parts within the message length limit.
// It stops at the first failed part.
func (r *Router) sendChunks(ctx context.Context, channelID, text string) int {
	parts := SplitMessage(text, r.cfg.MaxMessageLength)
	sent := 0
	for _, part := range parts {
		if _, err := r.platform.SendMessage(ctx, channelID, part); err != nil {
			observability.RecordPlatformError("send")
			logger := tracing.LoggerFromContext(ctx, r.logger)
			logger.Error().
				Err(err).
				Int("part", sent+1).
				Int("parts", len(parts)).
				Msg("Failed to send reply part")
			break
		}
		sent++
	}
	observability.RecordChunksSent(sent)
	return sent
}

func (r *Router) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, r.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// HandleChannelDeleted reconciles the registry when a channel disappears
// without the close command, e.g. deleted by a moderator.
func (r *Router) HandleChannelDeleted(ctx context.Context, channelID string) {
	sess, ok := r.registry.DeleteChannel(channelID)
	if !ok {
		return
	}
	r.retire(ctx, sess, CloseReasonChannelDeleted, "system")
	r.logger.Info().Str("channel_id", channelID).Msg("Session removed for deleted channel")
}

// ExpireSession finishes a session the sweeper already removed from the
// registry and deletes its channel.
func (r *Router) ExpireSession(ctx context.Context, sess session.Session) {
	r.retire(ctx, sess, CloseReasonExpired, "system")

	if err := r.platform.DeleteChannel(ctx, sess.ChannelID); err != nil {
		observability.RecordPlatformError("delete_channel")
		r.logger.Warn().Err(err).Str("channel_id", sess.ChannelID).Msg("Failed to delete expired channel")
	}
}

// retire releases everything tied to a session that is no longer in the
// registry: its lane, its transcript, and the accounting.
func (r *Router) retire(ctx context.Context, sess session.Session, reason, actor string) {
	r.queue.RemoveLane(laneFor(sess.ChannelID))

	if r.dispose != nil && sess.ConversationID != "" {
		if err := r.dispose(ctx, sess.ConversationID); err != nil {
			r.logger.Warn().Err(err).Str("conversation_id", sess.ConversationID).Msg("Failed to dispose transcript")
		}
	}

	observability.RecordSessionClosed(reason)
	observability.RecordSessionAudit(ctx, "session_closed", actor, "success", map[string]interface{}{
		"guild_id":        sess.GuildID,
		"channel_id":      sess.ChannelID,
		"conversation_id": sess.ConversationID,
		"reason":          reason,
	})
}

func laneFor(channelID string) string {
	return "channel:" + channelID
}
