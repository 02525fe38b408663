package session

import (
	"context"
	"sync"
	"time"

	"github.com/harun/sidebar/internal/observability"
	"github.com/rs/zerolog/log"
)

// Session binds one ephemeral channel to one ongoing AI conversation.
type Session struct {
	GuildID         string    `json:"guild_id"`
	ChannelID       string    `json:"channel_id"`
	ChannelName     string    `json:"channel_name"`
	OwnerID         string    `json:"owner_id"`
	OwnerName       string    `json:"owner_name"`
	OriginChannelID string    `json:"origin_channel_id"`
	ConversationID  string    `json:"conversation_id,omitempty"`
	NoticeMessageID string    `json:"notice_message_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	LastActive      time.Time `json:"last_active"`
}

// Metadata carries the optional attributes supplied when a session is opened.
type Metadata struct {
	ChannelName     string
	OwnerName       string
	OriginChannelID string
	ConversationID  string
	NoticeMessageID string
}

type entry struct {
	session Session
	ctx     context.Context
	cancel  context.CancelFunc
}

// Registry is the in-memory store of active sessions keyed by guild and channel.
// Nothing is persisted; a restart forgets every session.
type Registry struct {
	mu     sync.RWMutex
	guilds map[string]map[string]*entry
	now    func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	observability.EnsureRegistered()

	return &Registry{
		guilds: make(map[string]map[string]*entry),
		now:    time.Now,
	}
}

// Create inserts a session for (guild, channel). An existing entry for the same
// channel is replaced and its lifetime context cancelled.
func (r *Registry) Create(guildID, channelID, ownerID string, meta Metadata) Session {
	now := r.now()
	sess := Session{
		GuildID:         guildID,
		ChannelID:       channelID,
		ChannelName:     meta.ChannelName,
		OwnerID:         ownerID,
		OwnerName:       meta.OwnerName,
		OriginChannelID: meta.OriginChannelID,
		ConversationID:  meta.ConversationID,
		NoticeMessageID: meta.NoticeMessageID,
		CreatedAt:       now,
		LastActive:      now,
	}

	ctx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	channels, ok := r.guilds[guildID]
	if !ok {
		channels = make(map[string]*entry)
		r.guilds[guildID] = channels
	}
	if prev, exists := channels[channelID]; exists {
		prev.cancel()
		log.Warn().
			Str("guild_id", guildID).
			Str("channel_id", channelID).
			Msg("Replacing existing session for channel")
	}
	channels[channelID] = &entry{session: sess, ctx: ctx, cancel: cancel}
	count := r.countLocked()
	r.mu.Unlock()

	observability.SetActiveSessions(count)
	return sess
}

// Get returns a snapshot of the session for (guild, channel).
func (r *Registry) Get(guildID, channelID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.lookupLocked(guildID, channelID)
	if !ok {
		return Session{}, false
	}
	return e.session, true
}

// Context returns the lifetime context of the session. It is cancelled when the
// session is deleted, replaced or expired.
func (r *Registry) Context(guildID, channelID string) (context.Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.lookupLocked(guildID, channelID)
	if !ok {
		return nil, false
	}
	return e.ctx, true
}

// Touch records activity on a session.
func (r *Registry) Touch(guildID, channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.lookupLocked(guildID, channelID); ok {
		e.session.LastActive = r.now()
	}
}

// Delete removes the session for (guild, channel) and reports whether one existed.
func (r *Registry) Delete(guildID, channelID string) (Session, bool) {
	r.mu.Lock()
	channels, ok := r.guilds[guildID]
	if !ok {
		r.mu.Unlock()
		return Session{}, false
	}
	e, ok := channels[channelID]
	if !ok {
		r.mu.Unlock()
		return Session{}, false
	}
	delete(channels, channelID)
	if len(channels) == 0 {
		delete(r.guilds, guildID)
	}
	count := r.countLocked()
	r.mu.Unlock()

	e.cancel()
	observability.SetActiveSessions(count)
	return e.session, true
}

// DeleteChannel removes the session bound to channelID in whichever guild holds
// it. Used when the platform reports a channel deleted out-of-band.
func (r *Registry) DeleteChannel(channelID string) (Session, bool) {
	r.mu.RLock()
	guildID := ""
	for gid, channels := range r.guilds {
		if _, ok := channels[channelID]; ok {
			guildID = gid
			break
		}
	}
	r.mu.RUnlock()

	if guildID == "" {
		return Session{}, false
	}
	return r.Delete(guildID, channelID)
}

// Expired returns snapshots of sessions idle for longer than ttl.
func (r *Registry) Expired(now time.Time, ttl time.Duration) []Session {
	if ttl <= 0 {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var expired []Session
	for _, channels := range r.guilds {
		for _, e := range channels {
			if now.Sub(e.session.LastActive) > ttl {
				expired = append(expired, e.session)
			}
		}
	}
	return expired
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countLocked()
}

func (r *Registry) lookupLocked(guildID, channelID string) (*entry, bool) {
	channels, ok := r.guilds[guildID]
	if !ok {
		return nil, false
	}
	e, ok := channels[channelID]
	return e, ok
}

func (r *Registry) countLocked() int {
	n := 0
	for _, channels := range r.guilds {
		n += len(channels)
	}
	return n
}

// deleteIfIdle removes the session only if it has seen no activity since cutoff.
func (r *Registry) deleteIfIdle(guildID, channelID string, cutoff time.Time) (Session, bool) {
	r.mu.Lock()
	e, ok := r.lookupLocked(guildID, channelID)
	if !ok || e.session.LastActive.After(cutoff) {
		r.mu.Unlock()
		return Session{}, false
	}
	channels := r.guilds[guildID]
	delete(channels, channelID)
	if len(channels) == 0 {
		delete(r.guilds, guildID)
	}
	count := r.countLocked()
	r.mu.Unlock()

	e.cancel()
	observability.SetActiveSessions(count)
	return e.session, true
}
