package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harun/sidebar/internal/discord"
)

type fakeChannel struct {
	guildID  string
	name     string
	parentID string
	category bool
}

// fakeBot is an in-memory Bot. It records every message it is asked to send.
type fakeBot struct {
	mu       sync.Mutex
	nextID   int
	channels map[string]*fakeChannel
	sent     map[string][]string
	started  bool
	stopped  bool
	startErr error

	messages discord.MessageHandler
	deleted  discord.ChannelHandler
}

func newFakeBot() *fakeBot {
	return &fakeBot{
		channels: make(map[string]*fakeChannel),
		sent:     make(map[string][]string),
	}
}

func (b *fakeBot) id() string {
	b.nextID++
	return fmt.Sprintf("id-%d", b.nextID)
}

func (b *fakeBot) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.startErr != nil {
		return b.startErr
	}
	b.started = true
	return nil
}

func (b *fakeBot) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	return nil
}

func (b *fakeBot) SetMessageHandler(h discord.MessageHandler) { b.messages = h }
func (b *fakeBot) SetChannelHandler(h discord.ChannelHandler) { b.deleted = h }

func (b *fakeBot) addChannel(guildID, name string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.id()
	b.channels[id] = &fakeChannel{guildID: guildID, name: name}
	return id
}

func (b *fakeBot) channelsIn(parentName string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var ids []string
	for id, ch := range b.channels {
		if parent, ok := b.channels[ch.parentID]; ok && parent.name == parentName {
			ids = append(ids, id)
		}
	}
	return ids
}

func (b *fakeBot) sentTo(channelID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.sent[channelID]...)
}

func (b *fakeBot) FindCategory(_ context.Context, guildID, name string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.channels {
		if ch.category && ch.guildID == guildID && ch.name == name {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (b *fakeBot) CreateCategory(_ context.Context, guildID, name string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.id()
	b.channels[id] = &fakeChannel{guildID: guildID, name: name, category: true}
	return id, nil
}

func (b *fakeBot) ChannelNamesInCategory(_ context.Context, guildID, categoryID string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var names []string
	for _, ch := range b.channels {
		if ch.guildID == guildID && ch.parentID == categoryID {
			names = append(names, ch.name)
		}
	}
	return names, nil
}

func (b *fakeBot) CreateTextChannel(_ context.Context, guildID, categoryID, name string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.id()
	b.channels[id] = &fakeChannel{guildID: guildID, name: name, parentID: categoryID}
	return id, nil
}

func (b *fakeBot) DeleteChannel(_ context.Context, channelID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.channels, channelID)
	return nil
}

func (b *fakeBot) ChannelCategoryName(_ context.Context, channelID string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.channels[channelID]
	if !ok {
		return "", fmt.Errorf("unknown channel %s", channelID)
	}
	if parent, ok := b.channels[ch.parentID]; ok {
		return parent.name, nil
	}
	return "", nil
}

func (b *fakeBot) SendMessage(_ context.Context, channelID, text string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent[channelID] = append(b.sent[channelID], text)
	return b.id(), nil
}

func (b *fakeBot) SendTemporary(ctx context.Context, channelID, text string, _ time.Duration) error {
	_, err := b.SendMessage(ctx, channelID, text)
	return err
}

func (b *fakeBot) Typing(context.Context, string) error { return nil }
