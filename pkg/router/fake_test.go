package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harun/sidebar/pkg/backend"
)

type fakeChannel struct {
	guildID  string
	name     string
	parentID string
	category bool
}

type sentMessage struct {
	channelID string
	text      string
	temporary bool
}

// fakePlatform keeps guild state in memory.
type fakePlatform struct {
	mu       sync.Mutex
	seq      int
	channels map[string]*fakeChannel
	sent     []sentMessage
	deleted  []string
	sendErr  error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{channels: make(map[string]*fakeChannel)}
}

func (p *fakePlatform) nextID() string {
	p.seq++
	return fmt.Sprintf("id%d", p.seq)
}

// addChannel registers an existing channel, optionally under a new category.
func (p *fakePlatform) addChannel(guildID, name, categoryName string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	parent := ""
	if categoryName != "" {
		parent = p.nextID()
		p.channels[parent] = &fakeChannel{guildID: guildID, name: categoryName, category: true}
	}
	id := p.nextID()
	p.channels[id] = &fakeChannel{guildID: guildID, name: name, parentID: parent}
	return id
}

func (p *fakePlatform) FindCategory(_ context.Context, guildID, name string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.channels {
		if ch.category && ch.guildID == guildID && ch.name == name {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (p *fakePlatform) CreateCategory(_ context.Context, guildID, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID()
	p.channels[id] = &fakeChannel{guildID: guildID, name: name, category: true}
	return id, nil
}

func (p *fakePlatform) ChannelNamesInCategory(_ context.Context, guildID, categoryID string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var names []string
	for _, ch := range p.channels {
		if ch.guildID == guildID && ch.parentID == categoryID {
			names = append(names, ch.name)
		}
	}
	return names, nil
}

func (p *fakePlatform) CreateTextChannel(_ context.Context, guildID, categoryID, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID()
	p.channels[id] = &fakeChannel{guildID: guildID, name: name, parentID: categoryID}
	return id, nil
}

func (p *fakePlatform) DeleteChannel(_ context.Context, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.channels[channelID]; !ok {
		return fmt.Errorf("unknown channel %s", channelID)
	}
	delete(p.channels, channelID)
	p.deleted = append(p.deleted, channelID)
	return nil
}

func (p *fakePlatform) ChannelCategoryName(_ context.Context, channelID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.channels[channelID]
	if !ok {
		return "", fmt.Errorf("unknown channel %s", channelID)
	}
	if parent, ok := p.channels[ch.parentID]; ok {
		return parent.name, nil
	}
	return "", nil
}

func (p *fakePlatform) SendMessage(_ context.Context, channelID, text string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return "", p.sendErr
	}
	p.sent = append(p.sent, sentMessage{channelID: channelID, text: text})
	return p.nextID(), nil
}

func (p *fakePlatform) SendTemporary(_ context.Context, channelID, text string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, sentMessage{channelID: channelID, text: text, temporary: true})
	return nil
}

func (p *fakePlatform) Typing(context.Context, string) error {
	return nil
}

// messages returns the texts sent to a channel in order.
func (p *fakePlatform) messages(channelID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.sent {
		if m.channelID == channelID {
			out = append(out, m.text)
		}
	}
	return out
}

func (p *fakePlatform) temporaries() []sentMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []sentMessage
	for _, m := range p.sent {
		if m.temporary {
			out = append(out, m)
		}
	}
	return out
}

func (p *fakePlatform) channelIn(categoryName string) (string, string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.channels {
		if parent, ok := p.channels[ch.parentID]; ok && parent.name == categoryName {
			return id, ch.name, true
		}
	}
	return "", "", false
}

func (p *fakePlatform) exists(channelID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.channels[channelID]
	return ok
}

// fakeResponder answers through fn and counts calls.
type fakeResponder struct {
	mu    sync.Mutex
	calls []backend.Request
	fn    func(ctx context.Context, req backend.Request) (string, error)
}

func (f *fakeResponder) Respond(ctx context.Context, req backend.Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.fn == nil {
		return "reply to " + req.Text, nil
	}
	return f.fn(ctx, req)
}

func (f *fakeResponder) Name() string {
	return backend.StrategyConversation
}

func (f *fakeResponder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
