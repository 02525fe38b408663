package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCreateGet(t *testing.T) {
	reg := NewRegistry()

	sess := reg.Create("g1", "c1", "u1", Metadata{
		ChannelName:     "curious-alex",
		OwnerName:       "alice",
		OriginChannelID: "general",
		ConversationID:  "conv-1",
		NoticeMessageID: "m1",
	})

	assert.Equal(t, "g1", sess.GuildID)
	assert.Equal(t, "c1", sess.ChannelID)
	assert.Equal(t, "u1", sess.OwnerID)
	assert.False(t, sess.CreatedAt.IsZero())

	got, ok := reg.Get("g1", "c1")
	require.True(t, ok)
	assert.Equal(t, sess, got)
	assert.Equal(t, 1, reg.Len())

	_, ok = reg.Get("g1", "other")
	assert.False(t, ok)
	_, ok = reg.Get("other", "c1")
	assert.False(t, ok)
}

func TestRegistryGetReturnsSnapshot(t *testing.T) {
	reg := NewRegistry()
	reg.Create("g1", "c1", "u1", Metadata{ChannelName: "wise-jordan"})

	got, ok := reg.Get("g1", "c1")
	require.True(t, ok)
	got.ChannelName = "mutated"

	again, _ := reg.Get("g1", "c1")
	assert.Equal(t, "wise-jordan", again.ChannelName)
}

func TestRegistryCreateReplacesAndCancels(t *testing.T) {
	reg := NewRegistry()
	reg.Create("g1", "c1", "u1", Metadata{ConversationID: "first"})

	ctx, ok := reg.Context("g1", "c1")
	require.True(t, ok)

	reg.Create("g1", "c1", "u2", Metadata{ConversationID: "second"})

	assert.Error(t, ctx.Err(), "previous session context should be cancelled")
	got, ok := reg.Get("g1", "c1")
	require.True(t, ok)
	assert.Equal(t, "second", got.ConversationID)
	assert.Equal(t, "u2", got.OwnerID)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryDelete(t *testing.T) {
	reg := NewRegistry()
	reg.Create("g1", "c1", "u1", Metadata{})
	ctx, _ := reg.Context("g1", "c1")

	sess, ok := reg.Delete("g1", "c1")
	require.True(t, ok)
	assert.Equal(t, "c1", sess.ChannelID)
	assert.Error(t, ctx.Err())

	_, ok = reg.Get("g1", "c1")
	assert.False(t, ok)
	assert.Equal(t, 0, reg.Len())

	t.Run("second delete is a no-op", func(t *testing.T) {
		_, ok := reg.Delete("g1", "c1")
		assert.False(t, ok)
	})

	t.Run("unknown guild is a no-op", func(t *testing.T) {
		_, ok := reg.Delete("nope", "c1")
		assert.False(t, ok)
	})
}

func TestRegistryDeleteChannel(t *testing.T) {
	reg := NewRegistry()
	reg.Create("g1", "c1", "u1", Metadata{})
	reg.Create("g2", "c2", "u1", Metadata{})

	sess, ok := reg.DeleteChannel("c2")
	require.True(t, ok)
	assert.Equal(t, "g2", sess.GuildID)

	_, ok = reg.DeleteChannel("c2")
	assert.False(t, ok)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryTouchAndExpired(t *testing.T) {
	reg := NewRegistry()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	now := base
	reg.now = func() time.Time { return now }

	reg.Create("g1", "idle", "u1", Metadata{})
	reg.Create("g1", "busy", "u1", Metadata{})

	now = base.Add(20 * time.Minute)
	reg.Touch("g1", "busy")

	expired := reg.Expired(base.Add(25*time.Minute), 10*time.Minute)
	require.Len(t, expired, 1)
	assert.Equal(t, "idle", expired[0].ChannelID)

	assert.Nil(t, reg.Expired(base.Add(time.Hour), 0), "zero ttl disables expiry")
}

// A channel has a session iff it was opened and not closed since.
func TestRegistryOpenCloseSequence(t *testing.T) {
	reg := NewRegistry()
	ops := []struct {
		open    bool
		channel string
	}{
		{true, "a"}, {true, "b"}, {false, "a"}, {true, "a"}, {false, "b"}, {false, "b"}, {true, "c"},
	}

	want := map[string]bool{}
	for _, op := range ops {
		if op.open {
			reg.Create("g", op.channel, "u", Metadata{})
		} else {
			reg.Delete("g", op.channel)
		}
		want[op.channel] = op.open
	}

	for channel, open := range want {
		_, ok := reg.Get("g", channel)
		assert.Equal(t, open, ok, "channel %s", channel)
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			channel := fmt.Sprintf("c%d", i%10)
			reg.Create("g", channel, "u", Metadata{})
			reg.Get("g", channel)
			reg.Touch("g", channel)
			if i%3 == 0 {
				reg.Delete("g", channel)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, reg.Len(), 10)
}
