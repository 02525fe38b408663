package commandqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupCache_Claim(t *testing.T) {
	cache := newDedupCache(time.Minute)
	now := time.Unix(1000, 0)
	cache.now = func() time.Time { return now }

	assert.True(t, cache.Claim("msg-1"))
	assert.False(t, cache.Claim("msg-1"))
	assert.True(t, cache.Claim("msg-2"))
	assert.Equal(t, 2, cache.Size())

	now = now.Add(2 * time.Minute)
	assert.True(t, cache.Claim("msg-1"), "expired ids can be claimed again")
	assert.Equal(t, 1, cache.Size(), "msg-2 pruned once the ttl elapsed")
}

func TestDedupCache_DefaultTTL(t *testing.T) {
	assert.Equal(t, DefaultDedupTTL, newDedupCache(0).ttl)
}
