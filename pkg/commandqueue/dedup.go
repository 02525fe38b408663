package commandqueue

import (
	"sync"
	"time"
)

// DefaultDedupTTL is how long a request id is remembered.
const DefaultDedupTTL = 5 * time.Minute

// dedupCache remembers request ids for a bounded time. Chat gateways may
// redeliver events after a resume; a message id is processed once.
// Expired ids are pruned during Claim at most once per ttl.
type dedupCache struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	ttl       time.Duration
	lastPrune time.Time
	now       func() time.Time
}

func newDedupCache(ttl time.Duration) *dedupCache {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &dedupCache{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Claim records requestID and reports whether this is its first sighting
// within the ttl.
func (dc *dedupCache) Claim(requestID string) bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	now := dc.now()
	if now.Sub(dc.lastPrune) >= dc.ttl {
		dc.pruneLocked(now)
	}

	if at, ok := dc.seen[requestID]; ok && now.Sub(at) <= dc.ttl {
		return false
	}
	dc.seen[requestID] = now
	return true
}

func (dc *dedupCache) pruneLocked(now time.Time) {
	for id, at := range dc.seen {
		if now.Sub(at) > dc.ttl {
			delete(dc.seen, id)
		}
	}
	dc.lastPrune = now
}

// Size returns the number of remembered request ids.
func (dc *dedupCache) Size() int {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return len(dc.seen)
}
