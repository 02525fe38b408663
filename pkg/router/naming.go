package router

import (
	"math/rand/v2"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// DefaultNamePool is the set of channel names a new AI channel is drawn from.
var DefaultNamePool = []string{"curious-alex", "thoughtful-sam", "helpful-taylor", "wise-jordan"}

const (
	suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	suffixLength   = 4
	maxNameTries   = 8
)

// namer picks channel names. pick and suffix are swappable for tests.
type namer struct {
	pool   []string
	pick   func(n int) int
	suffix func() (string, error)
}

func newNamer(pool []string) *namer {
	if len(pool) == 0 {
		pool = DefaultNamePool
	}
	return &namer{
		pool: pool,
		pick: rand.IntN,
		suffix: func() (string, error) {
			return gonanoid.Generate(suffixAlphabet, suffixLength)
		},
	}
}

// Next draws a name uniformly from the pool. If a channel with that name
// already exists, a short random suffix is appended until the name is free.
func (n *namer) Next(existing []string) (string, error) {
	taken := make(map[string]bool, len(existing))
	for _, name := range existing {
		taken[strings.ToLower(name)] = true
	}

	base := n.pool[n.pick(len(n.pool))]
	if !taken[base] {
		return base, nil
	}

	var lastErr error
	for i := 0; i < maxNameTries; i++ {
		suffix, err := n.suffix()
		if err != nil {
			lastErr = err
			continue
		}
		candidate := base + "-" + suffix
		if !taken[candidate] {
			return candidate, nil
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	// Every suffix collided; fall back to the base name and let the
	// platform hold duplicates.
	return base, nil
}
