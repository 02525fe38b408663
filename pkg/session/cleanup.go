package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultSweepSchedule is how often idle sessions are collected.
	DefaultSweepSchedule = "@every 5m"
)

// ExpireFunc is called for every session removed by the sweeper. The session is
// already gone from the registry when it runs.
type ExpireFunc func(ctx context.Context, s Session)

// SweeperConfig configures idle-session expiry.
type SweeperConfig struct {
	// IdleTTL is the idle time after which a session expires. Zero disables expiry.
	IdleTTL  time.Duration
	Schedule string
	OnExpire ExpireFunc
}

// Sweeper expires sessions that have been idle longer than the configured TTL.
type Sweeper struct {
	registry *Registry
	ttl      time.Duration
	schedule string
	onExpire ExpireFunc
	now      func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewSweeper creates a sweeper for registry.
func NewSweeper(registry *Registry, cfg SweeperConfig) *Sweeper {
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	return &Sweeper{
		registry: registry,
		ttl:      cfg.IdleTTL,
		schedule: schedule,
		onExpire: cfg.OnExpire,
		now:      time.Now,
	}
}

// Start schedules periodic sweeps. It is a no-op when expiry is disabled.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sweeper is already running")
	}
	if s.ttl <= 0 {
		log.Info().Msg("Session expiry disabled")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() {
		s.Sweep(context.Background())
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	c.Start()

	s.cron = c
	s.running = true

	log.Info().
		Dur("idle_ttl", s.ttl).
		Str("schedule", s.schedule).
		Msg("Session sweeper started")

	return nil
}

// Stop stops scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	<-s.cron.Stop().Done()
	s.cron = nil
	s.running = false

	log.Info().Msg("Session sweeper stopped")
	return nil
}

// IsRunning reports whether sweeps are scheduled.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Sweep expires idle sessions once and returns how many were removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	if s.ttl <= 0 {
		return 0
	}

	now := s.now()
	cutoff := now.Add(-s.ttl)
	removed := 0

	for _, candidate := range s.registry.Expired(now, s.ttl) {
		sess, ok := s.registry.deleteIfIdle(candidate.GuildID, candidate.ChannelID, cutoff)
		if !ok {
			continue
		}
		removed++

		log.Info().
			Str("guild_id", sess.GuildID).
			Str("channel_id", sess.ChannelID).
			Dur("idle", now.Sub(sess.LastActive)).
			Msg("Session expired")

		if s.onExpire != nil {
			s.onExpire(ctx, sess)
		}
	}

	return removed
}
