package daemon

import (
	"context"
	"time"

	"github.com/harun/sidebar/internal/observability"
)

const (
	maintenanceInterval = 30 * time.Second
	shutdownDrainWait   = 5 * time.Second
)

// EventLoop handles the main event processing loop
type EventLoop struct {
	daemon   *Daemon
	interval time.Duration
}

// NewEventLoop creates a new event loop
func NewEventLoop(d *Daemon) *EventLoop {
	return &EventLoop{
		daemon:   d,
		interval: maintenanceInterval,
	}
}

// Run runs the event loop with periodic maintenance tasks
func (e *EventLoop) Run(ctx context.Context) {
	e.daemon.logger.Info().Msg("Event loop started")

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.daemon.logger.Info().Msg("Event loop stopping")
			return

		case <-ticker.C:
			e.processTasks(ctx)
		}
	}
}

// processTasks processes periodic maintenance tasks
func (e *EventLoop) processTasks(ctx context.Context) {
	observability.SetActiveSessions(e.daemon.registry.Len())

	for lane, stats := range e.daemon.queue.Stats() {
		observability.SetQueueSize(lane, stats.Queued)
		if stats.Queued > 0 || stats.Running > 0 {
			e.daemon.logger.Debug().
				Str("lane", lane).
				Int("queued", stats.Queued).
				Int("running", stats.Running).
				Msg("Queue stats")
		}
	}

	if e.daemon.archiver != nil {
		if _, err := e.daemon.archiver.Prune(ctx); err != nil {
			e.daemon.logger.Warn().Err(err).Msg("Archive prune failed")
		}
	}
}

// HandleShutdown waits briefly for in-flight replies to finish
func (e *EventLoop) HandleShutdown() {
	e.daemon.logger.Info().Msg("Handling graceful shutdown")

	if !e.daemon.queue.WaitForActive(shutdownDrainWait) {
		e.daemon.logger.Warn().Msg("Timed out waiting for active replies")
		return
	}

	e.daemon.logger.Info().Msg("All active tasks completed")
}
