package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harun/sidebar/internal/config"
	"github.com/harun/sidebar/internal/discord"
	"github.com/harun/sidebar/internal/logger"
	"github.com/harun/sidebar/internal/observability"
	"github.com/harun/sidebar/internal/prompt"
	"github.com/harun/sidebar/internal/tracing"
	"github.com/harun/sidebar/pkg/backend"
	"github.com/harun/sidebar/pkg/commandqueue"
	"github.com/harun/sidebar/pkg/router"
	"github.com/harun/sidebar/pkg/session"
)

// Bot is the chat connection the daemon drives.
type Bot interface {
	router.Platform
	Start() error
	Stop() error
	SetMessageHandler(h discord.MessageHandler)
	SetChannelHandler(h discord.ChannelHandler)
}

var newBot = func(cfg *config.DiscordConfig, log *logger.Logger) (Bot, error) {
	return discord.New(cfg, log)
}

var newProviderFactory = func() backend.ProviderCreator {
	return &backend.ProviderFactory{}
}

// Daemon represents the sidebar bot service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	// Core modules
	registry    *session.Registry
	transcripts *session.TranscriptStore
	archiver    *session.Archiver
	sweeper     *session.Sweeper
	queue       *commandqueue.CommandQueue
	prompt      *prompt.Template
	responder   backend.Responder
	router      *router.Router

	// Services
	bot           Bot
	promptWatcher *prompt.Watcher
	httpServer    *HTTPServer

	// Internal
	eventLoop *EventLoop
	lifecycle *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// Status is a snapshot of the daemon state
type Status struct {
	Running        bool
	Uptime         time.Duration
	StartTime      time.Time
	ActiveSessions int
	Strategy       string
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	observability.EnsureRegistered()

	d := &Daemon{
		config: cfg,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry("sidebar", cfg.Tracing.SampleRatio); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without it")
		} else {
			d.tracingEnabled = true
			log.Info().Msg("Tracing initialized")
		}
	}

	if err := d.initializeCoreModules(); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	if err := d.initializeServices(); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	d.eventLoop = NewEventLoop(d)
	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// abort releases what a failed New already acquired.
func (d *Daemon) abort() {
	d.cancel()
	if d.queue != nil {
		_ = d.queue.Close()
	}
	if d.tracingEnabled {
		_ = tracing.ShutdownOpenTelemetry(context.Background())
		d.tracingEnabled = false
	}
}

func (d *Daemon) initializeCoreModules() error {
	cfg := d.config
	zl := d.logger.GetZerolog()

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if cfg.Logging.AuditFile != "" {
		if err := observability.InitAuditLogger(cfg.Logging.AuditFile); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to initialize audit log")
		}
	}

	d.registry = session.NewRegistry()

	transcripts, err := session.NewTranscriptStore(cfg.Sessions.TranscriptDir)
	if err != nil {
		return fmt.Errorf("failed to open transcript store: %w", err)
	}
	d.transcripts = transcripts

	if cfg.Sessions.ArchiveOnClose {
		d.archiver, err = session.NewArchiver(transcripts, cfg.Sessions.ArchiveRetention())
		if err != nil {
			return fmt.Errorf("failed to create transcript archiver: %w", err)
		}
	}

	// Sessions do not survive a restart, so neither do their transcripts.
	if removed, err := transcripts.Purge(d.ctx, nil); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to purge stale transcripts")
	} else if removed > 0 {
		d.logger.Info().Int("removed", removed).Msg("Purged transcripts from a previous run")
	}

	d.prompt, err = prompt.Load(cfg.AI.PromptFile)
	if err != nil {
		return fmt.Errorf("failed to load prompt template: %w", err)
	}

	d.responder, err = backend.New(d.ctx, backend.Config{
		Strategy: cfg.AI.Strategy,
		Profile: backend.ProviderProfile{
			Provider:     cfg.AI.Provider,
			APIKey:       cfg.AI.APIKey,
			BaseURL:      cfg.AI.BaseURL,
			EnableSearch: cfg.AI.EnableSearch,
		},
		Model:        cfg.AI.Model,
		Temperature:  cfg.AI.Temperature,
		MaxTokens:    cfg.AI.MaxTokens,
		MaxRetries:   cfg.AI.MaxRetries,
		HistoryLimit: cfg.AI.HistoryLimit,
	}, backend.Deps{
		Factory:     newProviderFactory(),
		Prompt:      d.prompt,
		Transcripts: transcripts,
		Logger:      zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create responder: %w", err)
	}

	d.queue = commandqueue.New()

	d.logger.Info().
		Str("strategy", d.responder.Name()).
		Str("provider", cfg.AI.Provider).
		Msg("Core modules initialized")

	return nil
}

func (d *Daemon) initializeServices() error {
	cfg := d.config

	bot, err := newBot(&cfg.Discord, d.logger)
	if err != nil {
		return fmt.Errorf("failed to create discord bot: %w", err)
	}
	d.bot = bot

	d.router, err = router.New(router.Config{
		Prefix:           cfg.Discord.Prefix,
		CategoryName:     cfg.Discord.CategoryName,
		NamePool:         cfg.Discord.NamePool,
		MaxMessageLength: cfg.Discord.MaxMessageLength,
		Timeout:          cfg.AI.CallTimeout(),
		UsageTTL:         cfg.Discord.UsageNoticeTTL(),
	}, router.Deps{
		Platform:          bot,
		Registry:          d.registry,
		Responder:         d.responder,
		Queue:             d.queue,
		DisposeTranscript: d.disposeTranscript,
		Logger:            d.logger.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to create router: %w", err)
	}

	bot.SetMessageHandler(d.router)
	bot.SetChannelHandler(d.router)

	d.sweeper = session.NewSweeper(d.registry, session.SweeperConfig{
		IdleTTL:  cfg.Sessions.IdleTimeout(),
		Schedule: cfg.Sessions.SweepSchedule,
		OnExpire: d.router.ExpireSession,
	})

	if d.prompt.Path() != "" {
		d.promptWatcher, err = prompt.NewWatcher(d.prompt, prompt.WatcherConfig{
			OnReload: func(err error) {
				if err != nil {
					d.logger.Warn().Err(err).Msg("Prompt reload failed, keeping previous template")
					return
				}
				d.logger.Info().Str("path", d.prompt.Path()).Msg("Prompt template reloaded")
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create prompt watcher: %w", err)
		}
	}

	if cfg.Metrics.Enabled {
		d.httpServer = NewHTTPServer(cfg.Metrics.Addr, d)
	}

	return nil
}

// disposeTranscript archives or deletes the history of a closed session.
func (d *Daemon) disposeTranscript(ctx context.Context, conversationID string) error {
	if d.archiver != nil {
		return d.archiver.Archive(ctx, conversationID)
	}
	return d.transcripts.Delete(ctx, conversationID)
}

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := d.logger.GetZerolog().With().Str("trace_id", traceID).Logger()
	logger.Info().Msg("Starting sidebar daemon")

	if err := d.lifecycle.Start(); err != nil {
		d.markStopped()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if d.httpServer != nil {
		if err := d.httpServer.Start(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start status server")
		} else {
			logger.Info().Str("addr", d.httpServer.Addr()).Msg("Status server started")
		}
	}

	if d.promptWatcher != nil {
		if err := d.promptWatcher.Start(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start prompt watcher")
		}
	}

	if err := d.sweeper.Start(); err != nil {
		logger.Warn().Err(err).Msg("Failed to start session sweeper")
	} else if d.sweeper.IsRunning() {
		logger.Info().Dur("idle_timeout", d.config.Sessions.IdleTimeout()).Msg("Session sweeper started")
	}

	if err := d.bot.Start(); err != nil {
		_ = d.lifecycle.Stop()
		d.markStopped()
		return fmt.Errorf("failed to start discord bot: %w", err)
	}
	logger.Info().Msg("Discord bot started")

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.eventLoop.Run(d.ctx)
	}()

	observability.RecordConfigAudit(d.ctx, "daemon_started", "system", map[string]interface{}{
		"strategy": d.responder.Name(),
		"provider": d.config.AI.Provider,
	})

	logger.Info().Msg("Daemon started successfully")

	return nil
}

func (d *Daemon) markStopped() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// Stop stops the daemon service gracefully
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := d.logger.GetZerolog().With().Str("trace_id", traceID).Logger()
	logger.Info().Msg("Stopping sidebar daemon")

	// Stop taking messages first. Replies still running see their context cancelled.
	if err := d.bot.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop discord bot")
	}

	d.eventLoop.HandleShutdown()

	if err := d.queue.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close command queue")
	}

	if d.sweeper.IsRunning() {
		if err := d.sweeper.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop session sweeper")
		}
	}

	if d.promptWatcher != nil {
		if err := d.promptWatcher.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop prompt watcher")
		}
	}

	if d.httpServer != nil {
		if err := d.httpServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop status server")
		}
	}

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("All goroutines stopped")
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	if d.tracingEnabled {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := tracing.ShutdownOpenTelemetry(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		cancel()
		d.tracingEnabled = false
	}

	if err := observability.GetAuditLogger().Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close audit logger")
	}

	logger.Info().Msg("Daemon stopped successfully")

	return nil
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running:        d.running,
		ActiveSessions: d.registry.Len(),
		Strategy:       d.responder.Name(),
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

// Wait blocks until SIGINT or SIGTERM, then stops the daemon
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		d.logger.Info().Str("signal", sig.String()).Msg("Received signal")
	case <-d.ctx.Done():
		return
	}

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetLogger returns the daemon logger
func (d *Daemon) GetLogger() *logger.Logger {
	return d.logger
}

// GetQueue returns the command queue
func (d *Daemon) GetQueue() *commandqueue.CommandQueue {
	return d.queue
}

// GetRegistry returns the session registry
func (d *Daemon) GetRegistry() *session.Registry {
	return d.registry
}

// GetRouter returns the message router
func (d *Daemon) GetRouter() *router.Router {
	return d.router
}
