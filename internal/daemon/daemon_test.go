package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harun/sidebar/internal/config"
	"github.com/harun/sidebar/internal/logger"
	"github.com/harun/sidebar/pkg/backend"
	"github.com/harun/sidebar/pkg/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	cfg.Discord.Token = "test.discord.token"
	cfg.AI.Strategy = backend.StrategyEcho
	cfg.Sessions.TranscriptDir = filepath.Join(dir, "transcripts")
	cfg.Logging.AuditFile = filepath.Join(dir, "audit.log")
	return cfg
}

// createTestDaemon creates a daemon wired to an in-memory bot
func createTestDaemon(t *testing.T, cfg *config.Config) (*Daemon, *fakeBot) {
	t.Helper()

	bot := newFakeBot()
	orig := newBot
	newBot = func(*config.DiscordConfig, *logger.Logger) (Bot, error) { return bot, nil }
	t.Cleanup(func() { newBot = orig })

	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	d, err := New(cfg, log)
	require.NoError(t, err)
	return d, bot
}

func TestNew(t *testing.T) {
	d, bot := createTestDaemon(t, testConfig(t))

	assert.NotNil(t, d.queue)
	assert.NotNil(t, d.registry)
	assert.NotNil(t, d.transcripts)
	assert.NotNil(t, d.sweeper)
	assert.NotNil(t, d.eventLoop)
	assert.NotNil(t, d.router)
	assert.NotNil(t, d.lifecycle)
	assert.Nil(t, d.archiver)
	assert.Nil(t, d.promptWatcher)
	assert.Nil(t, d.httpServer)
	assert.NotNil(t, bot.messages, "router should receive messages")
	assert.NotNil(t, bot.deleted, "router should receive channel deletions")
	assert.Equal(t, backend.StrategyEcho, d.responder.Name())
}

func TestNewRejectsMissingToken(t *testing.T) {
	cfg := testConfig(t)
	cfg.Discord.Token = "your_discord_bot_token_here"

	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)
	defer log.Close()

	_, err = New(cfg, log)
	var missing *config.MissingSecretError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, config.DiscordTokenEnv, missing.Env)
}

func TestNewBotError(t *testing.T) {
	orig := newBot
	newBot = func(*config.DiscordConfig, *logger.Logger) (Bot, error) {
		return nil, errors.New("no gateway")
	}
	defer func() { newBot = orig }()

	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)
	defer log.Close()

	_, err = New(testConfig(t), log)
	assert.ErrorContains(t, err, "no gateway")
}

func TestNewPurgesStaleTranscripts(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Sessions.TranscriptDir, 0700))
	stale := filepath.Join(cfg.Sessions.TranscriptDir, "old.jsonl")
	require.NoError(t, os.WriteFile(stale, []byte("{}\n"), 0600))

	createTestDaemon(t, cfg)
	assert.NoFileExists(t, stale)
}

func TestNewOptionalServices(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sessions.ArchiveOnClose = true
	cfg.Metrics.Enabled = true
	cfg.Metrics.Addr = "127.0.0.1:0"
	cfg.AI.PromptFile = filepath.Join(cfg.DataDir, "prompt.tmpl")
	require.NoError(t, os.WriteFile(cfg.AI.PromptFile, []byte("You are talking to {{.User}}."), 0600))

	d, _ := createTestDaemon(t, cfg)
	assert.NotNil(t, d.archiver)
	assert.NotNil(t, d.promptWatcher)
	assert.NotNil(t, d.httpServer)
}

func TestDaemonStartStop(t *testing.T) {
	d, bot := createTestDaemon(t, testConfig(t))

	require.NoError(t, d.Start())
	assert.True(t, d.Status().Running)
	assert.True(t, bot.started)
	assert.FileExists(t, PIDFilePath(d.config.DataDir))

	assert.Error(t, d.Start(), "second start should fail")

	require.NoError(t, d.Stop())
	assert.False(t, d.Status().Running)
	assert.True(t, bot.stopped)
	assert.NoFileExists(t, PIDFilePath(d.config.DataDir))

	assert.Error(t, d.Stop(), "stop when not running should fail")
}

func TestDaemonStartBotError(t *testing.T) {
	d, bot := createTestDaemon(t, testConfig(t))
	bot.startErr = errors.New("invalid token")

	err := d.Start()
	assert.ErrorContains(t, err, "invalid token")
	assert.False(t, d.Status().Running)
	assert.NoFileExists(t, PIDFilePath(d.config.DataDir))
}

func TestDaemonStatus(t *testing.T) {
	d, _ := createTestDaemon(t, testConfig(t))

	status := d.Status()
	assert.False(t, status.Running)
	assert.Equal(t, time.Duration(0), status.Uptime)
	assert.Equal(t, backend.StrategyEcho, status.Strategy)

	require.NoError(t, d.Start())
	defer d.Stop()

	time.Sleep(10 * time.Millisecond)
	status = d.Status()
	assert.True(t, status.Running)
	assert.Greater(t, status.Uptime, time.Duration(0))
	assert.Equal(t, 0, status.ActiveSessions)
}

func TestDaemonSidebarRoundTrip(t *testing.T) {
	d, bot := createTestDaemon(t, testConfig(t))
	require.NoError(t, d.Start())
	defer d.Stop()

	ctx := context.Background()
	general := bot.addChannel("guild", "general")

	require.NoError(t, bot.messages.HandleMessage(ctx, router.InboundMessage{
		ID: "m1", GuildID: "guild", ChannelID: general,
		AuthorID: "u1", AuthorName: "alice", Content: "!sidebar",
	}))

	channels := bot.channelsIn("AIs")
	require.Len(t, channels, 1)
	sidebar := channels[0]
	assert.Equal(t, 1, d.Status().ActiveSessions)

	require.NoError(t, bot.messages.HandleMessage(ctx, router.InboundMessage{
		ID: "m2", GuildID: "guild", ChannelID: sidebar,
		AuthorID: "u1", AuthorName: "alice", Content: "hello there",
	}))

	sent := bot.sentTo(sidebar)
	require.NotEmpty(t, sent)
	assert.True(t, strings.HasPrefix(sent[len(sent)-1], "I heard you say: hello there"))

	require.NoError(t, bot.messages.HandleMessage(ctx, router.InboundMessage{
		ID: "m3", GuildID: "guild", ChannelID: sidebar,
		AuthorID: "u1", AuthorName: "alice", Content: "!exit",
	}))

	assert.Empty(t, bot.channelsIn("AIs"))
	assert.Equal(t, 0, d.Status().ActiveSessions)
}

func TestDaemonChannelDeletedEndsSession(t *testing.T) {
	d, bot := createTestDaemon(t, testConfig(t))
	ctx := context.Background()
	general := bot.addChannel("guild", "general")

	require.NoError(t, bot.messages.HandleMessage(ctx, router.InboundMessage{
		ID: "m1", GuildID: "guild", ChannelID: general,
		AuthorID: "u1", AuthorName: "alice", Content: "!sidebar",
	}))
	channels := bot.channelsIn("AIs")
	require.Len(t, channels, 1)

	bot.deleted.HandleChannelDeleted(ctx, channels[0])
	assert.Equal(t, 0, d.GetRegistry().Len())
}

func TestDaemonGetters(t *testing.T) {
	d, _ := createTestDaemon(t, testConfig(t))

	assert.NotNil(t, d.GetConfig())
	assert.NotNil(t, d.GetLogger())
	assert.NotNil(t, d.GetQueue())
	assert.NotNil(t, d.GetRegistry())
	assert.NotNil(t, d.GetRouter())
}
