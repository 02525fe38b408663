package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the main sidebar configuration
type Config struct {
	// Discord
	Discord DiscordConfig `json:"discord" mapstructure:"discord"`

	// AI backend
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Session lifetime and transcripts
	Sessions SessionsConfig `json:"sessions" mapstructure:"sessions"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics and status endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// DiscordConfig holds Discord bot configuration
type DiscordConfig struct {
	Token              string   `json:"token" mapstructure:"token"`
	Prefix             string   `json:"prefix" mapstructure:"prefix"`
	CategoryName       string   `json:"category_name" mapstructure:"category_name"`
	NamePool           []string `json:"name_pool" mapstructure:"name_pool"`
	MaxMessageLength   int      `json:"max_message_length" mapstructure:"max_message_length"`
	UsageNoticeSeconds int      `json:"usage_notice_seconds" mapstructure:"usage_notice_seconds"`
}

// AIConfig selects the reply strategy and its provider
type AIConfig struct {
	Strategy       string  `json:"strategy" mapstructure:"strategy"` // echo, direct, conversation
	Provider       string  `json:"provider" mapstructure:"provider"` // gemini, openai, anthropic
	APIKey         string  `json:"api_key" mapstructure:"api_key"`
	BaseURL        string  `json:"base_url" mapstructure:"base_url"`
	Model          string  `json:"model" mapstructure:"model"`
	Temperature    float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens      int     `json:"max_tokens" mapstructure:"max_tokens"`
	MaxRetries     int     `json:"max_retries" mapstructure:"max_retries"`
	TimeoutSeconds int     `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	EnableSearch   bool    `json:"enable_search" mapstructure:"enable_search"`
	HistoryLimit   int     `json:"history_limit" mapstructure:"history_limit"`
	PromptFile     string  `json:"prompt_file" mapstructure:"prompt_file"`
}

// SessionsConfig holds session expiry and transcript settings
type SessionsConfig struct {
	IdleTimeoutMinutes   int    `json:"idle_timeout_minutes" mapstructure:"idle_timeout_minutes"` // 0 disables expiry
	SweepSchedule        string `json:"sweep_schedule" mapstructure:"sweep_schedule"`
	TranscriptDir        string `json:"transcript_dir" mapstructure:"transcript_dir"`
	ArchiveOnClose       bool   `json:"archive_on_close" mapstructure:"archive_on_close"`
	ArchiveRetentionDays int    `json:"archive_retention_days" mapstructure:"archive_retention_days"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig holds the status server configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// MissingSecretError reports a required secret that is unset or still holds
// a template placeholder.
type MissingSecretError struct {
	Env string
}

func (e *MissingSecretError) Error() string {
	return fmt.Sprintf("please set your %s in the .env file", e.Env)
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Discord: DiscordConfig{
			Prefix:             "!",
			CategoryName:       "AIs",
			NamePool:           []string{"curious-alex", "thoughtful-sam", "helpful-taylor", "wise-jordan"},
			MaxMessageLength:   2000,
			UsageNoticeSeconds: 10,
		},
		AI: AIConfig{
			Strategy:       "conversation",
			Provider:       "gemini",
			Temperature:    0.7,
			MaxTokens:      1024,
			MaxRetries:     0,
			TimeoutSeconds: 0,
			EnableSearch:   true,
			HistoryLimit:   50,
		},
		Sessions: SessionsConfig{
			IdleTimeoutMinutes:   0,
			SweepSchedule:        "@every 1m",
			ArchiveOnClose:       false,
			ArchiveRetentionDays: 7,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			SampleRatio: 1,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks that the bot can start with this configuration. The
// messages name the environment variable to fix.
func (c *Config) Validate() error {
	if isPlaceholder(c.Discord.Token, discordPlaceholders) {
		return &MissingSecretError{Env: DiscordTokenEnv}
	}

	if c.AI.Strategy != "echo" && isPlaceholder(c.AI.APIKey, apiKeyPlaceholders) {
		return &MissingSecretError{Env: APIKeyEnv(c.AI.Provider)}
	}

	if c.Discord.Prefix == "" {
		return fmt.Errorf("discord prefix cannot be empty")
	}
	if c.Discord.CategoryName == "" {
		return fmt.Errorf("discord category_name cannot be empty")
	}
	if len(c.Discord.NamePool) == 0 {
		return fmt.Errorf("discord name_pool needs at least one name")
	}

	return nil
}

// CallTimeout returns the backend call timeout; zero means none.
func (c *AIConfig) CallTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// IdleTimeout returns how long a session may stay quiet; zero disables expiry.
func (c *SessionsConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMinutes) * time.Minute
}

// ArchiveRetention returns how long archived transcripts are kept.
func (c *SessionsConfig) ArchiveRetention() time.Duration {
	return time.Duration(c.ArchiveRetentionDays) * 24 * time.Hour
}

// UsageNoticeTTL returns how long transient usage hints stay visible.
func (c *DiscordConfig) UsageNoticeTTL() time.Duration {
	return time.Duration(c.UsageNoticeSeconds) * time.Second
}
