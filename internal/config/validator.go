package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Values shipped in the .env template that mean "not configured".
var (
	discordPlaceholders = []string{"<>", "your_discord_bot_token_here"}
	apiKeyPlaceholders  = []string{"<>", "your_google_ai_studio_api_key_here", "your_openai_api_key_here", "your_anthropic_api_key_here"}
)

func isPlaceholder(value string, placeholders []string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return true
	}
	for _, p := range placeholders {
		if value == p {
			return true
		}
	}
	return false
}

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if isPlaceholder(key, apiKeyPlaceholders) {
		return &MissingSecretError{Env: APIKeyEnv(provider)}
	}

	switch provider {
	case "gemini":
		if !strings.HasPrefix(key, "AIza") {
			return fmt.Errorf("invalid Google AI Studio API key format (should start with AIza)")
		}
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateDiscordToken validates a Discord bot token
func (v *Validator) ValidateDiscordToken(token string) error {
	if isPlaceholder(token, discordPlaceholders) {
		return &MissingSecretError{Env: DiscordTokenEnv}
	}

	// Bot tokens are three dot-separated base64url segments.
	if strings.Count(token, ".") != 2 || strings.ContainsAny(token, " \t\n") {
		return fmt.Errorf("invalid Discord bot token format")
	}

	return nil
}

func oneOf(kind, value string, valid []string) error {
	for _, ok := range valid {
		if value == ok {
			return nil
		}
	}
	return fmt.Errorf("invalid %s: %s (must be one of: %s)", kind, value, strings.Join(valid, ", "))
}

// ValidateStrategy validates the reply strategy
func (v *Validator) ValidateStrategy(strategy string) error {
	return oneOf("ai strategy", strategy, []string{"echo", "direct", "conversation"})
}

// ValidateProvider validates the AI provider
func (v *Validator) ValidateProvider(provider string) error {
	return oneOf("ai provider", provider, []string{"gemini", "openai", "anthropic"})
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", temp)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	return oneOf("log level", level, []string{"debug", "info", "warn", "error"})
}

// ValidateSchedule validates a cron spec or @every descriptor
func (v *Validator) ValidateSchedule(spec string) error {
	if spec == "" {
		return nil // Use default
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := cfg.Validate(); err != nil {
		errors = append(errors, err)
	}

	if err := v.ValidateStrategy(cfg.AI.Strategy); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateProvider(cfg.AI.Provider); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateTemperature(cfg.AI.Temperature); err != nil {
		errors = append(errors, err)
	}
	if cfg.AI.MaxTokens < 0 {
		errors = append(errors, fmt.Errorf("ai max_tokens must be >= 0"))
	}
	if cfg.AI.MaxRetries < 0 {
		errors = append(errors, fmt.Errorf("ai max_retries must be >= 0"))
	}
	if cfg.AI.TimeoutSeconds < 0 {
		errors = append(errors, fmt.Errorf("ai timeout_seconds must be >= 0"))
	}
	if cfg.AI.HistoryLimit < 0 {
		errors = append(errors, fmt.Errorf("ai history_limit must be >= 0"))
	}

	if cfg.Discord.MaxMessageLength < 0 || cfg.Discord.MaxMessageLength > 2000 {
		errors = append(errors, fmt.Errorf("discord max_message_length must be between 0 and 2000"))
	}
	if cfg.Discord.UsageNoticeSeconds < 0 {
		errors = append(errors, fmt.Errorf("discord usage_notice_seconds must be >= 0"))
	}
	for i, name := range cfg.Discord.NamePool {
		if strings.TrimSpace(name) == "" {
			errors = append(errors, fmt.Errorf("discord name_pool[%d] is empty", i))
		}
	}

	if cfg.Sessions.IdleTimeoutMinutes < 0 {
		errors = append(errors, fmt.Errorf("sessions idle_timeout_minutes must be >= 0"))
	}
	if cfg.Sessions.ArchiveRetentionDays < 0 {
		errors = append(errors, fmt.Errorf("sessions archive_retention_days must be >= 0"))
	}
	if err := v.ValidateSchedule(cfg.Sessions.SweepSchedule); err != nil {
		errors = append(errors, err)
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		errors = append(errors, fmt.Errorf("metrics addr is required when metrics are enabled"))
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errors = append(errors, fmt.Errorf("tracing sample_ratio must be between 0 and 1"))
	}

	return errors
}
