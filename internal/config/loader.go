package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environment variables holding secrets.
const (
	DiscordTokenEnv = "DISCORD_TOKEN"
	GoogleAPIKeyEnv = "GOOGLE_API_KEY"
	OpenAIKeyEnv    = "OPENAI_API_KEY"
	AnthropicKeyEnv = "ANTHROPIC_API_KEY"
)

// APIKeyEnv returns the environment variable holding the key for provider.
func APIKeyEnv(provider string) string {
	switch provider {
	case "openai":
		return OpenAIKeyEnv
	case "anthropic":
		return AnthropicKeyEnv
	default:
		return GoogleAPIKeyEnv
	}
}

// Loader handles configuration loading
type Loader struct {
	configPath string
	envFile    string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		envFile:    ".env",
	}
}

// WithEnvFile sets the dotenv file read before the environment. An empty
// path skips it.
func (l *Loader) WithEnvFile(path string) *Loader {
	l.envFile = path
	return l
}

// Load reads the .env file, then the JSON config file if present, then the
// environment. Environment values override the file.
func (l *Loader) Load() (*Config, error) {
	if l.envFile != "" {
		// Variables already set in the process win over the file.
		if err := godotenv.Load(l.envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", l.envFile, err)
		}
	}

	configPath := l.GetConfigPath()

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("SIDEBAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := ValidateSchema(data); err != nil {
				return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
			}
			if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := setDefaults(v, DefaultConfig()); err != nil {
		return nil, err
	}

	// Secrets also come from their conventional variable names. The key
	// variable depends on the provider picked above.
	if err := v.BindEnv("discord.token", "SIDEBAR_DISCORD_TOKEN", DiscordTokenEnv); err != nil {
		return nil, fmt.Errorf("failed to bind env: %w", err)
	}
	if err := v.BindEnv("ai.api_key", "SIDEBAR_AI_API_KEY", APIKeyEnv(v.GetString("ai.provider"))); err != nil {
		return nil, fmt.Errorf("failed to bind env: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".sidebar")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "sidebar.log")
	}
	if cfg.Logging.AuditFile == "" {
		cfg.Logging.AuditFile = filepath.Join(cfg.DataDir, "audit.log")
	}
	if cfg.Sessions.TranscriptDir == "" {
		cfg.Sessions.TranscriptDir = filepath.Join(cfg.DataDir, "transcripts")
	}

	return cfg, nil
}

// setDefaults registers every field of def with viper so that AutomaticEnv
// can override keys the config file does not mention.
func setDefaults(v *viper.Viper, def *Config) error {
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to encode defaults: %w", err)
	}
	var values map[string]interface{}
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to decode defaults: %w", err)
	}
	for key, value := range values {
		v.SetDefault(key, value)
	}
	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".sidebar", "sidebar.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
