package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets the variables Load reads so the host environment cannot
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		DiscordTokenEnv, GoogleAPIKeyEnv, OpenAIKeyEnv, AnthropicKeyEnv,
		"SIDEBAR_DISCORD_TOKEN", "SIDEBAR_AI_API_KEY", "SIDEBAR_AI_STRATEGY", "SIDEBAR_DATA_DIR",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.configPath)
	assert.Equal(t, "/path/to/config.json", loader.GetConfigPath())
	assert.Equal(t, ".env", loader.envFile)
}

func TestLoaderLoad(t *testing.T) {
	t.Run("defaults when file doesn't exist", func(t *testing.T) {
		clearEnv(t)
		tmpDir := t.TempDir()

		cfg, err := NewLoader(filepath.Join(tmpDir, "nonexistent.json")).WithEnvFile("").Load()

		require.NoError(t, err)
		assert.Equal(t, "AIs", cfg.Discord.CategoryName)
		assert.NotEmpty(t, cfg.DataDir)
		assert.Equal(t, filepath.Join(cfg.DataDir, "transcripts"), cfg.Sessions.TranscriptDir)
		assert.Equal(t, filepath.Join(cfg.DataDir, "audit.log"), cfg.Logging.AuditFile)
	})

	t.Run("load config from file", func(t *testing.T) {
		clearEnv(t)
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"data_dir": "` + filepath.ToSlash(tmpDir) + `",
			"discord": {"category_name": "Bots", "name_pool": ["solo"]},
			"ai": {"strategy": "direct", "provider": "openai", "enable_search": false},
			"sessions": {"idle_timeout_minutes": 30}
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		cfg, err := NewLoader(configPath).WithEnvFile("").Load()

		require.NoError(t, err)
		assert.Equal(t, "Bots", cfg.Discord.CategoryName)
		assert.Equal(t, []string{"solo"}, cfg.Discord.NamePool)
		assert.Equal(t, "!", cfg.Discord.Prefix, "unset fields keep defaults")
		assert.Equal(t, "direct", cfg.AI.Strategy)
		assert.False(t, cfg.AI.EnableSearch)
		assert.Equal(t, 30, cfg.Sessions.IdleTimeoutMinutes)
		assert.Equal(t, tmpDir, filepath.ToSlash(cfg.DataDir))
	})

	t.Run("schema violation", func(t *testing.T) {
		clearEnv(t)
		configPath := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{"ai": {"strategy": "telepathy"}}`), 0644))

		_, err := NewLoader(configPath).WithEnvFile("").Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "schema")
	})

	t.Run("invalid json", func(t *testing.T) {
		clearEnv(t)
		configPath := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{invalid json}`), 0644))

		_, err := NewLoader(configPath).WithEnvFile("").Load()
		assert.Error(t, err)
	})
}

func TestLoaderSecretsFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv(DiscordTokenEnv, "env.token.value")
	t.Setenv(GoogleAPIKeyEnv, "AIzaEnvKey")

	cfg, err := NewLoader(filepath.Join(t.TempDir(), "none.json")).WithEnvFile("").Load()
	require.NoError(t, err)

	assert.Equal(t, "env.token.value", cfg.Discord.Token)
	assert.Equal(t, "AIzaEnvKey", cfg.AI.APIKey)
	assert.NoError(t, cfg.Validate())
}

func TestLoaderProviderKey(t *testing.T) {
	clearEnv(t)
	t.Setenv(GoogleAPIKeyEnv, "AIzaWrong")
	t.Setenv(AnthropicKeyEnv, "sk-ant-right")

	configPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"ai": {"provider": "anthropic"}}`), 0644))

	cfg, err := NewLoader(configPath).WithEnvFile("").Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-right", cfg.AI.APIKey)
}

func TestLoaderPrefixedEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("SIDEBAR_AI_STRATEGY", "echo")

	cfg, err := NewLoader(filepath.Join(t.TempDir(), "none.json")).WithEnvFile("").Load()
	require.NoError(t, err)
	assert.Equal(t, "echo", cfg.AI.Strategy)
}

func TestLoaderDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DISCORD_TOKEN=from.dot.env\nGOOGLE_API_KEY=<>\n"), 0600))
	t.Cleanup(func() {
		os.Unsetenv(DiscordTokenEnv)
		os.Unsetenv(GoogleAPIKeyEnv)
	})

	cfg, err := NewLoader(filepath.Join(dir, "none.json")).WithEnvFile(envFile).Load()
	require.NoError(t, err)

	assert.Equal(t, "from.dot.env", cfg.Discord.Token)
	assert.Equal(t, "<>", cfg.AI.APIKey)
	assert.EqualError(t, cfg.Validate(), "please set your GOOGLE_API_KEY in the .env file")

	t.Run("missing env file is fine", func(t *testing.T) {
		_, err := NewLoader(filepath.Join(dir, "none.json")).WithEnvFile(filepath.Join(dir, "absent.env")).Load()
		assert.NoError(t, err)
	})
}
