package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/harun/sidebar/internal/config"
	"github.com/stretchr/testify/require"
)

// useConfig points the global flags at a fresh config file under a temp data
// dir and clears secrets from the environment.
func useConfig(t *testing.T, body string) string {
	t.Helper()
	for _, key := range []string{
		config.DiscordTokenEnv, config.GoogleAPIKeyEnv, config.OpenAIKeyEnv, config.AnthropicKeyEnv,
		"SIDEBAR_DISCORD_TOKEN", "SIDEBAR_AI_API_KEY", "SIDEBAR_DATA_DIR",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "sidebar.json")
	if body == "" {
		body = `{"data_dir": "` + filepath.ToSlash(dir) + `"}`
	}
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))

	origCfg, origEnv, origLevel := cfgFile, envFile, logLevel
	cfgFile = path
	envFile = filepath.Join(dir, ".env")
	logLevel = ""
	t.Cleanup(func() { cfgFile, envFile, logLevel = origCfg, origEnv, origLevel })

	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := GetRootCmd()
	output := &bytes.Buffer{}
	cmd.SetOut(output)
	cmd.SetErr(output)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return output.String(), err
}
