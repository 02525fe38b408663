package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/harun/sidebar/internal/config"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration",
	Long: `Load the configuration the way start does and report every problem,
including secrets that look malformed. Nothing is sent to Discord or the model.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return checkConfig(cmd.OutOrStdout(), cfg)
}

func checkConfig(out io.Writer, cfg *config.Config) error {
	v := config.NewValidator()
	problems := v.ValidateConfig(cfg)

	// Format checks are warnings: providers change key formats. Missing
	// secrets are already reported as problems.
	var warnings []error
	addWarning := func(err error) {
		var missing *config.MissingSecretError
		if err != nil && !errors.As(err, &missing) {
			warnings = append(warnings, err)
		}
	}
	addWarning(v.ValidateDiscordToken(cfg.Discord.Token))
	if cfg.AI.Strategy != "echo" {
		addWarning(v.ValidateAPIKey(cfg.AI.APIKey, cfg.AI.Provider))
	}

	fmt.Fprintf(out, "Strategy: %s\n", cfg.AI.Strategy)
	fmt.Fprintf(out, "Provider: %s\n", cfg.AI.Provider)
	fmt.Fprintf(out, "Category: %s\n", cfg.Discord.CategoryName)
	fmt.Fprintf(out, "Prefix: %s\n", cfg.Discord.Prefix)

	for _, w := range warnings {
		fmt.Fprintf(out, "WARN: %s\n", w)
	}
	for _, p := range problems {
		fmt.Fprintf(out, "ERROR: %s\n", ErrorMessage(p))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration has %d problem(s)", len(problems))
	}
	fmt.Fprintln(out, "Configuration OK")
	return nil
}
