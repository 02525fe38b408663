package cli

import (
	"fmt"

	"github.com/harun/sidebar/internal/config"
	"github.com/harun/sidebar/internal/daemon"
	"github.com/harun/sidebar/internal/logger"
	"github.com/spf13/cobra"
)

var startConsole bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Sidebar bot",
	Long: `Start the Sidebar bot in the foreground.
The bot connects to Discord and runs until it receives SIGINT or SIGTERM.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVar(&startConsole, "console", true, "also log to the console")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	pidFile := daemon.PIDFilePath(cfg.DataDir)
	if isRunning(pidFile) {
		return fmt.Errorf("sidebar is already running (PID file: %s)", pidFile)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log)
	if err != nil {
		return err
	}

	if err := d.Start(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Sidebar started (strategy: %s). Press Ctrl+C to stop.\n", d.Status().Strategy)
	d.Wait()
	return nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   startConsole,
		Pretty:    startConsole,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
		Secrets:   []string{cfg.Discord.Token, cfg.AI.APIKey},
	})
}

func isRunning(pidFile string) bool {
	pid, err := daemon.ReadPID(pidFile)
	if err != nil {
		return false
	}
	return daemon.ProcessAlive(pid)
}
