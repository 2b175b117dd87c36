// Package commands provides the CLI commands for headlesh.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/veilm/hnt/internal/logging"
)

var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

var (
	sessionsRoot string
	logLevel     string
	logFile      bool
)

var rootCmd = &cobra.Command{
	Use:     "headlesh",
	Short:   "Detached persistent shell sessions",
	Version: Version,
	Long: `headlesh hosts one persistent shell per session in a detached
background daemon, and lets clients run scripts against it while
preserving working directory and environment across calls.

Run 'headlesh create <id>' followed by 'headlesh exec <id>' to start
driving a session, or 'headlesh list' to see what's running.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := logging.DefaultConfig()
		cfg.Level = logging.ParseLevel(logLevel)
		if !logFile {
			cfg.Level = logging.FatalLevel
		}
		_ = logging.Init(cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sessionsRoot, "sessions-root", "", "Sessions root directory (default /tmp/headlesh_sessions)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&logFile, "verbose", false, "Print logs to stderr")
	rootCmd.SetVersionTemplate(fmt.Sprintf("headlesh %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(execCapturedCmd)
	rootCmd.AddCommand(exitCmd)
	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(listCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
