// Package commands provides the CLI commands for hnt-chat.
package commands

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/veilm/hnt/internal/chatstore"
	"github.com/veilm/hnt/internal/logging"
)

var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

var (
	baseDir  string
	logLevel string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:     "hnt-chat",
	Short:   "Append-only conversation directory store",
	Version: Version,
	Long: `hnt-chat manages conversation directories: one directory per
conversation, one file per message, named "<nanoseconds>-<role>.md".

Run 'hnt-chat new' to start a conversation, 'hnt-chat add <role>' to
append a message, and 'hnt-chat pack' to serialize it for an LLM.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := logging.DefaultConfig()
		cfg.Level = logging.ParseLevel(logLevel)
		if !verbose {
			cfg.Level = logging.FatalLevel
		}
		_ = logging.Init(cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseDir, "conversations-dir", "", "Conversations root (default $XDG_DATA_HOME/hinata/chat/conversations)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Print logs to stderr")
	rootCmd.SetVersionTemplate(fmt.Sprintf("hnt-chat %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(packCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// openStore returns a Store rooted at --conversations-dir, or at the
// default XDG-derived location when unset.
func openStore() (*chatstore.Store, error) {
	if baseDir != "" {
		return chatstore.New(afero.NewOsFs(), baseDir), nil
	}
	return chatstore.NewOS()
}
