package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/veilm/hnt/internal/shellclient"
)

var createShell string

var createCmd = &cobra.Command{
	Use:   "create <session-id>",
	Short: "Create a session and spawn its daemon",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		client := shellclient.New(sessionsRoot)

		if err := client.Create(id); err != nil {
			return err
		}
		if err := client.Spawn(id, createShell); err != nil {
			return fmt.Errorf("session directory created but daemon failed to spawn: %w", err)
		}
		fmt.Printf("created session %q\n", id)
		return nil
	},
}

func init() {
	createCmd.Flags().StringVar(&createShell, "shell", "", "Shell to run (default $SHELL, then /bin/bash, then /bin/sh)")
}
