package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/veilm/hnt/internal/shellclient"
)

var exitCmd = &cobra.Command{
	Use:   "exit <session-id>",
	Short: "Send the exit sentinel, shutting the daemon down",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := shellclient.New(sessionsRoot)
		if err := client.Exit(args[0]); err != nil {
			return err
		}
		fmt.Printf("session %q exited\n", args[0])
		return nil
	},
}

var killCmd = &cobra.Command{
	Use:   "kill <session-id>",
	Short: "Cooperative shutdown, falling back to SIGTERM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := shellclient.New(sessionsRoot)
		if err := client.Kill(args[0]); err != nil {
			return err
		}
		fmt.Printf("session %q killed\n", args[0])
		return nil
	},
}
