package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/veilm/hnt/internal/shellclient"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions and report liveness",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := shellclient.New(sessionsRoot)
		sessions, err := client.List()
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("no sessions")
			return nil
		}
		for _, s := range sessions {
			status := "dead"
			if s.Alive {
				status = "alive"
			}
			fmt.Printf("%s\t%s\n", s.ID, status)
		}
		return nil
	},
}
