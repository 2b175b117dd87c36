package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listConversation string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List a conversation's messages in chronological order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		conv, err := resolveConversation(store, listConversation)
		if err != nil {
			return err
		}
		messages, err := store.ListMessages(conv)
		if err != nil {
			return err
		}
		for _, m := range messages {
			fmt.Printf("%d\t%s\t%s\n", m.Timestamp, m.Role, m.Path)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().StringVarP(&listConversation, "conversation", "c", "", "Conversation directory (default: latest)")
}
