package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	packConversation string
	packIgnoreReason bool
)

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Serialize a conversation into a single prompt string",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		conv, err := resolveConversation(store, packConversation)
		if err != nil {
			return err
		}
		return store.Pack(conv, os.Stdout, packIgnoreReason)
	},
}

func init() {
	packCmd.Flags().StringVarP(&packConversation, "conversation", "c", "", "Conversation directory (default: latest)")
	packCmd.Flags().BoolVar(&packIgnoreReason, "ignore-reasoning", false, "Skip assistant-reasoning messages")
}
