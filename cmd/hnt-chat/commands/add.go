package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/veilm/hnt/pkg/hnt"
)

var addConversation string

var addCmd = &cobra.Command{
	Use:   "add <role> [content...]",
	Short: "Append a message to a conversation",
	Long: `Append a message with the given role (user|assistant|system|
assistant-reasoning) to a conversation. With no trailing content
arguments, the message body is read from stdin.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, ok := hnt.ParseRole(args[0])
		if !ok {
			return fmt.Errorf("unrecognized role %q", args[0])
		}

		var content string
		if len(args) > 1 {
			content = strings.Join(args[1:], " ")
		} else {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading message body from stdin: %w", err)
			}
			content = string(data)
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		conv, err := resolveConversation(store, addConversation)
		if err != nil {
			return err
		}

		name, err := store.WriteMessage(conv, role, content)
		if err != nil {
			return err
		}
		fmt.Println(name)
		return nil
	},
}

func init() {
	addCmd.Flags().StringVarP(&addConversation, "conversation", "c", "", "Conversation directory (default: latest)")
}
