package commands

import (
	"fmt"

	"github.com/veilm/hnt/internal/chatstore"
)

// resolveConversation returns conv unchanged if set, otherwise the
// latest conversation directory under the store, by the
// find_latest_conversation.
func resolveConversation(store *chatstore.Store, conv string) (string, error) {
	if conv != "" {
		return conv, nil
	}
	latest, err := store.FindLatest()
	if err != nil {
		return "", fmt.Errorf("finding latest conversation: %w", err)
	}
	if latest == "" {
		return "", fmt.Errorf("no conversations exist; pass --conversation or run 'hnt-chat new' first")
	}
	return latest, nil
}
