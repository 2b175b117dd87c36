// Package main is the entry point for hnt-chat, the conversation store
// CLI: new/list/pack/add operations over a conversation
// directory.
package main

import (
	"fmt"
	"os"

	"github.com/veilm/hnt/cmd/hnt-chat/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
