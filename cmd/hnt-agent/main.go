// Package main is the entry point for hnt-agent, the agent turn-loop CLI
// the agent turn-loop CLI: packs a conversation, streams a completion, extracts a
// shell block, runs it through a headlesh session, and repeats.
package main

import (
	"fmt"
	"os"

	"github.com/veilm/hnt/cmd/hnt-agent/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
