// Package main is the entry point for hnt-apply, the structured edit
// applier CLI: applies LLM-authored TARGET/REPLACE blocks
// to files on disk.
package main

import (
	"fmt"
	"os"

	"github.com/veilm/hnt/cmd/hnt-apply/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
