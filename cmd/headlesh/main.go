// Package main is the entry point for headlesh, the headless shell
// daemon and session CLI.
package main

import (
	"fmt"
	"os"

	"github.com/veilm/hnt/cmd/headlesh/commands"
	"github.com/veilm/hnt/internal/shelld"
)

// main dispatches the hidden re-exec stage markers before any cobra flag
// parsing happens, since shelld.Spawn re-invokes this same binary with
// Stage1Marker/Stage2Marker as os.Args[1] (see internal/shelld/daemon.go).
func main() {
	if len(os.Args) >= 5 {
		switch os.Args[1] {
		case shelld.Stage1Marker:
			shelld.RunStage1(os.Args[2], os.Args[3], os.Args[4])
			return
		case shelld.Stage2Marker:
			shelld.RunStage2(os.Args[2], os.Args[3], os.Args[4])
			return
		}
	}

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
