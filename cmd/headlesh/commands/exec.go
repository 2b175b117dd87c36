package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/veilm/hnt/internal/shellclient"
)

var execCmd = &cobra.Command{
	Use:   "exec <session-id> [script...]",
	Short: "Run a script in a session, streaming stdout/stderr",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		script, err := scriptFromArgsOrStdin(args[1:])
		if err != nil {
			return err
		}
		client := shellclient.New(sessionsRoot)
		exitStatus, err := client.Exec(args[0], script, os.Stdout, os.Stderr)
		if err != nil {
			return err
		}
		if exitStatus != 0 {
			os.Exit(exitStatus)
		}
		return nil
	},
}

var execCapturedCmd = &cobra.Command{
	Use:   "exec-captured <session-id> [script...]",
	Short: "Run a script in a session and print stdout/stderr/exit status",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		script, err := scriptFromArgsOrStdin(args[1:])
		if err != nil {
			return err
		}
		client := shellclient.New(sessionsRoot)
		out, err := client.ExecCaptured(args[0], script)
		if err != nil {
			return err
		}
		os.Stdout.WriteString(out.Stdout)
		os.Stderr.WriteString(out.Stderr)
		fmt.Println("exit_status:", out.ExitStatus)
		if out.ExitStatus != 0 {
			os.Exit(out.ExitStatus)
		}
		return nil
	},
}

// scriptFromArgsOrStdin joins any trailing positional args with spaces as
// the script body; with none, it reads the full script from stdin (the
// payload's script body may contain embedded newlines).
func scriptFromArgsOrStdin(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading script from stdin: %w", err)
	}
	return string(data), nil
}
