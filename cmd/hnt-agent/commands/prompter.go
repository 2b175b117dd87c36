package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/veilm/hnt/internal/agentloop"
)

// stdinPrompter is the interactive Prompter backing hnt-agent's CONFIRM/
// NO_COMMAND/LLM_ERROR states, reading single-letter decisions from
// stdin. A --no-confirm run never reaches Confirm.
type stdinPrompter struct {
	in *bufio.Reader
}

func newStdinPrompter() *stdinPrompter {
	return &stdinPrompter{in: bufio.NewReader(os.Stdin)}
}

// selectPrompter picks the interactive stdin prompter when stdin is a
// terminal, or the scripted auto-quit prompter otherwise (piped stdin,
// e.g. under CI), so a non-interactive invocation can't hang forever
// waiting for a confirm/no-command/stream-error decision nobody will type.
func selectPrompter() agentloop.Prompter {
	info, err := os.Stdin.Stat()
	if err == nil && info.Mode()&os.ModeCharDevice != 0 {
		return newStdinPrompter()
	}
	return scriptedPrompter{}
}

func (p *stdinPrompter) Confirm(script string) (agentloop.ConfirmDecision, error) {
	fmt.Printf("\n--- shell command ---\n%s\n---------------------\n", script)
	for {
		fmt.Print("execute? [y]es / [s]kip / [e]xit: ")
		line, err := p.readLine()
		if err != nil {
			return agentloop.ConfirmExit, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes", "":
			return agentloop.ConfirmExecute, nil
		case "s", "skip":
			return agentloop.ConfirmSkip, nil
		case "e", "exit":
			return agentloop.ConfirmExit, nil
		}
	}
}

func (p *stdinPrompter) OnNoCommand() (agentloop.NoCommandDecision, string, error) {
	for {
		fmt.Print("\nno shell command found. [n]ew instructions / [q]uit: ")
		line, err := p.readLine()
		if err != nil {
			return agentloop.NoCommandQuit, "", err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "q", "quit", "":
			return agentloop.NoCommandQuit, "", nil
		case "n", "new":
			fmt.Print("new instruction: ")
			instr, err := p.readLine()
			if err != nil {
				return agentloop.NoCommandQuit, "", err
			}
			return agentloop.NoCommandNewInstructions, instr, nil
		}
	}
}

func (p *stdinPrompter) OnStreamError(streamErr error) (agentloop.StreamErrorDecision, error) {
	for {
		fmt.Printf("\nstream error: %v\n[r]etry / [a]bort: ", streamErr)
		line, err := p.readLine()
		if err != nil {
			return agentloop.StreamErrorAbort, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "r", "retry", "":
			return agentloop.StreamErrorRetry, nil
		case "a", "abort":
			return agentloop.StreamErrorAbort, nil
		}
	}
}

func (p *stdinPrompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return line, nil
}

// scriptedPrompter answers CONFIRM with ConfirmExecute, OnNoCommand with
// NoCommandQuit and OnStreamError with StreamErrorAbort, unconditionally.
// selectPrompter picks it whenever stdin is not a terminal (e.g. piped
// stdin), with or without --no-confirm, so a missing human doesn't hang
// the loop; without --no-confirm its Confirm executes every command.
type scriptedPrompter struct{}

func (scriptedPrompter) Confirm(string) (agentloop.ConfirmDecision, error) {
	return agentloop.ConfirmExecute, nil
}

func (scriptedPrompter) OnNoCommand() (agentloop.NoCommandDecision, string, error) {
	return agentloop.NoCommandQuit, "", nil
}

func (scriptedPrompter) OnStreamError(err error) (agentloop.StreamErrorDecision, error) {
	return agentloop.StreamErrorAbort, nil
}
