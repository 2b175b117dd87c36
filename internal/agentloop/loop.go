// Package agentloop implements the per-turn agent state machine: pack
// the conversation, stream a completion, persist it, extract a shell
// block, confirm, run it through a session, and persist the result —
// looping until the user quits or a stream error is aborted.
package agentloop

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"

	"github.com/veilm/hnt/internal/chatstore"
	"github.com/veilm/hnt/internal/llmstream"
	"github.com/veilm/hnt/internal/turnevent"
	"github.com/veilm/hnt/pkg/hnt"
)

// ShellExecutor is the slice of *shellclient.Client the loop needs: run
// a script in a session and capture its output. Narrowed to an
// interface so the loop can be tested without a live daemon.
type ShellExecutor interface {
	ExecCaptured(sessionID, script string) (hnt.ExecOutput, error)
}

// StreamFunc starts a completion stream for prompt against model. The
// returned decoder is drained to EOF or until it errors; no HTTP client
// lives in this package.
type StreamFunc func(ctx context.Context, model, prompt string) (*llmstream.Decoder, error)

// ConfirmDecision is the user's answer at the CONFIRM state.
type ConfirmDecision int

const (
	ConfirmExecute ConfirmDecision = iota
	ConfirmSkip
	ConfirmExit
)

// NoCommandDecision is the user's answer at the NO_COMMAND state.
type NoCommandDecision int

const (
	NoCommandNewInstructions NoCommandDecision = iota
	NoCommandQuit
)

// StreamErrorDecision is the user's answer at the LLM_ERROR state, asked
// only once automatic backoff-throttled reconnects are exhausted.
type StreamErrorDecision int

const (
	StreamErrorRetry StreamErrorDecision = iota
	StreamErrorAbort
)

// Prompter is the loop's sole interactive collaborator; a CLI supplies
// one backed by stdin, a script supplies one with canned answers.
type Prompter interface {
	Confirm(script string) (ConfirmDecision, error)
	OnNoCommand() (NoCommandDecision, string, error)
	OnStreamError(err error) (StreamErrorDecision, error)
}

// Config configures one Loop.
type Config struct {
	Model             string
	IgnoreReasoning   bool
	NoConfirm         bool
	NoEscapeBackticks bool
	// InfoFilePath, if non-empty and readable, primes a freshly created
	// conversation with its contents wrapped in <info>...</info>
	// (supplemented feature 2).
	InfoFilePath string
	// SystemPrompt, if non-empty, is written as a system-role message on
	// a freshly created conversation (supplemented feature 2b; resolve a
	// --system flag with ResolveSystemPrompt before setting this).
	SystemPrompt string
	// ExitCodeOnFailure requests that the caller exit the process with
	// status 1 when the loop terminates after a turn whose shell exit
	// status was nonzero (supplemented feature 4). The loop itself just
	// reports LastExitStatus in Result; the CLI acts on it.
	ExitCodeOnFailure bool
	// MaxAutoRetries bounds the automatic, backoff-throttled reconnect
	// attempts on a dropped stream before escalating to the user.
	// Defaults to 2.
	MaxAutoRetries int
}

// Result reports how a Run terminated.
type Result struct {
	Reason         string // "quit", "exit", "abort"
	LastExitStatus int
	HumanTurn      int
	AssistantTurn  int
}

// Loop ties the conversation store, the session client, and a completion
// stream together into one turn-by-turn conversation.
type Loop struct {
	Store     *chatstore.Store
	Shell     ShellExecutor
	SessionID string
	Stream    StreamFunc
	Bus       *turnevent.Bus
	Prompt    Prompter
	Config    Config
}

// TurnLabel renders the display header for a turn (supplemented feature
// 3) — "Querent turn N" for the human, "Hinata turn N" for the model.
// Display concern only; never written to a conversation file.
func TurnLabel(role hnt.Role, n int) string {
	if role == hnt.RoleUser {
		return fmt.Sprintf("Querent turn %d", n)
	}
	return fmt.Sprintf("Hinata turn %d", n)
}

// ResolveSystemPrompt implements the file-or-string override of
// supplemented feature 2b: a value naming an existing regular file is
// read as the prompt body, otherwise the value itself is the prompt.
func ResolveSystemPrompt(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	info, err := os.Stat(value)
	if err == nil && info.Mode().IsRegular() {
		data, err := os.ReadFile(value)
		if err != nil {
			return "", fmt.Errorf("reading system prompt file: %w", err)
		}
		return string(data), nil
	}
	return value, nil
}

// ComputeTurnCounters scans conv and returns the human/assistant turn
// numbers for the *next* turn about to happen: one past
// however many of each role already exist.
func ComputeTurnCounters(store *chatstore.Store, conv string) (humanTurn, assistantTurn int, err error) {
	messages, err := store.ListMessages(conv)
	if err != nil {
		return 0, 0, err
	}
	var userCount, assistantCount int
	for _, m := range messages {
		switch m.Role {
		case hnt.RoleUser:
			userCount++
		case hnt.RoleAssistant:
			assistantCount++
		}
	}
	return userCount + 1, assistantCount + 1, nil
}

// Run drives conv through turns until termination, starting by priming
// (on a fresh conversation) or simply recording instruction as the next
// user turn (on a resumed one; an empty instruction on a resumed
// conversation records nothing and the first turn packs the conversation
// as it stands).
func (l *Loop) Run(ctx context.Context, conv, instruction string) (Result, error) {
	humanTurn, assistantTurn, err := ComputeTurnCounters(l.Store, conv)
	if err != nil {
		return Result{}, fmt.Errorf("computing turn counters: %w", err)
	}
	fresh := humanTurn == 1 && assistantTurn == 1

	if fresh {
		if err := l.prime(conv, instruction); err != nil {
			return Result{}, fmt.Errorf("priming conversation: %w", err)
		}
		humanTurn++
	} else if instruction != "" {
		if err := l.writeUserInstruction(conv, instruction); err != nil {
			return Result{}, fmt.Errorf("recording instruction: %w", err)
		}
		humanTurn++
	}

	lastExitStatus := 0
	for {
		turnID := ulid.Make().String()
		l.publish(turnID, turnevent.TurnStarted, nil)

		prompt, err := l.pack(conv)
		if err != nil {
			return Result{}, fmt.Errorf("packing conversation: %w", err)
		}

		reasoning, content, err := l.streamWithAutoRetry(ctx, prompt)
		if err != nil {
			decision, perr := l.Prompt.OnStreamError(err)
			if perr != nil {
				return Result{}, fmt.Errorf("resolving stream error: %w", perr)
			}
			if decision == StreamErrorAbort {
				return Result{Reason: "abort", LastExitStatus: lastExitStatus, HumanTurn: humanTurn, AssistantTurn: assistantTurn}, nil
			}
			continue // RETRY -> PACK
		}
		l.publish(turnID, turnevent.TurnStreaming, content)

		if err := l.persist(conv, reasoning, content); err != nil {
			return Result{}, fmt.Errorf("persisting assistant turn: %w", err)
		}
		l.publish(turnID, turnevent.TurnPersisted, nil)
		assistantTurn++

		script, found := ExtractShellBlock(content)
		if !found {
			action, newInstruction, err := l.Prompt.OnNoCommand()
			if err != nil {
				return Result{}, fmt.Errorf("resolving no-command choice: %w", err)
			}
			if action == NoCommandQuit {
				return Result{Reason: "quit", LastExitStatus: lastExitStatus, HumanTurn: humanTurn, AssistantTurn: assistantTurn}, nil
			}
			if err := l.writeUserInstruction(conv, newInstruction); err != nil {
				return Result{}, fmt.Errorf("recording new instruction: %w", err)
			}
			humanTurn++
			continue
		}

		if !l.Config.NoConfirm {
			decision, err := l.Prompt.Confirm(script)
			if err != nil {
				return Result{}, fmt.Errorf("resolving confirmation: %w", err)
			}
			switch decision {
			case ConfirmExit:
				return Result{Reason: "exit", LastExitStatus: lastExitStatus, HumanTurn: humanTurn, AssistantTurn: assistantTurn}, nil
			case ConfirmSkip:
				action, newInstruction, err := l.Prompt.OnNoCommand()
				if err != nil {
					return Result{}, fmt.Errorf("resolving no-command choice: %w", err)
				}
				if action == NoCommandQuit {
					return Result{Reason: "quit", LastExitStatus: lastExitStatus, HumanTurn: humanTurn, AssistantTurn: assistantTurn}, nil
				}
				if err := l.writeUserInstruction(conv, newInstruction); err != nil {
					return Result{}, fmt.Errorf("recording new instruction: %w", err)
				}
				humanTurn++
				continue
			}
		}

		if !l.Config.NoEscapeBackticks {
			script = EscapeBackticks(script)
		}

		out := l.run(script)
		l.publish(turnID, turnevent.ShellExecuted, out)
		lastExitStatus = out.ExitStatus

		l.snapshotCwd(conv)

		if err := l.writeResult(conv, out); err != nil {
			return Result{}, fmt.Errorf("recording shell result: %w", err)
		}
		humanTurn++
	}
}

func (l *Loop) publish(turnID string, kind turnevent.Kind, data any) {
	if l.Bus == nil {
		return
	}
	l.Bus.Publish(turnevent.Event{Kind: kind, TurnID: turnID, Data: data})
}

func (l *Loop) prime(conv, instruction string) error {
	if l.Config.SystemPrompt != "" {
		if _, err := l.Store.WriteMessage(conv, hnt.RoleSystem, l.Config.SystemPrompt); err != nil {
			return err
		}
	}
	if l.Config.InfoFilePath != "" {
		if data, err := os.ReadFile(l.Config.InfoFilePath); err == nil && strings.TrimSpace(string(data)) != "" {
			if _, err := l.Store.WriteMessage(conv, hnt.RoleUser, fmt.Sprintf("<info>%s</info>", string(data))); err != nil {
				return err
			}
		}
	}
	return l.writeUserInstruction(conv, instruction)
}

func (l *Loop) writeUserInstruction(conv, instruction string) error {
	_, err := l.Store.WriteMessage(conv, hnt.RoleUser, fmt.Sprintf("<user_request>%s</user_request>", instruction))
	return err
}

func (l *Loop) pack(conv string) (string, error) {
	var b strings.Builder
	if err := l.Store.Pack(conv, &b, l.Config.IgnoreReasoning); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (l *Loop) persist(conv, reasoning, content string) error {
	if reasoning != "" && !l.Config.IgnoreReasoning {
		if _, err := l.Store.WriteMessage(conv, hnt.RoleAssistantReasoning, reasoning); err != nil {
			return err
		}
	}
	_, err := l.Store.WriteMessage(conv, hnt.RoleAssistant, content)
	return err
}

// streamWithAutoRetry drains one completion, retrying a bounded number
// of times with exponential backoff before surfacing the error to the
// caller for a user RETRY/ABORT decision.
func (l *Loop) streamWithAutoRetry(ctx context.Context, prompt string) (reasoning, content string, err error) {
	maxRetries := l.Config.MaxAutoRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	for attempt := 0; ; attempt++ {
		reasoning, content, err = l.streamOnce(ctx, prompt)
		if err == nil {
			return reasoning, content, nil
		}
		if attempt >= maxRetries {
			return "", "", err
		}
		select {
		case <-time.After(b.NextBackOff()):
		case <-ctx.Done():
			return "", "", ctx.Err()
		}
	}
}

func (l *Loop) streamOnce(ctx context.Context, prompt string) (reasoning, content string, err error) {
	decoder, err := l.Stream(ctx, l.Config.Model, prompt)
	if err != nil {
		return "", "", err
	}
	var reasoningBuf, contentBuf strings.Builder
	err = llmstream.Collect(decoder, func(ev llmstream.Event) error {
		switch ev.Type {
		case llmstream.Reasoning:
			reasoningBuf.WriteString(ev.Text)
		case llmstream.Content:
			contentBuf.WriteString(ev.Text)
		}
		return nil
	})
	if err != nil {
		return "", "", err
	}
	return reasoningBuf.String(), contentBuf.String(), nil
}

// run executes script through the session. A C2-level failure (session
// gone, broken FIFO) surfaces as the turn's result rather than aborting
// the loop.
func (l *Loop) run(script string) hnt.ExecOutput {
	out, err := l.Shell.ExecCaptured(l.SessionID, script)
	if err != nil {
		return hnt.ExecOutput{Stderr: "exec error: " + err.Error(), ExitStatus: -1}
	}
	return out
}

// snapshotCwd runs pwd through the session and records it, best-effort:
// a failure here never aborts the turn.
func (l *Loop) snapshotCwd(conv string) {
	out, err := l.Shell.ExecCaptured(l.SessionID, "pwd")
	if err != nil || out.ExitStatus != 0 {
		return
	}
	_ = l.Store.WriteAuxFile(conv, "hnt-agent-pwd.txt", strings.TrimRight(out.Stdout, "\n")+"\n")
}

func (l *Loop) writeResult(conv string, out hnt.ExecOutput) error {
	var b strings.Builder
	b.WriteString("<hnt-shell-results>\n")
	if out.Stdout != "" {
		fmt.Fprintf(&b, "<stdout>%s</stdout>\n", out.Stdout)
	}
	if out.Stderr != "" {
		fmt.Fprintf(&b, "<stderr>%s</stderr>\n", out.Stderr)
	}
	if out.ExitStatus != 0 {
		fmt.Fprintf(&b, "<exit_code>%d</exit_code>\n", out.ExitStatus)
	}
	b.WriteString("</hnt-shell-results>")
	_, err := l.Store.WriteMessage(conv, hnt.RoleUser, b.String())
	return err
}
