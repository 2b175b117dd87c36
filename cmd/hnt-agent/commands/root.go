// Package commands provides the CLI command for hnt-agent.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/veilm/hnt/internal/agentloop"
	"github.com/veilm/hnt/internal/chatstore"
	"github.com/veilm/hnt/internal/config"
	"github.com/veilm/hnt/internal/logging"
	"github.com/veilm/hnt/internal/shellclient"
	"github.com/veilm/hnt/internal/turnevent"
	"github.com/veilm/hnt/pkg/hnt"
)

var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

var (
	flagModel             string
	flagSession           string
	flagSessionsRoot      string
	flagConversation      string
	flagNoConfirm         bool
	flagNoEscapeBackticks bool
	flagIgnoreReasoning   bool
	flagSystem            string
	flagExitCodeOnFailure bool
	flagVerbose           bool
	flagLogLevel          string
)

var rootCmd = &cobra.Command{
	Use:     "hnt-agent [instruction...]",
	Short:   "Drive an LLM through shell commands in a persistent session",
	Version: Version,
	Long: `hnt-agent packs a conversation, streams a completion from an
LLM, extracts the last <hnt-shell> block from the response, runs it
through a headlesh session, and feeds the result back as the next
turn — repeating until you quit.

Examples:
  hnt-agent --session build "list the files in this repo"
  hnt-agent --session build --no-confirm "run the test suite"`,
	Args: cobra.ArbitraryArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := logging.DefaultConfig()
		cfg.Level = logging.ParseLevel(flagLogLevel)
		if !flagVerbose {
			cfg.Level = logging.FatalLevel
		}
		_ = logging.Init(cfg)
	},
	RunE: runAgent,
}

func init() {
	rootCmd.Flags().StringVarP(&flagModel, "model", "m", "", "Model to use (overrides config/env defaults)")
	rootCmd.Flags().StringVarP(&flagSession, "session", "s", "", "headlesh session id to run shell commands in (created if absent)")
	rootCmd.Flags().StringVar(&flagSessionsRoot, "sessions-root", "", "headlesh sessions root (default /tmp/headlesh_sessions)")
	rootCmd.Flags().StringVarP(&flagConversation, "conversation", "c", "", "Resume this conversation directory instead of starting a new one")
	rootCmd.Flags().BoolVar(&flagNoConfirm, "no-confirm", false, "Execute extracted shell commands without confirmation")
	rootCmd.Flags().BoolVar(&flagNoEscapeBackticks, "no-escape-backticks", false, "Don't escape unescaped backticks before execution")
	rootCmd.Flags().BoolVar(&flagIgnoreReasoning, "ignore-reasoning", false, "Don't persist or pack assistant-reasoning messages")
	rootCmd.Flags().StringVar(&flagSystem, "system", "", "System prompt: an existing file's contents, or this value verbatim")
	rootCmd.Flags().BoolVar(&flagExitCodeOnFailure, "exit-code-on-failure", false, "Exit 1 if the loop ends after a nonzero shell exit")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "Print logs to stderr")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.SetVersionTemplate(fmt.Sprintf("hnt-agent %s (%s)\n", Version, BuildTime))
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func runAgent(cmd *cobra.Command, args []string) error {
	instruction := strings.Join(args, " ")
	if instruction == "" && flagConversation == "" {
		return fmt.Errorf("an instruction is required (or pass --conversation to resume with no new instruction)")
	}

	workDir, err := os.Getwd()
	if err != nil {
		return err
	}
	cfg, err := config.Load(workDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	model := config.ResolveModel(flagModel, cfg)

	systemPrompt, err := agentloop.ResolveSystemPrompt(flagSystem)
	if err != nil {
		return err
	}

	store, err := chatstore.NewOS()
	if err != nil {
		return fmt.Errorf("opening conversation store: %w", err)
	}

	conv := flagConversation
	if conv == "" {
		conv, err = store.Create()
		if err != nil {
			return fmt.Errorf("creating conversation: %w", err)
		}
	}

	sessionID := flagSession
	ownSession := sessionID == ""
	if ownSession {
		sessionID = fmt.Sprintf("hnt-agent-%d", os.Getpid())
	}
	shellClient := shellclient.New(flagSessionsRoot)
	if !shellClient.IsAlive(sessionID) {
		if err := shellClient.Create(sessionID); err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("creating shell session: %w", err)
		}
		if err := shellClient.Spawn(sessionID, ""); err != nil {
			return fmt.Errorf("spawning shell session: %w", err)
		}
	}

	bus := turnevent.New()
	defer bus.Close()
	bus.Subscribe(printTurnEvent)

	infoFilePath := config.GetPaths().InfoFilePath()
	if _, statErr := os.Stat(infoFilePath); statErr != nil {
		infoFilePath = ""
	}

	loop := &agentloop.Loop{
		Store:     store,
		Shell:     shellClient,
		SessionID: sessionID,
		Stream:    openRouterStream,
		Bus:       bus,
		Prompt:    selectPrompter(),
		Config: agentloop.Config{
			Model:             model,
			IgnoreReasoning:   flagIgnoreReasoning,
			NoConfirm:         flagNoConfirm,
			NoEscapeBackticks: flagNoEscapeBackticks,
			InfoFilePath:      infoFilePath,
			SystemPrompt:      systemPrompt,
			ExitCodeOnFailure: flagExitCodeOnFailure,
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A session this invocation spawned itself (no --session given) is
	// shut down (exit(), then SIGTERM as fallback) on every termination
	// path. A named --session is a persistent shell the user reuses
	// across invocations: it is left running on every path.
	killIfOwned := func() {
		if ownSession {
			_ = shellClient.Kill(sessionID)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nhnt-agent: interrupted, shutting down...")
		killIfOwned()
		cancel()
	}()

	result, err := loop.Run(ctx, conv, instruction)
	signal.Stop(sigCh)
	if err != nil {
		killIfOwned()
		return fmt.Errorf("agent loop: %w", err)
	}

	killIfOwned()

	fmt.Printf("\n[%s] %s\n", result.Reason, agentloop.TurnLabel(hnt.RoleUser, result.HumanTurn))
	if flagExitCodeOnFailure && result.LastExitStatus != 0 {
		os.Exit(1)
	}
	return nil
}

func isAlreadyExists(err error) bool {
	se, ok := err.(*hnt.SessionError)
	return ok && se.Kind == hnt.SessionAlreadyExists
}

func printTurnEvent(ev turnevent.Event) {
	if !flagVerbose {
		return
	}
	fmt.Fprintf(os.Stderr, "[turnevent] %s\n", ev.Kind)
}
