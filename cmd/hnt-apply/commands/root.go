// Package commands provides the CLI command for hnt-apply.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/veilm/hnt/internal/applier"
	"github.com/veilm/hnt/internal/logging"
)

var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

var (
	files            []string
	inputPath        string
	disallowCreating bool
	ignoreReasoning  bool
	showDiff         bool
	verbose          bool
	logLevel         string
)

var rootCmd = &cobra.Command{
	Use:     "hnt-apply",
	Short:   "Apply LLM-authored TARGET/REPLACE edit blocks to files",
	Version: Version,
	Long: `hnt-apply parses TARGET/REPLACE blocks out of LLM output and
applies them to files on disk, one block at a time, in the order they
appear. The edit blob is read from stdin unless --input is given.

Each --files entry may be a literal path or a doublestar glob
(e.g. "internal/**/*.go"); the resolved set anchors relative-path
resolution for the blocks.`,
	Args: cobra.NoArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := logging.DefaultConfig()
		cfg.Level = logging.ParseLevel(logLevel)
		if !verbose {
			cfg.Level = logging.FatalLevel
		}
		_ = logging.Init(cfg)
	},
	RunE: runApply,
}

func init() {
	rootCmd.Flags().StringArrayVarP(&files, "files", "f", nil, "Source file path or glob (repeatable)")
	rootCmd.Flags().StringVar(&inputPath, "input", "", "Read the edit blob from this file instead of stdin")
	rootCmd.Flags().BoolVar(&disallowCreating, "disallow-creating", false, "Fail blocks that would create a new file")
	rootCmd.Flags().BoolVar(&ignoreReasoning, "ignore-reasoning", false, "Discard a leading <think>...</think> block")
	rootCmd.Flags().BoolVar(&showDiff, "show-diff", false, "Print a unified diff alongside each modifying status")
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "Print logs to stderr")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.SetVersionTemplate(fmt.Sprintf("hnt-apply %s (%s)\n", Version, BuildTime))
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func runApply(cmd *cobra.Command, args []string) error {
	blob, err := readBlob()
	if err != nil {
		return err
	}

	sourceFiles, err := expandFiles(files)
	if err != nil {
		return err
	}

	fs := afero.NewOsFs()
	statuses, applyErr := applier.Apply(fs, sourceFiles, blob, applier.Options{
		DisallowCreating: disallowCreating,
		IgnoreReasoning:  ignoreReasoning,
		Verbose:          verbose,
		ShowDiff:         showDiff,
	})

	for _, s := range statuses {
		fmt.Println(s.String())
		if showDiff && s.Diff != "" {
			fmt.Println(s.Diff)
		}
	}

	if applyErr != nil {
		return applyErr
	}
	for _, s := range statuses {
		if !s.OK && !s.Created {
			os.Exit(1)
		}
	}
	return nil
}

func readBlob() (string, error) {
	if inputPath != "" {
		data, err := os.ReadFile(inputPath)
		if err != nil {
			return "", fmt.Errorf("reading --input: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading edit blob from stdin: %w", err)
	}
	return string(data), nil
}

// expandFiles resolves each --files entry as a doublestar glob (a
// literal path with no metacharacters matches itself).
func expandFiles(patterns []string) ([]string, error) {
	var out []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("expanding glob %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			out = append(out, pattern)
			continue
		}
		out = append(out, matches...)
	}
	return out, nil
}
