package applier

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/afero"

	"github.com/veilm/hnt/pkg/hnt"
)

// Options configures a single Apply run.
type Options struct {
	DisallowCreating bool
	IgnoreReasoning  bool
	Verbose          bool
	// ShowDiff attaches a unified-diff preview (supplemented feature 5)
	// to each status that modified a file.
	ShowDiff bool
}

// Status is one block's outcome, printed as an indexed status line.
type Status struct {
	Index   int
	Path    string
	OK      bool
	Created bool
	Message string
	Diff    string
}

// String renders the status as:
// "[i] OK: <path>", "[i] CREATED: <path>", or "[i] FAILED: ...".
func (s Status) String() string {
	switch {
	case s.Created:
		return fmt.Sprintf("[%d] CREATED: %s", s.Index, s.Path)
	case s.OK:
		return fmt.Sprintf("[%d] OK: %s", s.Index, s.Path)
	default:
		return fmt.Sprintf("[%d] FAILED: %s - %s", s.Index, s.Path, s.Message)
	}
}

// Apply preprocesses blob, parses its TARGET/REPLACE blocks, resolves
// each block's path against the common root of sourceFiles, and applies
// each in order, stopping further application only when a block's
// target text isn't uniquely identifiable in its file — every other
// failure is reported as a status line and applying continues.
func Apply(fs afero.Fs, sourceFiles []string, blob string, opts Options) ([]Status, error) {
	blob = preprocess(blob, opts.IgnoreReasoning)
	blocks := ParseBlocks(blob)

	root, err := commonPathPrefix(fs, sourceFiles)
	if err != nil {
		return nil, fmt.Errorf("resolving common root: %w", err)
	}

	statuses := make([]Status, 0, len(blocks))
	for i, block := range blocks {
		path := resolvePath(fs, root, block.RelativePath, sourceFiles)
		status := applyOne(fs, i, path, block, opts)
		statuses = append(statuses, status)
		if isUniquenessViolation(status) {
			return statuses, fmt.Errorf("aborting: %s", status.Message)
		}
	}
	return statuses, nil
}

func isUniquenessViolation(s Status) bool {
	return !s.OK && !s.Created && strings.Contains(s.Message, "found") && strings.Contains(s.Message, "times")
}

// preprocess discards a leading <think>...</think> block when
// ignoreReasoning is set.
func preprocess(blob string, ignoreReasoning bool) string {
	if !ignoreReasoning {
		return blob
	}
	trimmed := strings.TrimLeft(blob, " \t\r\n")
	if !strings.HasPrefix(trimmed, "<think>") {
		return blob
	}
	if idx := strings.Index(trimmed, "</think>"); idx != -1 {
		return trimmed[idx+len("</think>"):]
	}
	return blob
}

// commonPathPrefix is the anchor for relative-path resolution: the
// common directory prefix of all source files, or a single file's parent
// directory when there's only one. Grounded on
// original_source/rust/hnt-pack/src/lib.rs's get_common_prefix.
func commonPathPrefix(fs afero.Fs, files []string) (string, error) {
	if len(files) == 0 {
		return "", nil
	}
	if len(files) == 1 {
		return filepath.Dir(files[0]), nil
	}

	split := make([][]string, len(files))
	shortest := -1
	for i, f := range files {
		parts := strings.Split(filepath.Clean(f), string(filepath.Separator))
		split[i] = parts
		if shortest == -1 || len(parts) < shortest {
			shortest = len(parts)
		}
	}

	var common []string
	for idx := 0; idx < shortest; idx++ {
		part := split[0][idx]
		if !allShareComponent(split[1:], idx, part) {
			break
		}
		common = append(common, part)
	}

	prefix := strings.Join(common, string(filepath.Separator))
	if prefix == "" {
		prefix = string(filepath.Separator)
	}

	if isFile, _ := afero.IsRegular(fs, prefix); isFile {
		prefix = filepath.Dir(prefix)
	}
	return prefix, nil
}

func allShareComponent(rest [][]string, idx int, part string) bool {
	for _, parts := range rest {
		if parts[idx] != part {
			return false
		}
	}
	return true
}

// resolvePath joins a block's relative path to root; if that doesn't
// exist, it falls back to the first source file ending with the
// relative path.
func resolvePath(fs afero.Fs, root, relativePath string, sourceFiles []string) string {
	candidate := filepath.Join(root, relativePath)
	if exists, _ := afero.Exists(fs, candidate); exists {
		return candidate
	}
	for _, f := range sourceFiles {
		if strings.HasSuffix(f, relativePath) {
			return f
		}
	}
	return candidate
}

func applyOne(fs afero.Fs, index int, path string, block hnt.ChangeBlock, opts Options) Status {
	st := Status{Index: index, Path: block.RelativePath}

	info, statErr := fs.Stat(path)
	exists := statErr == nil

	if exists && !info.Mode().IsRegular() {
		st.Message = fmt.Sprintf("%s is not a file", path)
		return st
	}

	if !exists {
		return applyCreate(fs, st, path, block, opts)
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		st.Message = fmt.Sprintf("reading %s: %v", path, err)
		return st
	}
	content := string(data)

	if len(block.Target) == 0 {
		if content == "" {
			if err := writeWithTrailingNewline(fs, path, block.Replace); err != nil {
				st.Message = err.Error()
				return st
			}
			st.Created = true
			return st
		}
		st.Message = "empty target for existing non-empty file"
		return st
	}

	fileLines := splitFileLines(content)
	count, firstIdx := countWindowMatches(fileLines, block.Target)
	switch {
	case count == 0:
		st.Message = "target not found" + closestHint(fileLines, block.Target)
		return st
	case count > 1:
		st.Message = fmt.Sprintf("target found %d times in %s", count, path)
		return st
	}

	newLines := make([]string, 0, len(fileLines)-len(block.Target)+len(block.Replace))
	newLines = append(newLines, fileLines[:firstIdx]...)
	newLines = append(newLines, block.Replace...)
	newLines = append(newLines, fileLines[firstIdx+len(block.Target):]...)
	newContent := joinWithTrailingNewline(newLines)

	if err := afero.WriteFile(fs, path, []byte(newContent), info.Mode().Perm()); err != nil {
		st.Message = err.Error()
		return st
	}
	st.OK = true
	if opts.ShowDiff {
		st.Diff = unifiedDiff(path, content, newContent)
	}
	return st
}

func applyCreate(fs afero.Fs, st Status, path string, block hnt.ChangeBlock, opts Options) Status {
	if opts.DisallowCreating {
		st.Message = "--disallow-creating"
		return st
	}
	if len(block.Target) != 0 {
		st.Message = "target not empty for creation"
		return st
	}
	if err := writeWithTrailingNewline(fs, path, block.Replace); err != nil {
		st.Message = err.Error()
		return st
	}
	st.Created = true
	if opts.ShowDiff {
		st.Diff = unifiedDiff(path, "", joinWithTrailingNewline(block.Replace))
	}
	return st
}

func writeWithTrailingNewline(fs afero.Fs, path string, lines []string) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating parent directories for %s: %w", path, err)
	}
	return afero.WriteFile(fs, path, []byte(joinWithTrailingNewline(lines)), 0644)
}

// splitFileLines splits file content into lines, dropping the single
// trailing empty element produced when content ends in a newline so
// window matching operates on real lines, not a phantom blank one.
func splitFileLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// joinWithTrailingNewline reassembles lines and appends the trailing
// newline that makes re-application idempotent.
func joinWithTrailingNewline(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// countWindowMatches compares target against every length-N window of
// fileLines with exact equality (no whitespace normalization), returning
// the total count and the index of the first match.
func countWindowMatches(fileLines, target []string) (count, firstIdx int) {
	n := len(target)
	firstIdx = -1
	if n == 0 || n > len(fileLines) {
		return 0, -1
	}
	for i := 0; i+n <= len(fileLines); i++ {
		if windowEqual(fileLines[i:i+n], target) {
			count++
			if firstIdx == -1 {
				firstIdx = i
			}
		}
	}
	return count, firstIdx
}

func windowEqual(window, target []string) bool {
	for i := range target {
		if window[i] != target[i] {
			return false
		}
	}
	return true
}

// closestHint finds the file line closest (Levenshtein) to the target's
// first line and reports it as a diagnostic-only suggestion — it never
// changes whether a block applies, unlike teacher's fuzzy-apply edit
// tool; it only fuzzy-suggests.
func closestHint(fileLines, target []string) string {
	if len(target) == 0 || len(fileLines) == 0 {
		return ""
	}
	want := target[0]
	best := -1
	bestDist := -1
	for i, line := range fileLines {
		d := levenshtein.ComputeDistance(want, line)
		if bestDist == -1 || d < bestDist {
			bestDist = d
			best = i
		}
	}
	if best == -1 {
		return ""
	}
	return fmt.Sprintf(" (closest existing line %d: %q)", best+1, fileLines[best])
}

// unifiedDiff renders a unified-diff snippet for a Status (supplemented
// feature 5), grounded on teacher's internal/tool/diff.go buildDiffMetadata.
func unifiedDiff(path, before, after string) string {
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)
	patches := dmp.PatchMake(before, diffs)
	text := dmp.PatchToText(patches)
	if text == "" {
		return ""
	}
	var b2 strings.Builder
	fmt.Fprintf(&b2, "--- %s\n+++ %s\n", path, path)
	b2.WriteString(text)
	return b2.String()
}
