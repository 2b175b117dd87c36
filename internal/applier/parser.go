// Package applier implements the structured edit applier: a parser for
// LLM-authored TARGET/REPLACE blocks and a mutator that applies them to
// files on disk under the uniqueness and creation rules of the
// per-block table.
package applier

import (
	"strings"

	"github.com/veilm/hnt/pkg/hnt"
)

const (
	targetMarker  = "<<<<<<< TARGET"
	dividerMarker = "\n=======\n"
	replaceMarker = "\n>>>>>>> REPLACE"
)

// ParseBlocks scans text for TARGET/REPLACE blocks, tolerant of
// conversational prose between and around them. A malformed or
// truncated block ends parsing gracefully: it returns the blocks found
// so far rather than erroring. Grounded on
// original_source/rust/hnt-apply/src/lib.rs's parse_one_block/parse_blocks.
func ParseBlocks(text string) []hnt.ChangeBlock {
	var blocks []hnt.ChangeBlock
	remaining := strings.TrimSpace(text)
	for remaining != "" {
		block, rest, ok := parseOneBlock(remaining)
		if !ok {
			break
		}
		blocks = append(blocks, block)
		remaining = strings.TrimLeft(rest, " \t\r\n")
	}
	return blocks
}

// parseOneBlock parses a single block starting anywhere in input and
// returns the unconsumed remainder.
func parseOneBlock(input string) (hnt.ChangeBlock, string, bool) {
	beforeTarget, afterMarkerStart, found := strings.Cut(input, targetMarker)
	if !found {
		return hnt.ChangeBlock{}, "", false
	}

	path := lastNonEmptyLine(beforeTarget)
	if path == "" {
		return hnt.ChangeBlock{}, "", false
	}

	targetRaw, afterTarget, found := strings.Cut(afterMarkerStart, dividerMarker)
	if !found {
		return hnt.ChangeBlock{}, "", false
	}
	targetRaw = strings.TrimPrefix(targetRaw, "\n")

	var replaceRaw, rest string
	if strings.HasPrefix(afterTarget, replaceMarker[1:]) {
		// Empty REPLACE section: the closing marker directly follows the divider.
		rest = afterTarget[len(replaceMarker)-1:]
	} else {
		replaceRaw, rest, found = strings.Cut(afterTarget, replaceMarker)
		if !found {
			return hnt.ChangeBlock{}, "", false
		}
	}

	return hnt.ChangeBlock{
		RelativePath: path,
		Target:       splitLinesOrEmpty(targetRaw),
		Replace:      splitLinesOrEmpty(replaceRaw),
	}, rest, true
}

// lastNonEmptyLine returns the last non-blank line of s, trimmed, or ""
// if s has no non-blank lines. This is the block's path: the model may
// write prose before a TARGET marker, so the path is whatever immediately
// precedes it.
func lastNonEmptyLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if t := strings.TrimSpace(lines[i]); t != "" {
			return t
		}
	}
	return ""
}

// splitLinesOrEmpty splits a raw TARGET or REPLACE section into an
// ordered line sequence. An empty section (the marker pair with nothing
// between them) is the "empty target"/"empty replace" case and yields
// a nil (zero-length) slice, not a one-element slice holding "".
func splitLinesOrEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
