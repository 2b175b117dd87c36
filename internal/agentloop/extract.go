package agentloop

import (
	"regexp"
	"strings"
)

// shellBlockPattern matches every <hnt-shell>...</hnt-shell> block in
// dotall mode, with no start-of-line anchoring on the opening tag: the
// last match wins even if a stray literal "<hnt-shell>" appears in
// prose earlier in the message; no attempt is made to guess around that.
var shellBlockPattern = regexp.MustCompile(`(?s)<hnt-shell>(.*?)</hnt-shell>`)

// ExtractShellBlock returns the body of the last <hnt-shell>...</hnt-shell>
// block in content, and whether one was found at all.
func ExtractShellBlock(content string) (script string, found bool) {
	matches := shellBlockPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return "", false
	}
	return matches[len(matches)-1][1], true
}

// EscapeBackticks escapes every backtick not already preceded by a
// backslash, so the extracted script can be embedded in the hosting
// shell's command line without triggering command substitution.
func EscapeBackticks(script string) string {
	var b strings.Builder
	b.Grow(len(script))
	for i := 0; i < len(script); i++ {
		if script[i] == '`' && (i == 0 || script[i-1] != '\\') {
			b.WriteByte('\\')
		}
		b.WriteByte(script[i])
	}
	return b.String()
}
