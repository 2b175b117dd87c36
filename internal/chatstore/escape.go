package chatstore

import "strings"

// Escape replaces every '<' in body with '\<' so the surrounding hnt-role
// tag remains the only unescaped '<' in a packed message. Grounded on
// original_source/rust/crates/hinata-core/src/escaping.rs.
func Escape(body string) string {
	if !strings.ContainsRune(body, '<') {
		return body
	}
	var b strings.Builder
	b.Grow(len(body) + 8)
	for _, r := range body {
		if r == '<' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Unescape reverses Escape: '\<' becomes '<'; any other backslash is left
// untouched.
func Unescape(body string) string {
	if !strings.Contains(body, "\\<") {
		return body
	}
	var b strings.Builder
	b.Grow(len(body))
	runes := []rune(body)
	for i := 0; i < len(runes); i++ {
		if runes[i] == '\\' && i+1 < len(runes) && runes[i+1] == '<' {
			b.WriteRune('<')
			i++
			continue
		}
		b.WriteRune(runes[i])
	}
	return b.String()
}
