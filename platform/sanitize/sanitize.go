// Package sanitize cleans user-provided text before it is stored or
// forwarded to the Graph API.
package sanitize

import (
	"regexp"
	"strings"
)

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

// Text prepares a caption, title or album field for storage: HTML tags
// are stripped, encoded tags are decoded and stripped again, and control
// characters are dropped. Newlines and tabs survive, photo captions are
// allowed to span multiple lines.
func Text(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = strings.ReplaceAll(result, "&lt;", "<")
	result = strings.ReplaceAll(result, "&gt;", ">")
	result = strings.ReplaceAll(result, "&amp;", "&")
	result = strings.ReplaceAll(result, "&quot;", "\"")
	result = strings.ReplaceAll(result, "&#39;", "'")
	result = htmlTagRegex.ReplaceAllString(result, "")
	result = strings.Map(dropControl, result)
	return strings.TrimSpace(result)
}

// dropControl removes control characters. Postgres rejects NUL bytes in
// text columns and the Graph API garbles the rest.
func dropControl(r rune) rune {
	if r == '\n' || r == '\t' {
		return r
	}
	if r < 0x20 || r == 0x7f {
		return -1
	}
	return r
}
