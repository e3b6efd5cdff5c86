package rag

import "strings"

// sanitizer strips the control characters that upset strict JSON decoders
// while preserving markdown formatting. CRLF must precede lone CR so a
// Windows line ending collapses to a single newline.
var sanitizer = strings.NewReplacer(
	"\x00", "", // null byte
	"\x1f", "", // unit separator
	"\v", "\n", // vertical tab
	"\f", "\n", // form feed
	"\r\n", "\n",
	"\r", "\n",
)

// Sanitize makes model and database text safe to place in stream events.
func Sanitize(s string) string {
	return sanitizer.Replace(s)
}
