// Package privacy provides secret redaction for threadwatch.
//
// Hook payloads carry raw tool inputs, which routinely contain credentials
// (exported env vars, connection strings, API keys pasted into commands).
// Everything that reaches the notification store or a live subscriber goes
// through Clean first.
package privacy

import (
	"regexp"
	"strings"
)

const placeholder = "[redacted]"

var (
	// keyValueRegex matches credential-looking assignments like
	// "api_key=...", "password: ...", "TOKEN=...".
	keyValueRegex = regexp.MustCompile(`(?i)\b(api[_-]?key|access[_-]?key|secret|token|password|passwd|credentials?)(["']?\s*[=:]\s*["']?)[^\s"'&]+`)

	// bearerRegex matches Authorization header values.
	bearerRegex = regexp.MustCompile(`(?i)\b(bearer|basic)\s+[A-Za-z0-9+/._~-]{8,}={0,2}`)

	// awsKeyRegex matches AWS access key IDs.
	awsKeyRegex = regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)

	// privateTagRegex matches <private>...</private> spans users mark by hand.
	privateTagRegex = regexp.MustCompile(`(?s)<private>.*?</private>`)
)

// RedactSecrets replaces credential-looking substrings with a placeholder,
// leaving the surrounding text intact.
func RedactSecrets(text string) string {
	text = keyValueRegex.ReplaceAllString(text, "${1}${2}"+placeholder)
	text = bearerRegex.ReplaceAllString(text, "${1} "+placeholder)
	text = awsKeyRegex.ReplaceAllString(text, placeholder)
	return text
}

// StripPrivateTags removes all <private>...</private> content from text.
func StripPrivateTags(text string) string {
	return privateTagRegex.ReplaceAllString(text, "")
}

// isEntirelyPrivate checks if the text is entirely within <private> tags.
func isEntirelyPrivate(text string) bool {
	return strings.TrimSpace(StripPrivateTags(text)) == ""
}

// Clean performs full cleaning on text before it is stored or broadcast.
func Clean(text string) string {
	text = StripPrivateTags(text)
	text = RedactSecrets(text)
	return strings.TrimSpace(text)
}
