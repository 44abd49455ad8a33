// Package plugins contains the command implementations the bot ships
// with. Each plugin satisfies bot.Plugin; command business logic stays
// here, routing and transport stay out.
package plugins

import "strings"

// args returns the message text after the command token, trimmed. The
// router hands plugins the invocation with the prefix already stripped,
// so the command token is the first whitespace-delimited word.
func args(message string) string {
	trimmed := strings.TrimSpace(message)
	if idx := strings.IndexFunc(trimmed, isSpace); idx != -1 {
		return strings.TrimSpace(trimmed[idx:])
	}
	return ""
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
