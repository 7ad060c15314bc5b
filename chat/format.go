package chat

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxMessageBytes is the longest message body sent to the server before the
// truncation marker is appended.
const MaxMessageBytes = 500

// TruncationMarker is appended to messages cut at MaxMessageBytes.
const TruncationMarker = "[...]"

// Sanitize collapses every run of CR/LF characters into one space and cuts
// the result to MaxMessageBytes, backing off to a rune boundary.
func Sanitize(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	inBreak := false
	for _, r := range text {
		if r == '\n' || r == '\r' {
			if !inBreak {
				sb.WriteByte(' ')
				inBreak = true
			}
			continue
		}
		inBreak = false
		sb.WriteRune(r)
	}
	out := sb.String()
	if len(out) <= MaxMessageBytes {
		return out
	}
	cut := MaxMessageBytes
	for cut > 0 && !utf8.RuneStart(out[cut]) {
		cut--
	}
	return out[:cut] + TruncationMarker
}

// Addressed reports whether text is addressed to nick: the nickname
// (case-insensitive), an optional ':' or ',', then whitespace or end of text.
// It returns the remainder with surrounding whitespace removed.
func Addressed(nick, text string) (string, bool) {
	if nick == "" || len(text) < len(nick) || !strings.EqualFold(text[:len(nick)], nick) {
		return "", false
	}
	rest := text[len(nick):]
	if strings.HasPrefix(rest, ":") || strings.HasPrefix(rest, ",") {
		rest = rest[1:]
	}
	if rest != "" {
		r, _ := utf8.DecodeRuneInString(rest)
		if !unicode.IsSpace(r) {
			return "", false
		}
	}
	return strings.TrimSpace(rest), true
}
