// Package command parses chat messages addressed to the relay and turns them
// into rule-management calls.
package command

import "strings"

// Kind identifies a parsed command.
type Kind int

const (
	Unknown Kind = iota
	Help
	Get
	Add
	Del
)

// String returns the command keyword, used as a metrics label.
func (k Kind) String() string {
	switch k {
	case Help:
		return "help"
	case Get:
		return "get"
	case Add:
		return "add"
	case Del:
		return "del"
	default:
		return "unknown"
	}
}

// Command is the tagged result of Parse. Arg holds the rule value for Add and
// the rule id for Del.
type Command struct {
	Kind Kind
	Arg  string
}

// Parse matches text against the command keywords, case-insensitively and by
// prefix, in the order help, get, add, del. The first match wins. add and del
// need a non-empty argument after a space.
func Parse(text string) Command {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)
	switch {
	case strings.HasPrefix(lower, "help"):
		return Command{Kind: Help}
	case strings.HasPrefix(lower, "get"):
		return Command{Kind: Get}
	}
	if arg, ok := argAfter(text, lower, "add"); ok {
		return Command{Kind: Add, Arg: arg}
	}
	if arg, ok := argAfter(text, lower, "del"); ok {
		return Command{Kind: Del, Arg: arg}
	}
	return Command{Kind: Unknown}
}

func argAfter(text, lower, keyword string) (string, bool) {
	if !strings.HasPrefix(lower, keyword) {
		return "", false
	}
	rest := text[len(keyword):]
	if rest == "" || (rest[0] != ' ' && rest[0] != '\t') {
		return "", false
	}
	arg := strings.TrimSpace(rest)
	return arg, arg != ""
}
