package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/onnwee/tweetrelay/telemetry"
	"github.com/onnwee/tweetrelay/twitterapi"
)

// Reply texts.
const (
	NoneReply         = "(none)"
	UnknownReply      = "Unknown command, try help"
	UnknownErrorReply = "unknown error"
	RequestFailReply  = "request failed, see logs"
)

// HelpText is sent line by line in answer to help.
var HelpText = []string{
	"Commands:",
	"  get          list the active stream rules",
	"  add <value>  add a stream rule, e.g. add cats has:images",
	"  del <id>     delete a stream rule by id (see get)",
	"  help         show this message",
}

// RuleAPI is the rule-management collaborator.
type RuleAPI interface {
	List(ctx context.Context) ([]twitterapi.Rule, error)
	Add(ctx context.Context, value string) (twitterapi.Mutation, error)
	Delete(ctx context.Context, id string) (twitterapi.Mutation, error)
}

// Sender delivers reply lines to chat.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Dispatcher executes parsed commands. It keeps no state between calls, so
// concurrent Dispatch calls are safe.
type Dispatcher struct {
	rules RuleAPI
}

// NewDispatcher returns a dispatcher backed by rules.
func NewDispatcher(rules RuleAPI) *Dispatcher {
	return &Dispatcher{rules: rules}
}

// Dispatch parses text, runs the command and returns the reply lines.
// Failures are reported in the replies; nothing is retried.
func (d *Dispatcher) Dispatch(ctx context.Context, text string) []string {
	cmd := Parse(text)
	replies, outcome := d.run(ctx, cmd)
	telemetry.IncCommand(cmd.Kind.String(), outcome)
	return replies
}

func (d *Dispatcher) run(ctx context.Context, cmd Command) ([]string, string) {
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "command"), slog.String("command", cmd.Kind.String()))
	switch cmd.Kind {
	case Help:
		return append([]string(nil), HelpText...), "ok"

	case Get:
		rules, err := d.rules.List(ctx)
		if err != nil {
			log.Warn("list rules failed", slog.Any("err", err))
			return []string{failureReply(err)}, "error"
		}
		if len(rules) == 0 {
			return []string{NoneReply}, "ok"
		}
		out := make([]string, 0, len(rules))
		for _, r := range rules {
			out = append(out, fmt.Sprintf("Rule %s : %s", r.ID, r.Value))
		}
		return out, "ok"

	case Add:
		m, err := d.rules.Add(ctx, cmd.Arg)
		if err != nil {
			log.Warn("add rule failed", slog.Any("err", err))
			return []string{failureReply(err)}, "error"
		}
		if m.Created.Valid && m.Created.Value == 1 {
			log.Info("rule added", slog.String("value", cmd.Arg))
			return []string{"OK, added rule: " + cmd.Arg}, "ok"
		}
		return []string{m.ErrorOr(UnknownErrorReply)}, "rejected"

	case Del:
		m, err := d.rules.Delete(ctx, cmd.Arg)
		if err != nil {
			log.Warn("delete rule failed", slog.Any("err", err))
			return []string{failureReply(err)}, "error"
		}
		if m.Deleted.Valid && m.Deleted.Value == 1 {
			log.Info("rule deleted", slog.String("id", cmd.Arg))
			return []string{"OK, deleted rule: " + cmd.Arg}, "ok"
		}
		return []string{m.ErrorOr(UnknownErrorReply)}, "rejected"
	}
	return []string{UnknownReply}, "unknown"
}

// failureReply picks the chat text for a failed call: the upstream message
// when the API answered with one.
func failureReply(err error) string {
	var apiErr *twitterapi.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return UnknownErrorReply
	}
	if errors.Is(err, twitterapi.ErrBadResponse) {
		return UnknownErrorReply
	}
	return RequestFailReply
}

// Handle runs text on its own goroutine and sends every reply line through
// out. Commands are independent; replies of overlapping commands may
// interleave.
func (d *Dispatcher) Handle(ctx context.Context, out Sender, text string) {
	go func() {
		for _, line := range d.Dispatch(ctx, text) {
			if err := out.Send(ctx, line); err != nil {
				slog.Warn("command reply not sent", slog.Any("err", err), slog.String("component", "command"))
				return
			}
		}
	}()
}
