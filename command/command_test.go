package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/onnwee/tweetrelay/twitterapi"
)

func TestParse(t *testing.T) {
	tests := []struct {
		text string
		want Command
	}{
		{"help", Command{Kind: Help}},
		{"HELP me", Command{Kind: Help}},
		{"get", Command{Kind: Get}},
		{"Get rules", Command{Kind: Get}},
		{"getaway", Command{Kind: Get}},
		{"add cats has:images", Command{Kind: Add, Arg: "cats has:images"}},
		{"ADD  Cats ", Command{Kind: Add, Arg: "Cats"}},
		{"add", Command{Kind: Unknown}},
		{"add   ", Command{Kind: Unknown}},
		{"addcats", Command{Kind: Unknown}},
		{"del 1234567890", Command{Kind: Del, Arg: "1234567890"}},
		{"Del\t99", Command{Kind: Del, Arg: "99"}},
		{"del", Command{Kind: Unknown}},
		{"delete 5", Command{Kind: Unknown}},
		{"", Command{Kind: Unknown}},
		{"what", Command{Kind: Unknown}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, Parse(tt.text)); diff != "" {
			t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.text, diff)
		}
	}
}

func TestKindString(t *testing.T) {
	for k, want := range map[Kind]string{Help: "help", Get: "get", Add: "add", Del: "del", Unknown: "unknown"} {
		if k.String() != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, k.String(), want)
		}
	}
}

type fakeRules struct {
	rules   []twitterapi.Rule
	listErr error
	add     twitterapi.Mutation
	addErr  error
	del     twitterapi.Mutation
	delErr  error

	mu    sync.Mutex
	calls []string
}

func (f *fakeRules) record(s string) {
	f.mu.Lock()
	f.calls = append(f.calls, s)
	f.mu.Unlock()
}

func (f *fakeRules) List(ctx context.Context) ([]twitterapi.Rule, error) {
	f.record("list")
	return f.rules, f.listErr
}

func (f *fakeRules) Add(ctx context.Context, value string) (twitterapi.Mutation, error) {
	f.record("add " + value)
	return f.add, f.addErr
}

func (f *fakeRules) Delete(ctx context.Context, id string) (twitterapi.Mutation, error) {
	f.record("del " + id)
	return f.del, f.delErr
}

func created(n int) twitterapi.Count { return twitterapi.Count{Value: n, Valid: true} }

func TestDispatch(t *testing.T) {
	tests := []struct {
		name      string
		rules     *fakeRules
		text      string
		want      []string
		wantCalls []string
	}{
		{
			name:  "help",
			rules: &fakeRules{},
			text:  "help",
			want:  HelpText,
		},
		{
			name:      "get empty",
			rules:     &fakeRules{},
			text:      "get",
			want:      []string{NoneReply},
			wantCalls: []string{"list"},
		},
		{
			name:      "get rules",
			rules:     &fakeRules{rules: []twitterapi.Rule{{ID: "1", Value: "cats"}, {ID: "2", Value: "dogs"}}},
			text:      "get",
			want:      []string{"Rule 1 : cats", "Rule 2 : dogs"},
			wantCalls: []string{"list"},
		},
		{
			name:      "get api error",
			rules:     &fakeRules{listErr: &twitterapi.APIError{Status: 401, Message: "Unauthorized"}},
			text:      "get",
			want:      []string{"Unauthorized"},
			wantCalls: []string{"list"},
		},
		{
			name:      "get api error without message",
			rules:     &fakeRules{listErr: &twitterapi.APIError{Status: 500}},
			text:      "get",
			want:      []string{UnknownErrorReply},
			wantCalls: []string{"list"},
		},
		{
			name:      "add ok",
			rules:     &fakeRules{add: twitterapi.Mutation{Created: created(1)}},
			text:      "add cats has:images",
			want:      []string{"OK, added rule: cats has:images"},
			wantCalls: []string{"add cats has:images"},
		},
		{
			name:      "add rejected",
			rules:     &fakeRules{add: twitterapi.Mutation{Error: "Too many rules"}},
			text:      "add cats",
			want:      []string{"Too many rules"},
			wantCalls: []string{"add cats"},
		},
		{
			name:      "add rejected without message",
			rules:     &fakeRules{add: twitterapi.Mutation{Created: created(0)}},
			text:      "add cats",
			want:      []string{UnknownErrorReply},
			wantCalls: []string{"add cats"},
		},
		{
			name:      "add transport failure",
			rules:     &fakeRules{addErr: errors.New("dial tcp: connection refused")},
			text:      "add cats",
			want:      []string{RequestFailReply},
			wantCalls: []string{"add cats"},
		},
		{
			name:      "add undecodable response",
			rules:     &fakeRules{addErr: fmt.Errorf("%w: rules.add", twitterapi.ErrBadResponse)},
			text:      "add cats",
			want:      []string{UnknownErrorReply},
			wantCalls: []string{"add cats"},
		},
		{
			name:      "del ok",
			rules:     &fakeRules{del: twitterapi.Mutation{Deleted: created(1)}},
			text:      "del 42",
			want:      []string{"OK, deleted rule: 42"},
			wantCalls: []string{"del 42"},
		},
		{
			name:      "del rejected",
			rules:     &fakeRules{del: twitterapi.Mutation{Deleted: created(0), Error: "Rule does not exist"}},
			text:      "del 42",
			want:      []string{"Rule does not exist"},
			wantCalls: []string{"del 42"},
		},
		{
			name:  "unknown",
			rules: &fakeRules{},
			text:  "frobnicate",
			want:  []string{UnknownReply},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(tt.rules)
			got := d.Dispatch(context.Background(), tt.text)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Dispatch(%q) mismatch (-want +got):\n%s", tt.text, diff)
			}
			if diff := cmp.Diff(tt.wantCalls, tt.rules.calls); diff != "" {
				t.Errorf("rule calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

type recordingSender struct {
	mu    sync.Mutex
	lines []string
	done  chan struct{}
	want  int
}

func (s *recordingSender) Send(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, text)
	if len(s.lines) == s.want {
		close(s.done)
	}
	return nil
}

func TestHandleSendsAllReplies(t *testing.T) {
	d := NewDispatcher(&fakeRules{})
	out := &recordingSender{done: make(chan struct{}), want: len(HelpText)}
	d.Handle(context.Background(), out, "help")
	select {
	case <-out.done:
	case <-time.After(2 * time.Second):
		t.Fatal("replies not delivered")
	}
	out.mu.Lock()
	defer out.mu.Unlock()
	if diff := cmp.Diff(HelpText, out.lines); diff != "" {
		t.Errorf("replies mismatch (-want +got):\n%s", diff)
	}
}
