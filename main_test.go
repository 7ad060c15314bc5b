package main

import (
	"bytes"
	"errors"
	"flag"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    cliOptions
		wantErr bool
	}{
		{"config only", []string{"relay.conf"}, cliOptions{configPath: "relay.conf"}, false},
		{"addr override", []string{"-addr", ":9090", "relay.conf"}, cliOptions{configPath: "relay.conf", addr: ":9090", addrSet: true}, false},
		{"addr disables", []string{"-addr=", "relay.conf"}, cliOptions{configPath: "relay.conf", addrSet: true}, false},
		{"missing config", nil, cliOptions{}, true},
		{"two configs", []string{"a.conf", "b.conf"}, cliOptions{}, true},
		{"unknown flag", []string{"-port", "1", "relay.conf"}, cliOptions{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got, err := parseArgs("tweetrelay", tt.args, &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseArgs(%q) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if tt.wantErr {
				if !strings.Contains(out.String(), "usage:") {
					t.Errorf("usage not printed, output %q", out.String())
				}
				return
			}
			if diff := cmp.Diff(tt.want, got, cmp.AllowUnexported(cliOptions{})); diff != "" {
				t.Errorf("parseArgs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseArgsHelp(t *testing.T) {
	var out bytes.Buffer
	_, err := parseArgs("tweetrelay", []string{"-h"}, &out)
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("parseArgs(-h) = %v, want flag.ErrHelp", err)
	}
	if !strings.Contains(out.String(), "-addr") {
		t.Errorf("help output missing -addr: %q", out.String())
	}
}
