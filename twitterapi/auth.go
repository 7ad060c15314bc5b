// Package twitterapi contains minimal helpers for the filtered-stream API:
// bearer authentication shared by the stream and rule calls, and the rule
// management client used by chat commands.
package twitterapi

import (
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// BearerTransport returns a RoundTripper that sets "Authorization: Bearer
// <token>" on every request. A nil base gets its own clone of the default
// transport, so connections are never shared with other clients.
func BearerTransport(base http.RoundTripper, token string) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	return &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
		Base:   base,
	}
}

// NewBearerClient returns an http.Client with a private transport, the bearer
// credential and the given overall request timeout.
func NewBearerClient(token string, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: BearerTransport(nil, token),
		Timeout:   timeout,
	}
}
