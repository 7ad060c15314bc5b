package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
)

// PermalinkPrefix is joined with the item id when show_url is enabled. The
// "twitter" account segment is ignored by the site, which redirects to the
// real author.
const PermalinkPrefix = "https://twitter.com/twitter/status/"

// ErrNoItem is returned by DecodeItem for JSON lines that carry no post.
var ErrNoItem = errors.New("stream line carries no item")

// Item is one post decoded from the feed.
type Item struct {
	ID   string
	Text string
}

type envelope struct {
	Data *struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// IsKeepAlive reports whether line has no JSON object marker at all. The feed
// sends bare newlines to keep the connection open.
func IsKeepAlive(line []byte) bool {
	return bytes.IndexByte(line, '{') < 0
}

// DecodeItem decodes a `{"data":{"id":..,"text":..}}` line.
func DecodeItem(line []byte) (Item, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Item{}, err
	}
	if env.Data == nil || env.Data.Text == "" {
		if len(env.Errors) > 0 {
			// Operational messages, e.g. an upcoming forced disconnect.
			slog.Warn("stream error message", slog.String("title", env.Errors[0].Title), slog.String("detail", env.Errors[0].Detail), slog.String("component", "stream"))
		}
		return Item{}, ErrNoItem
	}
	return Item{ID: env.Data.ID, Text: env.Data.Text}, nil
}

// Format renders item for chat, optionally followed by its permalink.
func Format(item Item, showURL bool) string {
	if showURL && item.ID != "" {
		return item.Text + " " + PermalinkPrefix + item.ID
	}
	return item.Text
}
