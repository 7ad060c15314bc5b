package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/onnwee/tweetrelay/db"
	"github.com/onnwee/tweetrelay/stream"
	"github.com/onnwee/tweetrelay/telemetry"
)

const maxPublishedLimit = 200

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	channel string
	stream  StreamStatus
	chat    ChatStatus
	db      *sql.DB
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{
		channel: deps.Channel,
		stream:  deps.Stream,
		chat:    deps.Chat,
		db:      deps.DB,
	}
}

// Status is the /status response body.
type Status struct {
	Channel    string       `json:"channel"`
	ChatJoined bool         `json:"chat_joined"`
	Stream     stream.Stats `json:"stream"`
}

// HandleHealthz answers liveness checks. The process is alive as long as it
// can answer.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports ready once the bot is in its channel and the feed is
// connected, and the journal database (if any) answers a ping.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"chat", func() error {
			if h.chat == nil || !h.chat.Joined() {
				return errors.New("not joined")
			}
			return nil
		}},
		{"stream", func() error {
			if h.stream == nil || !h.stream.Stats().Connected {
				return errors.New("not connected")
			}
			return nil
		}},
		{"database", func() error {
			if h.db == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			return h.db.PingContext(ctx)
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleStatus returns the relay state as JSON.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st := Status{Channel: h.channel}
	if h.chat != nil {
		st.ChatJoined = h.chat.Joined()
	}
	if h.stream != nil {
		st.Stream = h.stream.Stats()
	}
	writeJSON(w, http.StatusOK, st)
}

// HandlePublished lists the most recently published items from the journal.
// ?limit=N (1..200, default 50).
func (h *Handlers) HandlePublished(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.db == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPublishedLimit {
			http.Error(w, "limit must be between 1 and 200", http.StatusBadRequest)
			return
		}
		limit = n
	}
	items, err := db.RecentPublished(r.Context(), h.db, limit)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("list published items", slog.Any("err", err), slog.String("component", "http"))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("encode response", slog.Any("err", err))
	}
}
