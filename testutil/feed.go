package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// FeedSession scripts one connection to a FeedServer.
type FeedSession struct {
	// Status other than 0 or 200 is written with Body and the connection ends.
	Status int
	Body   string
	// Lines are written one per line, each followed by CRLF and a flush.
	Lines []string
	// Hold keeps the response open after Lines until the client goes away.
	Hold bool
}

// FeedServer mocks the filtered-stream endpoint. Connections beyond the
// scripted sessions are held open with no data.
type FeedServer struct {
	*httptest.Server
	Token string

	mu       sync.Mutex
	sessions []FeedSession
	hits     int
}

// NewFeedServer starts a server requiring "Bearer <token>".
func NewFeedServer(t *testing.T, token string, sessions ...FeedSession) *FeedServer {
	t.Helper()
	f := &FeedServer{Token: token, sessions: sessions}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

// Hits returns the number of connections accepted so far.
func (f *FeedServer) Hits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits
}

func (f *FeedServer) serve(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+f.Token {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"title":"Unauthorized","status":401}`)
		return
	}

	f.mu.Lock()
	idx := f.hits
	f.hits++
	var s FeedSession
	if idx < len(f.sessions) {
		s = f.sessions[idx]
	} else {
		s = FeedSession{Hold: true}
	}
	f.mu.Unlock()

	if s.Status != 0 && s.Status != http.StatusOK {
		w.WriteHeader(s.Status)
		_, _ = io.WriteString(w, s.Body)
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}
	for _, line := range s.Lines {
		_, _ = io.WriteString(w, line+"\r\n")
		if flusher != nil {
			flusher.Flush()
		}
	}
	if s.Hold {
		<-r.Context().Done()
	}
}
