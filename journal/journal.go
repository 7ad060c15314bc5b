// Package journal records published items off the publish path.
//
// Append never blocks: entries go into a bounded queue drained by a single
// worker. When the queue is full the entry is dropped and counted. The
// journal is an audit trail only; nothing reads it back into the gate.
package journal

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/tweetrelay/db"
	"github.com/onnwee/tweetrelay/telemetry"
)

// DefaultQueueSize bounds the number of pending entries.
const DefaultQueueSize = 256

const writeTimeout = 5 * time.Second

// Store persists one entry.
type Store interface {
	InsertPublished(ctx context.Context, itemID, text string, at time.Time) error
}

// DBStore writes to the published_items table.
type DBStore struct{ DB *sql.DB }

// InsertPublished implements Store.
func (s DBStore) InsertPublished(ctx context.Context, itemID, text string, at time.Time) error {
	return db.InsertPublished(ctx, s.DB, itemID, text, at)
}

type entry struct {
	id   string
	text string
	at   time.Time
}

// Writer is an asynchronous journal.
type Writer struct {
	store Store
	queue chan entry

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewWriter starts the worker. Call Close to flush and stop it.
func NewWriter(store Store, queueSize int) *Writer {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	w := &Writer{
		store: store,
		queue: make(chan entry, queueSize),
		done:  make(chan struct{}),
	}
	go w.loop()
	return w
}

// Append queues an entry, dropping it when the queue is full or the writer
// is closed. It is safe to call concurrently with Close.
func (w *Writer) Append(id, text string, at time.Time) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		telemetry.IncJournal("dropped")
		slog.Debug("journal closed; dropping entry", slog.String("id", id), slog.String("component", "journal"))
		return
	}
	select {
	case w.queue <- entry{id: id, text: text, at: at}:
	default:
		telemetry.IncJournal("dropped")
		slog.Warn("journal queue full; dropping entry", slog.String("id", id), slog.String("component", "journal"))
	}
}

// Close stops accepting entries and waits until the queue is drained or ctx
// expires. Entries appended after Close are dropped.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) loop() {
	defer close(w.done)
	for e := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := w.store.InsertPublished(ctx, e.id, e.text, e.at)
		cancel()
		if err != nil {
			telemetry.IncJournal("error")
			slog.Warn("journal write failed", slog.Any("err", err), slog.String("id", e.id), slog.String("component", "journal"))
			continue
		}
		telemetry.IncJournal("ok")
	}
}
