package journal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/tweetrelay/db"
	"github.com/onnwee/tweetrelay/testutil"
)

type memStore struct {
	mu    sync.Mutex
	ids   []string
	fail  map[string]bool
	block chan struct{}
}

func (m *memStore) InsertPublished(ctx context.Context, itemID, text string, at time.Time) error {
	if m.block != nil {
		<-m.block
	}
	if m.fail[itemID] {
		return errors.New("insert failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, itemID)
	return nil
}

func (m *memStore) written() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ids...)
}

func TestWriterPreservesOrderAndSkipsFailures(t *testing.T) {
	store := &memStore{fail: map[string]bool{"2": true}}
	w := NewWriter(store, 8)
	now := time.Now()
	for _, id := range []string{"1", "2", "3"} {
		w.Append(id, "text "+id, now)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	got := store.written()
	if len(got) != 2 || got[0] != "1" || got[1] != "3" {
		t.Errorf("written = %v, want [1 3]", got)
	}
}

func TestAppendDropsWhenFull(t *testing.T) {
	store := &memStore{block: make(chan struct{})}
	w := NewWriter(store, 1)
	now := time.Now()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// The worker holds at most one entry and the queue one more; the
		// rest must be dropped without blocking.
		for i := 0; i < 10; i++ {
			w.Append("x", "x", now)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Append blocked on a full queue")
	}

	close(store.block)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if n := len(store.written()); n < 1 || n > 2 {
		t.Errorf("written %d entries, want 1 or 2", n)
	}
}

func TestAppendConcurrentWithClose(t *testing.T) {
	store := &memStore{}
	w := NewWriter(store, 4)
	now := time.Now()

	var wg sync.WaitGroup
	start := make(chan struct{})
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for i := 0; i < 200; i++ {
				w.Append("x", "x", now)
			}
		}()
	}
	close(start)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	wg.Wait()

	// Appends after Close are dropped, not a send on a closed channel.
	w.Append("late", "late", now)
	if err := w.Close(ctx); err != nil {
		t.Errorf("second close: %v", err)
	}
	for _, id := range store.written() {
		if id == "late" {
			t.Error("entry appended after Close was written")
		}
	}
}

func TestCloseHonorsContext(t *testing.T) {
	store := &memStore{block: make(chan struct{})}
	defer close(store.block)
	w := NewWriter(store, 4)
	w.Append("1", "a", time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := w.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close error = %v, want deadline exceeded", err)
	}
}

func TestDBStore(t *testing.T) {
	database := testutil.SetupTestDB(t)
	w := NewWriter(DBStore{DB: database}, 4)
	at := time.Date(2024, 10, 15, 12, 0, 0, 0, time.UTC)
	w.Append("123", "hello", at)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	items, err := db.RecentPublished(ctx, database, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(items) != 1 || items[0].ItemID != "123" || items[0].Text != "hello" || !items[0].PublishedAt.Equal(at) {
		t.Errorf("items = %+v", items)
	}
}
