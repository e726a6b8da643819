package logger

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// recordingHandler collects records so tests can assert on delivery.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
	delay   time.Duration // slows the sink down to force queue pressure
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	h.mu.Lock()
	h.records = append(h.records, rec)
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

func record(msg string) slog.Record {
	return slog.NewRecord(time.Now(), slog.LevelInfo, msg, 0)
}

func TestAsyncHandlerDeliversRecord(t *testing.T) {
	inner := &recordingHandler{}
	ah := NewAsyncHandler(inner, 100, 1)

	if err := ah.Handle(context.Background(), record("hello")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	ah.Close()

	if got := inner.count(); got != 1 {
		t.Fatalf("records delivered = %d, want 1", got)
	}
}

func TestAsyncHandlerConcurrentWrites(t *testing.T) {
	const goroutines = 100
	const perGoroutine = 100
	total := goroutines * perGoroutine

	inner := &recordingHandler{}
	ah := NewAsyncHandler(inner, 10000, 4)

	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perGoroutine {
				_ = ah.Handle(context.Background(), record("concurrent"))
			}
		}()
	}
	wg.Wait()
	ah.Close()

	if got := inner.count(); got != total {
		t.Fatalf("records delivered = %d, want %d", got, total)
	}
}

func TestAsyncHandlerCloseFlushesQueue(t *testing.T) {
	inner := &recordingHandler{}
	ah := NewAsyncHandler(inner, 1000, 2)

	const total = 200
	for range total {
		_ = ah.Handle(context.Background(), record("flush"))
	}

	// Close must not return before every queued record is written.
	ah.Close()

	if got := inner.count(); got != total {
		t.Fatalf("records after close = %d, want %d", got, total)
	}
}

func TestAsyncHandlerDropsOnFullQueue(t *testing.T) {
	inner := &recordingHandler{delay: 20 * time.Millisecond}
	ah := NewAsyncHandler(inner, 1, 1)

	for range 50 {
		_ = ah.Handle(context.Background(), record("burst"))
	}

	if got := ah.DroppedCount(); got == 0 {
		t.Fatalf("dropped = %d, want > 0 when the queue is full and the sink is slow", got)
	}
	ah.Close()
}
