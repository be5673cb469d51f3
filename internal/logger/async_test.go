package logger

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/Strob0t/AgentFleet/internal/config"
)

type captureHandler struct {
	mu   sync.Mutex
	recs []slog.Record
}

func (c *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (c *captureHandler) Handle(_ context.Context, rec slog.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs = append(c.recs, rec)
	return nil
}

func (c *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return c }
func (c *captureHandler) WithGroup(string) slog.Handler      { return c }

func (c *captureHandler) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.recs)
}

type blockingHandler struct {
	captureHandler
	release chan struct{}
}

func (b *blockingHandler) Handle(ctx context.Context, rec slog.Record) error {
	<-b.release
	return b.captureHandler.Handle(ctx, rec)
}

func TestAsyncFlushOnClose(t *testing.T) {
	inner := &captureHandler{}
	h := newAsyncHandler(inner, 16)
	log := slog.New(h)

	for i := range 5 {
		log.Info("record", "i", i)
	}

	if dropped := h.close(); dropped != 0 {
		t.Errorf("dropped = %d, want 0", dropped)
	}
	if got := inner.count(); got != 5 {
		t.Errorf("records written = %d, want 5", got)
	}
}

func TestAsyncDropsWhenQueueFull(t *testing.T) {
	inner := &blockingHandler{release: make(chan struct{})}
	h := newAsyncHandler(inner, 1)
	log := slog.New(h)

	// With the drainer blocked, at most one record can sit in the queue
	// and one in the drainer; the rest must drop, not block.
	log.Info("a")
	log.Info("b")
	log.Info("c")

	close(inner.release)
	if dropped := h.close(); dropped == 0 {
		t.Error("expected drops with full queue")
	}
}

func TestNewAsyncSynchronousMode(t *testing.T) {
	log, closeLog := NewAsync(config.Logging{Level: "info", Service: "test"})
	defer closeLog()
	if log == nil {
		t.Fatal("nil logger")
	}
	if !log.Enabled(nil, slog.LevelInfo) {
		t.Error("info disabled")
	}
}
