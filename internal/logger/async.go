package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// asyncHandler decouples log emission from I/O. Records are queued onto a
// bounded channel and written by a single background drainer; when the
// queue is full the record is dropped and counted instead of blocking the
// caller.
type asyncHandler struct {
	inner   slog.Handler
	queue   chan slog.Record
	done    *sync.WaitGroup
	dropped *atomic.Int64
}

func newAsyncHandler(inner slog.Handler, buffer int) *asyncHandler {
	h := &asyncHandler{
		inner:   inner,
		queue:   make(chan slog.Record, buffer),
		done:    &sync.WaitGroup{},
		dropped: &atomic.Int64{},
	}
	h.done.Add(1)
	go func() {
		defer h.done.Done()
		for rec := range h.queue {
			_ = h.inner.Handle(context.Background(), rec)
		}
	}()
	return h
}

func (h *asyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *asyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface
	select {
	case h.queue <- rec:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// WithAttrs and WithGroup share the queue and drainer; only the inner
// handler changes.
func (h *asyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &asyncHandler{inner: h.inner.WithAttrs(attrs), queue: h.queue, done: h.done, dropped: h.dropped}
}

func (h *asyncHandler) WithGroup(name string) slog.Handler {
	return &asyncHandler{inner: h.inner.WithGroup(name), queue: h.queue, done: h.done, dropped: h.dropped}
}

// close stops the drainer after flushing queued records and returns how
// many records were dropped while the queue was full.
func (h *asyncHandler) close() int64 {
	close(h.queue)
	h.done.Wait()
	return h.dropped.Load()
}
