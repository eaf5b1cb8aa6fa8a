package persistence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jwebster45206/dialogue-engine/pkg/storage"
)

type writeOp struct {
	key    string
	value  string
	remove bool
	reason string
}

// writer owns all backend writes for a store. Only the most recent pending
// operation is kept; older ones are superseded before they reach the backend.
type writer struct {
	backend storage.Backend
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	pending *writeOp
	closed  bool

	wake    chan struct{}
	flushes chan chan struct{}
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func newWriter(backend storage.Backend, logger *slog.Logger, timeout time.Duration) *writer {
	w := &writer{
		backend: backend,
		logger:  logger,
		timeout: timeout,
		wake:    make(chan struct{}, 1),
		flushes: make(chan chan struct{}),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *writer) enqueue(op writeOp) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.logger.Warn("Store closed, dropping write", "key", op.key, "reason", op.reason)
		return
	}
	if w.pending != nil {
		w.logger.Debug("Superseding pending write", "reason", w.pending.reason, "by", op.reason)
	}
	w.pending = &op
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *writer) run() {
	defer close(w.stopped)
	for {
		select {
		case <-w.wake:
			w.drain()
		case done := <-w.flushes:
			w.drain()
			close(done)
		case <-w.quit:
			w.drain()
			return
		}
	}
}

func (w *writer) drain() {
	for {
		w.mu.Lock()
		op := w.pending
		w.pending = nil
		w.mu.Unlock()
		if op == nil {
			return
		}
		w.write(*op)
	}
}

func (w *writer) write(op writeOp) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if op.remove {
		if err := w.backend.RemoveItem(ctx, op.key); err != nil {
			w.logger.Error("Failed to remove game state", "key", op.key, "reason", op.reason, "error", err)
			return
		}
		w.logger.Debug("Removed game state", "key", op.key, "reason", op.reason)
		return
	}

	if err := w.backend.SetItem(ctx, op.key, op.value); err != nil {
		w.logger.Error("Failed to persist game state", "key", op.key, "reason", op.reason, "bytes", len(op.value), "error", err)
		return
	}
	w.logger.Debug("Persisted game state", "key", op.key, "reason", op.reason, "bytes", len(op.value))
}

func (w *writer) flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case w.flushes <- done:
	case <-w.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *writer) close() {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		close(w.quit)
	})
	<-w.stopped
}
