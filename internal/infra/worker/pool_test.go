//go:build !integration

package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPool(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("runs submitted tasks and drains on stop", func(t *testing.T) {
		p := NewPool(2, 8, &logger)
		p.Start(context.Background())
		var n int32
		for i := 0; i < 6; i++ {
			if err := p.Submit(context.Background(), func(ctx context.Context) error {
				atomic.AddInt32(&n, 1)
				return nil
			}); err != nil {
				t.Fatalf("submit: %v", err)
			}
		}
		p.Stop()
		if got := atomic.LoadInt32(&n); got != 6 {
			t.Errorf("expected 6 tasks to run, got %d", got)
		}
	})

	t.Run("rejects work after stop", func(t *testing.T) {
		p := NewPool(1, 1, &logger)
		p.Start(context.Background())
		p.Stop()
		err := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
		if !errors.Is(err, ErrPoolStopped) {
			t.Errorf("expected ErrPoolStopped, got %v", err)
		}
	})

	t.Run("submit waits for room until ctx is done", func(t *testing.T) {
		p := NewPool(1, 1, &logger) // not started: the queue never drains
		_ = p.Submit(context.Background(), func(ctx context.Context) error { return nil })
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := p.Submit(ctx, func(ctx context.Context) error { return nil })
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})

	t.Run("a panicking task does not kill the worker", func(t *testing.T) {
		p := NewPool(1, 4, &logger)
		p.Start(context.Background())
		done := make(chan struct{})
		_ = p.Submit(context.Background(), func(ctx context.Context) error { panic("boom") })
		_ = p.Submit(context.Background(), func(ctx context.Context) error { close(done); return nil })
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("worker did not survive the panic")
		}
		p.Stop()
	})
}
