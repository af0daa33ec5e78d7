package main

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type sessionPurger interface {
	PurgeExpired() error
}

// startSessionPurgeWorker sweeps expired sessions on the given interval until
// the context is cancelled. The returned stop function blocks until the worker
// has exited and is safe to call more than once.
func startSessionPurgeWorker(ctx context.Context, logger *slog.Logger, sessions sessionPurger, interval time.Duration) func() {
	if sessions == nil || interval <= 0 {
		return func() {}
	}
	ticker := time.NewTicker(interval)
	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer ticker.Stop()
		runSessionPurge(workerCtx, logger, sessions, ticker.C)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func runSessionPurge(ctx context.Context, logger *slog.Logger, sessions sessionPurger, ticks <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			if err := sessions.PurgeExpired(); err != nil && logger != nil {
				logger.Error("failed to purge expired sessions", "error", err)
			}
		}
	}
}
