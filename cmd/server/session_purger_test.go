package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type fakeSessionManager struct {
	calls chan struct{}
	err   error
}

func newFakeSessionManager() *fakeSessionManager {
	return &fakeSessionManager{calls: make(chan struct{}, 1)}
}

func (f *fakeSessionManager) PurgeExpired() error {
	select {
	case f.calls <- struct{}{}:
	default:
	}
	return f.err
}

func TestRunSessionPurgeSweepsOnTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessions := newFakeSessionManager()
	ticks := make(chan time.Time, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		runSessionPurge(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)), sessions, ticks)
	}()

	ticks <- time.Now()
	select {
	case <-sessions.calls:
	case <-time.After(time.Second):
		t.Fatal("expected purge to be invoked")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after cancellation")
	}
}

func TestRunSessionPurgeLogsErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessions := newFakeSessionManager()
	sessions.err = errors.New("boom")
	ticks := make(chan time.Time, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		runSessionPurge(ctx, nil, sessions, ticks)
	}()

	ticks <- time.Now()
	select {
	case <-sessions.calls:
	case <-time.After(time.Second):
		t.Fatal("expected purge to be invoked despite error")
	}

	cancel()
	<-done
}

func TestStartSessionPurgeWorkerStopIdempotent(t *testing.T) {
	sessions := newFakeSessionManager()
	stop := startSessionPurgeWorker(context.Background(), nil, sessions, time.Hour)
	stop()
	stop()
}

func TestStartSessionPurgeWorkerDisabled(t *testing.T) {
	stop := startSessionPurgeWorker(context.Background(), nil, nil, time.Minute)
	stop()
	stop = startSessionPurgeWorker(context.Background(), nil, newFakeSessionManager(), 0)
	stop()
}
