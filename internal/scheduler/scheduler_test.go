package scheduler

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type countingCleaner struct {
	calls atomic.Int32
	err   error
}

func (c *countingCleaner) CleanupExpired(ctx context.Context) (int, error) {
	c.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("missing deadline")
	}
	return 3, c.err
}

func TestNewRejectsBadArguments(t *testing.T) {
	if _, err := New(nil, time.Minute, 0, zerolog.Nop()); err == nil {
		t.Fatal("expected nil cleaner to fail")
	}
	if _, err := New(&countingCleaner{}, 0, 0, zerolog.Nop()); err == nil {
		t.Fatal("expected zero interval to fail")
	}
}

func TestRunOnceAppliesTimeout(t *testing.T) {
	c := &countingCleaner{}
	s, err := New(c, time.Hour, time.Second, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n, err := s.RunOnce(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("RunOnce = %d, %v", n, err)
	}
}

func TestStartRunsCleanupAndLogsFailures(t *testing.T) {
	out := &syncWriter{buf: &bytes.Buffer{}}
	logger := zerolog.New(out)
	c := &countingCleaner{err: errors.New("store down")}

	s, err := New(c, time.Hour, time.Second, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), "refresh token cleanup failed") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	s.Stop()

	if c.calls.Load() == 0 {
		t.Fatal("expected cleanup to run on start")
	}
	if !strings.Contains(out.String(), "refresh token cleanup failed") {
		t.Fatalf("expected failure to be logged, got %q", out.String())
	}
}

type syncWriter struct {
	mu  sync.Mutex
	buf *bytes.Buffer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *syncWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}
