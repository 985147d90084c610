package main

import (
	"context"
	"testing"
	"time"
)

func TestRunHoldsSingleWinner(t *testing.T) {
	for _, backend := range []string{"memory", "miniredis"} {
		t.Run(backend, func(t *testing.T) {
			violations, err := run(context.Background(), options{
				sessions:    20,
				duplicates:  4,
				rounds:      3,
				concurrency: 16,
				backend:     backend,
			})
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if violations != 0 {
				t.Fatalf("expected no violations, got %d", violations)
			}
		})
	}
}

func TestRunRejectsUnknownBackend(t *testing.T) {
	if _, err := run(context.Background(), options{sessions: 1, duplicates: 1, rounds: 1, concurrency: 1, backend: "etcd"}); err == nil {
		t.Fatal("expected unknown backend to fail")
	}
}

func TestPercentile(t *testing.T) {
	s := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentile(s, 50); got != 5 {
		t.Fatalf("p50 = %d", got)
	}
	if got := percentile(s, 100); got != 10 {
		t.Fatalf("p100 = %d", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("empty = %d", got)
	}
}

func TestSummarizeOrdersSamples(t *testing.T) {
	var l latencies
	for _, d := range []time.Duration{40, 10, 30, 20} {
		l.record(d)
	}
	s := l.summarize("winner", time.Second)
	if s.count != 4 || s.p50 != 20 || s.max != 40 || s.perSec != 4 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if empty := (&latencies{}).summarize("loser", time.Second); empty.count != 0 || empty.max != 0 {
		t.Fatalf("unexpected empty summary %+v", empty)
	}
}
