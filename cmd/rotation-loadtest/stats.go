package main

import (
	"fmt"
	"io"
	"slices"
	"sync"
	"text/tabwriter"
	"time"
)

// latencies collects per-presentation durations for one rotation outcome.
type latencies struct {
	mu sync.Mutex
	d  []time.Duration
}

func (l *latencies) record(d time.Duration) {
	l.mu.Lock()
	l.d = append(l.d, d)
	l.mu.Unlock()
}

type summary struct {
	outcome string
	count   int
	perSec  float64
	p50     time.Duration
	p95     time.Duration
	p99     time.Duration
	max     time.Duration
}

func (l *latencies) summarize(outcome string, elapsed time.Duration) summary {
	l.mu.Lock()
	sorted := slices.Clone(l.d)
	l.mu.Unlock()

	s := summary{outcome: outcome, count: len(sorted)}
	if len(sorted) == 0 {
		return s
	}
	slices.Sort(sorted)
	if elapsed > 0 {
		s.perSec = float64(len(sorted)) / elapsed.Seconds()
	}
	s.p50 = percentile(sorted, 50)
	s.p95 = percentile(sorted, 95)
	s.p99 = percentile(sorted, 99)
	s.max = sorted[len(sorted)-1]
	return s
}

// percentile uses the nearest rank below p on an ascending slice.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	p = max(0, min(p, 100))
	return sorted[(len(sorted)-1)*p/100]
}

func writeSummaries(w io.Writer, rows ...summary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "outcome\tcount\tper sec\tp50\tp95\tp99\tmax\t")
	for _, s := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%.0f\t%s\t%s\t%s\t%s\t\n",
			s.outcome, s.count, s.perSec,
			s.p50.Round(time.Microsecond),
			s.p95.Round(time.Microsecond),
			s.p99.Round(time.Microsecond),
			s.max.Round(time.Microsecond))
	}
	_ = tw.Flush()
}
