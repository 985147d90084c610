package prometheus

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

type metricsSource interface {
	MetricsSnapshot() goSession.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders a metrics source on every scrape. It implements
// http.Handler.
type Exporter struct {
	source metricsSource
	labels []string
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithConstLabels attaches fixed labels, e.g. an instance name, to every
// series. Labels are rendered in key order.
func WithConstLabels(labels map[string]string) Option {
	return func(e *Exporter) {
		keys := make([]string, 0, len(labels))
		for k := range labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		e.labels = e.labels[:0]
		for _, k := range keys {
			e.labels = append(e.labels, fmt.Sprintf("%s=%q", k, labels[k]))
		}
	}
}

// New reads from engine.
func New(engine *goSession.Engine, opts ...Option) *Exporter {
	return NewFromSource(engine, opts...)
}

// NewFromSource reads from any snapshot source.
func NewFromSource(source metricsSource, opts ...Option) *Exporter {
	e := &Exporter{source: source}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Exporter) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", contentType)
	_ = e.Write(w)
}

// Render returns the exposition text, or "" when metrics are disabled.
func (e *Exporter) Render() string {
	var b strings.Builder
	_ = e.Write(&b)
	return b.String()
}

// Write renders the exposition into w. Nothing is written when metrics are
// disabled.
func (e *Exporter) Write(w io.Writer) error {
	if e == nil || e.source == nil {
		return nil
	}
	snapshot := e.source.MetricsSnapshot()
	dropped := e.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return nil
	}

	bw := bufio.NewWriterSize(w, 4096)
	for _, def := range internaldefs.CounterDefs {
		e.counter(bw, def.Name, def.Help, snapshot.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		buckets := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		e.histogram(bw, def.Name, def.Help, buckets)
	}
	e.counter(bw, "gosession_audit_dropped_total", "Audit events dropped by a full dispatcher buffer.", dropped)
	return bw.Flush()
}

func (e *Exporter) counter(w *bufio.Writer, name, help string, value uint64) {
	header(w, name, help, "counter")
	fmt.Fprintf(w, "%s%s %d\n", name, e.labelSet(), value)
}

func (e *Exporter) histogram(w *bufio.Writer, name, help string, cumulative [goSession.HistogramBucketCount]uint64) {
	header(w, name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		fmt.Fprintf(w, "%s_bucket%s %d\n", name, e.labelSet(fmt.Sprintf("le=%q", le)), cumulative[i])
	}
	fmt.Fprintf(w, "%s_count%s %d\n", name, e.labelSet(), cumulative[len(cumulative)-1])
	// Only bucket counts are tracked.
	fmt.Fprintf(w, "%s_sum%s 0\n", name, e.labelSet())
}

func (e *Exporter) labelSet(extra ...string) string {
	if len(e.labels) == 0 && len(extra) == 0 {
		return ""
	}
	all := append(append(make([]string, 0, len(e.labels)+len(extra)), e.labels...), extra...)
	return "{" + strings.Join(all, ",") + "}"
}

func header(w *bufio.Writer, name, help, kind string) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", name, escapeHelp(help), name, kind)
}

func escapeHelp(help string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(help)
}
