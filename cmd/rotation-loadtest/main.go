// Command rotation-loadtest seeds sessions and rotates each refresh token
// from several goroutines at once, checking that exactly one presentation
// wins every round. It reports latency percentiles per outcome.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"golang.org/x/sync/errgroup"

	goSession "github.com/MrEthical07/goSession"
	otelexport "github.com/MrEthical07/goSession/metrics/export/otel"
	"github.com/MrEthical07/goSession/store"
)

type staticUsers struct{}

func (staticUsers) GetUserByID(_ context.Context, id string) (goSession.Principal, error) {
	return goSession.Principal{ID: id}, nil
}

type options struct {
	sessions    int
	duplicates  int
	rounds      int
	concurrency int
	backend     string
	redisAddr   string
}

func main() {
	var opt options
	flag.IntVar(&opt.sessions, "sessions", 2000, "number of sessions to seed")
	flag.IntVar(&opt.duplicates, "dup", 4, "concurrent presentations of each refresh token per round")
	flag.IntVar(&opt.rounds, "rounds", 5, "rotation rounds per session")
	flag.IntVar(&opt.concurrency, "concurrency", 256, "maximum in-flight rotations")
	flag.StringVar(&opt.backend, "backend", "miniredis", "store backend: memory, redis or miniredis")
	flag.StringVar(&opt.redisAddr, "redis-addr", "", "redis address for -backend redis; REDIS_ADDR when empty")
	flag.Parse()

	if opt.sessions <= 0 || opt.duplicates <= 0 || opt.rounds <= 0 || opt.concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, dup, rounds and concurrency must be > 0")
		os.Exit(2)
	}

	violations, err := run(context.Background(), opt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loadtest: %v\n", err)
		os.Exit(1)
	}
	if violations > 0 {
		fmt.Fprintf(os.Stderr, "single-winner violated %d times\n", violations)
		os.Exit(1)
	}
}

func run(ctx context.Context, opt options) (int64, error) {
	tokens, cleanup, err := openStore(opt)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	cfg := goSession.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("loadtest-loadtest-loadtest-loadtest")
	cfg.RateLimit.Enabled = false
	cfg.Metrics.Enabled = true

	engine, err := goSession.New().
		WithConfig(cfg).
		WithStore(tokens).
		WithUserProvider(staticUsers{}).
		WithLogger(zerolog.Nop()).
		Build()
	if err != nil {
		return 0, err
	}
	defer engine.Close()

	current := make([]string, opt.sessions)
	fmt.Printf("seeding %d sessions...\n", opt.sessions)
	startSeed := time.Now()
	for i := range current {
		pair, err := engine.IssueSession(ctx, goSession.Principal{ID: fmt.Sprintf("u-%d", i)})
		if err != nil {
			return 0, fmt.Errorf("seed session %d: %w", i, err)
		}
		current[i] = pair.RefreshToken
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	var (
		violations int64
		won, lost  latencies
	)
	start := time.Now()
	for round := 0; round < opt.rounds; round++ {
		v, err := rotateRound(ctx, engine, current, opt, &won, &lost)
		if err != nil {
			return violations, err
		}
		violations += v
	}
	total := time.Since(start)

	fmt.Println("---- results ----")
	writeSummaries(os.Stdout, won.summarize("winner", total), lost.summarize("loser", total))
	if err := printMetrics(ctx, engine); err != nil {
		return violations, err
	}
	return violations, nil
}

var reportedCounters = []string{
	"gosession_rotate_success_total",
	"gosession_rotate_race_lost_total",
	"gosession_rotate_invalid_total",
	"gosession_rotate_transient_total",
}

// printMetrics collects the engine counters through the OpenTelemetry
// exporter, the same path a deployed service would scrape.
func printMetrics(ctx context.Context, engine *goSession.Engine) error {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(ctx) }()

	exporter, err := otelexport.New(provider.Meter("rotation-loadtest"), engine)
	if err != nil {
		return err
	}
	defer exporter.Close()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("collect metrics: %w", err)
	}

	values := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					values[m.Name] += dp.Value
				}
			}
		}
	}
	fmt.Println("---- metrics ----")
	for _, name := range reportedCounters {
		fmt.Printf("%-36s %d\n", name, values[name])
	}
	return nil
}

// rotateRound presents every current token opt.duplicates times at once and
// replaces it with the single winner's successor.
func rotateRound(ctx context.Context, engine *goSession.Engine, current []string, opt options, won, lost *latencies) (int64, error) {
	var violations int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opt.concurrency)

	for i := range current {
		raw := current[i]
		var (
			mu      sync.Mutex
			winners []string
			pending sync.WaitGroup
		)
		pending.Add(opt.duplicates)
		for d := 0; d < opt.duplicates; d++ {
			g.Go(func() error {
				defer pending.Done()
				t0 := time.Now()
				pair, err := engine.Rotate(gctx, raw)
				elapsed := time.Since(t0)
				switch {
				case err == nil:
					won.record(elapsed)
					mu.Lock()
					winners = append(winners, pair.RefreshToken)
					mu.Unlock()
				case errors.Is(err, goSession.ErrInvalidCredential):
					lost.record(elapsed)
				default:
					return err
				}
				return nil
			})
		}
		g.Go(func() error {
			pending.Wait()
			if len(winners) != 1 {
				atomic.AddInt64(&violations, 1)
				return nil
			}
			current[i] = winners[0]
			return nil
		})
	}
	return violations, g.Wait()
}

func openStore(opt options) (store.Store, func(), error) {
	switch opt.backend {
	case "memory":
		fmt.Println("using in-memory store")
		return store.NewMemory(), func() {}, nil
	case "redis", "miniredis":
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", opt.backend)
	}

	addr := opt.redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var mr *miniredis.Miniredis
	if opt.backend == "miniredis" {
		var err error
		if mr, err = miniredis.Run(); err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		addr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		if addr == "" {
			return nil, nil, errors.New("-backend redis needs -redis-addr or REDIS_ADDR")
		}
		fmt.Printf("using redis at %s\n", addr)
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	cleanup := func() {
		_ = client.Close()
		if mr != nil {
			mr.Close()
		}
	}
	return store.NewRedis(client, store.WithRedisPrefix("loadtest")), cleanup, nil
}
