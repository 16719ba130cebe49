// textstore-bench is a concurrency stress harness for the textstore
// registry. It runs writers, readers, and subscribers against a set of
// buffers for a fixed duration and reports throughput, lock behavior,
// and event-drop counts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/text/unicode/norm"

	"github.com/dshills/textstore"
	promadapter "github.com/dshills/textstore/adapters/prometheus"
	"github.com/dshills/textstore/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

const seedText = "The quick brown fox jumps over the lazy dog.\n"

type benchResult struct {
	Name     string
	Duration time.Duration
	Ops      uint64
	Extra    string
}

func (r benchResult) String() string {
	if r.Ops > 0 {
		opsPerSec := float64(r.Ops) / r.Duration.Seconds()
		if r.Extra != "" {
			return fmt.Sprintf("%-28s %12v  (%d ops, %.0f ops/sec)  %s",
				r.Name, r.Duration.Round(time.Millisecond), r.Ops, opsPerSec, r.Extra)
		}
		return fmt.Sprintf("%-28s %12v  (%d ops, %.0f ops/sec)",
			r.Name, r.Duration.Round(time.Millisecond), r.Ops, opsPerSec)
	}
	if r.Extra != "" {
		return fmt.Sprintf("%-28s %12v  %s", r.Name, r.Duration.Round(time.Millisecond), r.Extra)
	}
	return fmt.Sprintf("%-28s %12v", r.Name, r.Duration.Round(time.Millisecond))
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  string
		buffers     int
		writers     int
		readers     int
		subscribers int
		duration    time.Duration
		seedRunes   int
		slowConsume time.Duration
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.IntVar(&buffers, "buffers", 8, "Number of buffers")
	flag.IntVar(&writers, "writers", 4, "Concurrent writer goroutines")
	flag.IntVar(&readers, "readers", 8, "Concurrent reader goroutines")
	flag.IntVar(&subscribers, "subscribers", 4, "Subscriber goroutines")
	flag.DurationVar(&duration, "duration", 5*time.Second, "Workload duration")
	flag.IntVar(&seedRunes, "seed", 1<<16, "Approximate initial buffer size in runes")
	flag.DurationVar(&slowConsume, "slow", 0, "Artificial delay per consumed event (exercises drop-oldest)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("textstore-bench %s (%s)\n", version, commit)
		return 0
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	logger := cfg.Log.Logger(os.Stderr)

	opts := []textstore.Option{
		textstore.WithLogger(logger),
		textstore.WithQueueCapacity(cfg.Store.QueueCapacity),
	}
	if cfg.Store.LockTimeout > 0 {
		opts = append(opts, textstore.WithLockTimeout(cfg.Store.LockTimeout.Std()))
	}
	if cfg.Store.MaxReaders > 0 {
		opts = append(opts, textstore.WithMaxReaders(cfg.Store.MaxReaders))
	}
	if cfg.Store.Normalize {
		opts = append(opts, textstore.WithNormalizer(norm.NFC))
	}
	if cfg.Metrics.Enabled {
		promReg := prometheus.NewRegistry()
		opts = append(opts, textstore.WithMetrics(promadapter.NewStoreMetrics(promReg)))
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Listen, promadapter.Handler(promReg)); err != nil {
				logger.Warn("metrics endpoint failed", "listen", cfg.Metrics.Listen, "error", err)
			}
		}()
		fmt.Printf("Serving metrics on %s\n", cfg.Metrics.Listen)
	}

	fmt.Println("textstore concurrency benchmark")
	fmt.Println("===============================")
	fmt.Printf("Go version: %s  GOMAXPROCS: %d\n", runtime.Version(), runtime.GOMAXPROCS(0))
	fmt.Printf("Buffers: %d  Writers: %d  Readers: %d  Subscribers: %d  Duration: %v\n",
		buffers, writers, readers, subscribers, duration)
	fmt.Println()

	reg := textstore.New(opts...)
	defer reg.Close()

	ids, setup, err := seedBuffers(reg, buffers, seedRunes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Println(setup)
	fmt.Println()

	results := runWorkload(reg, ids, workload{
		writers:     writers,
		readers:     readers,
		subscribers: subscribers,
		duration:    duration,
		slowConsume: slowConsume,
	})

	fmt.Println("Results:")
	for _, r := range results {
		fmt.Printf("  %s\n", r)
	}
	fmt.Println()

	printStats(reg)
	return 0
}

// seedBuffers fills the registry with buffers of roughly seedRunes runes
// each, built by repeating the seed sentence.
func seedBuffers(reg *textstore.Registry, n, seedRunes int) ([]textstore.BufferID, benchResult, error) {
	start := time.Now()
	repeat := seedRunes/len(seedText) + 1
	text := strings.Repeat(seedText, repeat)

	ids := make([]textstore.BufferID, 0, n)
	for i := 0; i < n; i++ {
		id, err := reg.Create(text)
		if err != nil {
			return nil, benchResult{}, fmt.Errorf("seeding buffer %d: %w", i, err)
		}
		ids = append(ids, id)
	}
	return ids, benchResult{
		Name:     "Seed buffers",
		Duration: time.Since(start),
		Ops:      uint64(n),
		Extra:    fmt.Sprintf("%d runes each", len([]rune(text))),
	}, nil
}

type workload struct {
	writers     int
	readers     int
	subscribers int
	duration    time.Duration
	slowConsume time.Duration
}

type counters struct {
	edits     atomic.Uint64
	editErrs  atomic.Uint64
	reads     atomic.Uint64
	readErrs  atomic.Uint64
	events    atomic.Uint64
	lagsSeen  atomic.Uint64
}

func runWorkload(reg *textstore.Registry, ids []textstore.BufferID, w workload) []benchResult {
	ctx, cancel := context.WithTimeout(context.Background(), w.duration)
	defer cancel()

	var c counters
	var wg sync.WaitGroup

	for i := 0; i < w.writers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			writerLoop(ctx, reg, ids, &c, rand.New(rand.NewSource(seed)))
		}(int64(i) + 1)
	}
	for i := 0; i < w.readers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			readerLoop(ctx, reg, ids, &c, rand.New(rand.NewSource(seed)))
		}(int64(i) + 101)
	}
	for i := 0; i < w.subscribers; i++ {
		id := ids[i%len(ids)]
		h, err := reg.Get(id)
		if err != nil {
			continue
		}
		sub, err := h.Subscribe()
		if err != nil {
			continue
		}
		wg.Add(1)
		go func(sub *textstore.Subscription) {
			defer wg.Done()
			defer sub.Close()
			subscriberLoop(ctx, sub, &c, w.slowConsume)
		}(sub)
	}

	start := time.Now()
	wg.Wait()
	elapsed := time.Since(start)

	return []benchResult{
		{Name: "Edits applied", Duration: elapsed, Ops: c.edits.Load(),
			Extra: fmt.Sprintf("%d rejected/timed out", c.editErrs.Load())},
		{Name: "Reads completed", Duration: elapsed, Ops: c.reads.Load(),
			Extra: fmt.Sprintf("%d timed out", c.readErrs.Load())},
		{Name: "Events consumed", Duration: elapsed, Ops: c.events.Load(),
			Extra: fmt.Sprintf("%d lag markers", c.lagsSeen.Load())},
	}
}

// writerLoop applies random small edits to random buffers until ctx
// ends.
func writerLoop(ctx context.Context, reg *textstore.Registry, ids []textstore.BufferID, c *counters, rng *rand.Rand) {
	for ctx.Err() == nil {
		id := ids[rng.Intn(len(ids))]
		h, err := reg.Get(id)
		if err != nil {
			return
		}

		g, err := h.Write(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.editErrs.Add(1)
			continue
		}

		op := randomOp(rng, g.Len())
		if _, _, err := g.Apply(op); err != nil {
			c.editErrs.Add(1)
		} else {
			c.edits.Add(1)
		}
		g.Release()
	}
}

// randomOp builds an edit valid against a buffer of n runes: mostly
// inserts with enough deletes to keep the buffer from growing without
// bound.
func randomOp(rng *rand.Rand, n int) textstore.EditOp {
	at := 0
	if n > 0 {
		at = rng.Intn(n)
	}
	switch rng.Intn(4) {
	case 0, 1:
		return textstore.Insert(at, seedText[:1+rng.Intn(8)])
	case 2:
		end := at + rng.Intn(16)
		if end > n {
			end = n
		}
		return textstore.Delete(at, end)
	default:
		end := at + rng.Intn(16)
		if end > n {
			end = n
		}
		return textstore.Replace(at, end, seedText[:1+rng.Intn(8)])
	}
}

// readerLoop takes read guards on random buffers and slices a random
// window, checking that guards always observe consistent state.
func readerLoop(ctx context.Context, reg *textstore.Registry, ids []textstore.BufferID, c *counters, rng *rand.Rand) {
	for ctx.Err() == nil {
		id := ids[rng.Intn(len(ids))]
		h, err := reg.Get(id)
		if err != nil {
			return
		}

		g, err := h.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.readErrs.Add(1)
			continue
		}

		n := g.Len()
		if n > 0 {
			start := rng.Intn(n)
			end := start + 64
			if end > n {
				end = n
			}
			if _, err := g.Slice(start, end); err != nil {
				c.readErrs.Add(1)
			}
		}
		g.Release()
		c.reads.Add(1)
	}
}

// subscriberLoop consumes events, optionally slowly, counting lag
// markers separately from delivered events.
func subscriberLoop(ctx context.Context, sub *textstore.Subscription, c *counters, delay time.Duration) {
	for {
		_, err := sub.Next(ctx)
		switch {
		case err == nil:
			c.events.Add(1)
		case errors.Is(err, textstore.ErrLagged):
			c.lagsSeen.Add(1)
			continue
		default:
			return
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
	}
}

func printStats(reg *textstore.Registry) {
	stats := reg.Stats()
	fmt.Println("Registry statistics:")
	fmt.Printf("  Buffers:          %d (created %d, removed %d)\n",
		stats.Buffers, stats.Created, stats.Removed)
	fmt.Printf("  Edits applied:    %d\n", stats.Edits)
	fmt.Printf("  Events published: %d\n", stats.EventsPublished)
	fmt.Printf("  Events dropped:   %d\n", stats.EventsDropped)
	fmt.Printf("  Subscriptions:    %d\n", stats.Subscriptions)
}
