package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/cmsync"
	"github.com/MrEthical07/cmsync/api"
	"github.com/MrEthical07/cmsync/internal/mockbackend"
	"github.com/MrEthical07/cmsync/metrics/export/prometheus"
	"github.com/MrEthical07/cmsync/mutation"
	"github.com/MrEthical07/cmsync/session"
)

const (
	loadUserEmail    = "load@example.com"
	loadUserPassword = "load-test-password"
)

func main() {
	var (
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "reads per phase")
		pages       = flag.Int("pages", 8, "distinct post pages read")
		staleTime   = flag.Duration("stale", 250*time.Millisecond, "cache stale time; 0 keeps data until invalidated, negative refetches every read")
		latency     = flag.Duration("latency", 5*time.Millisecond, "added backend latency")
		writeEvery  = flag.Int("write-every", 200, "create a ticket every N reads in the mixed phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		showMetrics = flag.Bool("metrics", false, "print client metrics in Prometheus format")
	)
	flag.Parse()

	if *concurrency <= 0 || *ops <= 0 || *pages <= 0 || *writeEvery <= 0 {
		fmt.Fprintln(os.Stderr, "concurrency, ops, pages and write-every must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		rdb     redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = rdb.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = rdb.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	backend, err := mockbackend.New(mockbackend.Config{Latency: *latency})
	if err != nil {
		fmt.Fprintf(os.Stderr, "mock backend: %v\n", err)
		os.Exit(1)
	}
	srv := httptest.NewServer(backend.Handler())
	defer srv.Close()
	fmt.Printf("mock backend at %s (latency %s)\n", srv.URL, *latency)

	cfg := cmsync.DefaultConfig()
	cfg.Gateway.BaseURL = srv.URL
	cfg.Cache.StaleTime = *staleTime
	cfg.Events.Enabled = false
	cfg.Metrics.EnableLatencyHistograms = true

	client, err := cmsync.New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	if err := seed(ctx, backend, client, *pages); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}

	readStats := runPhase(ctx, client, *ops, *concurrency, *pages, 0)
	readHits := backendReads(backend)
	mixedStats := runPhase(ctx, client, *ops, *concurrency, *pages, *writeEvery)
	mixedHits := backendReads(backend) - readHits

	fmt.Println("---- results ----")
	printStats("read", readStats, readHits)
	printStats("mixed", mixedStats, mixedHits)

	snap := client.MetricsSnapshot()
	fmt.Printf("cache: hit=%d miss=%d shared=%d invalidated=%d discarded=%d ratio=%.3f\n",
		snap.Counters[cmsync.MetricCacheHit],
		snap.Counters[cmsync.MetricCacheMiss],
		snap.Counters[cmsync.MetricCacheShared],
		snap.Counters[cmsync.MetricCacheInvalidated],
		snap.Counters[cmsync.MetricCacheDiscarded],
		snap.CacheHitRatio(),
	)
	var requests uint64
	for _, id := range []cmsync.MetricID{
		cmsync.MetricRequestSuccess,
		cmsync.MetricRequestFailure,
		cmsync.MetricRequestTimeout,
		cmsync.MetricRequestNetwork,
		cmsync.MetricRequestUnauthorized,
	} {
		requests += snap.Counters[id]
	}
	if requests > 0 {
		fmt.Printf("backend: requests=%d mean=%s\n", requests, snap.LatencySums[cmsync.MetricRequestLatency]/time.Duration(requests))
	}
	if *showMetrics {
		fmt.Print(prometheus.NewPrometheusExporter(client).Render())
	}
}

// seed creates the load-test account and enough posts to fill every page.
func seed(ctx context.Context, backend *mockbackend.Server, client *cmsync.Client, pages int) error {
	if _, err := backend.AddUser(session.User{Email: loadUserEmail, Name: "Load Test"}, loadUserPassword); err != nil {
		return err
	}
	if err := client.Bootstrap(ctx); err != nil {
		return err
	}
	in := api.LoginInput{Email: loadUserEmail, Password: loadUserPassword}
	if _, err := client.API().Auth.Login.Mutate(ctx, in, mutation.Callbacks[session.User]{}); err != nil {
		return err
	}
	for i := 0; i < pages*api.DefaultPostsLimit; i++ {
		post := api.PostInput{Title: fmt.Sprintf("post %d", i), Content: "load", Platforms: []string{"twitter"}}
		if _, err := client.API().Posts.Create.Mutate(ctx, post, mutation.Callbacks[api.Post]{}); err != nil {
			return err
		}
	}
	return nil
}

func backendReads(b *mockbackend.Server) int {
	return b.Hits("GET", "/tickets") + b.Hits("GET", "/posts") + b.Hits("GET", "/clients") + b.Hits("GET", "/dashboard")
}

// runPhase issues ops cache reads spread over every resource. With
// writeEvery > 0, one in writeEvery operations creates a ticket instead,
// invalidating the ticket list.
func runPhase(ctx context.Context, client *cmsync.Client, ops, concurrency, pages, writeEvery int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)
	a := client.API()

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				var err error
				switch {
				case writeEvery > 0 && i%writeEvery == 0:
					in := api.CreateTicketInput{Subject: fmt.Sprintf("load %d", i), Message: "load", Priority: "low"}
					_, err = a.Tickets.Create.Mutate(ctx, in, mutation.Callbacks[api.Ticket]{})
				default:
					switch r.Intn(4) {
					case 0:
						err = a.Tickets.List(ctx).Err
					case 1:
						err = a.Posts.List(ctx, 1+r.Intn(pages), api.DefaultPostsLimit).Err
					case 2:
						err = a.Clients.List(ctx).Err
					default:
						err = a.Dashboard.Get(ctx).Err
					}
				}
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats, backendHits int) {
	ratio := 0.0
	if s.ops > 0 {
		ratio = float64(backendHits) / float64(s.ops)
	}
	fmt.Printf("%s: ops=%d failures=%d backend_reads=%d (%.3f/op) total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		backendHits,
		ratio,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
