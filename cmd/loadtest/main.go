package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/document"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/query"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	// WriteRatio is the fraction of operations that ingest a document.
	WriteRatio float64
	// QueryRatio is the fraction of reads sent as structured queries.
	QueryRatio float64
	IDBase     int64
}

var phrases = []string{
	"old sea", "whale", "monster creator", "island voyage", "storm harbor",
	"lantern", "compass rose", "the sea wolf", "modern prometheus", "fishing",
}

var genres = []string{"novel", "novella", "poetry"}

type opStats struct {
	total     atomic.Int64
	errors    atomic.Int64
	cacheHits atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	statuses  map[int]int64
}

func newOpStats() *opStats {
	return &opStats{statuses: make(map[int]int64)}
}

func (s *opStats) record(d time.Duration, status int, err error) {
	s.total.Add(1)
	if err != nil || status < 200 || status >= 300 {
		s.errors.Add(1)
	}
	if err != nil {
		return
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.statuses[status]++
	s.mu.Unlock()
}

type loadTest struct {
	cfg    Config
	client *http.Client
	nextID atomic.Int64
	ops    map[string]*opStats
}

func main() {
	cfg := Config{}
	flag.StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "base URL of searchd")
	flag.IntVar(&cfg.Concurrency, "concurrency", 10, "number of concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "test duration")
	flag.Float64Var(&cfg.WriteRatio, "writes", 0, "fraction of operations that add a document")
	flag.Float64Var(&cfg.QueryRatio, "structured", 0.3, "fraction of reads sent to /api/v1/query")
	flag.Int64Var(&cfg.IDBase, "id-base", 1_000_000_000, "first document id used for writes")
	flag.Parse()

	fmt.Println("=== embedsearch load test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Writes:      %.0f%%\n", cfg.WriteRatio*100)
	fmt.Println()

	lt := &loadTest{
		cfg: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.Concurrency * 2,
				MaxIdleConnsPerHost: cfg.Concurrency * 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		ops: map[string]*opStats{
			"search": newOpStats(),
			"query":  newOpStats(),
			"add":    newOpStats(),
		},
	}
	lt.nextID.Store(cfg.IDBase)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()
	if err := lt.run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}
	if lt.commit() != nil {
		fmt.Println("final commit failed")
	}
	if !lt.report() {
		fmt.Println("WARNING: No requests completed. Is searchd running?")
		os.Exit(1)
	}
}

func (lt *loadTest) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < lt.cfg.Concurrency; w++ {
		rng := rand.New(rand.NewSource(int64(w) + 1))
		g.Go(func() error {
			for ctx.Err() == nil {
				var err error
				switch r := rng.Float64(); {
				case r < lt.cfg.WriteRatio:
					err = lt.add(ctx, rng)
				case rng.Float64() < lt.cfg.QueryRatio:
					err = lt.query(ctx, rng)
				default:
					err = lt.search(ctx, rng)
				}
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (lt *loadTest) search(ctx context.Context, rng *rand.Rand) error {
	u := fmt.Sprintf("%s/api/v1/search?q=%s&limit=10", lt.cfg.BaseURL, url.QueryEscape(phrases[rng.Intn(len(phrases))]))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	lt.do("search", req)
	return nil
}

func (lt *loadTest) query(ctx context.Context, rng *rand.Rand) error {
	from := 1800 + rng.Int63n(150)
	q := query.All(
		&query.Term{Field: "genre", Text: genres[rng.Intn(len(genres))]},
		&query.NumericRange{Field: "year", Lower: query.Include(from), Upper: query.Exclude(from + 50)},
	)
	raw, err := query.Encode(q)
	if err != nil {
		return err
	}
	body, err := json.Marshal(map[string]any{"query": json.RawMessage(raw), "limit": 10, "skip_fields": true})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, lt.cfg.BaseURL+"/api/v1/query", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	lt.do("query", req)
	return nil
}

func (lt *loadTest) add(ctx context.Context, rng *rand.Rand) error {
	id := lt.nextID.Add(1)
	doc := document.New(id,
		document.Text("title", phrases[rng.Intn(len(phrases))]),
		document.Text("body", phrases[rng.Intn(len(phrases))]+" "+phrases[rng.Intn(len(phrases))]),
		document.String("genre", genres[rng.Intn(len(genres))]),
		document.Int("year", 1800+rng.Int63n(200)),
	)
	body, err := json.Marshal(map[string]any{"documents": []document.Document{doc}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, lt.cfg.BaseURL+"/api/v1/documents", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	lt.do("add", req)
	return nil
}

func (lt *loadTest) commit() error {
	if lt.ops["add"].total.Load() == 0 {
		return nil
	}
	resp, err := lt.client.Post(lt.cfg.BaseURL+"/api/v1/commit", "application/json", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("commit returned %d", resp.StatusCode)
	}
	return nil
}

func (lt *loadTest) do(op string, req *http.Request) {
	stats := lt.ops[op]
	start := time.Now()
	resp, err := lt.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		// Requests cut off by the end of the run are not failures.
		if req.Context().Err() == nil {
			stats.record(elapsed, 0, err)
		}
		return
	}
	defer resp.Body.Close()
	if op != "add" && resp.StatusCode == http.StatusOK {
		var sr struct {
			CacheHit bool `json:"cache_hit"`
		}
		if json.NewDecoder(resp.Body).Decode(&sr) == nil && sr.CacheHit {
			stats.cacheHits.Add(1)
		}
	}
	io.Copy(io.Discard, resp.Body)
	stats.record(elapsed, resp.StatusCode, nil)
}

// report prints per-operation results and reports whether any request
// completed.
func (lt *loadTest) report() bool {
	var total int64
	for _, op := range []string{"search", "query", "add"} {
		s := lt.ops[op]
		n := s.total.Load()
		if n == 0 {
			continue
		}
		total += n

		fmt.Printf("=== %s ===\n", op)
		fmt.Printf("Requests:     %d\n", n)
		fmt.Printf("Errors:       %d (%.2f%%)\n", s.errors.Load(), float64(s.errors.Load())/float64(n)*100)
		fmt.Printf("Requests/sec: %.2f\n", float64(n)/lt.cfg.Duration.Seconds())
		if op != "add" {
			fmt.Printf("Cache hits:   %.2f%%\n", float64(s.cacheHits.Load())/float64(n)*100)
		}

		s.mu.Lock()
		latencies := slices.Clone(s.latencies)
		codes := make([]int, 0, len(s.statuses))
		for code := range s.statuses {
			codes = append(codes, code)
		}
		slices.Sort(codes)
		for _, code := range codes {
			fmt.Printf("  %d: %d\n", code, s.statuses[code])
		}
		s.mu.Unlock()

		if len(latencies) > 0 {
			slices.Sort(latencies)
			var sum time.Duration
			for _, l := range latencies {
				sum += l
			}
			fmt.Printf("Latency min/avg/max: %s / %s / %s\n", latencies[0], sum/time.Duration(len(latencies)), latencies[len(latencies)-1])
			fmt.Printf("Latency p50/p90/p99: %s / %s / %s\n",
				percentile(latencies, 50), percentile(latencies, 90), percentile(latencies, 99))
		}
		fmt.Println()
	}
	return total > 0
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
