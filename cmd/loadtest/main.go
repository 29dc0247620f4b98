// Command loadtest drives concurrent searches against a running server and
// reports throughput, latency percentiles and status codes. With -archive it
// uploads that archive once first so every query has a snapshot to scan.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Queries     []string
}

// Stats is shared by all workers.
type Stats struct {
	mu          sync.Mutex
	total       int64
	failed      int64
	zeroResults int64
	latencies   []time.Duration
	statusCodes map[int]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]int64),
	}
}

func (s *Stats) Record(d time.Duration, status int, matches int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if err != nil {
		s.failed++
		return
	}
	s.statusCodes[status]++
	if status != http.StatusOK {
		s.failed++
		return
	}
	if matches == 0 {
		s.zeroResults++
	}
	s.latencies = append(s.latencies, d)
}

func main() {
	baseURL := flag.String("url", "http://localhost:8000", "base URL of the image text search server")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	queries := flag.String("queries", "invoice,total,receipt,date,name,address,phone,order", "comma-separated queries")
	archivePath := flag.String("archive", "", "optional .zip to ingest before the test")
	flag.Parse()

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		Queries:     strings.Split(*queries, ","),
	}
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	if *archivePath != "" {
		msg, err := upload(client, cfg.BaseURL, *archivePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "upload failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Ingested:", msg)
	}

	fmt.Println("=== Image Text Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	stats := run(client, cfg)
	if !printReport(stats, cfg.Duration) {
		os.Exit(1)
	}
}

func upload(client *http.Client, baseURL, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("zip_file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	// OCR of a whole archive outlives the per-search client timeout.
	ingestClient := *client
	ingestClient.Timeout = 0
	resp, err := ingestClient.Post(baseURL+"/api/v1/ingest", mw.FormDataContentType(), &body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var out struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding ingest response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, out.Error)
	}
	return out.Message, nil
}

func run(client *http.Client, cfg Config) *Stats {
	stats := NewStats()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")
	for w := range cfg.Concurrency {
		wg.Go(func() {
			for i := w; ctx.Err() == nil; i++ {
				query := cfg.Queries[i%len(cfg.Queries)]
				start := time.Now()
				status, matches, err := searchOnce(ctx, client, cfg.BaseURL, query)
				if ctx.Err() != nil {
					return
				}
				stats.Record(time.Since(start), status, matches, err)
			}
		})
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func searchOnce(ctx context.Context, client *http.Client, baseURL, query string) (int, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/v1/search?q="+url.QueryEscape(query), nil)
	if err != nil {
		return 0, 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, 0, nil
	}
	var out struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return resp.StatusCode, 0, err
	}
	return resp.StatusCode, out.Count, nil
}

func printReport(stats *Stats, duration time.Duration) bool {
	stats.mu.Lock()
	defer stats.mu.Unlock()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", stats.total)
	fmt.Printf("Errors:          %d\n", stats.failed)
	fmt.Printf("Zero Results:    %d\n", stats.zeroResults)
	if stats.total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(stats.failed)/float64(stats.total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(stats.total)/duration.Seconds())
	}

	latencies := slices.Clone(stats.latencies)
	slices.Sort(latencies)
	if len(latencies) > 0 {
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", sum/time.Duration(len(latencies)))
		for _, p := range []float64{50, 90, 95, 99} {
			fmt.Printf("P%-2.0f:    %s\n", p, percentile(latencies, p))
		}
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code])
	}

	if stats.total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the server running?")
		return false
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[min(max(idx, 0), len(sorted)-1)]
}
