// Benchmark tool for load-testing a running Finch instance.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -users 50 -bills 20
//
// This tool:
//  1. Records synthetic bill-payment rewards for a pool of users
//  2. Triggers an alert check pass per user
//  3. Reports throughput, latency percentiles, and error counts
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// RecordRequest is the Finch POST /rewards request format.
type RecordRequest struct {
	BillID   string  `json:"billId"`
	Amount   float64 `json:"amount"`
	Category string  `json:"category"`
	OnTime   bool    `json:"onTime"`
}

// RecordResponse is the Finch POST /rewards response format.
type RecordResponse struct {
	Created bool `json:"created"`
	Reward  struct {
		Points int `json:"points"`
	} `json:"reward"`
}

// CheckResponse is the Finch POST /alerts/check response format.
type CheckResponse struct {
	Count   int   `json:"count"`
	TotalMs int64 `json:"totalMs"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	RewardsCreated   int64
	RewardsDuplicate int64
	AlertsCreated    int64
	TotalErrors      int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) observe(d time.Duration) {
	m.mu.Lock()
	m.latencies = append(m.latencies, d)
	m.mu.Unlock()
}

func (m *Metrics) percentile(p float64) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

var categories = []string{
	"utilities", "rent", "credit_card", "loan", "insurance",
	"subscription", "education", "medical",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Finch base URL")
	users := flag.Int("users", 50, "Number of synthetic users")
	bills := flag.Int("bills", 20, "Bill payments per user")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	checks := flag.Bool("checks", true, "Run an alert check per user after recording")
	verbose := flag.Bool("verbose", false, "Print each request result")
	flag.Parse()

	client := &http.Client{Timeout: 30 * time.Second}
	metrics := &Metrics{}

	fmt.Printf("Benchmarking %s: %d users x %d bills, %d workers\n\n",
		*baseURL, *users, *bills, *workers)

	start := time.Now()

	type job struct {
		userID string
		billID string
	}
	jobs := make(chan job, *workers*2)

	var wg sync.WaitGroup
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				reqStart := time.Now()
				created, err := recordReward(client, *baseURL, j.userID, j.billID)
				metrics.observe(time.Since(reqStart))

				switch {
				case err != nil:
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if *verbose {
						fmt.Printf("  ERROR %s/%s: %v\n", j.userID, j.billID, err)
					}
				case created:
					atomic.AddInt64(&metrics.RewardsCreated, 1)
				default:
					atomic.AddInt64(&metrics.RewardsDuplicate, 1)
				}
			}
		}()
	}

	for u := 0; u < *users; u++ {
		userID := fmt.Sprintf("bench-user-%03d", u)
		for b := 0; b < *bills; b++ {
			jobs <- job{userID: userID, billID: fmt.Sprintf("bench-bill-%03d-%03d", u, b)}
		}
	}
	close(jobs)
	wg.Wait()

	recordDuration := time.Since(start)

	// Alert check pass
	var checkDuration time.Duration
	if *checks {
		checkStart := time.Now()
		sem := make(chan struct{}, *workers)
		var cwg sync.WaitGroup
		for u := 0; u < *users; u++ {
			userID := fmt.Sprintf("bench-user-%03d", u)
			cwg.Add(1)
			sem <- struct{}{}
			go func() {
				defer cwg.Done()
				defer func() { <-sem }()
				count, err := runCheck(client, *baseURL, userID)
				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					return
				}
				atomic.AddInt64(&metrics.AlertsCreated, int64(count))
			}()
		}
		cwg.Wait()
		checkDuration = time.Since(checkStart)
	}

	total := int64(*users * *bills)
	fmt.Println("=== Results ===")
	fmt.Printf("Rewards recorded:   %d (%d duplicates)\n", metrics.RewardsCreated, metrics.RewardsDuplicate)
	fmt.Printf("Alerts created:     %d\n", metrics.AlertsCreated)
	fmt.Printf("Errors:             %d\n", metrics.TotalErrors)
	fmt.Printf("Record throughput:  %.0f req/s\n", float64(total)/recordDuration.Seconds())
	if *checks {
		fmt.Printf("Check pass:         %s for %d users\n", checkDuration.Round(time.Millisecond), *users)
	}
	fmt.Printf("Latency p50:        %s\n", metrics.percentile(0.50).Round(time.Microsecond))
	fmt.Printf("Latency p95:        %s\n", metrics.percentile(0.95).Round(time.Microsecond))
	fmt.Printf("Latency p99:        %s\n", metrics.percentile(0.99).Round(time.Microsecond))

	if metrics.TotalErrors > 0 {
		os.Exit(1)
	}
}

func recordReward(client *http.Client, baseURL, userID, billID string) (bool, error) {
	req := RecordRequest{
		BillID:   billID,
		Amount:   10 + rand.Float64()*990,
		Category: categories[rand.Intn(len(categories))],
		OnTime:   rand.Float64() < 0.8,
	}

	body, _ := json.Marshal(req)
	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/rewards", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-User-ID", userID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var parsed RecordResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return false, err
	}
	return parsed.Created, nil
}

func runCheck(client *http.Client, baseURL, userID string) (int, error) {
	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/alerts/check", nil)
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("X-User-ID", userID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var parsed CheckResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, err
	}
	return parsed.Count, nil
}
