package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// LoadTestConfig holds configuration for load testing
type LoadTestConfig struct {
	BaseURL         string
	Pairs           []string
	ConcurrentUsers int
	RequestsPerUser int
	Timeout         time.Duration
	TestDuration    time.Duration
	RampUpDuration  time.Duration
	ThinkTime       time.Duration
}

// LoadTestResult holds the result of a single request
type LoadTestResult struct {
	Pair       string
	StatusCode int
	Duration   time.Duration
	Error      error
}

// LoadTestSummary holds the summary of load test results
type LoadTestSummary struct {
	TotalRequests       int
	SuccessfulRequests  int
	TransportErrors     int
	StatusCounts        map[int]int
	TotalDuration       time.Duration
	AverageResponseTime time.Duration
	MinResponseTime     time.Duration
	MaxResponseTime     time.Duration
	RequestsPerSecond   float64
	ErrorRate           float64
	ResponseTime95th    time.Duration
	ResponseTime99th    time.Duration
}

func main() {
	var config LoadTestConfig
	var pairs string

	flag.StringVar(&config.BaseURL, "url", "http://localhost:8081", "Service base URL")
	flag.StringVar(&pairs, "pairs", "USD/EUR,EUR/USD,EUR/GBP,GBP/JPY", "Comma separated currency pairs to request")
	flag.IntVar(&config.ConcurrentUsers, "users", 10, "Number of concurrent users")
	flag.IntVar(&config.RequestsPerUser, "requests", 100, "Number of requests per user")
	flag.DurationVar(&config.Timeout, "timeout", 30*time.Second, "Request timeout")
	flag.DurationVar(&config.TestDuration, "duration", 0, "Test duration (0 = run until all requests complete)")
	flag.DurationVar(&config.RampUpDuration, "rampup", 5*time.Second, "Ramp-up duration")
	flag.DurationVar(&config.ThinkTime, "think", 100*time.Millisecond, "Think time between requests")
	flag.Parse()

	config.Pairs = parsePairs(pairs)
	if len(config.Pairs) == 0 || config.ConcurrentUsers < 1 {
		fmt.Fprintln(os.Stderr, "need at least one pair and one user")
		os.Exit(2)
	}

	fmt.Printf("Load testing %s with %d users x %d requests over %v\n",
		config.BaseURL, config.ConcurrentUsers, config.RequestsPerUser, config.Pairs)

	summary := runLoadTest(config)
	printSummary(summary)
}

// parsePairs turns "usd/eur, EUR/GBP" into request paths like "USD/EUR".
func parsePairs(value string) []string {
	var pairs []string
	for _, pair := range strings.Split(value, ",") {
		pair = strings.ToUpper(strings.TrimSpace(pair))
		parts := strings.Split(pair, "/")
		if len(parts) != 2 || len(parts[0]) != 3 || len(parts[1]) != 3 {
			continue
		}
		pairs = append(pairs, pair)
	}
	return pairs
}

func runLoadTest(config LoadTestConfig) LoadTestSummary {
	results := make(chan LoadTestResult, config.ConcurrentUsers*config.RequestsPerUser)
	client := &http.Client{Timeout: config.Timeout}

	ctx := context.Background()
	if config.TestDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.TestDuration)
		defer cancel()
	}

	startTime := time.Now()
	rampUpDelay := config.RampUpDuration / time.Duration(config.ConcurrentUsers)

	var wg sync.WaitGroup
	for userID := 0; userID < config.ConcurrentUsers; userID++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()
			time.Sleep(time.Duration(userID) * rampUpDelay)

			for requestID := 0; requestID < config.RequestsPerUser; requestID++ {
				if ctx.Err() != nil {
					return
				}
				pair := config.Pairs[(userID+requestID)%len(config.Pairs)]
				results <- requestRate(ctx, client, config.BaseURL, pair)

				if config.ThinkTime > 0 {
					time.Sleep(config.ThinkTime)
				}
			}
		}(userID)
	}

	wg.Wait()
	close(results)

	collected := make([]LoadTestResult, 0, cap(results))
	for result := range results {
		collected = append(collected, result)
	}
	return summarize(collected, time.Since(startTime))
}

func requestRate(ctx context.Context, client *http.Client, baseURL, pair string) LoadTestResult {
	result := LoadTestResult{Pair: pair}
	start := time.Now()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/api/v1/rates/"+pair, nil)
	if err != nil {
		result.Error = err
		return result
	}
	resp, err := client.Do(request)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err
		return result
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	result.StatusCode = resp.StatusCode
	return result
}

func summarize(results []LoadTestResult, totalDuration time.Duration) LoadTestSummary {
	summary := LoadTestSummary{
		TotalDuration: totalDuration,
		StatusCounts:  make(map[int]int),
	}
	if len(results) == 0 {
		return summary
	}

	responseTimes := make([]time.Duration, 0, len(results))
	var totalResponseTime time.Duration
	for _, result := range results {
		summary.TotalRequests++
		if result.Error != nil {
			summary.TransportErrors++
			continue
		}
		summary.StatusCounts[result.StatusCode]++
		if result.StatusCode >= 200 && result.StatusCode < 300 {
			summary.SuccessfulRequests++
		}
		responseTimes = append(responseTimes, result.Duration)
		totalResponseTime += result.Duration
	}

	failed := summary.TotalRequests - summary.SuccessfulRequests
	summary.ErrorRate = float64(failed) / float64(summary.TotalRequests) * 100
	if totalDuration > 0 {
		summary.RequestsPerSecond = float64(summary.TotalRequests) / totalDuration.Seconds()
	}

	if len(responseTimes) > 0 {
		sort.Slice(responseTimes, func(i, j int) bool { return responseTimes[i] < responseTimes[j] })
		summary.MinResponseTime = responseTimes[0]
		summary.MaxResponseTime = responseTimes[len(responseTimes)-1]
		summary.AverageResponseTime = totalResponseTime / time.Duration(len(responseTimes))
		summary.ResponseTime95th = percentile(responseTimes, 95)
		summary.ResponseTime99th = percentile(responseTimes, 99)
	}
	return summary
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	index := len(sorted) * p / 100
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

func printSummary(summary LoadTestSummary) {
	fmt.Println("=== Load Test Results ===")
	fmt.Printf("Total Requests: %d\n", summary.TotalRequests)
	fmt.Printf("Successful Requests: %d\n", summary.SuccessfulRequests)
	fmt.Printf("Transport Errors: %d\n", summary.TransportErrors)

	codes := make([]int, 0, len(summary.StatusCounts))
	for code := range summary.StatusCounts {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  HTTP %d: %d\n", code, summary.StatusCounts[code])
	}

	fmt.Printf("Error Rate: %.2f%%\n", summary.ErrorRate)
	fmt.Printf("Total Duration: %v\n", summary.TotalDuration)
	fmt.Printf("Requests per Second: %.2f\n", summary.RequestsPerSecond)
	fmt.Printf("Response Time avg/min/max: %v / %v / %v\n",
		summary.AverageResponseTime, summary.MinResponseTime, summary.MaxResponseTime)
	fmt.Printf("Response Time p95/p99: %v / %v\n", summary.ResponseTime95th, summary.ResponseTime99th)

	if summary.StatusCounts[http.StatusTooManyRequests] > 0 {
		fmt.Println("Note: requests were rate limited; raise RATE_LIMIT_REQUESTS or lower -users")
	}
}
