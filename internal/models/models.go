package models

import (
	"strings"
	"time"
)

// RatesResponse lists the quotes a bank currently holds, keyed like the feed ("USDEUR").
type RatesResponse struct {
	Source    string             `json:"source"`
	Timestamp int64              `json:"timestamp"`
	Expires   int64              `json:"expires,omitempty"`
	Freshness string             `json:"freshness"`
	Quotes    map[string]float64 `json:"quotes"`
}

type RateResponse struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Rate      float64 `json:"rate"`
	Timestamp int64   `json:"timestamp"`
}

// ConvertResponse carries decimal amounts as strings so no precision is lost in JSON.
type ConvertResponse struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Amount    string  `json:"amount"`
	Rate      float64 `json:"rate"`
	Converted string  `json:"converted"`
	Formatted string  `json:"formatted"`
}

type RefreshResponse struct {
	Straight  bool   `json:"straight"`
	Source    string `json:"source"`
	Timestamp int64  `json:"timestamp"`
	Quotes    int    `json:"quotes"`
}

// HealthCheck represents the health check response
type HealthCheck struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	Version        string    `json:"version"`
	Uptime         string    `json:"uptime"`
	Source         string    `json:"source"`
	CacheBackend   string    `json:"cache_backend"`
	RatesTimestamp int64     `json:"rates_timestamp"`
	Freshness      string    `json:"freshness"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// FilterQuotes keeps the quotes whose pair starts with prefix. An empty prefix
// keeps everything.
func FilterQuotes(quotes map[string]float64, prefix string) map[string]float64 {
	filtered := make(map[string]float64, len(quotes))
	prefix = strings.ToUpper(prefix)
	for pair, rate := range quotes {
		if strings.HasPrefix(pair, prefix) {
			filtered[pair] = rate
		}
	}
	return filtered
}
