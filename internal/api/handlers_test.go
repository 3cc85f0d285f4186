package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalfonso89/currencylayer-bank/internal/metrics"
	"github.com/dalfonso89/currencylayer-bank/internal/models"
	"github.com/dalfonso89/currencylayer-bank/internal/ratelimit"
	"github.com/dalfonso89/currencylayer-bank/internal/service"
	"github.com/dalfonso89/currencylayer-bank/internal/store"
	"github.com/dalfonso89/currencylayer-bank/internal/testutils"
)

const testDocument = `{"timestamp":1000,"quotes":{"USDEUR":0.8,"USDGBP":0.5,"USDJPY":150}}`

func newTestHandlers(t *testing.T, accessKey string, cacheStore store.Store, fetcher *testutils.MockFetcher) *Handlers {
	t.Helper()
	m := metrics.NewMetrics()
	bank, err := service.NewBank(service.Options{Source: "USD", AccessKey: accessKey}, cacheStore, fetcher, testutils.MockLogger(), service.WithMetrics(m))
	require.NoError(t, err)

	return NewHandlers(HandlerConfig{
		Bank:    bank,
		Logger:  testutils.MockLogger(),
		Metrics: m,
	})
}

func serve(router *gin.Engine, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestNewHandlers(t *testing.T) {
	logger := testutils.MockLogger()
	handlers := NewHandlers(HandlerConfig{Logger: logger})

	if handlers.logger != logger {
		t.Error("NewHandlers() did not set logger correctly")
	}
	if handlers.cacheBackend != "none" {
		t.Errorf("NewHandlers() cacheBackend = %v, want none", handlers.cacheBackend)
	}
}

func TestHandlers_HealthCheck(t *testing.T) {
	tests := []struct {
		name      string
		accessKey string
		expected  string
	}{
		{"configured", "test-access-key", "healthy"},
		{"missing access key", "", "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := testutils.NewMockFetcher(testDocument)
			handlers := newTestHandlers(t, tt.accessKey, nil, fetcher)

			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest("GET", "/health", nil)

			handlers.HealthCheck(c)

			if w.Code != http.StatusOK {
				t.Errorf("HealthCheck() status = %v, want %v", w.Code, http.StatusOK)
			}
			var response models.HealthCheck
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("HealthCheck() response unmarshal error = %v", err)
			}
			if response.Status != tt.expected {
				t.Errorf("HealthCheck() status = %v, want %v", response.Status, tt.expected)
			}
			if response.Source != "USD" || response.Version == "" || response.Uptime == "" {
				t.Errorf("HealthCheck() response = %+v", response)
			}
			if response.Freshness != "stale" {
				t.Errorf("HealthCheck() freshness = %v, want stale", response.Freshness)
			}
			if fetcher.Calls() != 0 {
				t.Errorf("HealthCheck() called the feed %d times", fetcher.Calls())
			}
		})
	}
}

func TestHandlers_GetRate(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		statusCode int
		rate       float64
	}{
		{"direct", "/api/v1/rates/USD/EUR", http.StatusOK, 0.8},
		{"inverse", "/api/v1/rates/eur/usd", http.StatusOK, 1.25},
		{"cross", "/api/v1/rates/EUR/GBP", http.StatusOK, 0.625},
		{"same currency", "/api/v1/rates/JPY/JPY", http.StatusOK, 1},
		{"unknown currency", "/api/v1/rates/USD/ZZZ", http.StatusBadRequest, 0},
		{"unknown rate", "/api/v1/rates/USD/CHF", http.StatusNotFound, 0},
	}

	fetcher := testutils.NewMockFetcher(testDocument)
	router := newTestHandlers(t, "test-access-key", nil, fetcher).SetupRoutes()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, "GET", tt.path)
			if w.Code != tt.statusCode {
				t.Fatalf("GET %s status = %v, want %v (%s)", tt.path, w.Code, tt.statusCode, w.Body.String())
			}
			if tt.statusCode != http.StatusOK {
				var response models.ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
				assert.Equal(t, tt.statusCode, response.Code)
				return
			}

			var response models.RateResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.InDelta(t, tt.rate, response.Rate, 1e-9)
		})
	}

	if fetcher.Calls() != 1 {
		t.Errorf("feed calls = %d, want 1", fetcher.Calls())
	}
}

func TestHandlers_GetRate_NoAccessKey(t *testing.T) {
	fetcher := testutils.NewMockFetcher(testDocument)
	router := newTestHandlers(t, "", nil, fetcher).SetupRoutes()

	w := serve(router, "GET", "/api/v1/rates/USD/EUR")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, 0, fetcher.Calls())
}

func TestHandlers_GetRate_InvalidCache(t *testing.T) {
	cacheStore := store.NewFileStore(filepath.Join(t.TempDir(), "missing", "rates.json"))
	router := newTestHandlers(t, "test-access-key", cacheStore, testutils.NewMockFetcher(testDocument)).SetupRoutes()

	w := serve(router, "GET", "/api/v1/rates/USD/EUR")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandlers_GetRates(t *testing.T) {
	router := newTestHandlers(t, "test-access-key", nil, testutils.NewMockFetcher(testDocument)).SetupRoutes()

	serve(router, "GET", "/api/v1/rates/EUR/GBP")

	w := serve(router, "GET", "/api/v1/rates")
	require.Equal(t, http.StatusOK, w.Code)
	var all models.RatesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Equal(t, "USD", all.Source)
	assert.Equal(t, int64(1000), all.Timestamp)
	assert.Equal(t, "fresh", all.Freshness)
	assert.Contains(t, all.Quotes, "EURGBP")
	assert.Contains(t, all.Quotes, "GBPUSD")

	w = serve(router, "GET", "/api/v1/rates?direct=true")
	require.Equal(t, http.StatusOK, w.Code)
	var direct models.RatesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &direct))
	assert.Equal(t, map[string]float64{"USDEUR": 0.8, "USDGBP": 0.5, "USDJPY": 150}, direct.Quotes)
}

func TestHandlers_GetRates_FirstLoadReportsFresh(t *testing.T) {
	fetcher := testutils.NewMockFetcher(testDocument)
	router := newTestHandlers(t, "test-access-key", nil, fetcher).SetupRoutes()

	w := serve(router, "GET", "/api/v1/rates")
	require.Equal(t, http.StatusOK, w.Code)
	var response models.RatesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "fresh", response.Freshness)
	assert.Equal(t, 1, fetcher.Calls())
}

func TestHandlers_ZeroQuote(t *testing.T) {
	router := newTestHandlers(t, "test-access-key", nil,
		testutils.NewMockFetcher(`{"timestamp":1000,"quotes":{"USDEUR":0.8,"USDGBP":0}}`)).SetupRoutes()

	w := serve(router, "GET", "/api/v1/convert?from=GBP&to=USD&amount=5")
	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())

	w = serve(router, "GET", "/api/v1/rates/GBP/USD")
	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())

	w = serve(router, "GET", "/api/v1/convert?from=USD&to=GBP&amount=5")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = serve(router, "GET", "/api/v1/rates")
	require.Equal(t, http.StatusOK, w.Code)
	var response models.RatesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	assert.Equal(t, 0.0, response.Quotes["USDGBP"])
	assert.NotContains(t, response.Quotes, "GBPUSD")
}

func TestHandlers_Convert(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		statusCode int
		converted  string
		formatted  string
	}{
		{"to euro", "from=USD&to=EUR&amount=10", http.StatusOK, "8.00", "8.00 EUR"},
		{"to yen has no minor units", "from=USD&to=JPY&amount=1.5", http.StatusOK, "225", "225 JPY"},
		{"default amount", "from=GBP&to=USD", http.StatusOK, "2.00", "2.00 USD"},
		{"same currency", "from=EUR&to=EUR&amount=3.456", http.StatusOK, "3.46", "3.46 EUR"},
		{"invalid amount", "from=USD&to=EUR&amount=ten", http.StatusBadRequest, "", ""},
		{"unknown source currency", "from=ABC&to=EUR&amount=1", http.StatusBadRequest, "", ""},
		{"unknown rate", "from=USD&to=CHF&amount=1", http.StatusNotFound, "", ""},
	}

	router := newTestHandlers(t, "test-access-key", nil, testutils.NewMockFetcher(testDocument)).SetupRoutes()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, "GET", "/api/v1/convert?"+tt.query)
			require.Equal(t, tt.statusCode, w.Code, w.Body.String())
			if tt.statusCode != http.StatusOK {
				return
			}

			var response models.ConvertResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tt.converted, response.Converted)
			assert.Equal(t, tt.formatted, response.Formatted)
		})
	}
}

func TestHandlers_RefreshRates(t *testing.T) {
	fetcher := testutils.NewMockFetcher(testDocument)
	router := newTestHandlers(t, "test-access-key", nil, fetcher).SetupRoutes()

	w := serve(router, "POST", "/api/v1/rates/refresh")
	require.Equal(t, http.StatusOK, w.Code)
	var response models.RefreshResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.False(t, response.Straight)
	assert.Equal(t, 3, response.Quotes)
	assert.Equal(t, int64(1000), response.Timestamp)

	fetcher.Respond(`{"timestamp":2000,"quotes":{"USDEUR":0.9}}`)
	w = serve(router, "POST", "/api/v1/rates/refresh?straight=true")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.True(t, response.Straight)
	assert.Equal(t, 1, response.Quotes)
	assert.Equal(t, 2, fetcher.Calls())
}

func TestHandlers_Middleware(t *testing.T) {
	router := newTestHandlers(t, "test-access-key", nil, testutils.NewMockFetcher(testDocument)).SetupRoutes()

	w := serve(router, "GET", "/health")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-ID", "0b5c7e8e-2c1b-4d8e-9a51-3f2f7a1d9c44")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "0b5c7e8e-2c1b-4d8e-9a51-3f2f7a1d9c44", w.Header().Get("X-Request-ID"))

	w = serve(router, "OPTIONS", "/api/v1/rates")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHandlers_Metrics(t *testing.T) {
	router := newTestHandlers(t, "test-access-key", nil, testutils.NewMockFetcher(testDocument)).SetupRoutes()

	serve(router, "GET", "/api/v1/rates/USD/EUR")
	serve(router, "GET", "/api/v1/rates/USD/ZZZ")

	w := serve(router, "GET", "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, `http_requests_total{method="GET",path="/api/v1/rates/:from/:to",status_code="200"} 1`), body)
	assert.Contains(t, body, `status_code="400"`)
	assert.Contains(t, body, "currencylayer_feed_requests_total")
}

func TestHandlers_RateLimit(t *testing.T) {
	cfg := testutils.MockConfig()
	cfg.RateLimitBurst = 1
	cfg.RateLimitRequests = 1
	limiter := ratelimit.NewLimiter(cfg, testutils.MockLogger())
	defer limiter.Stop()

	bank, err := service.NewBank(service.Options{AccessKey: "k"}, nil, testutils.NewMockFetcher(testDocument), testutils.MockLogger())
	require.NoError(t, err)
	router := NewHandlers(HandlerConfig{Bank: bank, Logger: testutils.MockLogger(), RateLimiter: limiter}).SetupRoutes()

	assert.Equal(t, http.StatusOK, serve(router, "GET", "/api/v1/rates/USD/EUR").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, "GET", "/api/v1/rates/USD/EUR").Code)
	// health checks are never limited
	assert.Equal(t, http.StatusOK, serve(router, "GET", "/health").Code)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
	}{
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"other", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := classifyError(tt.err); got != tt.statusCode {
				t.Errorf("classifyError(%v) = %v, want %v", tt.err, got, tt.statusCode)
			}
		})
	}
}
