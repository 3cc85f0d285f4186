package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dalfonso89/currencylayer-bank/internal/config"
	"github.com/dalfonso89/currencylayer-bank/internal/feed"
	"github.com/dalfonso89/currencylayer-bank/internal/logger"
)

// MockLogger creates a logger that discards output
func MockLogger() *logrus.Logger {
	return logger.Discard()
}

// MockConfig creates a mock configuration for testing
func MockConfig() *config.Config {
	return &config.Config{
		Port:     "8081",
		LogLevel: "debug",

		AccessKey:    "test-access-key",
		Source:       "USD",
		RatesTTL:     0,
		Secure:       false,
		Host:         feed.DefaultHost,
		FetchTimeout: 5 * time.Second,

		CacheBackend:     "none",
		CacheKey:         "currencylayer:test",
		CacheMemoryBytes: 32 * 1024 * 1024,

		RateLimitEnabled:  true,
		RateLimitRequests: 100,
		RateLimitWindow:   60 * time.Second,
		RateLimitBurst:    10,
	}
}

// MockFetcher is a feed.Fetcher that serves canned bodies and counts calls.
type MockFetcher struct {
	mutex sync.Mutex
	body  []byte
	err   error
	calls int
	urls  []string
}

var _ feed.Fetcher = (*MockFetcher)(nil)

// NewMockFetcher returns a fetcher serving body.
func NewMockFetcher(body string) *MockFetcher {
	return &MockFetcher{body: []byte(body)}
}

func (m *MockFetcher) Fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.calls++
	m.urls = append(m.urls, sourceURL)
	if m.err != nil {
		return nil, m.err
	}
	return m.body, nil
}

// Respond changes the body served by later calls and clears any error.
func (m *MockFetcher) Respond(body string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.body = []byte(body)
	m.err = nil
}

// Fail makes later calls return err.
func (m *MockFetcher) Fail(err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.err = err
}

func (m *MockFetcher) Calls() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.calls
}

func (m *MockFetcher) LastURL() string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if len(m.urls) == 0 {
		return ""
	}
	return m.urls[len(m.urls)-1]
}

// Clock is a settable time source.
type Clock struct {
	mutex sync.Mutex
	now   time.Time
}

func NewClock(unixSeconds int64) *Clock {
	return &Clock{now: time.Unix(unixSeconds, 0).UTC()}
}

func (c *Clock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

func (c *Clock) Set(unixSeconds int64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = time.Unix(unixSeconds, 0).UTC()
}
