package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/dalfonso89/currencylayer-bank/internal/config"
)

// idleTimeout is how long a client may stay silent before its bucket is dropped.
const idleTimeout = 30 * time.Minute

// Limiter keeps one token bucket per client IP.
type Limiter struct {
	Configuration *config.Config
	logger        *logrus.Logger

	limit rate.Limit

	clientsMutex sync.Mutex
	clients      map[string]*client

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	stopOnce      sync.Once
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter refills RateLimitRequests tokens per RateLimitWindow up to
// RateLimitBurst. Call Stop to end the cleanup goroutine.
func NewLimiter(configuration *config.Config, logger *logrus.Logger) *Limiter {
	limit := rate.Inf
	if configuration.RateLimitRequests > 0 && configuration.RateLimitWindow > 0 {
		limit = rate.Every(configuration.RateLimitWindow / time.Duration(configuration.RateLimitRequests))
	}

	rateLimiter := &Limiter{
		Configuration: configuration,
		logger:        logger,
		limit:         limit,
		clients:       make(map[string]*client),
		cleanupTicker: time.NewTicker(5 * time.Minute),
		stopCleanup:   make(chan struct{}),
	}
	go rateLimiter.cleanup()
	return rateLimiter
}

// Allow takes a token from clientIP's bucket.
func (rateLimiter *Limiter) Allow(clientIP string) bool {
	if !rateLimiter.Configuration.RateLimitEnabled {
		return true
	}
	return rateLimiter.bucket(clientIP, time.Now()).Allow()
}

func (rateLimiter *Limiter) bucket(clientIP string, now time.Time) *rate.Limiter {
	rateLimiter.clientsMutex.Lock()
	defer rateLimiter.clientsMutex.Unlock()

	entry, ok := rateLimiter.clients[clientIP]
	if !ok {
		burst := rateLimiter.Configuration.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		entry = &client{limiter: rate.NewLimiter(rateLimiter.limit, burst)}
		rateLimiter.clients[clientIP] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// Clients returns the number of tracked client buckets.
func (rateLimiter *Limiter) Clients() int {
	rateLimiter.clientsMutex.Lock()
	defer rateLimiter.clientsMutex.Unlock()
	return len(rateLimiter.clients)
}

// Middleware rejects requests over the limit with 429.
func (rateLimiter *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := rateLimiter.GetClientIP(c.Request)
		if rateLimiter.Allow(clientIP) {
			c.Next()
			return
		}

		rateLimiter.logger.WithField("client_ip", clientIP).Warn("Rate limit exceeded")
		c.Header("X-RateLimit-Limit", strconv.Itoa(rateLimiter.Configuration.RateLimitRequests))
		c.Header("X-RateLimit-Remaining", "0")
		c.Header("Retry-After", strconv.Itoa(rateLimiter.retryAfterSeconds()))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":   "rate limit exceeded",
			"message": "too many requests, retry later",
			"code":    http.StatusTooManyRequests,
		})
	}
}

func (rateLimiter *Limiter) retryAfterSeconds() int {
	if rateLimiter.limit == rate.Inf || rateLimiter.limit <= 0 {
		return 1
	}
	seconds := int(math.Round(1 / float64(rateLimiter.limit)))
	if seconds < 1 {
		return 1
	}
	return seconds
}

// GetClientIP extracts the real client IP from the request
func (rateLimiter *Limiter) GetClientIP(request *http.Request) string {
	if forwarded := request.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if clientIP := parseIP(first); clientIP != "" {
			return clientIP
		}
	}

	if realIP := request.Header.Get("X-Real-IP"); realIP != "" {
		if clientIP := parseIP(strings.TrimSpace(realIP)); clientIP != "" {
			return clientIP
		}
	}

	clientIP, _, err := net.SplitHostPort(request.RemoteAddr)
	if err != nil {
		return request.RemoteAddr
	}
	return clientIP
}

// parseIP accepts a bare address or host:port and returns "" for anything else.
func parseIP(value string) string {
	if ip := net.ParseIP(value); ip != nil {
		return ip.String()
	}
	if host, _, err := net.SplitHostPort(value); err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip.String()
		}
	}
	return ""
}

func (rateLimiter *Limiter) cleanup() {
	for {
		select {
		case <-rateLimiter.cleanupTicker.C:
			rateLimiter.evictIdle(time.Now())
		case <-rateLimiter.stopCleanup:
			rateLimiter.cleanupTicker.Stop()
			return
		}
	}
}

func (rateLimiter *Limiter) evictIdle(now time.Time) {
	rateLimiter.clientsMutex.Lock()
	defer rateLimiter.clientsMutex.Unlock()
	for clientIP, entry := range rateLimiter.clients {
		if now.Sub(entry.lastSeen) > idleTimeout {
			delete(rateLimiter.clients, clientIP)
		}
	}
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (rateLimiter *Limiter) Stop() {
	rateLimiter.stopOnce.Do(func() { close(rateLimiter.stopCleanup) })
}
