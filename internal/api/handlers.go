package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/dalfonso89/currencylayer-bank/internal/currency"
	"github.com/dalfonso89/currencylayer-bank/internal/feed"
	"github.com/dalfonso89/currencylayer-bank/internal/metrics"
	"github.com/dalfonso89/currencylayer-bank/internal/middleware"
	"github.com/dalfonso89/currencylayer-bank/internal/models"
	"github.com/dalfonso89/currencylayer-bank/internal/money"
	"github.com/dalfonso89/currencylayer-bank/internal/ratelimit"
	"github.com/dalfonso89/currencylayer-bank/internal/service"
	"github.com/dalfonso89/currencylayer-bank/internal/store"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// HandlerConfig holds the dependencies of the HTTP surface.
type HandlerConfig struct {
	Bank         *service.Bank
	Logger       *logrus.Logger
	Metrics      *metrics.Metrics
	RateLimiter  *ratelimit.Limiter
	CacheBackend string
}

// Handlers contains all HTTP handlers
type Handlers struct {
	bank         *service.Bank
	logger       *logrus.Logger
	metrics      *metrics.Metrics
	rateLimiter  *ratelimit.Limiter
	cacheBackend string
	startTime    time.Time
}

// NewHandlers creates a new handlers instance
func NewHandlers(handlerConfig HandlerConfig) *Handlers {
	cacheBackend := handlerConfig.CacheBackend
	if cacheBackend == "" {
		cacheBackend = string(store.KindNone)
	}
	return &Handlers{
		bank:         handlerConfig.Bank,
		logger:       handlerConfig.Logger,
		metrics:      handlerConfig.Metrics,
		rateLimiter:  handlerConfig.RateLimiter,
		cacheBackend: cacheBackend,
		startTime:    time.Now(),
	}
}

// SetupRoutes configures all the routes using Gin
func (handlers *Handlers) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(handlers.logger))
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(corsMiddleware())
	if handlers.metrics != nil {
		router.Use(middleware.Metrics(handlers.metrics))
	}

	router.GET("/health", handlers.HealthCheck)
	if handlers.metrics != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(handlers.metrics.Registry, promhttp.HandlerOpts{})))
	}

	apiV1 := router.Group("/api/v1")
	if handlers.rateLimiter != nil {
		apiV1.Use(handlers.rateLimiter.Middleware())
	}
	{
		apiV1.GET("/rates", handlers.GetRates)
		apiV1.GET("/rates/:from/:to", handlers.GetRate)
		apiV1.GET("/convert", handlers.Convert)
		apiV1.POST("/rates/refresh", handlers.RefreshRates)
	}

	return router
}

// HealthCheck reports the bank's state without touching the feed.
func (handlers *Handlers) HealthCheck(c *gin.Context) {
	status := "healthy"
	if handlers.bank.Options().AccessKey == "" {
		status = "degraded"
	}

	c.JSON(http.StatusOK, models.HealthCheck{
		Status:         status,
		Timestamp:      time.Now(),
		Version:        Version,
		Uptime:         time.Since(handlers.startTime).Round(time.Second).String(),
		Source:         handlers.bank.Source(),
		CacheBackend:   handlers.cacheBackend,
		RatesTimestamp: handlers.bank.Timestamp().Unix(),
		Freshness:      handlers.bank.Freshness(c.Request.Context()).String(),
	})
}

// GetRates returns every quote the bank holds, refreshing first if needed.
// ?direct=true limits the list to quotes from the source currency.
func (handlers *Handlers) GetRates(c *gin.Context) {
	state, err := handlers.bank.EnsureFresh(c.Request.Context())
	if err != nil {
		handlers.writeError(c, err)
		return
	}

	quotes := handlers.bank.Rates()
	if direct, _ := strconv.ParseBool(c.Query("direct")); direct {
		quotes = models.FilterQuotes(quotes, handlers.bank.Source())
	}

	response := models.RatesResponse{
		Source:    handlers.bank.Source(),
		Timestamp: handlers.bank.Timestamp().Unix(),
		Freshness: state.String(),
		Quotes:    quotes,
	}
	if expiration := handlers.bank.Expiration(); !expiration.IsZero() {
		response.Expires = expiration.Unix()
	}
	c.JSON(http.StatusOK, response)
}

func (handlers *Handlers) GetRate(c *gin.Context) {
	from, to := c.Param("from"), c.Param("to")

	rate, err := handlers.bank.GetRate(c.Request.Context(), from, to)
	if err != nil {
		handlers.writeError(c, err)
		return
	}

	fromCode, _ := currency.Normalize(from)
	toCode, _ := currency.Normalize(to)
	if math.IsInf(rate, 0) || math.IsNaN(rate) {
		handlers.writeError(c, fmt.Errorf("%w: %s to %s is %v", money.ErrUnknownRate, fromCode, toCode, rate))
		return
	}
	c.JSON(http.StatusOK, models.RateResponse{
		From:      fromCode,
		To:        toCode,
		Rate:      rate,
		Timestamp: handlers.bank.Timestamp().Unix(),
	})
}

// Convert exchanges ?amount= (default 1) of ?from= into ?to=.
func (handlers *Handlers) Convert(c *gin.Context) {
	amount, err := money.NewFromString(c.DefaultQuery("amount", "1"), c.Query("from"))
	if err != nil {
		handlers.writeError(c, err)
		return
	}

	converted, rate, err := money.Exchange(c.Request.Context(), handlers.bank, amount, c.Query("to"))
	if err != nil {
		handlers.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ConvertResponse{
		From:      amount.Currency,
		To:        converted.Currency,
		Amount:    amount.Amount.String(),
		Rate:      rate,
		Converted: converted.Amount.StringFixed(currency.MinorUnits(converted.Currency)),
		Formatted: converted.String(),
	})
}

// RefreshRates rebuilds the table now. ?straight=true goes to the feed first.
func (handlers *Handlers) RefreshRates(c *gin.Context) {
	straight, _ := strconv.ParseBool(c.Query("straight"))

	if err := handlers.bank.UpdateRates(c.Request.Context(), straight); err != nil {
		handlers.writeError(c, err)
		return
	}

	source := handlers.bank.Source()
	c.JSON(http.StatusOK, models.RefreshResponse{
		Straight:  straight,
		Source:    source,
		Timestamp: handlers.bank.Timestamp().Unix(),
		Quotes:    len(models.FilterQuotes(handlers.bank.Rates(), source)),
	})
}

// classifyError maps domain errors to an HTTP status and a short message.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, currency.ErrUnknownCurrency):
		return http.StatusBadRequest, "unknown currency"
	case errors.Is(err, money.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid amount"
	case errors.Is(err, money.ErrUnknownRate):
		return http.StatusNotFound, "rate not available"
	case errors.Is(err, feed.ErrNoAccessKey):
		return http.StatusServiceUnavailable, "rate feed not configured"
	case errors.Is(err, store.ErrInvalidCache):
		return http.StatusInternalServerError, "rate cache unavailable"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (handlers *Handlers) writeError(c *gin.Context, err error) {
	statusCode, message := classifyError(err)
	if statusCode >= http.StatusInternalServerError {
		handlers.logger.WithFields(logrus.Fields{
			"path":  c.FullPath(),
			"error": err.Error(),
		}).Error("Request failed")
	}
	c.JSON(statusCode, models.ErrorResponse{
		Error:   message,
		Message: err.Error(),
		Code:    statusCode,
	})
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
