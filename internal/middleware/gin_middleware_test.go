package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dalfonso89/currencylayer-bank/internal/logger"
	"github.com/dalfonso89/currencylayer-bank/internal/metrics"
)

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(handlers...)
	router.GET("/rates/:from/:to", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(RequestIDKey))
	})
	return router
}

func TestRequestID(t *testing.T) {
	router := newRouter(RequestID())
	existing := uuid.NewString()

	tests := []struct {
		name   string
		header string
		reuse  bool
	}{
		{"generated when missing", "", false},
		{"reused when valid", existing, true},
		{"replaced when not a uuid", "<script>", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/rates/USD/EUR", nil)
			if tt.header != "" {
				req.Header.Set("X-Request-ID", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			got := w.Header().Get("X-Request-ID")
			if _, err := uuid.Parse(got); err != nil {
				t.Errorf("RequestID() header = %q, not a uuid", got)
			}
			if tt.reuse && got != tt.header {
				t.Errorf("RequestID() header = %q, want %q", got, tt.header)
			}
			if w.Body.String() != got {
				t.Errorf("RequestID() context value = %q, want %q", w.Body.String(), got)
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter(SecurityHeaders()).ServeHTTP(w, httptest.NewRequest("GET", "/rates/USD/EUR", nil))

	for header, expected := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := w.Header().Get(header); got != expected {
			t.Errorf("SecurityHeaders() %s = %q, want %q", header, got, expected)
		}
	}
}

func TestRequestLogger(t *testing.T) {
	var buffer bytes.Buffer
	router := newRouter(RequestID(), RequestLogger(logger.NewWithOutput("info", &buffer)))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/rates/USD/EUR", nil))

	var entry map[string]interface{}
	if err := json.Unmarshal(buffer.Bytes(), &entry); err != nil {
		t.Fatalf("RequestLogger() output %q is not JSON: %v", buffer.String(), err)
	}
	if entry["path"] != "/rates/USD/EUR" || entry["method"] != "GET" || entry["status"] != float64(200) {
		t.Errorf("RequestLogger() entry = %v", entry)
	}
	if entry[RequestIDKey] != w.Header().Get("X-Request-ID") {
		t.Errorf("RequestLogger() request_id = %v, want %v", entry[RequestIDKey], w.Header().Get("X-Request-ID"))
	}
}

func TestMetrics(t *testing.T) {
	m := metrics.NewMetrics()
	router := newRouter(Metrics(m))

	for _, path := range []string{"/rates/USD/EUR", "/rates/EUR/GBP", "/nowhere"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("/rates/:from/:to", "GET", "200")); got != 2 {
		t.Errorf("Metrics() route count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("unmatched", "GET", "404")); got != 1 {
		t.Errorf("Metrics() unmatched count = %v, want 1", got)
	}
}
