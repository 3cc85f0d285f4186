package testutils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dalfonso89/currencylayer-bank/internal/config"
)

// LiveResponse mirrors the currencylayer /api/live body.
type LiveResponse struct {
	Success   bool               `json:"success"`
	Timestamp int64              `json:"timestamp"`
	Source    string             `json:"source"`
	Quotes    map[string]float64 `json:"quotes"`
}

// MockCurrencylayerServer serves /api/live for a fixed access key.
type MockCurrencylayerServer struct {
	server    *httptest.Server
	accessKey string

	mutex    sync.Mutex
	response LiveResponse
	requests atomic.Int64
}

// NewMockCurrencylayerServer creates a server accepting accessKey and quoting
// a small USD based table.
func NewMockCurrencylayerServer(accessKey string) *MockCurrencylayerServer {
	mock := &MockCurrencylayerServer{
		accessKey: accessKey,
		response: LiveResponse{
			Success:   true,
			Timestamp: 1000,
			Source:    "USD",
			Quotes: map[string]float64{
				"USDEUR": 0.8,
				"USDGBP": 0.5,
				"USDJPY": 150.0,
				"USDCAD": 2.0,
				"USDBBD": 4.0,
			},
		},
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handler))
	return mock
}

func (m *MockCurrencylayerServer) handler(w http.ResponseWriter, r *http.Request) {
	m.requests.Add(1)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method != http.MethodGet:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	case r.URL.Path != "/api/live":
		http.Error(w, "Not found", http.StatusNotFound)
		return
	case r.URL.Query().Get("access_key") != m.accessKey:
		// currencylayer reports auth failures with a 200 and an error body
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   map[string]interface{}{"code": 101, "info": "You have not supplied a valid API Access Key."},
		})
		return
	}

	m.mutex.Lock()
	response := m.response
	m.mutex.Unlock()
	json.NewEncoder(w).Encode(response)
}

// SetResponse replaces the document served from now on.
func (m *MockCurrencylayerServer) SetResponse(response LiveResponse) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.response = response
}

// Requests returns how many requests reached the server.
func (m *MockCurrencylayerServer) Requests() int {
	return int(m.requests.Load())
}

// URL returns the mock server URL
func (m *MockCurrencylayerServer) URL() string {
	return m.server.URL
}

// Host returns host:port, the form used in configuration.
func (m *MockCurrencylayerServer) Host() string {
	return strings.TrimPrefix(m.server.URL, "http://")
}

// Close closes the mock server
func (m *MockCurrencylayerServer) Close() {
	m.server.Close()
}

// MockConfigWithServer returns a test configuration pointing at the mock server
func MockConfigWithServer(server *MockCurrencylayerServer) *config.Config {
	cfg := MockConfig()
	cfg.Host = server.Host()
	cfg.AccessKey = server.accessKey
	return cfg
}
