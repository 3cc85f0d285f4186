package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultHost is the currencylayer API host.
const DefaultHost = "apilayer.net"

// ErrNoAccessKey is returned when a source URL is requested without an access key.
var ErrNoAccessKey = errors.New("no access key provided for currencylayer")

// FetchError describes a failed call to the rate feed.
type FetchError struct {
	URL        string
	StatusCode int
	Cause      error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch %s: %v", redact(e.URL), e.Cause)
	}
	return fmt.Sprintf("fetch %s: status %d", redact(e.URL), e.StatusCode)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Endpoint identifies where and how the live quotes are requested.
type Endpoint struct {
	Host      string
	Source    string
	AccessKey string
	Secure    bool
}

// SourceURL builds the live quotes URL for endpoint. The access key is checked
// before anything else so that no request is ever attempted without one.
func SourceURL(endpoint Endpoint) (string, error) {
	if endpoint.AccessKey == "" {
		return "", ErrNoAccessKey
	}
	scheme := "http"
	if endpoint.Secure {
		scheme = "https"
	}
	host := endpoint.Host
	if host == "" {
		host = DefaultHost
	}
	return fmt.Sprintf("%s://%s/api/live?source=%s&access_key=%s",
		scheme, host, url.QueryEscape(endpoint.Source), url.QueryEscape(endpoint.AccessKey)), nil
}

// Fetcher retrieves the raw bytes behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, sourceURL string) ([]byte, error)
}

// Client fetches documents from the rate feed over HTTP.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a feed client whose requests time out after timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Fetch performs a single GET. Any transport failure or non-2xx status is a *FetchError.
func (client *Client) Fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, &FetchError{URL: sourceURL, Cause: err}
	}
	request.Header.Set("Accept", "application/json")

	response, err := client.httpClient.Do(request)
	if err != nil {
		return nil, &FetchError{URL: sourceURL, Cause: err}
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, &FetchError{URL: sourceURL, StatusCode: response.StatusCode}
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, &FetchError{URL: sourceURL, StatusCode: response.StatusCode, Cause: err}
	}
	return body, nil
}

// redact hides the access key when a URL ends up in a log line.
func redact(sourceURL string) string {
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return sourceURL
	}
	query := parsed.Query()
	if query.Has("access_key") {
		query.Set("access_key", "REDACTED")
		parsed.RawQuery = query.Encode()
	}
	return parsed.String()
}
