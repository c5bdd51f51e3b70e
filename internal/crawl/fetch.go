// Package crawl provides the minimal collaborator the admission and
// scheduling core needs from page retrieval: fetch one URL, report success
// or failure. It intentionally does not do rendering, robots handling, or
// content extraction; those belong to a crawl-execution worker outside this
// service's scope.
package crawl

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Result is the outcome of fetching a single URL.
type Result struct {
	URL        string
	StatusCode int
	BodySize   int
}

// Fetcher retrieves a URL on behalf of a running job.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Result, error)
}

// HTTPFetcher is the default Fetcher, a plain net/http client tuned with
// the same pooled-transport settings used elsewhere in the codebase for
// outbound crawling.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// Config controls HTTPFetcher behavior.
type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// NewHTTPFetcher builds an HTTPFetcher with a pooled transport.
func NewHTTPFetcher(cfg Config) *HTTPFetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
	return &HTTPFetcher{
		client:    &http.Client{Transport: transport, Timeout: timeout},
		userAgent: cfg.UserAgent,
	}
}

// Fetch issues a GET request and drains the body to measure its size,
// discarding the content itself: the admission core only needs to know
// whether the URL succeeded.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read body for %s: %w", url, err)
	}

	result := Result{URL: url, StatusCode: resp.StatusCode, BodySize: int(n)}
	if resp.StatusCode >= 400 {
		return result, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return result, nil
}
