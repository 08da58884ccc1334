package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hopl-labs/hopl-backend/pkg/config"
)

const (
	defaultFetchTimeout = 15 * time.Second
	defaultMaxRedirects = 5
	defaultMaxBodyBytes = 5 << 20
	defaultUserAgent    = "Mozilla/5.0 (compatible; HOPL Compliance Scanner/1.0)"
)

var errTooManyRedirects = errors.New("too many redirects")

// Page is a fetched document after redirects.
type Page struct {
	FinalURL   *url.URL
	StatusCode int
	Body       []byte
	Truncated  bool
}

// Fetcher retrieves the page a scan inspects.
type Fetcher interface {
	Fetch(ctx context.Context, target string) (*Page, error)
}

// HTTPFetcher fetches pages over HTTP with bounded time, redirects and body size.
type HTTPFetcher struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
}

// FetcherOption configures optional fetcher behavior.
type FetcherOption func(*HTTPFetcher)

// WithHTTPClient overrides the underlying client. The redirect policy is kept.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *HTTPFetcher) {
		if client != nil {
			policy := f.client.CheckRedirect
			f.client = client
			f.client.CheckRedirect = policy
		}
	}
}

// NewHTTPFetcher builds a fetcher from the scanner configuration.
func NewHTTPFetcher(cfg config.ScannerConfig, opts ...FetcherOption) *HTTPFetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = defaultMaxRedirects
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	f := &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return errTooManyRedirects
				}
				return nil
			},
		},
		userAgent:    ua,
		maxBodyBytes: maxBody,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Fetch GETs target. Any transport failure or non-2xx status is an error; an
// oversized body is cut at the limit and flagged as truncated.
func (f *HTTPFetcher) Fetch(ctx context.Context, target string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", target, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	page := &Page{FinalURL: resp.Request.URL, StatusCode: resp.StatusCode, Body: body}
	if int64(len(body)) > f.maxBodyBytes {
		page.Body = body[:f.maxBodyBytes]
		page.Truncated = true
	}
	return page, nil
}
