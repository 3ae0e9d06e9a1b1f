// Package marketplace provides a client for the completed-sales search API
// used to source sold-listing data for ISBNs.
package marketplace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL      = "https://svcs.ebay.com/services/search/FindingService/v1"
	defaultCategoryID   = "267" // Books
	defaultMaxResults   = 100
	defaultLookbackDays = 30
	defaultTimeout      = 10 * time.Second
)

// ErrRateLimited is returned when the provider signals call throttling.
// Callers are expected to back off and fall back to stale cache.
var ErrRateLimited = eris.New("marketplace: rate limited by provider")

// ErrTimeout is returned when the search request exceeded its deadline.
var ErrTimeout = eris.New("marketplace: request timed out")

// Client searches completed sales for an ISBN.
type Client interface {
	// FindCompletedSales returns raw sold listings for the ISBN within the
	// configured lookback window, soonest-ending-first. A successful query
	// with no listings returns an empty slice, not an error.
	FindCompletedSales(ctx context.Context, isbn string) ([]Item, error)
}

// RateLimitDetector decides whether a non-2xx response represents
// provider throttling. The check is provider-specific and deliberately
// isolated here so it can be swapped without touching callers.
type RateLimitDetector func(statusCode int, body []byte) bool

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithToken sets the optional security token header.
func WithToken(token string) Option {
	return func(c *httpClient) { c.token = token }
}

// WithCategoryID overrides the search category.
func WithCategoryID(id string) Option {
	return func(c *httpClient) { c.categoryID = id }
}

// WithTimeout overrides the per-request deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxResults overrides the page size.
func WithMaxResults(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

// WithLookbackDays overrides the completed-sale window.
func WithLookbackDays(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.lookbackDays = n
		}
	}
}

// WithRequestsPerSecond installs an outbound politeness limiter.
func WithRequestsPerSecond(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimitDetector overrides the provider throttle heuristic.
func WithRateLimitDetector(d RateLimitDetector) Option {
	return func(c *httpClient) {
		if d != nil {
			c.rateLimited = d
		}
	}
}

type httpClient struct {
	appID        string
	token        string
	baseURL      string
	categoryID   string
	maxResults   int
	lookbackDays int
	timeout      time.Duration
	limiter      *rate.Limiter
	rateLimited  RateLimitDetector
	nowFunc      func() time.Time
	http         *http.Client
}

// NewClient creates a completed-sales search client.
func NewClient(appID string, opts ...Option) Client {
	c := &httpClient{
		appID:        appID,
		baseURL:      defaultBaseURL,
		categoryID:   defaultCategoryID,
		maxResults:   defaultMaxResults,
		lookbackDays: defaultLookbackDays,
		timeout:      defaultTimeout,
		rateLimited:  DefaultRateLimitDetector,
		nowFunc:      time.Now,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) FindCompletedSales(ctx context.Context, isbn string) ([]Item, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "marketplace: limiter wait")
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "marketplace: create request")
	}
	req.URL.RawQuery = c.buildQuery(isbn)
	if c.token != "" {
		req.Header.Set("X-EBAY-SOA-SECURITY-TOKEN", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, eris.Wrapf(ErrTimeout, "marketplace: search %s", isbn)
		}
		return nil, eris.Wrapf(err, "marketplace: search %s", isbn)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "marketplace: read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if c.rateLimited(resp.StatusCode, body) {
			return nil, eris.Wrapf(ErrRateLimited, "marketplace: search %s", isbn)
		}
		return nil, eris.Errorf("marketplace: unexpected status %d: %s", resp.StatusCode, truncate(body, 256))
	}

	items, err := decodeSearchResponse(body)
	if err != nil {
		return nil, eris.Wrapf(err, "marketplace: decode response for %s", isbn)
	}
	return items, nil
}

// buildQuery assembles the findCompletedItems query: sold items only,
// restricted to the lookback window, one page of maxResults, sorted
// soonest-ending-first.
func (c *httpClient) buildQuery(isbn string) string {
	now := c.nowFunc().UTC()
	from := now.AddDate(0, 0, -c.lookbackDays)

	q := url.Values{}
	q.Set("OPERATION-NAME", "findCompletedItems")
	q.Set("SERVICE-VERSION", "1.13.0")
	q.Set("SECURITY-APPNAME", c.appID)
	q.Set("RESPONSE-DATA-FORMAT", "JSON")
	q.Set("REST-PAYLOAD", "")
	q.Set("keywords", isbn)
	q.Set("categoryId", c.categoryID)
	q.Set("itemFilter(0).name", "EndTimeFrom")
	q.Set("itemFilter(0).value", from.Format(time.RFC3339))
	q.Set("itemFilter(1).name", "EndTimeTo")
	q.Set("itemFilter(1).value", now.Format(time.RFC3339))
	q.Set("itemFilter(2).name", "SoldItemsOnly")
	q.Set("itemFilter(2).value", "true")
	q.Set("paginationInput.entriesPerPage", fmt.Sprintf("%d", c.maxResults))
	q.Set("sortOrder", "EndTimeSoonest")
	return q.Encode()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
