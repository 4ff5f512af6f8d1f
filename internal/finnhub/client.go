package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// Memoization TTL for company profile and financials lookups
const memoTTL = 300 * time.Second

// Client is a rate-limited HTTP client for the market data vendor API.
// Quotes are always fetched fresh; profile and financials responses are
// memoized in process for a short TTL.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *RateLimiter

	profiles   *memoCache
	financials *memoCache
}

// NewClient creates a new vendor API client
func NewClient(apiKey, baseURL string) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    NewRateLimiter(DefaultRateLimit, DefaultRateWindow),
		profiles:   newMemoCache(memoTTL),
		financials: newMemoCache(memoTTL),
	}
}

// Quote fetches the current quote for a symbol. Returns (nil, nil) when the
// vendor reports no data (zero current price).
func (c *Client) Quote(ctx context.Context, symbol string) (*Quote, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var quote Quote
	if err := c.get(ctx, "/quote", params, &quote); err != nil {
		return nil, err
	}
	if quote.Current == 0 {
		return nil, nil
	}
	return &quote, nil
}

// MultiQuote fetches quotes concurrently for many symbols; the shared
// limiter bounds the aggregate rate. Symbols that error or have no data
// are omitted from the result.
func (c *Client) MultiQuote(ctx context.Context, symbols []string) map[string]*Quote {
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	quotes := make(map[string]*Quote, len(symbols))

	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			quote, err := c.Quote(ctx, symbol)
			if err != nil || quote == nil {
				return
			}
			mu.Lock()
			quotes[symbol] = quote
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()
	return quotes
}

// CompanyProfile fetches the company profile for a symbol, memoized for 300s
func (c *Client) CompanyProfile(ctx context.Context, symbol string) (*CompanyProfile, error) {
	if cached, ok := c.profiles.get(symbol); ok {
		return cached.(*CompanyProfile), nil
	}

	params := url.Values{}
	params.Set("symbol", symbol)

	var profile CompanyProfile
	if err := c.get(ctx, "/stock/profile2", params, &profile); err != nil {
		return nil, err
	}
	c.profiles.put(symbol, &profile)
	return &profile, nil
}

// BasicFinancials fetches key metrics for a symbol, memoized for 300s
func (c *Client) BasicFinancials(ctx context.Context, symbol string) (*BasicFinancials, error) {
	if cached, ok := c.financials.get(symbol); ok {
		return cached.(*BasicFinancials), nil
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("metric", "all")

	var financials BasicFinancials
	if err := c.get(ctx, "/stock/metric", params, &financials); err != nil {
		return nil, err
	}
	c.financials.put(symbol, &financials)
	return &financials, nil
}

// Recommendations fetches analyst recommendation trends, newest first
func (c *Client) Recommendations(ctx context.Context, symbol string) ([]RecommendationTrend, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var trends []RecommendationTrend
	if err := c.get(ctx, "/stock/recommendation", params, &trends); err != nil {
		return nil, err
	}
	return trends, nil
}

// Search looks up symbols matching a free-text query
func (c *Client) Search(ctx context.Context, query string) (*SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)

	var result SearchResult
	if err := c.get(ctx, "/search", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Candles fetches historical candles. Returns (nil, nil) when the vendor
// has no data for the range.
func (c *Client) Candles(ctx context.Context, symbol, resolution string, from, to int64) (*Candles, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("resolution", resolution)
	params.Set("from", strconv.FormatInt(from, 10))
	params.Set("to", strconv.FormatInt(to, 10))

	var candles Candles
	if err := c.get(ctx, "/stock/candle", params, &candles); err != nil {
		return nil, err
	}
	if candles.Status != "ok" {
		return nil, nil
	}
	return &candles, nil
}

// StockDetail aggregates quote, profile, financials and the latest
// recommendation, fetching all four in parallel. It fails only when the
// quote is unavailable; enrichment errors degrade to partial data.
func (c *Client) StockDetail(ctx context.Context, symbol string) (*StockDetail, error) {
	var (
		wg         sync.WaitGroup
		quote      *Quote
		quoteErr   error
		profile    *CompanyProfile
		financials *BasicFinancials
		trends     []RecommendationTrend
	)

	wg.Add(4)
	go func() {
		defer wg.Done()
		quote, quoteErr = c.Quote(ctx, symbol)
	}()
	go func() {
		defer wg.Done()
		if p, err := c.CompanyProfile(ctx, symbol); err == nil {
			profile = p
		}
	}()
	go func() {
		defer wg.Done()
		if f, err := c.BasicFinancials(ctx, symbol); err == nil {
			financials = f
		}
	}()
	go func() {
		defer wg.Done()
		if t, err := c.Recommendations(ctx, symbol); err == nil {
			trends = t
		}
	}()
	wg.Wait()

	if quoteErr != nil {
		return nil, fmt.Errorf("quote for %s: %w", symbol, quoteErr)
	}
	if quote == nil {
		return nil, nil
	}

	detail := &StockDetail{Symbol: symbol, Quote: quote}
	if profile != nil && profile.Ticker != "" {
		detail.Profile = profile
	}
	if financials != nil && len(financials.Metric) > 0 {
		detail.Financials = financials
	}
	if len(trends) > 0 {
		detail.Recommendation = &trends[0]
	}
	return detail, nil
}

// LimiterStatus exposes the request budget for the status endpoint
func (c *Client) LimiterStatus() (used, remaining int) {
	return c.limiter.Status()
}

// MemoStats returns hit/miss counters for the profile and financials caches
func (c *Client) MemoStats() map[string]int64 {
	pHits, pMisses := c.profiles.stats()
	fHits, fMisses := c.financials.stats()
	return map[string]int64{
		"profile_hits":      pHits,
		"profile_misses":    pMisses,
		"financials_hits":   fHits,
		"financials_misses": fMisses,
	}
}

// get performs a rate-limited GET and decodes the JSON response
func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := c.limiter.Acquire(ctx); err != nil {
		return err
	}

	params.Set("token", c.apiKey)
	endpoint := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error fetching %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("error parsing %s response: %w", path, err)
	}

	return nil
}

// memoCache is a TTL-on-read cache for vendor responses
type memoCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoEntry
	hits    int64
	misses  int64
}

type memoEntry struct {
	value     interface{}
	expiresAt time.Time
}

func newMemoCache(ttl time.Duration) *memoCache {
	return &memoCache{
		ttl:     ttl,
		entries: make(map[string]memoEntry),
	}
}

func (m *memoCache) get(key string) (interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		if ok {
			delete(m.entries, key)
		}
		m.misses++
		return nil, false
	}
	m.hits++
	return entry.value, true
}

func (m *memoCache) put(key string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoEntry{value: value, expiresAt: time.Now().Add(m.ttl)}
}

func (m *memoCache) stats() (hits, misses int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hits, m.misses
}
