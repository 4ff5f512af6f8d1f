package refresh

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"stock-alert-service/internal/finnhub"
	"stock-alert-service/internal/marketdata"
)

// indexSymbols are refreshed along with user symbols
var indexSymbols = []string{"SPY", "QQQ", "IWM"}

// SymbolUniverse provides every symbol the service cares about
type SymbolUniverse interface {
	GetAlertSymbols(ctx context.Context) ([]string, error)
	GetAllSectorSymbols(ctx context.Context) ([]string, error)
	GetWatchlistSymbols(ctx context.Context) ([]string, error)
}

// QuoteSource fetches fresh quotes from the vendor
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (*finnhub.Quote, error)
}

// PriceWriter receives refreshed prices
type PriceWriter interface {
	SetLivePrice(ctx context.Context, symbol string, price float64)
	SetPreviousClose(ctx context.Context, symbol string, price float64)
}

// Refresher reloads previous-close prices for the whole symbol universe,
// once at startup and then daily at a configured wall-clock time.
type Refresher struct {
	universe SymbolUniverse
	quotes   QuoteSource
	cache    PriceWriter

	hour   int
	minute int
	pacer  *rate.Limiter

	mu       sync.RWMutex
	lastRun  time.Time
	runCount int64

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewRefresher creates a refresher that runs daily at hour:minute
func NewRefresher(universe SymbolUniverse, quotes QuoteSource, cache PriceWriter, hour, minute int) *Refresher {
	return &Refresher{
		universe: universe,
		quotes:   quotes,
		cache:    cache,
		hour:     hour,
		minute:   minute,
		pacer:    rate.NewLimiter(rate.Every(marketdata.InterCallDelay), 1),
		stopChan: make(chan struct{}),
	}
}

// Start launches the refresh loop with an immediate first run
func (r *Refresher) Start() {
	r.wg.Add(1)
	go r.run()
	log.Printf("[REFRESH] Daily refresher started (daily at %02d:%02d)", r.hour, r.minute)
}

// Stop terminates the loop
func (r *Refresher) Stop() {
	close(r.stopChan)
	r.wg.Wait()
	log.Println("[REFRESH] Daily refresher stopped")
}

func (r *Refresher) run() {
	defer r.wg.Done()

	r.refresh()

	for {
		next := nextRunAfter(time.Now(), r.hour, r.minute)
		timer := time.NewTimer(time.Until(next))

		select {
		case <-r.stopChan:
			timer.Stop()
			return
		case <-timer.C:
			r.refresh()
		}
	}
}

// nextRunAfter returns the next wall-clock hour:minute strictly after now.
// When today's slot has passed, the clock is advanced by 24 hours and the
// wall-clock time re-projected, which is safe across month and year ends.
func nextRunAfter(now time.Time, hour, minute int) time.Time {
	candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if candidate.After(now) {
		return candidate
	}
	later := now.Add(24 * time.Hour)
	return time.Date(later.Year(), later.Month(), later.Day(), hour, minute, 0, 0, later.Location())
}

// refresh quotes every symbol in the universe sequentially, spacing calls,
// and writes both previous close and live price into the cache. Per-symbol
// failures are skipped; only shutdown aborts the pass.
func (r *Refresher) refresh() {
	runID := uuid.New().String()[:8]
	start := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-r.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	symbols := r.collectSymbols(ctx)
	log.Printf("[REFRESH] Run %s: refreshing %d symbols", runID, len(symbols))

	refreshed := 0
	for _, symbol := range symbols {
		if err := r.pacer.Wait(ctx); err != nil {
			log.Printf("[REFRESH] Run %s aborted: %v", runID, err)
			return
		}

		quote, err := r.quotes.Quote(ctx, symbol)
		if err != nil {
			log.Printf("[REFRESH] Run %s: quote failed for %s: %v", runID, symbol, err)
			continue
		}
		if quote == nil {
			continue
		}

		if quote.PreviousClose > 0 {
			r.cache.SetPreviousClose(ctx, symbol, quote.PreviousClose)
		}
		if quote.Current > 0 {
			r.cache.SetLivePrice(ctx, symbol, quote.Current)
		}
		refreshed++
	}

	r.mu.Lock()
	r.lastRun = time.Now()
	r.runCount++
	r.mu.Unlock()

	log.Printf("[REFRESH] Run %s completed in %v: %d/%d symbols refreshed",
		runID, time.Since(start).Round(time.Millisecond), refreshed, len(symbols))
}

// collectSymbols builds the deduplicated refresh universe
func (r *Refresher) collectSymbols(ctx context.Context) []string {
	var ordered []string

	if symbols, err := r.universe.GetAlertSymbols(ctx); err == nil {
		ordered = append(ordered, symbols...)
	} else {
		log.Printf("[REFRESH] Failed to load alert symbols: %v", err)
	}
	if symbols, err := r.universe.GetAllSectorSymbols(ctx); err == nil {
		ordered = append(ordered, symbols...)
	} else {
		log.Printf("[REFRESH] Failed to load sector symbols: %v", err)
	}
	if symbols, err := r.universe.GetWatchlistSymbols(ctx); err == nil {
		ordered = append(ordered, symbols...)
	} else {
		log.Printf("[REFRESH] Failed to load watchlist symbols: %v", err)
	}
	ordered = append(ordered, indexSymbols...)

	seen := make(map[string]bool, len(ordered))
	symbols := make([]string, 0, len(ordered))
	for _, symbol := range ordered {
		if seen[symbol] {
			continue
		}
		seen[symbol] = true
		symbols = append(symbols, symbol)
	}
	return symbols
}

// LastRun reports the completion time and count of refresh passes
func (r *Refresher) LastRun() (time.Time, int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRun, r.runCount
}
