package marketdata

import (
	"context"
	"log"
	"time"

	"golang.org/x/time/rate"

	"stock-alert-service/internal/finnhub"
)

// InterCallDelay is the minimum spacing between sequential upstream quote
// calls made outside the websocket stream.
const InterCallDelay = 1100 * time.Millisecond

// PricePair holds the resolved prices for one symbol
type PricePair struct {
	Current   float64
	PrevClose float64
	HasPrev   bool
}

// PriceCache is the cache surface the snapshot loader reads and refills
type PriceCache interface {
	GetLivePrices(ctx context.Context, symbols []string) map[string]float64
	GetPreviousClose(ctx context.Context, symbol string) (float64, bool)
	SetLivePrice(ctx context.Context, symbol string, price float64)
	SetPreviousClose(ctx context.Context, symbol string, price float64)
}

// QuoteSource fetches fresh quotes from the vendor
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (*finnhub.Quote, error)
}

// SnapshotLoader resolves (current, previous close) pairs cache-first, with
// a paced upstream fallback for symbols the cache cannot answer.
type SnapshotLoader struct {
	cache  PriceCache
	quotes QuoteSource
	pacer  *rate.Limiter
}

// NewSnapshotLoader creates a loader that spaces upstream calls by at least
// InterCallDelay.
func NewSnapshotLoader(cache PriceCache, quotes QuoteSource) *SnapshotLoader {
	return &SnapshotLoader{
		cache:  cache,
		quotes: quotes,
		pacer:  rate.NewLimiter(rate.Every(InterCallDelay), 1),
	}
}

// Load resolves price pairs for the given symbols. needPrev marks symbols
// whose evaluation requires a previous close; for those, a missing prev
// close also forces the upstream fallback. Symbols with no resolvable
// nonzero current price are omitted.
func (l *SnapshotLoader) Load(ctx context.Context, symbols []string, needPrev map[string]bool) map[string]PricePair {
	pairs := make(map[string]PricePair, len(symbols))
	if len(symbols) == 0 {
		return pairs
	}

	live := l.cache.GetLivePrices(ctx, symbols)

	for _, symbol := range symbols {
		current, haveCurrent := live[symbol]
		prev, havePrev := l.cache.GetPreviousClose(ctx, symbol)

		if !haveCurrent || (needPrev[symbol] && !havePrev) {
			quote := l.fetch(ctx, symbol)
			if quote != nil {
				current, haveCurrent = quote.Current, true
				if quote.PreviousClose > 0 {
					prev, havePrev = quote.PreviousClose, true
					l.cache.SetPreviousClose(ctx, symbol, prev)
				}
				l.cache.SetLivePrice(ctx, symbol, current)
			}
		}

		if !haveCurrent || current == 0 {
			continue
		}
		pairs[symbol] = PricePair{Current: current, PrevClose: prev, HasPrev: havePrev}
	}

	return pairs
}

// fetch performs one paced upstream quote call; failures degrade to absence
func (l *SnapshotLoader) fetch(ctx context.Context, symbol string) *finnhub.Quote {
	if err := l.pacer.Wait(ctx); err != nil {
		return nil
	}
	quote, err := l.quotes.Quote(ctx, symbol)
	if err != nil {
		log.Printf("[SNAPSHOT] Quote fallback failed for %s: %v", symbol, err)
		return nil
	}
	return quote
}
