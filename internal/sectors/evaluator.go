package sectors

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stock-alert-service/internal/database"
	"stock-alert-service/internal/marketdata"
)

// Divergence directions
const (
	DirectionUp   = "UP"
	DirectionDown = "DOWN"
)

// Store is the persistence surface the evaluator needs
type Store interface {
	GetActiveStrategies(ctx context.Context) ([]*database.StrategyWithBasket, error)
	UpdateStrategyTriggered(ctx context.Context, strategyID int64, at time.Time) error
	CreateNotification(ctx context.Context, n *database.Notification) error
}

// PriceLoader resolves (current, previous close) pairs for symbols
type PriceLoader interface {
	Load(ctx context.Context, symbols []string, needPrev map[string]bool) map[string]marketdata.PricePair
}

// Divergence is a detected sector divergence signal
type Divergence struct {
	Direction  string
	Laggard    string
	LaggardPct float64
}

// Evaluator checks sector divergence strategies on a fixed interval: when a
// configured majority of a sector basket moves past the trend threshold and
// exactly one symbol lags behind, it records a signal.
type Evaluator struct {
	store    Store
	prices   PriceLoader
	interval time.Duration
	logger   zerolog.Logger

	mu       sync.RWMutex
	ticks    int64
	lastTick time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewEvaluator creates a sector strategy evaluator
func NewEvaluator(store Store, prices PriceLoader, interval time.Duration, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		store:    store,
		prices:   prices,
		interval: interval,
		logger:   logger.With().Str("component", "sectors").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start launches the evaluation loop with an immediate first tick
func (e *Evaluator) Start() {
	e.wg.Add(1)
	go e.run()
	e.logger.Info().Dur("interval", e.interval).Msg("sector evaluator started")
}

// Stop terminates the loop
func (e *Evaluator) Stop() {
	close(e.stopChan)
	e.wg.Wait()
	e.logger.Info().Msg("sector evaluator stopped")
}

func (e *Evaluator) run() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.tick()

	for {
		select {
		case <-ticker.C:
			e.tick()
		case <-e.stopChan:
			return
		}
	}
}

func (e *Evaluator) tick() {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Msg("recovered from panic in evaluation tick")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), e.interval)
	defer cancel()

	e.CheckStrategies(ctx)

	e.mu.Lock()
	e.ticks++
	e.lastTick = time.Now()
	e.mu.Unlock()
}

// CheckStrategies evaluates every active strategy once. Prices are loaded
// in one pass over the union of all baskets, so overlapping sectors share
// a single quote per symbol.
func (e *Evaluator) CheckStrategies(ctx context.Context) {
	strategies, err := e.store.GetActiveStrategies(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to load strategies")
		return
	}

	symbols, needPrev := basketUnion(strategies)
	if len(symbols) == 0 {
		return
	}
	pairs := e.prices.Load(ctx, symbols, needPrev)

	for _, strategy := range strategies {
		e.evaluateStrategy(ctx, strategy, pairs)
	}
}

// basketUnion returns the distinct symbols across all baskets; every
// basket symbol needs a previous close
func basketUnion(strategies []*database.StrategyWithBasket) ([]string, map[string]bool) {
	needPrev := make(map[string]bool)
	var symbols []string
	for _, strategy := range strategies {
		for _, symbol := range strategy.Symbols {
			if needPrev[symbol] {
				continue
			}
			needPrev[symbol] = true
			symbols = append(symbols, symbol)
		}
	}
	return symbols, needPrev
}

// evaluateStrategy computes basket moves and records a signal on divergence.
// The strategy is skipped when any basket symbol lacks a usable price pair
// or the basket has fewer than two symbols.
func (e *Evaluator) evaluateStrategy(ctx context.Context, strategy *database.StrategyWithBasket, pairs map[string]marketdata.PricePair) {
	if len(strategy.Symbols) < 2 {
		e.logger.Debug().Int64("strategy_id", strategy.ID).Msg("basket too small, skipping")
		return
	}

	pcts := make(map[string]float64, len(strategy.Symbols))
	for _, symbol := range strategy.Symbols {
		pair, ok := pairs[symbol]
		if !ok || !pair.HasPrev || pair.PrevClose <= 0 {
			e.logger.Debug().
				Int64("strategy_id", strategy.ID).
				Str("symbol", symbol).
				Msg("incomplete basket data, skipping strategy")
			return
		}
		pcts[symbol] = 100 * (pair.Current - pair.PrevClose) / pair.PrevClose
	}

	divergence := DetectDivergence(pcts, strategy.PercentMajority, strategy.TrendThreshold, strategy.LaggardThreshold)
	if divergence == nil {
		return
	}

	now := time.Now()
	e.logger.Info().
		Int64("strategy_id", strategy.ID).
		Str("sector", strategy.SectorName).
		Str("direction", divergence.Direction).
		Str("laggard", divergence.Laggard).
		Float64("laggard_pct", divergence.LaggardPct).
		Msg("sector divergence detected")

	alertType := database.AlertTypeSectorDivergence
	laggard := divergence.Laggard
	laggardPct := divergence.LaggardPct
	notification := &database.Notification{
		UserID:  strategy.UserID,
		Channel: database.ChannelInApp,
		Title: fmt.Sprintf("%s sector moving %s, %s diverging",
			strategy.SectorName, divergence.Direction, divergence.Laggard),
		Message: fmt.Sprintf("Most of %s moved %s past %.1f%% while %s sits at %.2f%%",
			strategy.SectorName, divergence.Direction, strategy.TrendThreshold,
			divergence.Laggard, divergence.LaggardPct),
		Symbol:         &laggard,
		AlertType:      &alertType,
		ThresholdValue: &laggardPct,
	}
	if err := e.store.CreateNotification(ctx, notification); err != nil {
		e.logger.Error().Err(err).Int64("strategy_id", strategy.ID).Msg("failed to record notification")
	}

	if err := e.store.UpdateStrategyTriggered(ctx, strategy.ID, now); err != nil {
		e.logger.Error().Err(err).Int64("strategy_id", strategy.ID).Msg("failed to stamp strategy")
	}
}

// DetectDivergence applies the divergence rule to a basket's percent moves.
// A signal requires a majority past the trend threshold and exactly one
// laggard on the other side of the laggard threshold.
func DetectDivergence(pcts map[string]float64, percentMajority, trendThreshold, laggardThreshold float64) *Divergence {
	n := len(pcts)
	if n < 2 {
		return nil
	}

	var up, down int
	for _, pct := range pcts {
		if pct >= trendThreshold {
			up++
		}
		if pct <= -trendThreshold {
			down++
		}
	}
	upPct := 100 * float64(up) / float64(n)
	downPct := 100 * float64(down) / float64(n)

	if upPct >= percentMajority {
		laggards := collectLaggards(pcts, func(pct float64) bool { return pct <= laggardThreshold })
		if len(laggards) == 1 {
			return &Divergence{Direction: DirectionUp, Laggard: laggards[0], LaggardPct: pcts[laggards[0]]}
		}
		return nil
	}

	if downPct >= percentMajority {
		laggards := collectLaggards(pcts, func(pct float64) bool { return pct >= math.Abs(laggardThreshold) })
		if len(laggards) == 1 {
			return &Divergence{Direction: DirectionDown, Laggard: laggards[0], LaggardPct: pcts[laggards[0]]}
		}
	}

	return nil
}

func collectLaggards(pcts map[string]float64, match func(float64) bool) []string {
	var laggards []string
	for symbol, pct := range pcts {
		if match(pct) {
			laggards = append(laggards, symbol)
		}
	}
	return laggards
}

// Stats reports tick count and last tick time for the status endpoint
func (e *Evaluator) Stats() (int64, time.Time) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ticks, e.lastTick
}
