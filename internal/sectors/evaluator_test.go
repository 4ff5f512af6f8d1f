package sectors

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stock-alert-service/internal/database"
	"stock-alert-service/internal/marketdata"
)

func TestDetectDivergenceUp(t *testing.T) {
	// 4 of 5 up past 1.5%, one laggard at or below -1.0%
	pcts := map[string]float64{
		"AAPL": 2.1,
		"MSFT": 1.8,
		"GOOG": 2.5,
		"META": 1.6,
		"INTC": -1.4,
	}

	d := DetectDivergence(pcts, 70.0, 1.5, -1.0)
	if d == nil {
		t.Fatal("expected a divergence signal")
	}
	if d.Direction != DirectionUp {
		t.Errorf("direction = %q, want UP", d.Direction)
	}
	if d.Laggard != "INTC" {
		t.Errorf("laggard = %q, want INTC", d.Laggard)
	}
	if d.LaggardPct != -1.4 {
		t.Errorf("laggard pct = %v, want -1.4", d.LaggardPct)
	}
}

func TestDetectDivergenceDown(t *testing.T) {
	pcts := map[string]float64{
		"XOM": -2.0,
		"CVX": -1.8,
		"COP": -2.4,
		"SLB": 1.2,
	}

	d := DetectDivergence(pcts, 70.0, 1.5, -1.0)
	if d == nil {
		t.Fatal("expected a divergence signal")
	}
	if d.Direction != DirectionDown {
		t.Errorf("direction = %q, want DOWN", d.Direction)
	}
	if d.Laggard != "SLB" {
		t.Errorf("laggard = %q, want SLB", d.Laggard)
	}
}

func TestDetectDivergenceTwoLaggardsSuppressed(t *testing.T) {
	// Majority up but two symbols lag; ambiguity suppresses the signal
	pcts := map[string]float64{
		"AAPL": 2.1,
		"MSFT": 1.8,
		"GOOG": 2.5,
		"META": 1.9,
		"AMD":  1.7,
		"ORCL": 2.2,
		"INTC": -1.4,
		"IBM":  -1.2,
	}

	if d := DetectDivergence(pcts, 70.0, 1.5, -1.0); d != nil {
		t.Errorf("expected no signal with two laggards, got %+v", d)
	}
}

func TestDetectDivergenceNoMajority(t *testing.T) {
	pcts := map[string]float64{
		"AAPL": 2.1,
		"MSFT": 0.3,
		"GOOG": -0.2,
		"INTC": -1.4,
	}

	if d := DetectDivergence(pcts, 70.0, 1.5, -1.0); d != nil {
		t.Errorf("expected no signal without a majority, got %+v", d)
	}
}

func TestDetectDivergenceNoLaggard(t *testing.T) {
	// Everyone moved up; nothing diverges
	pcts := map[string]float64{
		"AAPL": 2.1,
		"MSFT": 1.8,
		"GOOG": 2.5,
	}

	if d := DetectDivergence(pcts, 70.0, 1.5, -1.0); d != nil {
		t.Errorf("expected no signal without a laggard, got %+v", d)
	}
}

func TestDetectDivergenceSmallBasket(t *testing.T) {
	if d := DetectDivergence(map[string]float64{"AAPL": 5.0}, 70.0, 1.5, -1.0); d != nil {
		t.Errorf("expected no signal for single-symbol basket, got %+v", d)
	}
}

// mockStore records evaluator persistence calls
type mockStore struct {
	mu sync.Mutex

	strategies []*database.StrategyWithBasket

	notifications  []*database.Notification
	triggeredCalls []int64
}

func (m *mockStore) GetActiveStrategies(ctx context.Context) ([]*database.StrategyWithBasket, error) {
	return m.strategies, nil
}

func (m *mockStore) UpdateStrategyTriggered(ctx context.Context, strategyID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggeredCalls = append(m.triggeredCalls, strategyID)
	return nil
}

func (m *mockStore) CreateNotification(ctx context.Context, n *database.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

type mockPrices struct {
	mu    sync.Mutex
	pairs map[string]marketdata.PricePair
	loads [][]string
}

func (m *mockPrices) Load(ctx context.Context, symbols []string, needPrev map[string]bool) map[string]marketdata.PricePair {
	m.mu.Lock()
	m.loads = append(m.loads, symbols)
	m.mu.Unlock()

	out := make(map[string]marketdata.PricePair)
	for _, s := range symbols {
		if pair, ok := m.pairs[s]; ok {
			out[s] = pair
		}
	}
	return out
}

func testStrategy(symbols []string) *database.StrategyWithBasket {
	return &database.StrategyWithBasket{
		SectorStrategy: database.SectorStrategy{
			ID:               1,
			UserID:           10,
			SectorID:         5,
			Name:             "Tech divergence",
			PercentMajority:  70.0,
			TrendThreshold:   1.5,
			LaggardThreshold: -1.0,
			IsActive:         true,
		},
		SectorName: "Technology",
		Symbols:    symbols,
	}
}

func newTestEvaluator(store *mockStore, prices *mockPrices) *Evaluator {
	return NewEvaluator(store, prices, time.Minute, zerolog.New(io.Discard))
}

func TestCheckStrategiesEmitsSignal(t *testing.T) {
	store := &mockStore{strategies: []*database.StrategyWithBasket{
		testStrategy([]string{"AAPL", "MSFT", "GOOG", "META", "INTC"}),
	}}
	prices := &mockPrices{pairs: map[string]marketdata.PricePair{
		"AAPL": {Current: 102.1, PrevClose: 100, HasPrev: true},
		"MSFT": {Current: 101.8, PrevClose: 100, HasPrev: true},
		"GOOG": {Current: 102.5, PrevClose: 100, HasPrev: true},
		"META": {Current: 101.6, PrevClose: 100, HasPrev: true},
		"INTC": {Current: 98.6, PrevClose: 100, HasPrev: true},
	}}

	newTestEvaluator(store, prices).CheckStrategies(context.Background())

	if len(store.notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(store.notifications))
	}
	n := store.notifications[0]
	if n.AlertType == nil || *n.AlertType != database.AlertTypeSectorDivergence {
		t.Errorf("alert type = %v, want sector_divergence", n.AlertType)
	}
	if n.Symbol == nil || *n.Symbol != "INTC" {
		t.Errorf("symbol = %v, want INTC", n.Symbol)
	}
	if n.ThresholdValue == nil || *n.ThresholdValue > -1.39 || *n.ThresholdValue < -1.41 {
		t.Errorf("threshold value = %v, want laggard pct around -1.4", n.ThresholdValue)
	}
	if len(store.triggeredCalls) != 1 || store.triggeredCalls[0] != 1 {
		t.Errorf("expected strategy 1 stamped, got %v", store.triggeredCalls)
	}
}

func TestCheckStrategiesSkipsIncompleteData(t *testing.T) {
	store := &mockStore{strategies: []*database.StrategyWithBasket{
		testStrategy([]string{"AAPL", "MSFT", "GOOG"}),
	}}
	// GOOG has no previous close
	prices := &mockPrices{pairs: map[string]marketdata.PricePair{
		"AAPL": {Current: 102.1, PrevClose: 100, HasPrev: true},
		"MSFT": {Current: 101.8, PrevClose: 100, HasPrev: true},
		"GOOG": {Current: 102.5},
	}}

	newTestEvaluator(store, prices).CheckStrategies(context.Background())

	if len(store.notifications) != 0 {
		t.Errorf("expected no notifications with incomplete basket, got %d", len(store.notifications))
	}
	if len(store.triggeredCalls) != 0 {
		t.Errorf("expected no trigger stamps, got %v", store.triggeredCalls)
	}
}

func TestCheckStrategiesLoadsPricesOnce(t *testing.T) {
	second := testStrategy([]string{"AAPL", "MSFT", "AMD"})
	second.ID = 2
	store := &mockStore{strategies: []*database.StrategyWithBasket{
		testStrategy([]string{"AAPL", "MSFT", "GOOG"}),
		second,
	}}
	prices := &mockPrices{pairs: map[string]marketdata.PricePair{
		"AAPL": {Current: 100.5, PrevClose: 100, HasPrev: true},
		"MSFT": {Current: 100.3, PrevClose: 100, HasPrev: true},
		"GOOG": {Current: 99.8, PrevClose: 100, HasPrev: true},
		"AMD":  {Current: 100.1, PrevClose: 100, HasPrev: true},
	}}

	newTestEvaluator(store, prices).CheckStrategies(context.Background())

	if len(prices.loads) != 1 {
		t.Fatalf("Load called %d times, want once for the basket union", len(prices.loads))
	}
	// union covers both baskets with the overlap deduplicated
	if got := prices.loads[0]; len(got) != 4 {
		t.Errorf("loaded symbols = %v, want 4 distinct symbols", got)
	}
}

func TestCheckStrategiesSkipsSmallBasket(t *testing.T) {
	store := &mockStore{strategies: []*database.StrategyWithBasket{
		testStrategy([]string{"AAPL"}),
	}}
	prices := &mockPrices{pairs: map[string]marketdata.PricePair{
		"AAPL": {Current: 110, PrevClose: 100, HasPrev: true},
	}}

	newTestEvaluator(store, prices).CheckStrategies(context.Background())

	if len(store.notifications) != 0 {
		t.Errorf("expected no notifications for single-symbol basket, got %d", len(store.notifications))
	}
}
