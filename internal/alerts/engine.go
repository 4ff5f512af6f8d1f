package alerts

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"stock-alert-service/internal/database"
	"stock-alert-service/internal/email"
	"stock-alert-service/internal/marketdata"
)

const emailSendAttempts = 3

// Store is the persistence surface the engine needs
type Store interface {
	GetActiveAlerts(ctx context.Context) ([]*database.Alert, error)
	MarkAlertTriggered(ctx context.Context, alert *database.Alert, price float64, at time.Time) error
	UpdateAlertsLastChecked(ctx context.Context, ids []int64, at time.Time) error
	CreateNotification(ctx context.Context, n *database.Notification) error
	GetUsersByIDs(ctx context.Context, ids []int64) (map[int64]*database.User, error)
}

// PriceLoader resolves (current, previous close) pairs for symbols
type PriceLoader interface {
	Load(ctx context.Context, symbols []string, needPrev map[string]bool) map[string]marketdata.PricePair
}

// EmailSender delivers the batched per-user digest
type EmailSender interface {
	SendAlertDigest(to string, items []email.AlertDigestItem) error
}

// Engine evaluates active price alerts on a fixed interval
type Engine struct {
	store    Store
	prices   PriceLoader
	mailer   EmailSender
	interval time.Duration

	mu       sync.RWMutex
	ticks    int64
	lastTick time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewEngine creates an alert evaluation engine
func NewEngine(store Store, prices PriceLoader, mailer EmailSender, interval time.Duration) *Engine {
	return &Engine{
		store:    store,
		prices:   prices,
		mailer:   mailer,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start launches the evaluation loop with an immediate first tick
func (e *Engine) Start() {
	e.wg.Add(1)
	go e.run()
	log.Printf("[ALERTS] Alert engine started (interval %v)", e.interval)
}

// Stop terminates the loop
func (e *Engine) Stop() {
	close(e.stopChan)
	e.wg.Wait()
	log.Println("[ALERTS] Alert engine stopped")
}

func (e *Engine) run() {
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

// tick runs one evaluation pass with an isolated error boundary
func (e *Engine) tick() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ALERTS] Recovered from panic in evaluation tick: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), e.interval)
	defer cancel()

	e.CheckAlerts(ctx)

	e.mu.Lock()
	e.ticks++
	e.lastTick = time.Now()
	e.mu.Unlock()
}

type triggeredAlert struct {
	alert *database.Alert
	price float64
}

// CheckAlerts evaluates every active alert once: resolves prices, applies
// the predicate, records triggers and notifications, stamps checked alerts
// and sends one digest email per user.
func (e *Engine) CheckAlerts(ctx context.Context) {
	runID := uuid.New().String()[:8]

	alerts, err := e.store.GetActiveAlerts(ctx)
	if err != nil {
		log.Printf("[ALERTS] Run %s: failed to load alerts: %v", runID, err)
		return
	}
	if len(alerts) == 0 {
		return
	}

	symbols, needPrev := collectSymbols(alerts)
	pairs := e.prices.Load(ctx, symbols, needPrev)

	now := time.Now()
	var checked []int64
	var triggered []triggeredAlert

	for _, alert := range alerts {
		pair, ok := pairs[alert.Symbol]
		if !ok || pair.Current == 0 {
			// No usable price; the alert is not counted as checked
			continue
		}

		checked = append(checked, alert.ID)

		var prevClose *float64
		if pair.HasPrev {
			p := pair.PrevClose
			prevClose = &p
		}

		if !alert.ConditionMet(pair.Current, prevClose) {
			continue
		}

		if err := e.store.MarkAlertTriggered(ctx, alert, pair.Current, now); err != nil {
			log.Printf("[ALERTS] Run %s: failed to mark alert %d triggered: %v", runID, alert.ID, err)
			continue
		}

		if err := e.store.CreateNotification(ctx, buildNotification(alert, pair.Current, database.ChannelInApp, nil, false)); err != nil {
			log.Printf("[ALERTS] Run %s: failed to record notification for alert %d: %v", runID, alert.ID, err)
		}

		triggered = append(triggered, triggeredAlert{alert: alert, price: pair.Current})
	}

	if err := e.store.UpdateAlertsLastChecked(ctx, checked, now); err != nil {
		log.Printf("[ALERTS] Run %s: failed to stamp checked alerts: %v", runID, err)
	}

	if len(triggered) > 0 {
		log.Printf("[ALERTS] Run %s: %d of %d alerts triggered", runID, len(triggered), len(checked))
		e.sendDigests(ctx, triggered)
	}
}

// collectSymbols returns the distinct alert symbols and which of them need
// a previous close for evaluation
func collectSymbols(alerts []*database.Alert) ([]string, map[string]bool) {
	seen := make(map[string]bool, len(alerts))
	needPrev := make(map[string]bool)
	var symbols []string
	for _, alert := range alerts {
		if !seen[alert.Symbol] {
			seen[alert.Symbol] = true
			symbols = append(symbols, alert.Symbol)
		}
		if alert.AlertType == database.AlertTypePercentChange {
			needPrev[alert.Symbol] = true
		}
	}
	return symbols, needPrev
}

// Title builds the user-facing notification title for a triggered alert
func Title(alert *database.Alert) string {
	return fmt.Sprintf("%s %s $%s", alert.Symbol, alert.ActionPhrase(), formatUSD(alert.Threshold))
}

func buildNotification(alert *database.Alert, price float64, channel string, emailSentAt *time.Time, isRead bool) *database.Notification {
	symbol := alert.Symbol
	alertType := alert.AlertType
	threshold := alert.Threshold
	alertID := alert.ID
	return &database.Notification{
		UserID:         alert.UserID,
		AlertID:        &alertID,
		Channel:        channel,
		Title:          Title(alert),
		Message:        fmt.Sprintf("%s is trading at $%s (threshold $%s)", symbol, formatUSD(price), formatUSD(threshold)),
		Symbol:         &symbol,
		TriggerPrice:   &price,
		AlertType:      &alertType,
		ThresholdValue: &threshold,
		IsRead:         isRead,
		EmailSentAt:    emailSentAt,
	}
}

// sendDigests groups triggered alerts by user and sends one email each.
// Every included alert gets an email-channel notification row whether or
// not the send succeeded.
func (e *Engine) sendDigests(ctx context.Context, triggered []triggeredAlert) {
	byUser := make(map[int64][]triggeredAlert)
	for _, t := range triggered {
		if !t.alert.NotifyEmail {
			continue
		}
		byUser[t.alert.UserID] = append(byUser[t.alert.UserID], t)
	}
	if len(byUser) == 0 {
		return
	}

	userIDs := make([]int64, 0, len(byUser))
	for id := range byUser {
		userIDs = append(userIDs, id)
	}
	users, err := e.store.GetUsersByIDs(ctx, userIDs)
	if err != nil {
		log.Printf("[ALERTS] Failed to load users for digests: %v", err)
		return
	}

	for userID, items := range byUser {
		user, ok := users[userID]
		if !ok || !user.EmailNotifications || user.Email == "" {
			continue
		}

		digest := make([]email.AlertDigestItem, 0, len(items))
		for _, t := range items {
			digest = append(digest, email.AlertDigestItem{
				Symbol:  t.alert.Symbol,
				Title:   Title(t.alert),
				Message: fmt.Sprintf("%s is trading at $%s", t.alert.Symbol, formatUSD(t.price)),
			})
		}

		var sentAt *time.Time
		for attempt := 1; attempt <= emailSendAttempts; attempt++ {
			if err := e.mailer.SendAlertDigest(user.Email, digest); err != nil {
				log.Printf("[ALERTS] Digest to user %d failed (attempt %d/%d): %v",
					userID, attempt, emailSendAttempts, err)
				continue
			}
			now := time.Now()
			sentAt = &now
			break
		}

		for _, t := range items {
			n := buildNotification(t.alert, t.price, database.ChannelEmail, sentAt, true)
			if err := e.store.CreateNotification(ctx, n); err != nil {
				log.Printf("[ALERTS] Failed to record email notification for alert %d: %v", t.alert.ID, err)
			}
		}
	}
}

// Stats reports tick count and last tick time for the status endpoint
func (e *Engine) Stats() (int64, time.Time) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ticks, e.lastTick
}
