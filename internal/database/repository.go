package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// Validation errors surfaced by write operations
var (
	ErrInvalidSymbol    = errors.New("invalid symbol")
	ErrInvalidThreshold = errors.New("threshold must be positive")
	ErrInvalidAlertType = errors.New("unknown alert type")
	ErrAlertLimit       = errors.New("active alert limit reached")
)

// Repository provides data access methods
type Repository struct {
	db *DB

	// MaxAlertsPerUser caps active alerts per user on create; 0 disables the cap
	MaxAlertsPerUser int
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// ALERTS
// ============================================================================

// CreateAlert validates and inserts a new alert
func (r *Repository) CreateAlert(ctx context.Context, alert *Alert) error {
	alert.Symbol = strings.ToUpper(strings.TrimSpace(alert.Symbol))
	if !ValidSymbol(alert.Symbol) {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, alert.Symbol)
	}
	if alert.Threshold <= 0 {
		return ErrInvalidThreshold
	}
	switch alert.AlertType {
	case AlertTypePriceAbove, AlertTypePriceBelow, AlertTypePercentChange, AlertTypeVolumeSpike:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAlertType, alert.AlertType)
	}

	if r.MaxAlertsPerUser > 0 {
		count, err := r.CountActiveAlertsForUser(ctx, alert.UserID)
		if err != nil {
			return err
		}
		if count >= r.MaxAlertsPerUser {
			return ErrAlertLimit
		}
	}

	if alert.Status == "" {
		alert.Status = AlertStatusActive
	}

	query := `
		INSERT INTO alerts (user_id, symbol, alert_type, threshold, status, repeating, notify_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		alert.UserID, alert.Symbol, alert.AlertType, alert.Threshold,
		alert.Status, alert.Repeating, alert.NotifyEmail,
	).Scan(&alert.ID, &alert.CreatedAt, &alert.UpdatedAt)
}

// CountActiveAlertsForUser returns the number of active alerts a user has
func (r *Repository) CountActiveAlertsForUser(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM alerts WHERE user_id = $1 AND status = $2`,
		userID, AlertStatusActive,
	).Scan(&count)
	return count, err
}

// GetActiveAlerts retrieves all alerts with status 'active'
func (r *Repository) GetActiveAlerts(ctx context.Context) ([]*Alert, error) {
	query := `
		SELECT id, user_id, symbol, alert_type, threshold, status, repeating, notify_email,
		       triggered_at, trigger_price, last_checked_at, created_at, updated_at
		FROM alerts
		WHERE status = $1
		ORDER BY id
	`
	return r.queryAlerts(ctx, query, AlertStatusActive)
}

// GetAlertSymbols returns the distinct symbols of active alerts
func (r *Repository) GetAlertSymbols(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT DISTINCT symbol FROM alerts WHERE status = $1 ORDER BY symbol`,
		AlertStatusActive,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

// MarkAlertTriggered records a trigger, retiring the alert unless it repeats
func (r *Repository) MarkAlertTriggered(ctx context.Context, alert *Alert, price float64, at time.Time) error {
	status := alert.Status
	if !alert.Repeating {
		status = AlertStatusTriggered
	}
	query := `
		UPDATE alerts
		SET triggered_at = $2, trigger_price = $3, status = $4, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.Pool.Exec(ctx, query, alert.ID, at, price, status); err != nil {
		return err
	}
	alert.TriggeredAt = &at
	alert.TriggerPrice = &price
	alert.Status = status
	return nil
}

// UpdateAlertsLastChecked stamps last_checked_at for the given alert IDs
func (r *Repository) UpdateAlertsLastChecked(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE alerts SET last_checked_at = $2 WHERE id = ANY($1)`,
		ids, at,
	)
	return err
}

func (r *Repository) queryAlerts(ctx context.Context, query string, args ...interface{}) ([]*Alert, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*Alert
	for rows.Next() {
		alert := &Alert{}
		err := rows.Scan(
			&alert.ID, &alert.UserID, &alert.Symbol, &alert.AlertType, &alert.Threshold,
			&alert.Status, &alert.Repeating, &alert.NotifyEmail,
			&alert.TriggeredAt, &alert.TriggerPrice, &alert.LastCheckedAt,
			&alert.CreatedAt, &alert.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// ============================================================================
// SECTORS & STRATEGIES
// ============================================================================

// GetAllSectorSymbols returns the distinct symbols across all sector baskets
func (r *Repository) GetAllSectorSymbols(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT DISTINCT symbol FROM sector_stocks ORDER BY symbol`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

// GetActiveStrategies retrieves active strategies joined with their baskets
func (r *Repository) GetActiveStrategies(ctx context.Context) ([]*StrategyWithBasket, error) {
	query := `
		SELECT ss.id, ss.user_id, ss.sector_id, ss.name,
		       ss.percent_majority, ss.trend_threshold, ss.laggard_threshold,
		       ss.is_active, ss.last_triggered_at, ss.created_at, ss.updated_at,
		       s.name
		FROM sector_strategies ss
		JOIN sectors s ON s.id = ss.sector_id
		WHERE ss.is_active = true
		ORDER BY ss.id
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var strategies []*StrategyWithBasket
	for rows.Next() {
		st := &StrategyWithBasket{}
		err := rows.Scan(
			&st.ID, &st.UserID, &st.SectorID, &st.Name,
			&st.PercentMajority, &st.TrendThreshold, &st.LaggardThreshold,
			&st.IsActive, &st.LastTriggeredAt, &st.CreatedAt, &st.UpdatedAt,
			&st.SectorName,
		)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, st := range strategies {
		symbols, err := r.getSectorStockSymbols(ctx, st.SectorID)
		if err != nil {
			return nil, err
		}
		st.Symbols = symbols
	}
	return strategies, nil
}

func (r *Repository) getSectorStockSymbols(ctx context.Context, sectorID int64) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT symbol FROM sector_stocks WHERE sector_id = $1 ORDER BY symbol`,
		sectorID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

// UpdateStrategyTriggered stamps last_triggered_at for a strategy
func (r *Repository) UpdateStrategyTriggered(ctx context.Context, strategyID int64, at time.Time) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE sector_strategies SET last_triggered_at = $2, updated_at = NOW() WHERE id = $1`,
		strategyID, at,
	)
	return err
}

// ============================================================================
// NOTIFICATIONS
// ============================================================================

// CreateNotification inserts a notification row
func (r *Repository) CreateNotification(ctx context.Context, n *Notification) error {
	if n.Channel == "" {
		n.Channel = ChannelInApp
	}
	query := `
		INSERT INTO notifications (user_id, alert_id, channel, title, message,
		                           symbol, trigger_price, alert_type, threshold_value,
		                           is_read, email_sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		n.UserID, n.AlertID, n.Channel, n.Title, n.Message,
		n.Symbol, n.TriggerPrice, n.AlertType, n.ThresholdValue,
		n.IsRead, n.EmailSentAt,
	).Scan(&n.ID, &n.CreatedAt)
}

// ============================================================================
// USERS & WATCHLIST
// ============================================================================

// GetUsersByIDs retrieves users keyed by ID
func (r *Repository) GetUsersByIDs(ctx context.Context, ids []int64) (map[int64]*User, error) {
	users := make(map[int64]*User)
	if len(ids) == 0 {
		return users, nil
	}
	query := `
		SELECT id, email, username, hashed_password, is_active, email_notifications,
		       phone_number, created_at, updated_at
		FROM users
		WHERE id = ANY($1)
	`
	rows, err := r.db.Pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		u := &User{}
		err := rows.Scan(
			&u.ID, &u.Email, &u.Username, &u.HashedPassword, &u.IsActive,
			&u.EmailNotifications, &u.PhoneNumber, &u.CreatedAt, &u.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		users[u.ID] = u
	}
	return users, rows.Err()
}

// GetWatchlistSymbols returns the distinct symbols across all watchlists
func (r *Repository) GetWatchlistSymbols(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT DISTINCT symbol FROM watchlist ORDER BY symbol`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

func scanStrings(rows pgx.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
