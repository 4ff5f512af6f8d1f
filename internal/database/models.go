package database

import (
	"math"
	"regexp"
	"time"
)

// Alert type constants
const (
	AlertTypePriceAbove    = "price_above"
	AlertTypePriceBelow    = "price_below"
	AlertTypePercentChange = "percent_change"
	AlertTypeVolumeSpike   = "volume_spike" // Accepted and stored, never fires
)

// Alert status constants
const (
	AlertStatusActive    = "active"
	AlertStatusTriggered = "triggered"
	AlertStatusDisabled  = "disabled"
)

// Notification channel constants
const (
	ChannelInApp = "in_app"
	ChannelEmail = "email"
)

// AlertTypeSectorDivergence marks sector strategy notifications
const AlertTypeSectorDivergence = "sector_divergence"

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{1,5}$`)

// ValidSymbol reports whether s is a well-formed ticker symbol
func ValidSymbol(s string) bool {
	return symbolPattern.MatchString(s)
}

// User represents a user account
type User struct {
	ID                 int64     `json:"id"`
	Email              string    `json:"email"`
	Username           string    `json:"username"`
	HashedPassword     string    `json:"-"`
	IsActive           bool      `json:"is_active"`
	EmailNotifications bool      `json:"email_notifications"`
	PhoneNumber        *string   `json:"phone_number,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Alert represents a price alert
type Alert struct {
	ID            int64      `json:"id"`
	UserID        int64      `json:"user_id"`
	Symbol        string     `json:"symbol"`
	AlertType     string     `json:"alert_type"`
	Threshold     float64    `json:"threshold"`
	Status        string     `json:"status"`
	Repeating     bool       `json:"repeating"`
	NotifyEmail   bool       `json:"notify_email"`
	TriggeredAt   *time.Time `json:"triggered_at,omitempty"`
	TriggerPrice  *float64   `json:"trigger_price,omitempty"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ConditionMet evaluates the alert predicate against the current price and
// an optional previous close. Boundary comparisons are inclusive.
func (a *Alert) ConditionMet(current float64, prevClose *float64) bool {
	switch a.AlertType {
	case AlertTypePriceAbove:
		return current >= a.Threshold
	case AlertTypePriceBelow:
		return current <= a.Threshold
	case AlertTypePercentChange:
		if prevClose == nil || *prevClose <= 0 {
			return false
		}
		change := 100 * (current - *prevClose) / *prevClose
		return math.Abs(change) >= a.Threshold
	case AlertTypeVolumeSpike:
		// Volume data is not available on the quote feed
		return false
	default:
		return false
	}
}

// ActionPhrase returns the notification title phrase for the alert type
func (a *Alert) ActionPhrase() string {
	switch a.AlertType {
	case AlertTypePriceAbove:
		return "rose above"
	case AlertTypePriceBelow:
		return "fell below"
	case AlertTypePercentChange:
		return "changed by"
	case AlertTypeVolumeSpike:
		return "volume spiked"
	default:
		return "triggered at"
	}
}

// Sector represents a market sector grouping
type Sector struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Color       *string   `json:"color,omitempty"`
	Icon        *string   `json:"icon,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SectorStock represents a symbol belonging to a sector basket
type SectorStock struct {
	ID          int64     `json:"id"`
	SectorID    int64     `json:"sector_id"`
	Symbol      string    `json:"symbol"`
	CompanyName *string   `json:"company_name,omitempty"`
	AddedAt     time.Time `json:"added_at"`
}

// SectorStrategy represents a sector divergence strategy
type SectorStrategy struct {
	ID               int64      `json:"id"`
	UserID           int64      `json:"user_id"`
	SectorID         int64      `json:"sector_id"`
	Name             string     `json:"name"`
	PercentMajority  float64    `json:"percent_majority"`
	TrendThreshold   float64    `json:"trend_threshold"`
	LaggardThreshold float64    `json:"laggard_threshold"`
	IsActive         bool       `json:"is_active"`
	LastTriggeredAt  *time.Time `json:"last_triggered_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// StrategyWithBasket is a strategy joined with its sector name and basket symbols
type StrategyWithBasket struct {
	SectorStrategy
	SectorName string   `json:"sector_name"`
	Symbols    []string `json:"symbols"`
}

// Notification represents a stored notification on either channel
type Notification struct {
	ID             int64      `json:"id"`
	UserID         int64      `json:"user_id"`
	AlertID        *int64     `json:"alert_id,omitempty"`
	Channel        string     `json:"channel"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	Symbol         *string    `json:"symbol,omitempty"`
	TriggerPrice   *float64   `json:"trigger_price,omitempty"`
	AlertType      *string    `json:"alert_type,omitempty"`
	ThresholdValue *float64   `json:"threshold_value,omitempty"`
	IsRead         bool       `json:"is_read"`
	EmailSentAt    *time.Time `json:"email_sent_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// WatchlistItem represents a symbol a user follows without an alert
type WatchlistItem struct {
	ID      int64     `json:"id"`
	UserID  int64     `json:"user_id"`
	Symbol  string    `json:"symbol"`
	AddedAt time.Time `json:"added_at"`
}
