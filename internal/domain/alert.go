package domain

import (
	"fmt"
	"time"
)

// AlertType identifies what condition produced an alert.
type AlertType string

const (
	AlertBudgetExceeded      AlertType = "budget_exceeded"
	AlertBudgetNearingLimit  AlertType = "budget_nearing_limit"
	AlertLargeTransaction    AlertType = "large_transaction"
	AlertUnusualSpending     AlertType = "unusual_spending"
	AlertLowBalance          AlertType = "low_balance"
	AlertHighBalance         AlertType = "high_balance"
	AlertIncomeReceived      AlertType = "income_received"
	AlertBillDue             AlertType = "bill_due"
	AlertSubscriptionRenewal AlertType = "subscription_renewal"
	AlertSavingsGoal         AlertType = "savings_goal"
	AlertCashFlowWarning     AlertType = "cash_flow_warning"
	AlertSystem              AlertType = "system"
	AlertInfo                AlertType = "info"
	AlertWarning             AlertType = "warning"
	AlertCritical            AlertType = "critical"
)

// AlertStatus is the alert lifecycle state. ACTIVE is the only
// non-terminal status; there is no transition back to ACTIVE.
type AlertStatus string

const (
	StatusActive    AlertStatus = "active"
	StatusResolved  AlertStatus = "resolved"
	StatusDismissed AlertStatus = "dismissed"
	StatusArchived  AlertStatus = "archived"
)

// Terminal reports whether a status permits no further transitions.
func (s AlertStatus) Terminal() bool {
	return s == StatusResolved || s == StatusDismissed || s == StatusArchived
}

// Severity levels for alerts.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// EntityType identifies what kind of record triggered an alert.
type EntityType string

const (
	EntityTransaction EntityType = "transaction"
	EntityAccount     EntityType = "account"
	EntityBudget      EntityType = "budget"
	EntityBill        EntityType = "bill"
	EntityUser        EntityType = "user"
)

// Alert is a persisted user notification produced by rule evaluation.
type Alert struct {
	ID     string    `json:"id"`
	UserID string    `json:"userId"`
	Type   AlertType `json:"alertType"`

	Title    string `json:"title"`
	Message  string `json:"message"`
	Severity string `json:"severity"`

	EntityType EntityType     `json:"entityType,omitempty"`
	EntityID   string         `json:"entityId,omitempty"`
	EntityData map[string]any `json:"entityData,omitempty"`
	Data       map[string]any `json:"data,omitempty"`

	Amount    *float64 `json:"amount,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`

	Status       AlertStatus `json:"status"`
	IsRead       bool        `json:"isRead"`
	IsActionable bool        `json:"isActionable"`
	ActionTaken  bool        `json:"actionTaken"`

	CreatedAt      time.Time  `json:"createdAt"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the alert has passed its expiry timestamp.
func (a *Alert) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && !now.Before(*a.ExpiresAt)
}

// DedupKey identifies the at-most-one-active-alert equivalence class.
func (a *Alert) DedupKey() string {
	return DedupKey(a.UserID, a.Type, a.EntityType, a.EntityID)
}

// DedupKey builds the (user, type, entity) tuple key the deduplicator
// serializes on.
func DedupKey(userID string, alertType AlertType, entityType EntityType, entityID string) string {
	return userID + "|" + string(alertType) + "|" + string(entityType) + "|" + entityID
}

// AlertDraft is an alert candidate produced by a rule evaluator before
// the dedup/persistence step decides whether to store it.
type AlertDraft struct {
	Type         AlertType
	Title        string
	Message      string
	Severity     string
	EntityType   EntityType
	EntityID     string
	EntityData   map[string]any
	Amount       *float64
	Threshold    *float64
	IsActionable bool

	// DedupWindow suppresses an equivalent active alert created within
	// this span. Zero means the rule's default of 24 hours.
	DedupWindow time.Duration

	// ExpiresAt archives the alert automatically once passed.
	ExpiresAt *time.Time
}

// DefaultDedupWindow is the standard rolling dedup window.
const DefaultDedupWindow = 24 * time.Hour

// UnusualSpendingDedupWindow is the wider window for anomaly alerts.
const UnusualSpendingDedupWindow = 48 * time.Hour

// AlertFilter is the typed criteria object for listing alerts.
type AlertFilter struct {
	Status        AlertStatus
	Type          AlertType
	UnreadOnly    bool
	Limit, Offset int
}

// Validate rejects degenerate filter parameters.
func (f *AlertFilter) Validate() error {
	if f.Limit < 0 || f.Offset < 0 {
		return fmt.Errorf("%w: limit and offset must be non-negative", ErrInvalidInput)
	}
	switch f.Status {
	case "", StatusActive, StatusResolved, StatusDismissed, StatusArchived:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, f.Status)
	}
	return nil
}
