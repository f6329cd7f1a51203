// Package domain defines the core interfaces and types for Finch.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All user-scoped reads and writes require a userID and never return
// another user's records.
type Repository interface {
	// Finance data consumed by the alert rule snapshot.
	SaveAccount(ctx context.Context, account *Account) error
	ListAccounts(ctx context.Context, userID string) ([]*Account, error)

	SaveTransaction(ctx context.Context, tx *Transaction) error
	ListTransactionsSince(ctx context.Context, userID string, since time.Time) ([]*Transaction, error)
	ListRecurringTransactions(ctx context.Context, userID string, from, to time.Time) ([]*Transaction, error)

	SaveBudget(ctx context.Context, budget *Budget) error
	ListBudgets(ctx context.Context, userID string, month, year int) ([]*Budget, error)

	SaveBill(ctx context.Context, bill *Bill) error
	GetBill(ctx context.Context, userID, billID string) (*Bill, error)
	ListBillsDueBetween(ctx context.Context, userID string, from, to time.Time) ([]*Bill, error)

	// Reward ledger.
	SaveReward(ctx context.Context, reward *Reward) error
	GetRewardByBill(ctx context.Context, userID, billID string) (*Reward, error)
	ListRewards(ctx context.Context, userID string, filter RewardFilter) ([]*Reward, error)
	TotalPoints(ctx context.Context, userID string) (int, error)
	LeaderboardTotals(ctx context.Context, from, to time.Time, limit int) ([]*LeaderboardEntry, error)

	// Alert ledger.
	SaveAlert(ctx context.Context, alert *Alert) error
	GetAlert(ctx context.Context, userID, alertID string) (*Alert, error)
	ListAlerts(ctx context.Context, userID string, filter AlertFilter) ([]*Alert, error)
	FindActiveAlert(ctx context.Context, userID string, alertType AlertType, entityType EntityType, entityID string, createdAfter time.Time) (*Alert, error)
	UpdateAlert(ctx context.Context, alert *Alert) error
	MarkAllAlertsRead(ctx context.Context, userID string, at time.Time) (int64, error)
	ArchiveExpiredAlerts(ctx context.Context, now time.Time, batchSize int) (int64, error)
	ArchiveAlertsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// Custom alert rule configurations.
	SaveAlertRule(ctx context.Context, rule *AlertRuleConfig) error
	ListAlertRules(ctx context.Context, ownerID string) ([]*AlertRuleConfig, error)
	DeleteAlertRule(ctx context.Context, ownerID, ruleID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `yaml:"driver"`

	// SQLite specific
	SQLitePath string `yaml:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `yaml:"postgresHost"`
	PostgresPort     int    `yaml:"postgresPort"`
	PostgresUser     string `yaml:"postgresUser"`
	PostgresPassword string `yaml:"postgresPassword"`
	PostgresDB       string `yaml:"postgresDB"`
	PostgresSSLMode  string `yaml:"postgresSSLMode"`

	// Connection pool settings
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}
