// Package alerts implements the alert rule engine: built-in rule
// evaluators over a per-user data snapshot, CEL-based custom rules,
// deduplicating persistence, lifecycle transitions, and sweeps.
package alerts

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/opensource-finance/finch/internal/domain"
)

// snapshotWindow is how far back the transaction snapshot reaches.
const snapshotWindow = 30 * 24 * time.Hour

// Snapshot is a read-only view of one user's financial state at a
// point in time. Rules read the snapshot, never each other's drafts,
// so evaluation order cannot affect results.
type Snapshot struct {
	UserID string
	Now    time.Time

	Accounts     []*domain.Account
	Transactions []*domain.Transaction // last 30 days
	Budgets      []*domain.Budget      // current month
	Bills        []*domain.Bill        // unpaid, due within lookahead
	Recurring    []*domain.Transaction // next renewal within lookahead
}

// AccountByID returns the snapshot account with the given id, or nil.
func (s *Snapshot) AccountByID(id string) *domain.Account {
	for _, a := range s.Accounts {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// MonthIncome sums completed income transactions dated in the current
// calendar month.
func (s *Snapshot) MonthIncome() float64 {
	total := 0.0
	for _, tx := range s.monthTransactions() {
		if tx.Type == domain.TransactionIncome {
			total += math.Abs(tx.Amount)
		}
	}
	return total
}

// MonthExpenses sums completed expense transactions dated in the
// current calendar month.
func (s *Snapshot) MonthExpenses() float64 {
	total := 0.0
	for _, tx := range s.monthTransactions() {
		if tx.Type == domain.TransactionExpense {
			total += math.Abs(tx.Amount)
		}
	}
	return total
}

// MonthCategorySpend sums completed expense transactions for one
// category in the current calendar month.
func (s *Snapshot) MonthCategorySpend(category string) float64 {
	total := 0.0
	for _, tx := range s.monthTransactions() {
		if tx.Type == domain.TransactionExpense && tx.Category == category {
			total += math.Abs(tx.Amount)
		}
	}
	return total
}

// CompletedExpenses returns every completed expense transaction in the
// snapshot window.
func (s *Snapshot) CompletedExpenses() []*domain.Transaction {
	var out []*domain.Transaction
	for _, tx := range s.Transactions {
		if tx.Type == domain.TransactionExpense && tx.Status == domain.TransactionStatusCompleted {
			out = append(out, tx)
		}
	}
	return out
}

func (s *Snapshot) monthTransactions() []*domain.Transaction {
	start := time.Date(s.Now.Year(), s.Now.Month(), 1, 0, 0, 0, 0, time.UTC)
	var out []*domain.Transaction
	for _, tx := range s.Transactions {
		if tx.Status != domain.TransactionStatusCompleted {
			continue
		}
		if tx.Date.Before(start) || tx.Date.After(s.Now) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// Loader assembles snapshots from the repository.
type Loader struct {
	repo domain.Repository
	cfg  domain.AlertsConfig
	now  func() time.Time
}

// NewLoader creates a snapshot loader.
func NewLoader(repo domain.Repository, cfg domain.AlertsConfig) *Loader {
	return &Loader{
		repo: repo,
		cfg:  cfg,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Load reads one user's accounts, recent transactions, current-month
// budgets, upcoming bills, and upcoming renewals.
func (l *Loader) Load(ctx context.Context, userID string) (*Snapshot, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", domain.ErrInvalidInput)
	}

	now := l.now()

	accounts, err := l.repo.ListAccounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}

	transactions, err := l.repo.ListTransactionsSince(ctx, userID, now.Add(-snapshotWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	budgets, err := l.repo.ListBudgets(ctx, userID, int(now.Month()), now.Year())
	if err != nil {
		return nil, fmt.Errorf("failed to load budgets: %w", err)
	}

	billDays := l.cfg.BillLookaheadDays
	if billDays <= 0 {
		billDays = 3
	}
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	bills, err := l.repo.ListBillsDueBetween(ctx, userID, dayStart, dayStart.AddDate(0, 0, billDays+1))
	if err != nil {
		return nil, fmt.Errorf("failed to load bills: %w", err)
	}

	subDays := l.cfg.SubscriptionLookaheadDays
	if subDays <= 0 {
		subDays = 7
	}
	recurring, err := l.repo.ListRecurringTransactions(ctx, userID, dayStart, dayStart.AddDate(0, 0, subDays+1))
	if err != nil {
		return nil, fmt.Errorf("failed to load recurring transactions: %w", err)
	}

	return &Snapshot{
		UserID:       userID,
		Now:          now,
		Accounts:     accounts,
		Transactions: transactions,
		Budgets:      budgets,
		Bills:        bills,
		Recurring:    recurring,
	}, nil
}
