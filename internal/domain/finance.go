package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the canonical transaction vocabulary used by the
// alert rules. Deposit/withdrawal style inputs are mapped at the API
// boundary and never stored.
type TransactionType string

const (
	TransactionIncome   TransactionType = "income"
	TransactionExpense  TransactionType = "expense"
	TransactionTransfer TransactionType = "transfer"
)

// AccountType classifies an account for balance-based rules.
type AccountType string

const (
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountCreditCard AccountType = "credit_card"
	AccountInvestment AccountType = "investment"
	AccountCash       AccountType = "cash"
)

// Account represents a user's financial account.
type Account struct {
	ID          string      `json:"id"`
	UserID      string      `json:"userId"`
	Name        string      `json:"name"`
	Type        AccountType `json:"type"`
	Balance     float64     `json:"balance"`
	CreditLimit float64     `json:"creditLimit"`
	Currency    string      `json:"currency"`
	IsActive    bool        `json:"isActive"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Transaction represents a single ledger movement. Amount is signed:
// positive for income, negative for expenses.
type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	AccountID   string          `json:"accountId"`
	Type        TransactionType `json:"type"`
	Amount      float64         `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Date        time.Time       `json:"date"`
	Status      string          `json:"status"` // pending, completed, failed

	// Recurrence (subscriptions etc.)
	IsRecurring         bool       `json:"isRecurring"`
	RecurrenceFrequency string     `json:"recurrenceFrequency,omitempty"`
	RecurrenceNextDate  *time.Time `json:"recurrenceNextDate,omitempty"`
	RecurrenceEndDate   *time.Time `json:"recurrenceEndDate,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// TransactionStatusCompleted is the only status the rule engine trusts.
const TransactionStatusCompleted = "completed"

// Budget is a per-category spending cap for one calendar month.
type Budget struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Category  string    `json:"category"`
	Amount    float64   `json:"amount"`
	Month     int       `json:"month"`
	Year      int       `json:"year"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	CreatedAt time.Time `json:"createdAt"`
}

// Bill is a payable obligation. Paying a bill on time earns reward points.
type Bill struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	Category  string          `json:"category"`
	DueDate   time.Time       `json:"dueDate"`
	IsPaid    bool            `json:"isPaid"`
	IsActive  bool            `json:"isActive"`
	IsAutopay bool            `json:"isAutopay"`
	CreatedAt time.Time       `json:"createdAt"`
}
