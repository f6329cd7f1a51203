package alerts

import (
	"math"
	"testing"
	"time"

	"github.com/opensource-finance/finch/internal/domain"
	"github.com/shopspring/decimal"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func testConfig() domain.AlertsConfig {
	return domain.DefaultConfig().Alerts
}

func expense(id string, amount float64, category string, daysAgo int) *domain.Transaction {
	return &domain.Transaction{
		ID:       id,
		UserID:   "user-1",
		Type:     domain.TransactionExpense,
		Amount:   -math.Abs(amount),
		Category: category,
		Date:     testNow.AddDate(0, 0, -daysAgo),
		Status:   domain.TransactionStatusCompleted,
	}
}

func income(id string, amount float64, daysAgo int) *domain.Transaction {
	return &domain.Transaction{
		ID:     id,
		UserID: "user-1",
		Type:   domain.TransactionIncome,
		Amount: math.Abs(amount),
		Date:   testNow.AddDate(0, 0, -daysAgo),
		Status: domain.TransactionStatusCompleted,
	}
}

func TestEvalLargeTransactions(t *testing.T) {
	snap := &Snapshot{
		UserID: "user-1",
		Now:    testNow,
		Transactions: []*domain.Transaction{
			expense("tx-big", 1500, "electronics", 2),
			expense("tx-small", 500, "groceries", 1),
			expense("tx-old", 3000, "travel", 10), // outside 7-day window
			{
				ID: "tx-pending", UserID: "user-1",
				Type: domain.TransactionExpense, Amount: -2000,
				Date: testNow.AddDate(0, 0, -1), Status: "pending",
			},
		},
	}

	drafts := evalLargeTransactions(snap, testConfig())
	if len(drafts) != 1 {
		t.Fatalf("got %d drafts, want 1", len(drafts))
	}
	d := drafts[0]
	if d.Type != domain.AlertLargeTransaction {
		t.Errorf("Type = %s, want large_transaction", d.Type)
	}
	if d.Severity != domain.SeverityWarning {
		t.Errorf("Severity = %s, want warning", d.Severity)
	}
	if d.EntityID != "tx-big" {
		t.Errorf("EntityID = %s, want tx-big", d.EntityID)
	}
	if d.Amount == nil || *d.Amount != 1500 {
		t.Errorf("Amount = %v, want 1500", d.Amount)
	}
}

func TestEvalLowBalance(t *testing.T) {
	snap := &Snapshot{
		UserID: "user-1",
		Now:    testNow,
		Accounts: []*domain.Account{
			{ID: "a-low", Name: "Checking", Type: domain.AccountChecking, Balance: 100, CreditLimit: 1000, IsActive: true},
			{ID: "a-ok", Name: "Savings", Type: domain.AccountSavings, Balance: 800, CreditLimit: 1000, IsActive: true},
			{ID: "a-cc", Name: "Card", Type: domain.AccountCreditCard, Balance: 10, CreditLimit: 5000, IsActive: true},
			{ID: "a-off", Name: "Old", Type: domain.AccountChecking, Balance: 1, CreditLimit: 1000, IsActive: false},
			{ID: "a-nolimit", Name: "Cash", Type: domain.AccountCash, Balance: 5, IsActive: true},
		},
	}

	drafts := evalLowBalance(snap, testConfig())
	if len(drafts) != 1 {
		t.Fatalf("got %d drafts, want 1", len(drafts))
	}
	d := drafts[0]
	if d.EntityID != "a-low" {
		t.Errorf("EntityID = %s, want a-low", d.EntityID)
	}
	if d.ExpiresAt == nil {
		t.Fatal("low_balance draft should carry an expiry")
	}
	if want := testNow.Add(7 * 24 * time.Hour); !d.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %s, want %s", d.ExpiresAt, want)
	}
}

func TestEvalBudgets(t *testing.T) {
	budget := func(id, category string, amount float64) *domain.Budget {
		return &domain.Budget{
			ID: id, UserID: "user-1", Category: category, Amount: amount,
			Month: int(testNow.Month()), Year: testNow.Year(),
		}
	}

	tests := []struct {
		name         string
		spend        float64
		wantExceeded int
		wantNearing  int
	}{
		{"under budget", 400, 0, 0},
		{"nearing limit", 460, 0, 1},
		{"exactly at limit", 500, 1, 0},
		{"over limit", 550, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := &Snapshot{
				UserID:  "user-1",
				Now:     testNow,
				Budgets: []*domain.Budget{budget("b-1", "groceries", 500)},
				Transactions: []*domain.Transaction{
					expense("tx-1", tt.spend, "groceries", 3),
				},
			}

			exceeded := evalBudgetExceeded(snap, testConfig())
			nearing := evalBudgetNearing(snap, testConfig())
			if len(exceeded) != tt.wantExceeded {
				t.Errorf("exceeded drafts = %d, want %d", len(exceeded), tt.wantExceeded)
			}
			if len(nearing) != tt.wantNearing {
				t.Errorf("nearing drafts = %d, want %d", len(nearing), tt.wantNearing)
			}
			if len(exceeded) > 0 && exceeded[0].Severity != domain.SeverityCritical {
				t.Errorf("exceeded severity = %s, want critical", exceeded[0].Severity)
			}
		})
	}
}

func TestEvalUnusualSpending(t *testing.T) {
	baseline := func(n int) []*domain.Transaction {
		var txs []*domain.Transaction
		for i := 0; i < n; i++ {
			txs = append(txs, expense("tx-base-"+string(rune('a'+i)), 50, "dining", 10+i))
		}
		return txs
	}

	t.Run("outlier flagged", func(t *testing.T) {
		snap := &Snapshot{
			UserID:       "user-1",
			Now:          testNow,
			Transactions: append(baseline(11), expense("tx-outlier", 500, "dining", 1)),
		}

		drafts := evalUnusualSpending(snap, testConfig())
		if len(drafts) != 1 {
			t.Fatalf("got %d drafts, want 1", len(drafts))
		}
		d := drafts[0]
		if d.EntityID != "tx-outlier" {
			t.Errorf("EntityID = %s, want tx-outlier", d.EntityID)
		}
		if d.DedupWindow != domain.UnusualSpendingDedupWindow {
			t.Errorf("DedupWindow = %s, want 48h", d.DedupWindow)
		}
	})

	t.Run("too few expenses overall", func(t *testing.T) {
		snap := &Snapshot{
			UserID:       "user-1",
			Now:          testNow,
			Transactions: append(baseline(5), expense("tx-outlier", 500, "dining", 1)),
		}
		if drafts := evalUnusualSpending(snap, testConfig()); len(drafts) != 0 {
			t.Errorf("got %d drafts, want 0 with under 10 expenses", len(drafts))
		}
	})

	t.Run("too few samples in category", func(t *testing.T) {
		txs := baseline(11)
		txs = append(txs, expense("tx-outlier", 500, "travel", 1)) // only travel sample
		snap := &Snapshot{UserID: "user-1", Now: testNow, Transactions: txs}
		if drafts := evalUnusualSpending(snap, testConfig()); len(drafts) != 0 {
			t.Errorf("got %d drafts, want 0 with a single-sample category", len(drafts))
		}
	})

	t.Run("old outlier not re-flagged", func(t *testing.T) {
		snap := &Snapshot{
			UserID:       "user-1",
			Now:          testNow,
			Transactions: append(baseline(11), expense("tx-outlier", 500, "dining", 9)),
		}
		if drafts := evalUnusualSpending(snap, testConfig()); len(drafts) != 0 {
			t.Errorf("got %d drafts, want 0 for an outlier outside the recent window", len(drafts))
		}
	})
}

func TestEvalBillsDue(t *testing.T) {
	bill := func(id string, daysUntilDue int, paid bool) *domain.Bill {
		return &domain.Bill{
			ID: id, UserID: "user-1", Name: "Electric",
			Amount:  decimal.NewFromFloat(85.50),
			DueDate: testNow.AddDate(0, 0, daysUntilDue),
			IsPaid:  paid, IsActive: true,
		}
	}

	tests := []struct {
		name         string
		daysUntil    int
		paid         bool
		wantDrafts   int
		wantSeverity string
	}{
		{"due today is critical", 0, false, 1, domain.SeverityCritical},
		{"due tomorrow is warning", 1, false, 1, domain.SeverityWarning},
		{"due in three days is info", 3, false, 1, domain.SeverityInfo},
		{"due in five days is out of range", 5, false, 0, ""},
		{"paid bill is skipped", 0, true, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := &Snapshot{
				UserID: "user-1",
				Now:    testNow,
				Bills:  []*domain.Bill{bill("bill-1", tt.daysUntil, tt.paid)},
			}
			drafts := evalBillsDue(snap, testConfig())
			if len(drafts) != tt.wantDrafts {
				t.Fatalf("got %d drafts, want %d", len(drafts), tt.wantDrafts)
			}
			if tt.wantDrafts == 0 {
				return
			}
			if drafts[0].Severity != tt.wantSeverity {
				t.Errorf("Severity = %s, want %s", drafts[0].Severity, tt.wantSeverity)
			}
			wantExpiry := dayOf(testNow).AddDate(0, 0, tt.daysUntil+1)
			if drafts[0].ExpiresAt == nil || !drafts[0].ExpiresAt.Equal(wantExpiry) {
				t.Errorf("ExpiresAt = %v, want %s", drafts[0].ExpiresAt, wantExpiry)
			}
		})
	}
}

func TestEvalSubscriptionRenewals(t *testing.T) {
	sub := func(id string, daysUntil int) *domain.Transaction {
		next := testNow.AddDate(0, 0, daysUntil)
		return &domain.Transaction{
			ID: id, UserID: "user-1",
			Type: domain.TransactionExpense, Amount: -15.99,
			Description: "Streaming", IsRecurring: true,
			RecurrenceFrequency: "monthly", RecurrenceNextDate: &next,
		}
	}

	tests := []struct {
		name         string
		daysUntil    int
		wantDrafts   int
		wantSeverity string
	}{
		{"renews in two days is warning", 2, 1, domain.SeverityWarning},
		{"renews in five days is info", 5, 1, domain.SeverityInfo},
		{"renews in ten days is out of range", 10, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := &Snapshot{
				UserID:    "user-1",
				Now:       testNow,
				Recurring: []*domain.Transaction{sub("sub-1", tt.daysUntil)},
			}
			drafts := evalSubscriptionRenewals(snap, testConfig())
			if len(drafts) != tt.wantDrafts {
				t.Fatalf("got %d drafts, want %d", len(drafts), tt.wantDrafts)
			}
			if tt.wantDrafts > 0 && drafts[0].Severity != tt.wantSeverity {
				t.Errorf("Severity = %s, want %s", drafts[0].Severity, tt.wantSeverity)
			}
		})
	}
}

func TestEvalCashFlow(t *testing.T) {
	t.Run("projection triggers critical", func(t *testing.T) {
		// Day 15 of a 30-day month: projection doubles current spend.
		snap := &Snapshot{
			UserID: "user-1",
			Now:    testNow,
			Transactions: []*domain.Transaction{
				income("inc", 1000, 10),
				expense("exp", 1300, "misc", 5),
			},
		}
		drafts := evalCashFlow(snap, testConfig())
		if len(drafts) != 1 {
			t.Fatalf("got %d drafts, want 1", len(drafts))
		}
		if drafts[0].Severity != domain.SeverityCritical {
			t.Errorf("Severity = %s, want critical", drafts[0].Severity)
		}
		if drafts[0].EntityType != domain.EntityUser {
			t.Errorf("EntityType = %s, want user", drafts[0].EntityType)
		}
	})

	t.Run("month-to-date overrun is warning", func(t *testing.T) {
		// Late in the month the projection stays under 150%.
		lateNow := time.Date(2025, 6, 28, 12, 0, 0, 0, time.UTC)
		snap := &Snapshot{
			UserID: "user-1",
			Now:    lateNow,
			Transactions: []*domain.Transaction{
				{ID: "inc", UserID: "user-1", Type: domain.TransactionIncome, Amount: 1000,
					Date: lateNow.AddDate(0, 0, -10), Status: domain.TransactionStatusCompleted},
				{ID: "exp", UserID: "user-1", Type: domain.TransactionExpense, Amount: -1250,
					Category: "misc", Date: lateNow.AddDate(0, 0, -5), Status: domain.TransactionStatusCompleted},
			},
		}
		drafts := evalCashFlow(snap, testConfig())
		if len(drafts) != 1 {
			t.Fatalf("got %d drafts, want 1", len(drafts))
		}
		if drafts[0].Severity != domain.SeverityWarning {
			t.Errorf("Severity = %s, want warning", drafts[0].Severity)
		}
	})

	t.Run("no income means no comparison", func(t *testing.T) {
		snap := &Snapshot{
			UserID:       "user-1",
			Now:          testNow,
			Transactions: []*domain.Transaction{expense("exp", 5000, "misc", 2)},
		}
		if drafts := evalCashFlow(snap, testConfig()); len(drafts) != 0 {
			t.Errorf("got %d drafts, want 0 without income", len(drafts))
		}
	})

	t.Run("healthy cash flow", func(t *testing.T) {
		snap := &Snapshot{
			UserID: "user-1",
			Now:    testNow,
			Transactions: []*domain.Transaction{
				income("inc", 5000, 10),
				expense("exp", 1200, "misc", 5),
			},
		}
		if drafts := evalCashFlow(snap, testConfig()); len(drafts) != 0 {
			t.Errorf("got %d drafts, want 0", len(drafts))
		}
	})
}

func TestMeanStdev(t *testing.T) {
	mean, stdev := meanStdev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if mean != 5 {
		t.Errorf("mean = %v, want 5", mean)
	}
	if stdev != 2 {
		t.Errorf("stdev = %v, want 2", stdev)
	}

	mean, stdev = meanStdev(nil)
	if mean != 0 || stdev != 0 {
		t.Errorf("empty samples: mean=%v stdev=%v, want 0, 0", mean, stdev)
	}
}
