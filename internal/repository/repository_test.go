package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/finch/internal/domain"
	"github.com/shopspring/decimal"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "finch-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndListAccounts", func(t *testing.T) {
		acct := &domain.Account{
			ID: "acc-001", UserID: "user-1", Name: "Checking",
			Type: domain.AccountChecking, Balance: 1234.56, CreditLimit: 5000,
			Currency: "USD", IsActive: true, CreatedAt: now,
		}
		if err := repo.SaveAccount(ctx, acct); err != nil {
			t.Fatalf("SaveAccount failed: %v", err)
		}

		accounts, err := repo.ListAccounts(ctx, "user-1")
		if err != nil {
			t.Fatalf("ListAccounts failed: %v", err)
		}
		if len(accounts) != 1 {
			t.Fatalf("got %d accounts, want 1", len(accounts))
		}
		if accounts[0].Balance != 1234.56 || !accounts[0].IsActive {
			t.Errorf("account round-trip mismatch: %+v", accounts[0])
		}

		// Upsert updates the same row.
		acct.Balance = 99
		if err := repo.SaveAccount(ctx, acct); err != nil {
			t.Fatalf("SaveAccount (update) failed: %v", err)
		}
		accounts, _ = repo.ListAccounts(ctx, "user-1")
		if len(accounts) != 1 || accounts[0].Balance != 99 {
			t.Errorf("upsert did not update: %+v", accounts)
		}
	})

	t.Run("UserIsolation", func(t *testing.T) {
		accounts, err := repo.ListAccounts(ctx, "user-other")
		if err != nil {
			t.Fatalf("ListAccounts failed: %v", err)
		}
		if len(accounts) != 0 {
			t.Errorf("got %d accounts for another user, want 0", len(accounts))
		}
	})

	t.Run("TransactionsSince", func(t *testing.T) {
		for i, tx := range []*domain.Transaction{
			{ID: "tx-1", UserID: "user-1", AccountID: "acc-001", Type: domain.TransactionExpense,
				Amount: -50, Category: "groceries", Date: now.AddDate(0, 0, -1),
				Status: domain.TransactionStatusCompleted, CreatedAt: now},
			{ID: "tx-2", UserID: "user-1", AccountID: "acc-001", Type: domain.TransactionIncome,
				Amount: 2000, Category: "salary", Date: now.AddDate(0, 0, -40),
				Status: domain.TransactionStatusCompleted, CreatedAt: now},
		} {
			if err := repo.SaveTransaction(ctx, tx); err != nil {
				t.Fatalf("SaveTransaction %d failed: %v", i, err)
			}
		}

		txs, err := repo.ListTransactionsSince(ctx, "user-1", now.AddDate(0, 0, -30))
		if err != nil {
			t.Fatalf("ListTransactionsSince failed: %v", err)
		}
		if len(txs) != 1 || txs[0].ID != "tx-1" {
			t.Errorf("got %d transactions, want only tx-1", len(txs))
		}
	})

	t.Run("RecurringTransactions", func(t *testing.T) {
		next := now.AddDate(0, 0, 2)
		tx := &domain.Transaction{
			ID: "tx-sub", UserID: "user-1", AccountID: "acc-001",
			Type: domain.TransactionExpense, Amount: -15.99,
			Description: "Streaming", Date: now.AddDate(0, -1, 0),
			Status: domain.TransactionStatusCompleted, IsRecurring: true,
			RecurrenceFrequency: "monthly", RecurrenceNextDate: &next, CreatedAt: now,
		}
		if err := repo.SaveTransaction(ctx, tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}

		subs, err := repo.ListRecurringTransactions(ctx, "user-1", now, now.AddDate(0, 0, 8))
		if err != nil {
			t.Fatalf("ListRecurringTransactions failed: %v", err)
		}
		if len(subs) != 1 || subs[0].ID != "tx-sub" {
			t.Fatalf("got %v, want only tx-sub", subs)
		}
		if subs[0].RecurrenceNextDate == nil || subs[0].RecurrenceFrequency != "monthly" {
			t.Errorf("recurrence fields lost in round-trip: %+v", subs[0])
		}
	})

	t.Run("Budgets", func(t *testing.T) {
		b := &domain.Budget{
			ID: "budget-1", UserID: "user-1", Category: "groceries", Amount: 500,
			Month: int(now.Month()), Year: now.Year(),
			StartDate: now.AddDate(0, 0, -10), EndDate: now.AddDate(0, 0, 20), CreatedAt: now,
		}
		if err := repo.SaveBudget(ctx, b); err != nil {
			t.Fatalf("SaveBudget failed: %v", err)
		}

		budgets, err := repo.ListBudgets(ctx, "user-1", int(now.Month()), now.Year())
		if err != nil {
			t.Fatalf("ListBudgets failed: %v", err)
		}
		if len(budgets) != 1 || budgets[0].Amount != 500 {
			t.Errorf("got %v, want the saved budget", budgets)
		}

		budgets, _ = repo.ListBudgets(ctx, "user-1", int(now.Month()), now.Year()+1)
		if len(budgets) != 0 {
			t.Errorf("got %d budgets for the wrong year, want 0", len(budgets))
		}
	})

	t.Run("Bills", func(t *testing.T) {
		bill := &domain.Bill{
			ID: "bill-1", UserID: "user-1", Name: "Electric",
			Amount: decimal.RequireFromString("85.50"), Category: "utilities",
			DueDate: now.AddDate(0, 0, 2), IsActive: true, CreatedAt: now,
		}
		if err := repo.SaveBill(ctx, bill); err != nil {
			t.Fatalf("SaveBill failed: %v", err)
		}

		got, err := repo.GetBill(ctx, "user-1", "bill-1")
		if err != nil {
			t.Fatalf("GetBill failed: %v", err)
		}
		if !got.Amount.Equal(bill.Amount) {
			t.Errorf("Amount = %s, want %s", got.Amount, bill.Amount)
		}

		if _, err := repo.GetBill(ctx, "user-2", "bill-1"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("cross-user GetBill error = %v, want ErrNotFound", err)
		}

		due, err := repo.ListBillsDueBetween(ctx, "user-1", now, now.AddDate(0, 0, 4))
		if err != nil {
			t.Fatalf("ListBillsDueBetween failed: %v", err)
		}
		if len(due) != 1 {
			t.Errorf("got %d due bills, want 1", len(due))
		}
	})
}

func TestRewardStorage(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	save := func(id, userID, billID string, points int, onTime bool, category string, earnedAt time.Time) {
		t.Helper()
		err := repo.SaveReward(ctx, &domain.Reward{
			ID: id, UserID: userID, BillID: billID, Points: points,
			BillAmount: decimal.RequireFromString("100.00"), Category: category,
			OnTimePayment: onTime, EarnedAt: earnedAt,
		})
		if err != nil {
			t.Fatalf("SaveReward(%s) failed: %v", id, err)
		}
	}

	save("r-1", "user-1", "bill-1", 1500, true, "rent", now.Add(-time.Hour))
	save("r-2", "user-1", "bill-2", 500, false, "utilities", now.Add(-2*time.Hour))
	save("r-3", "user-2", "bill-3", 800, true, "rent", now.Add(-time.Hour))

	t.Run("GetRewardByBill", func(t *testing.T) {
		got, err := repo.GetRewardByBill(ctx, "user-1", "bill-1")
		if err != nil {
			t.Fatalf("GetRewardByBill failed: %v", err)
		}
		if got.Points != 1500 || !got.OnTimePayment {
			t.Errorf("round-trip mismatch: %+v", got)
		}

		if _, err := repo.GetRewardByBill(ctx, "user-1", "bill-x"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("missing bill error = %v, want ErrNotFound", err)
		}
	})

	t.Run("DuplicateBillRejected", func(t *testing.T) {
		err := repo.SaveReward(ctx, &domain.Reward{
			ID: "r-dup", UserID: "user-1", BillID: "bill-1", Points: 1,
			BillAmount: decimal.NewFromInt(1), EarnedAt: now,
		})
		if err == nil {
			t.Fatal("expected unique constraint violation for duplicate bill")
		}
	})

	t.Run("ListWithFilters", func(t *testing.T) {
		all, err := repo.ListRewards(ctx, "user-1", domain.RewardFilter{})
		if err != nil {
			t.Fatalf("ListRewards failed: %v", err)
		}
		if len(all) != 2 {
			t.Fatalf("got %d rewards, want 2", len(all))
		}
		if all[0].ID != "r-1" {
			t.Errorf("expected newest first, got %s", all[0].ID)
		}

		onTime, _ := repo.ListRewards(ctx, "user-1", domain.RewardFilter{OnTimeOnly: true})
		if len(onTime) != 1 || onTime[0].ID != "r-1" {
			t.Errorf("OnTimeOnly filter returned %v", onTime)
		}

		rent, _ := repo.ListRewards(ctx, "user-1", domain.RewardFilter{Category: "rent"})
		if len(rent) != 1 || rent[0].ID != "r-1" {
			t.Errorf("Category filter returned %v", rent)
		}

		limited, _ := repo.ListRewards(ctx, "user-1", domain.RewardFilter{Limit: 1, Offset: 1})
		if len(limited) != 1 || limited[0].ID != "r-2" {
			t.Errorf("Limit/Offset returned %v", limited)
		}
	})

	t.Run("TotalPoints", func(t *testing.T) {
		total, err := repo.TotalPoints(ctx, "user-1")
		if err != nil {
			t.Fatalf("TotalPoints failed: %v", err)
		}
		if total != 2000 {
			t.Errorf("TotalPoints = %d, want 2000", total)
		}

		total, _ = repo.TotalPoints(ctx, "user-none")
		if total != 0 {
			t.Errorf("TotalPoints for unknown user = %d, want 0", total)
		}
	})

	t.Run("Leaderboard", func(t *testing.T) {
		entries, err := repo.LeaderboardTotals(ctx, now.AddDate(0, 0, -1), now.Add(time.Hour), 10)
		if err != nil {
			t.Fatalf("LeaderboardTotals failed: %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("got %d entries, want 2", len(entries))
		}
		if entries[0].UserID != "user-1" || entries[0].TotalPoints != 2000 {
			t.Errorf("top entry = %+v, want user-1 with 2000", entries[0])
		}
		if entries[1].UserID != "user-2" || entries[1].TotalPoints != 800 {
			t.Errorf("second entry = %+v, want user-2 with 800", entries[1])
		}
	})
}

func TestAlertStorage(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	amount := 1500.0
	alert := &domain.Alert{
		ID: "alert-1", UserID: "user-1", Type: domain.AlertLargeTransaction,
		Title: "Large transaction detected", Message: "big spend",
		Severity: domain.SeverityWarning, EntityType: domain.EntityTransaction,
		EntityID: "tx-1", EntityData: map[string]any{"category": "travel"},
		Amount: &amount, Status: domain.StatusActive, IsActionable: true,
		CreatedAt: now,
	}
	if err := repo.SaveAlert(ctx, alert); err != nil {
		t.Fatalf("SaveAlert failed: %v", err)
	}

	t.Run("GetAlert", func(t *testing.T) {
		got, err := repo.GetAlert(ctx, "user-1", "alert-1")
		if err != nil {
			t.Fatalf("GetAlert failed: %v", err)
		}
		if got.Type != domain.AlertLargeTransaction || got.Severity != domain.SeverityWarning {
			t.Errorf("round-trip mismatch: %+v", got)
		}
		if got.Amount == nil || *got.Amount != 1500 {
			t.Errorf("Amount = %v, want 1500", got.Amount)
		}
		if got.EntityData["category"] != "travel" {
			t.Errorf("EntityData = %v", got.EntityData)
		}

		if _, err := repo.GetAlert(ctx, "user-2", "alert-1"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("cross-user GetAlert error = %v, want ErrNotFound", err)
		}
	})

	t.Run("FindActiveAlert", func(t *testing.T) {
		found, err := repo.FindActiveAlert(ctx, "user-1",
			domain.AlertLargeTransaction, domain.EntityTransaction, "tx-1", now.Add(-time.Hour))
		if err != nil {
			t.Fatalf("FindActiveAlert failed: %v", err)
		}
		if found.ID != "alert-1" {
			t.Errorf("found %s, want alert-1", found.ID)
		}

		_, err = repo.FindActiveAlert(ctx, "user-1",
			domain.AlertLargeTransaction, domain.EntityTransaction, "tx-1", now.Add(time.Hour))
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("window-excluded lookup error = %v, want ErrNotFound", err)
		}

		_, err = repo.FindActiveAlert(ctx, "user-1",
			domain.AlertLowBalance, domain.EntityTransaction, "tx-1", now.Add(-time.Hour))
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("different-type lookup error = %v, want ErrNotFound", err)
		}
	})

	t.Run("UpdateAlert", func(t *testing.T) {
		got, _ := repo.GetAlert(ctx, "user-1", "alert-1")
		got.Status = domain.StatusResolved
		got.IsRead = true
		resolvedAt := now.Add(time.Minute)
		got.ResolvedAt = &resolvedAt

		if err := repo.UpdateAlert(ctx, got); err != nil {
			t.Fatalf("UpdateAlert failed: %v", err)
		}

		updated, _ := repo.GetAlert(ctx, "user-1", "alert-1")
		if updated.Status != domain.StatusResolved || !updated.IsRead {
			t.Errorf("update not persisted: %+v", updated)
		}
		if updated.ResolvedAt == nil {
			t.Error("ResolvedAt not persisted")
		}

		missing := *got
		missing.ID = "alert-missing"
		if err := repo.UpdateAlert(ctx, &missing); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("update of missing alert error = %v, want ErrNotFound", err)
		}
	})

	t.Run("ListAlertsWithFilters", func(t *testing.T) {
		if err := repo.SaveAlert(ctx, &domain.Alert{
			ID: "alert-2", UserID: "user-1", Type: domain.AlertBillDue,
			Title: "Bill due", Severity: domain.SeverityCritical,
			Status: domain.StatusActive, CreatedAt: now.Add(time.Second),
		}); err != nil {
			t.Fatalf("SaveAlert failed: %v", err)
		}

		active, err := repo.ListAlerts(ctx, "user-1", domain.AlertFilter{Status: domain.StatusActive})
		if err != nil {
			t.Fatalf("ListAlerts failed: %v", err)
		}
		if len(active) != 1 || active[0].ID != "alert-2" {
			t.Errorf("Status filter returned %v", active)
		}

		unread, _ := repo.ListAlerts(ctx, "user-1", domain.AlertFilter{UnreadOnly: true})
		if len(unread) != 1 || unread[0].ID != "alert-2" {
			t.Errorf("UnreadOnly filter returned %v", unread)
		}

		byType, _ := repo.ListAlerts(ctx, "user-1", domain.AlertFilter{Type: domain.AlertBillDue})
		if len(byType) != 1 {
			t.Errorf("Type filter returned %v", byType)
		}
	})

	t.Run("MarkAllAlertsRead", func(t *testing.T) {
		n, err := repo.MarkAllAlertsRead(ctx, "user-1", now)
		if err != nil {
			t.Fatalf("MarkAllAlertsRead failed: %v", err)
		}
		if n != 1 {
			t.Errorf("marked %d alerts, want 1", n)
		}

		n, _ = repo.MarkAllAlertsRead(ctx, "user-1", now)
		if n != 0 {
			t.Errorf("second call marked %d alerts, want 0", n)
		}
	})
}

func TestAlertSweeps(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	seed := []*domain.Alert{
		{ID: "a-1", UserID: "user-1", Type: domain.AlertBillDue, Title: "t",
			Status: domain.StatusActive, ExpiresAt: &past, CreatedAt: now.Add(-25 * time.Hour)},
		{ID: "a-2", UserID: "user-1", Type: domain.AlertBillDue, Title: "t",
			Status: domain.StatusActive, ExpiresAt: &past, CreatedAt: now.Add(-26 * time.Hour)},
		{ID: "a-3", UserID: "user-1", Type: domain.AlertLowBalance, Title: "t",
			Status: domain.StatusActive, ExpiresAt: &future, CreatedAt: now},
		{ID: "a-4", UserID: "user-1", Type: domain.AlertBillDue, Title: "t",
			Status: domain.StatusDismissed, ExpiresAt: &past, CreatedAt: now.Add(-25 * time.Hour)},
		{ID: "a-old", UserID: "user-1", Type: domain.AlertSystem, Title: "t",
			Status: domain.StatusActive, CreatedAt: now.AddDate(0, 0, -45)},
	}
	for _, a := range seed {
		if err := repo.SaveAlert(ctx, a); err != nil {
			t.Fatalf("SaveAlert(%s) failed: %v", a.ID, err)
		}
	}

	t.Run("ArchiveExpiredInBatches", func(t *testing.T) {
		n, err := repo.ArchiveExpiredAlerts(ctx, now, 1)
		if err != nil {
			t.Fatalf("ArchiveExpiredAlerts failed: %v", err)
		}
		if n != 1 {
			t.Errorf("first batch archived %d, want 1", n)
		}

		n, err = repo.ArchiveExpiredAlerts(ctx, now, 10)
		if err != nil {
			t.Fatalf("ArchiveExpiredAlerts failed: %v", err)
		}
		if n != 1 {
			t.Errorf("second batch archived %d, want the remaining 1", n)
		}

		for _, id := range []string{"a-1", "a-2"} {
			a, _ := repo.GetAlert(ctx, "user-1", id)
			if a.Status != domain.StatusArchived || !a.IsRead {
				t.Errorf("%s = %s read=%v, want archived and read", id, a.Status, a.IsRead)
			}
		}
		live, _ := repo.GetAlert(ctx, "user-1", "a-3")
		if live.Status != domain.StatusActive {
			t.Errorf("unexpired alert archived: %s", live.Status)
		}
		dismissed, _ := repo.GetAlert(ctx, "user-1", "a-4")
		if dismissed.Status != domain.StatusDismissed {
			t.Errorf("dismissed alert touched: %s", dismissed.Status)
		}
	})

	t.Run("ArchiveOlderThan", func(t *testing.T) {
		n, err := repo.ArchiveAlertsOlderThan(ctx, now.AddDate(0, 0, -30))
		if err != nil {
			t.Fatalf("ArchiveAlertsOlderThan failed: %v", err)
		}
		if n != 1 {
			t.Errorf("archived %d, want 1 (only a-old)", n)
		}
		old, _ := repo.GetAlert(ctx, "user-1", "a-old")
		if old.Status != domain.StatusArchived {
			t.Errorf("a-old status = %s, want archived", old.Status)
		}
	})
}

func TestAlertRuleStorage(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	lower := 1.0
	rule := &domain.AlertRuleConfig{
		ID: "rule-1", UserID: "user-1", Name: "big spend",
		Expression: "amount < -500.0",
		Bands: []domain.SeverityBand{
			{LowerLimit: &lower, Severity: domain.SeverityWarning, Reason: "matched"},
		},
		Enabled: true,
	}
	if err := repo.SaveAlertRule(ctx, rule); err != nil {
		t.Fatalf("SaveAlertRule failed: %v", err)
	}

	t.Run("ListByOwner", func(t *testing.T) {
		rules, err := repo.ListAlertRules(ctx, "user-1")
		if err != nil {
			t.Fatalf("ListAlertRules failed: %v", err)
		}
		if len(rules) != 1 {
			t.Fatalf("got %d rules, want 1", len(rules))
		}
		got := rules[0]
		if got.Expression != rule.Expression || !got.Enabled {
			t.Errorf("round-trip mismatch: %+v", got)
		}
		if len(got.Bands) != 1 || got.Bands[0].Severity != domain.SeverityWarning {
			t.Errorf("bands not preserved: %+v", got.Bands)
		}
	})

	t.Run("Upsert", func(t *testing.T) {
		rule.Name = "renamed"
		if err := repo.SaveAlertRule(ctx, rule); err != nil {
			t.Fatalf("SaveAlertRule (update) failed: %v", err)
		}
		rules, _ := repo.ListAlertRules(ctx, "user-1")
		if len(rules) != 1 || rules[0].Name != "renamed" {
			t.Errorf("upsert did not update: %+v", rules)
		}
	})

	t.Run("ListAllOwners", func(t *testing.T) {
		if err := repo.SaveAlertRule(ctx, &domain.AlertRuleConfig{
			ID: "rule-global", UserID: domain.GlobalRuleOwner, Name: "global",
			Expression: "amount < 0.0", Bands: rule.Bands, Enabled: true,
		}); err != nil {
			t.Fatalf("SaveAlertRule failed: %v", err)
		}

		all, err := repo.ListAlertRules(ctx, "")
		if err != nil {
			t.Fatalf("ListAlertRules failed: %v", err)
		}
		if len(all) != 2 {
			t.Errorf("got %d rules, want 2", len(all))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.DeleteAlertRule(ctx, "user-1", "rule-1"); err != nil {
			t.Fatalf("DeleteAlertRule failed: %v", err)
		}
		if err := repo.DeleteAlertRule(ctx, "user-1", "rule-1"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("double delete error = %v, want ErrNotFound", err)
		}
		if err := repo.DeleteAlertRule(ctx, "user-2", "rule-global"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("cross-owner delete error = %v, want ErrNotFound", err)
		}
	})
}
