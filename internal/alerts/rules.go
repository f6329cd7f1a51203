package alerts

import (
	"fmt"
	"math"
	"time"

	"github.com/opensource-finance/finch/internal/domain"
)

// Rule is one built-in evaluator: a pure function of a snapshot
// producing zero or more alert drafts. Rules never persist anything;
// the deduplicator decides what is actually stored.
type Rule struct {
	Name string
	Eval func(snap *Snapshot, cfg domain.AlertsConfig) []domain.AlertDraft
}

// BuiltinRules returns the fixed rule set.
func BuiltinRules() []Rule {
	return []Rule{
		{Name: "large_transaction", Eval: evalLargeTransactions},
		{Name: "low_balance", Eval: evalLowBalance},
		{Name: "budget_exceeded", Eval: evalBudgetExceeded},
		{Name: "budget_nearing_limit", Eval: evalBudgetNearing},
		{Name: "unusual_spending", Eval: evalUnusualSpending},
		{Name: "bill_due", Eval: evalBillsDue},
		{Name: "subscription_renewal", Eval: evalSubscriptionRenewals},
		{Name: "cash_flow_warning", Eval: evalCashFlow},
	}
}

const largeTransactionWindow = 7 * 24 * time.Hour

func evalLargeTransactions(snap *Snapshot, cfg domain.AlertsConfig) []domain.AlertDraft {
	threshold := cfg.LargeTransactionThreshold
	if threshold <= 0 {
		threshold = 1000
	}
	cutoff := snap.Now.Add(-largeTransactionWindow)

	var drafts []domain.AlertDraft
	for _, tx := range snap.Transactions {
		if tx.Status != domain.TransactionStatusCompleted || tx.Date.Before(cutoff) {
			continue
		}
		amount := math.Abs(tx.Amount)
		if amount < threshold {
			continue
		}
		drafts = append(drafts, domain.AlertDraft{
			Type:         domain.AlertLargeTransaction,
			Title:        "Large transaction detected",
			Message:      fmt.Sprintf("A transaction of $%.2f (%s) exceeds your $%.0f threshold.", amount, tx.Description, threshold),
			Severity:     domain.SeverityWarning,
			EntityType:   domain.EntityTransaction,
			EntityID:     tx.ID,
			Amount:       floatPtr(amount),
			Threshold:    floatPtr(threshold),
			IsActionable: true,
		})
	}
	return drafts
}

const lowBalanceExpiry = 7 * 24 * time.Hour

func evalLowBalance(snap *Snapshot, cfg domain.AlertsConfig) []domain.AlertDraft {
	percent := cfg.LowBalancePercent
	if percent <= 0 {
		percent = 20
	}

	var drafts []domain.AlertDraft
	for _, acct := range snap.Accounts {
		if !acct.IsActive || acct.Type == domain.AccountCreditCard {
			continue
		}
		if acct.CreditLimit <= 0 {
			continue
		}
		ratio := acct.Balance / acct.CreditLimit * 100
		if ratio > percent {
			continue
		}
		expires := snap.Now.Add(lowBalanceExpiry)
		drafts = append(drafts, domain.AlertDraft{
			Type:       domain.AlertLowBalance,
			Title:      "Low account balance",
			Message:    fmt.Sprintf("%s is down to $%.2f (%.0f%% of its limit).", acct.Name, acct.Balance, ratio),
			Severity:   domain.SeverityWarning,
			EntityType: domain.EntityAccount,
			EntityID:   acct.ID,
			Amount:     floatPtr(acct.Balance),
			Threshold:  floatPtr(percent),
			ExpiresAt:  &expires,
		})
	}
	return drafts
}

func evalBudgetExceeded(snap *Snapshot, cfg domain.AlertsConfig) []domain.AlertDraft {
	var drafts []domain.AlertDraft
	for _, b := range snap.Budgets {
		if b.Amount <= 0 {
			continue
		}
		spent := snap.MonthCategorySpend(b.Category)
		if spent < b.Amount {
			continue
		}
		drafts = append(drafts, domain.AlertDraft{
			Type:       domain.AlertBudgetExceeded,
			Title:      "Budget exceeded",
			Message:    fmt.Sprintf("You have spent $%.2f of your $%.2f %s budget.", spent, b.Amount, b.Category),
			Severity:   domain.SeverityCritical,
			EntityType: domain.EntityBudget,
			EntityID:   b.ID,
			Amount:     floatPtr(spent),
			Threshold:  floatPtr(b.Amount),
			EntityData: map[string]any{"category": b.Category, "percent": spent / b.Amount * 100},
		})
	}
	return drafts
}

func evalBudgetNearing(snap *Snapshot, cfg domain.AlertsConfig) []domain.AlertDraft {
	nearing := cfg.BudgetNearingPercent
	if nearing <= 0 {
		nearing = 90
	}

	var drafts []domain.AlertDraft
	for _, b := range snap.Budgets {
		if b.Amount <= 0 {
			continue
		}
		spent := snap.MonthCategorySpend(b.Category)
		pct := spent / b.Amount * 100
		if pct < nearing || pct >= 100 {
			continue
		}
		drafts = append(drafts, domain.AlertDraft{
			Type:       domain.AlertBudgetNearingLimit,
			Title:      "Budget nearing limit",
			Message:    fmt.Sprintf("You have used %.0f%% of your %s budget ($%.2f of $%.2f).", pct, b.Category, spent, b.Amount),
			Severity:   domain.SeverityWarning,
			EntityType: domain.EntityBudget,
			EntityID:   b.ID,
			Amount:     floatPtr(spent),
			Threshold:  floatPtr(b.Amount),
			EntityData: map[string]any{"category": b.Category, "percent": pct},
		})
	}
	return drafts
}

const (
	unusualMinCategorySamples = 5
	unusualMinTotalExpenses   = 10
	unusualRecentWindow       = 7 * 24 * time.Hour
)

func evalUnusualSpending(snap *Snapshot, cfg domain.AlertsConfig) []domain.AlertDraft {
	stdevs := cfg.UnusualSpendingStdevs
	if stdevs <= 0 {
		stdevs = 2.5
	}

	expenses := snap.CompletedExpenses()
	if len(expenses) < unusualMinTotalExpenses {
		return nil
	}

	byCategory := make(map[string][]float64)
	for _, tx := range expenses {
		byCategory[tx.Category] = append(byCategory[tx.Category], math.Abs(tx.Amount))
	}

	cutoff := snap.Now.Add(-unusualRecentWindow)

	var drafts []domain.AlertDraft
	for _, tx := range expenses {
		if tx.Date.Before(cutoff) {
			continue
		}
		samples := byCategory[tx.Category]
		if len(samples) < unusualMinCategorySamples {
			continue
		}
		mean, stdev := meanStdev(samples)
		threshold := mean + stdevs*stdev
		amount := math.Abs(tx.Amount)
		if amount <= threshold {
			continue
		}
		drafts = append(drafts, domain.AlertDraft{
			Type:        domain.AlertUnusualSpending,
			Title:       "Unusual spending detected",
			Message:     fmt.Sprintf("A $%.2f %s expense is well above your typical $%.2f.", amount, tx.Category, mean),
			Severity:    domain.SeverityWarning,
			EntityType:  domain.EntityTransaction,
			EntityID:    tx.ID,
			Amount:      floatPtr(amount),
			Threshold:   floatPtr(threshold),
			DedupWindow: domain.UnusualSpendingDedupWindow,
			EntityData:  map[string]any{"category": tx.Category, "mean": mean, "stdev": stdev},
		})
	}
	return drafts
}

func evalBillsDue(snap *Snapshot, cfg domain.AlertsConfig) []domain.AlertDraft {
	lookahead := cfg.BillLookaheadDays
	if lookahead <= 0 {
		lookahead = 3
	}
	today := dayOf(snap.Now)

	var drafts []domain.AlertDraft
	for _, bill := range snap.Bills {
		if bill.IsPaid || !bill.IsActive {
			continue
		}
		dueDay := dayOf(bill.DueDate)
		daysUntil := int(dueDay.Sub(today).Hours() / 24)
		if daysUntil < 0 || daysUntil > lookahead {
			continue
		}

		severity := domain.SeverityInfo
		when := fmt.Sprintf("in %d days", daysUntil)
		switch daysUntil {
		case 0:
			severity = domain.SeverityCritical
			when = "today"
		case 1:
			severity = domain.SeverityWarning
			when = "tomorrow"
		}

		amount := bill.Amount.InexactFloat64()
		expires := dueDay.AddDate(0, 0, 1) // end of the due day
		drafts = append(drafts, domain.AlertDraft{
			Type:         domain.AlertBillDue,
			Title:        "Bill due " + when,
			Message:      fmt.Sprintf("%s ($%.2f) is due %s.", bill.Name, amount, when),
			Severity:     severity,
			EntityType:   domain.EntityBill,
			EntityID:     bill.ID,
			Amount:       floatPtr(amount),
			IsActionable: true,
			ExpiresAt:    &expires,
			EntityData:   map[string]any{"due_date": bill.DueDate.Format("2006-01-02"), "autopay": bill.IsAutopay},
		})
	}
	return drafts
}

func evalSubscriptionRenewals(snap *Snapshot, cfg domain.AlertsConfig) []domain.AlertDraft {
	lookahead := cfg.SubscriptionLookaheadDays
	if lookahead <= 0 {
		lookahead = 7
	}
	today := dayOf(snap.Now)

	var drafts []domain.AlertDraft
	for _, tx := range snap.Recurring {
		if !tx.IsRecurring || tx.RecurrenceNextDate == nil {
			continue
		}
		renewDay := dayOf(*tx.RecurrenceNextDate)
		daysUntil := int(renewDay.Sub(today).Hours() / 24)
		if daysUntil < 0 || daysUntil > lookahead {
			continue
		}

		severity := domain.SeverityInfo
		if daysUntil <= 3 {
			severity = domain.SeverityWarning
		}

		amount := math.Abs(tx.Amount)
		drafts = append(drafts, domain.AlertDraft{
			Type:       domain.AlertSubscriptionRenewal,
			Title:      "Subscription renewing soon",
			Message:    fmt.Sprintf("%s ($%.2f) renews in %d days.", tx.Description, amount, daysUntil),
			Severity:   severity,
			EntityType: domain.EntityTransaction,
			EntityID:   tx.ID,
			Amount:     floatPtr(amount),
			EntityData: map[string]any{"frequency": tx.RecurrenceFrequency, "next_date": renewDay.Format("2006-01-02")},
		})
	}
	return drafts
}

const (
	cashFlowWarningRatio  = 1.2
	cashFlowCriticalRatio = 1.5
)

func evalCashFlow(snap *Snapshot, cfg domain.AlertsConfig) []domain.AlertDraft {
	income := snap.MonthIncome()
	if income <= 0 {
		return nil
	}
	expenses := snap.MonthExpenses()

	daysElapsed := snap.Now.Day()
	daysInMonth := time.Date(snap.Now.Year(), snap.Now.Month(), 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, 1, -1).Day()
	projected := expenses / float64(daysElapsed) * float64(daysInMonth)

	var severity, message string
	var threshold float64
	switch {
	case projected > income*cashFlowCriticalRatio:
		severity = domain.SeverityCritical
		threshold = income * cashFlowCriticalRatio
		message = fmt.Sprintf("Spending is projected to reach $%.2f this month, over 150%% of your $%.2f income.", projected, income)
	case expenses > income*cashFlowWarningRatio:
		severity = domain.SeverityWarning
		threshold = income * cashFlowWarningRatio
		message = fmt.Sprintf("Month-to-date spending of $%.2f exceeds 120%% of your $%.2f income.", expenses, income)
	default:
		return nil
	}

	return []domain.AlertDraft{{
		Type:       domain.AlertCashFlowWarning,
		Title:      "Cash flow warning",
		Message:    message,
		Severity:   severity,
		EntityType: domain.EntityUser,
		EntityID:   snap.UserID,
		Amount:     floatPtr(expenses),
		Threshold:  floatPtr(threshold),
		EntityData: map[string]any{"projected": projected, "income": income},
	}}
}

// meanStdev computes the mean and population standard deviation.
func meanStdev(samples []float64) (float64, float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range samples {
		sum += v
	}
	mean := sum / float64(len(samples))

	variance := 0.0
	for _, v := range samples {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(samples))

	return mean, math.Sqrt(variance)
}

func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func floatPtr(v float64) *float64 { return &v }
