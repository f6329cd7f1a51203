package rewards

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/finch/internal/domain"
	"github.com/shopspring/decimal"
)

// Ledger is the append-only record of point-earning events. It owns
// reward creation (idempotent per bill) and every aggregation over the
// entries: totals, monthly breakdown, leaderboard, streaks, on-time rate.
type Ledger struct {
	repo  domain.Repository
	cache domain.Cache
	bus   domain.EventBus
	calc  *Calculator
	cfg   domain.RewardsConfig

	// now is injectable for streak/leaderboard window tests.
	now func() time.Time
}

// NewLedger creates a reward ledger.
func NewLedger(repo domain.Repository, cache domain.Cache, bus domain.EventBus, calc *Calculator, cfg domain.RewardsConfig) *Ledger {
	return &Ledger{
		repo:  repo,
		cache: cache,
		bus:   bus,
		calc:  calc,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// RecordInput describes one qualifying bill payment.
type RecordInput struct {
	UserID      string
	BillID      string // optional; enables idempotent create
	Amount      decimal.Decimal
	Category    string
	OnTime      bool
	Description string
}

// Record creates a reward entry for a bill payment. Creation is
// idempotent per bill: a second submission for an already-rewarded bill
// returns the existing entry with created=false. Streak days are read
// from the ledger at record time, so the bonus reflects the streak as
// it stood before this payment.
func (l *Ledger) Record(ctx context.Context, in RecordInput) (*domain.Reward, bool, error) {
	if in.UserID == "" {
		return nil, false, fmt.Errorf("%w: userID is required", domain.ErrInvalidInput)
	}

	if in.BillID != "" {
		existing, err := l.repo.GetRewardByBill(ctx, in.UserID, in.BillID)
		if err != nil && err != domain.ErrNotFound {
			return nil, false, fmt.Errorf("failed to check existing reward: %w", err)
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	streak, err := l.StreakDays(ctx, in.UserID)
	if err != nil {
		// A streak failure must not block recording the reward.
		slog.Warn("streak computation failed, assuming no streak",
			"user_id", in.UserID,
			"error", err,
		)
		streak = 0
	}

	points := l.calc.CalculatePoints(in.Amount, in.OnTime, in.Category, streak)

	reward := &domain.Reward{
		ID:            uuid.New().String(),
		UserID:        in.UserID,
		BillID:        in.BillID,
		Points:        points,
		BillAmount:    in.Amount.Round(2),
		Category:      in.Category,
		OnTimePayment: in.OnTime,
		Description:   in.Description,
		EarnedAt:      l.now(),
	}

	if err := l.repo.SaveReward(ctx, reward); err != nil {
		// Two concurrent submissions for the same bill can race past
		// the existence check; the loser returns the winner's entry.
		if in.BillID != "" {
			if existing, lookupErr := l.repo.GetRewardByBill(ctx, in.UserID, in.BillID); lookupErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("failed to save reward: %w", err)
	}

	l.invalidateSummary(ctx, in.UserID)
	l.publishEarned(ctx, reward)

	slog.Info("reward recorded",
		"user_id", in.UserID,
		"bill_id", in.BillID,
		"points", points,
		"category", in.Category,
		"streak_days", streak,
	)

	return reward, true, nil
}

// List returns reward entries matching the typed filter, newest first.
func (l *Ledger) List(ctx context.Context, userID string, filter domain.RewardFilter) ([]*domain.Reward, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	return l.repo.ListRewards(ctx, userID, filter)
}

// TotalPoints returns the sum of all entries' points; 0 when empty.
func (l *Ledger) TotalPoints(ctx context.Context, userID string) (int, error) {
	return l.repo.TotalPoints(ctx, userID)
}

// MonthlyBreakdown groups entries by calendar month of earned_at for
// the last monthsBack months, newest first.
func (l *Ledger) MonthlyBreakdown(ctx context.Context, userID string, monthsBack int) ([]domain.MonthlyPoints, error) {
	if monthsBack <= 0 {
		monthsBack = 6
	}
	since := l.now().AddDate(0, -monthsBack, 0)

	entries, err := l.repo.ListRewards(ctx, userID, domain.RewardFilter{EarnedAfter: since})
	if err != nil {
		return nil, err
	}

	byMonth := make(map[string]*domain.MonthlyPoints)
	for _, r := range entries {
		key := r.EarnedAt.Format("2006-01")
		m, ok := byMonth[key]
		if !ok {
			m = &domain.MonthlyPoints{Month: key, Categories: make(map[string]int)}
			byMonth[key] = m
		}
		m.TotalPoints += r.Points
		m.RewardCount++
		m.Categories[r.Category] += r.Points
	}

	months := make([]domain.MonthlyPoints, 0, len(byMonth))
	for _, m := range byMonth {
		months = append(months, *m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Month > months[j].Month })

	return months, nil
}

// Leaderboard ranks all users by points earned within the period,
// descending by points then by entry count, rank starting at 1. Results
// are cached briefly under the global scope.
func (l *Ledger) Leaderboard(ctx context.Context, period domain.LeaderboardPeriod, limit int) ([]*domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	from, to, err := l.periodBounds(period)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("leaderboard:%s:%d", period, limit)
	if cached, err := l.cache.Get(ctx, domain.GlobalScope, cacheKey); err == nil && cached != nil {
		var entries []*domain.LeaderboardEntry
		if err := json.Unmarshal(cached, &entries); err == nil {
			return entries, nil
		}
	}

	entries, err := l.repo.LeaderboardTotals(ctx, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}

	for i, e := range entries {
		e.Rank = i + 1
		e.Tier = CurrentTier(e.TotalPoints)
	}

	if data, err := json.Marshal(entries); err == nil {
		ttl := l.cfg.LeaderboardCacheTTL
		if ttl <= 0 {
			ttl = time.Minute
		}
		_ = l.cache.Set(ctx, domain.GlobalScope, cacheKey, data, ttl)
	}

	return entries, nil
}

// StreakDays counts consecutive calendar days with at least one entry,
// walking backward from today or yesterday. The today-or-yesterday
// anchor gives one day of grace before the streak breaks.
func (l *Ledger) StreakDays(ctx context.Context, userID string) (int, error) {
	entries, err := l.repo.ListRewards(ctx, userID, domain.RewardFilter{})
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	seen := make(map[string]bool, len(entries))
	var days []time.Time
	for _, r := range entries {
		day := r.EarnedAt.UTC().Truncate(24 * time.Hour)
		key := day.Format("2006-01-02")
		if !seen[key] {
			seen[key] = true
			days = append(days, day)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })

	today := l.now().Truncate(24 * time.Hour)
	yesterday := today.AddDate(0, 0, -1)

	anchor := days[0]
	if !anchor.Equal(today) && !anchor.Equal(yesterday) {
		return 0, nil
	}

	streak := 1
	prev := anchor
	for _, day := range days[1:] {
		if day.Equal(prev.AddDate(0, 0, -1)) {
			streak++
			prev = day
			continue
		}
		break
	}

	return streak, nil
}

// OnTimeRate returns the percentage of on-time entries, rounded to two
// decimals; 0 when the ledger is empty.
func (l *Ledger) OnTimeRate(ctx context.Context, userID string) (float64, error) {
	entries, err := l.repo.ListRewards(ctx, userID, domain.RewardFilter{})
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	onTime := 0
	for _, r := range entries {
		if r.OnTimePayment {
			onTime++
		}
	}

	rate := float64(onTime) / float64(len(entries)) * 100
	return math.Round(rate*100) / 100, nil
}

// Summary assembles the user-facing reward rollup. Cached per user and
// invalidated on every new entry.
func (l *Ledger) Summary(ctx context.Context, userID string) (*domain.RewardSummary, error) {
	if cached, err := l.cache.GetSummary(ctx, userID); err == nil && cached != nil {
		return cached, nil
	}

	total, err := l.TotalPoints(ctx, userID)
	if err != nil {
		return nil, err
	}

	streak, err := l.StreakDays(ctx, userID)
	if err != nil {
		return nil, err
	}

	onTimeRate, err := l.OnTimeRate(ctx, userID)
	if err != nil {
		return nil, err
	}

	recent, err := l.repo.ListRewards(ctx, userID, domain.RewardFilter{Limit: 10})
	if err != nil {
		return nil, err
	}

	monthly, err := l.MonthlyBreakdown(ctx, userID, 6)
	if err != nil {
		return nil, err
	}

	summary := &domain.RewardSummary{
		UserID:           userID,
		TotalPoints:      total,
		Progress:         Progress(total),
		StreakDays:       streak,
		OnTimeRate:       onTimeRate,
		RecentRewards:    recent,
		MonthlyBreakdown: monthly,
	}

	_ = l.cache.SetSummary(ctx, userID, summary, 30*time.Second)

	return summary, nil
}

// periodBounds computes the [from, to) window for a leaderboard period.
// Weeks start on Monday.
func (l *Ledger) periodBounds(period domain.LeaderboardPeriod) (time.Time, time.Time, error) {
	now := l.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch period {
	case domain.PeriodDaily:
		return today, today.AddDate(0, 0, 1), nil
	case domain.PeriodWeekly:
		weekday := int(today.Weekday())
		if weekday == 0 {
			weekday = 7 // Sunday
		}
		start := today.AddDate(0, 0, -(weekday - 1))
		return start, start.AddDate(0, 0, 7), nil
	case domain.PeriodMonthly:
		start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0), nil
	case domain.PeriodYearly:
		start := time.Date(today.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: unknown leaderboard period %q", domain.ErrInvalidInput, period)
	}
}

func (l *Ledger) invalidateSummary(ctx context.Context, userID string) {
	if err := l.cache.Delete(ctx, userID, "reward_summary"); err != nil {
		slog.Debug("failed to invalidate summary cache", "user_id", userID, "error", err)
	}
}

func (l *Ledger) publishEarned(ctx context.Context, reward *domain.Reward) {
	if l.bus == nil {
		return
	}
	payload, err := json.Marshal(reward)
	if err != nil {
		return
	}
	if err := l.bus.Publish(ctx, reward.UserID, domain.TopicRewardEarned, payload); err != nil {
		slog.Error("failed to publish reward event",
			"user_id", reward.UserID,
			"reward_id", reward.ID,
			"error", err,
		)
	}
}
