package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RewardTier is one of the five ordered reward levels.
type RewardTier string

const (
	TierBronze   RewardTier = "bronze"
	TierSilver   RewardTier = "silver"
	TierGold     RewardTier = "gold"
	TierPlatinum RewardTier = "platinum"
	TierDiamond  RewardTier = "diamond"
)

// TierInfo describes one tier of the static tier table.
// MaxPoints is nil for the unbounded top tier. The table is versioned
// configuration: thresholds partition the non-negative integers with no
// gaps or overlaps.
type TierInfo struct {
	Tier       RewardTier `json:"tier"`
	MinPoints  int        `json:"minPoints"`
	MaxPoints  *int       `json:"maxPoints,omitempty"`
	Multiplier float64    `json:"multiplier"`
	Benefits   []string   `json:"benefits"`
	Color      string     `json:"color"`
}

// Reward is one append-only points-earning event. Entries are never
// mutated after creation except for the cosmetic description.
type Reward struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	BillID        string          `json:"billId,omitempty"`
	Points        int             `json:"points"`
	BillAmount    decimal.Decimal `json:"billAmount"`
	Category      string          `json:"category"`
	OnTimePayment bool            `json:"onTimePayment"`
	Description   string          `json:"description,omitempty"`
	EarnedAt      time.Time       `json:"earnedAt"`
}

// RewardFilter is the typed criteria object for listing rewards.
// Unsupported filter dimensions cannot be expressed, by construction.
type RewardFilter struct {
	Category      string
	OnTimeOnly    bool
	EarnedAfter   time.Time
	EarnedBefore  time.Time
	Limit, Offset int
}

// Validate rejects degenerate filter parameters before they reach SQL.
func (f *RewardFilter) Validate() error {
	if f.Limit < 0 || f.Offset < 0 {
		return fmt.Errorf("%w: limit and offset must be non-negative", ErrInvalidInput)
	}
	if !f.EarnedAfter.IsZero() && !f.EarnedBefore.IsZero() && f.EarnedBefore.Before(f.EarnedAfter) {
		return fmt.Errorf("%w: earned_before precedes earned_after", ErrInvalidInput)
	}
	return nil
}

// LeaderboardPeriod selects the ranking window.
type LeaderboardPeriod string

const (
	PeriodDaily   LeaderboardPeriod = "daily"
	PeriodWeekly  LeaderboardPeriod = "weekly"
	PeriodMonthly LeaderboardPeriod = "monthly"
	PeriodYearly  LeaderboardPeriod = "yearly"
)

// LeaderboardEntry is one ranked row of the points leaderboard.
type LeaderboardEntry struct {
	UserID      string     `json:"userId"`
	TotalPoints int        `json:"totalPoints"`
	RewardCount int        `json:"rewardCount"`
	Tier        RewardTier `json:"tier"`
	Rank        int        `json:"rank"`
}

// MonthlyPoints is one calendar month of the reward breakdown.
type MonthlyPoints struct {
	Month       string         `json:"month"` // YYYY-MM
	TotalPoints int            `json:"totalPoints"`
	RewardCount int            `json:"rewardCount"`
	Categories  map[string]int `json:"categories"`
}

// TierProgress reports where a point total sits within the tier table.
type TierProgress struct {
	CurrentTier        RewardTier  `json:"currentTier"`
	CurrentTierInfo    *TierInfo   `json:"currentTierInfo"`
	NextTier           *RewardTier `json:"nextTier,omitempty"`
	NextTierInfo       *TierInfo   `json:"nextTierInfo,omitempty"`
	PointsInTier       int         `json:"pointsInCurrentTier"`
	PointsToNext       *int        `json:"pointsToNextTier,omitempty"`
	ProgressPercentage float64     `json:"progressPercentage"`
	Multiplier         float64     `json:"multiplier"`
}

// RewardSummary is the user-facing rollup served by GET /rewards/summary.
type RewardSummary struct {
	UserID           string          `json:"userId"`
	TotalPoints      int             `json:"totalPoints"`
	Progress         TierProgress    `json:"progress"`
	StreakDays       int             `json:"streakDays"`
	OnTimeRate       float64         `json:"onTimeRate"`
	RecentRewards    []*Reward       `json:"recentRewards"`
	MonthlyBreakdown []MonthlyPoints `json:"monthlyBreakdown"`
}
