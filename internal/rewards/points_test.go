package rewards

import (
	"testing"

	"github.com/opensource-finance/finch/internal/domain"
	"github.com/shopspring/decimal"
)

func TestCalculatePoints(t *testing.T) {
	calc := NewCalculator(domain.RewardsConfig{})

	tests := []struct {
		name     string
		amount   string
		onTime   bool
		category string
		streak   int
		want     int
	}{
		{
			name:     "base only",
			amount:   "50",
			category: "other",
			want:     500,
		},
		{
			name:     "on-time utilities with week streak",
			amount:   "120",
			onTime:   true,
			category: "utilities",
			streak:   7,
			want:     2160, // 120*10 * 1.5 * 1.2
		},
		{
			name:     "on-time rent with ten-day streak",
			amount:   "100",
			onTime:   true,
			category: "rent",
			streak:   10,
			want:     2160, // 100*10 * 1.2 * 1.5 * 1.2
		},
		{
			name:     "credit card multiplier",
			amount:   "100",
			category: "credit_card",
			want:     1500,
		},
		{
			name:     "subscription discount",
			amount:   "100",
			category: "subscription",
			want:     800,
		},
		{
			name:     "unknown category defaults to 1.0",
			amount:   "100",
			category: "gym",
			want:     1000,
		},
		{
			name:     "category match is case-insensitive",
			amount:   "100",
			category: "Credit_Card",
			want:     1500,
		},
		{
			name:     "streak bonus uses largest threshold not exceeding streak",
			amount:   "100",
			category: "utilities",
			streak:   14,
			want:     1200, // 7-day bonus, not 15
		},
		{
			name:     "streak bonuses do not stack",
			amount:   "100",
			category: "utilities",
			streak:   45,
			want:     1500, // 1.5 only
		},
		{
			name:     "streak below first threshold has no bonus",
			amount:   "100",
			category: "utilities",
			streak:   2,
			want:     1000,
		},
		{
			name:     "round half up",
			amount:   "1.25",
			category: "education",
			want:     18, // 12.5 * 1.4 = 17.5
		},
		{
			name:     "floor at one point",
			amount:   "0.01",
			category: "other",
			want:     1,
		},
		{
			name:     "zero amount uses fallback",
			amount:   "0",
			onTime:   true,
			category: "credit_card",
			streak:   30,
			want:     1,
		},
		{
			name:     "negative amount uses fallback",
			amount:   "-25",
			onTime:   true,
			category: "rent",
			want:     1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount := decimal.RequireFromString(tt.amount)
			got := calc.CalculatePoints(amount, tt.onTime, tt.category, tt.streak)
			if got != tt.want {
				t.Errorf("CalculatePoints(%s, %v, %q, %d) = %d, want %d",
					tt.amount, tt.onTime, tt.category, tt.streak, got, tt.want)
			}
		})
	}
}

func TestCalculatePointsMonotonicInAmount(t *testing.T) {
	calc := NewCalculator(domain.RewardsConfig{})

	prev := 0
	for _, amt := range []string{"1", "5", "12.34", "50", "120", "999.99", "5000"} {
		got := calc.CalculatePoints(decimal.RequireFromString(amt), true, "utilities", 7)
		if got < prev {
			t.Fatalf("points decreased as amount grew: $%s earned %d, previous amount earned %d", amt, got, prev)
		}
		prev = got
	}
}

func TestCalculatePointsConfigOverrides(t *testing.T) {
	calc := NewCalculator(domain.RewardsConfig{
		BasePointsPerDollar: 5,
		OnTimeMultiplier:    2,
	})

	got := calc.CalculatePoints(decimal.NewFromInt(100), true, "utilities", 0)
	if got != 1000 {
		t.Errorf("CalculatePoints with overrides = %d, want 1000", got)
	}
}

func TestCalculateBreakdown(t *testing.T) {
	calc := NewCalculator(domain.RewardsConfig{})

	amount := decimal.NewFromInt(120)
	b := calc.CalculateBreakdown(amount, true, "utilities", 7)

	if b.TotalPoints != calc.CalculatePoints(amount, true, "utilities", 7) {
		t.Errorf("breakdown total %d does not match CalculatePoints", b.TotalPoints)
	}
	if b.CategoryMultiplier != 1.0 {
		t.Errorf("CategoryMultiplier = %v, want 1.0", b.CategoryMultiplier)
	}
	if b.OnTimeMultiplier != 1.5 {
		t.Errorf("OnTimeMultiplier = %v, want 1.5", b.OnTimeMultiplier)
	}
	if b.StreakMultiplier != 1.2 {
		t.Errorf("StreakMultiplier = %v, want 1.2", b.StreakMultiplier)
	}
	if len(b.Steps) == 0 {
		t.Error("expected at least one step")
	}
}

func TestCalculateBreakdownLatePayment(t *testing.T) {
	calc := NewCalculator(domain.RewardsConfig{})

	b := calc.CalculateBreakdown(decimal.NewFromInt(50), false, "other", 0)
	if b.OnTimeMultiplier != 1.0 {
		t.Errorf("OnTimeMultiplier = %v, want 1.0 for a late payment", b.OnTimeMultiplier)
	}
	if b.TotalPoints != 500 {
		t.Errorf("TotalPoints = %d, want 500", b.TotalPoints)
	}
}
