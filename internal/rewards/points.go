// Package rewards implements the points calculation engine, tier
// resolution, and the append-only reward ledger.
package rewards

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/opensource-finance/finch/internal/domain"
	"github.com/shopspring/decimal"
)

// Calculator computes reward points for bill payments. The multiplier
// tables are immutable configuration; a Calculator is safe for
// concurrent use.
type Calculator struct {
	basePointsPerDollar float64
	onTimeMultiplier    float64
	categoryMultipliers map[string]float64
	streakBonuses       []StreakBonus
}

// StreakBonus maps a minimum streak length to a bonus multiplier.
type StreakBonus struct {
	MinDays    int     `json:"minDays"`
	Multiplier float64 `json:"multiplier"`
}

// defaultCategoryMultipliers is the fixed category lookup table.
// Categories are matched case-insensitively; unknown categories get 1.0.
var defaultCategoryMultipliers = map[string]float64{
	"utilities":    1.0,
	"rent":         1.2,
	"mortgage":     1.2,
	"credit_card":  1.5,
	"loan":         1.3,
	"insurance":    1.1,
	"subscription": 0.8,
	"education":    1.4,
	"medical":      1.0,
	"tax":          1.0,
	"other":        1.0,
}

// defaultStreakBonuses is ordered by descending threshold; the largest
// threshold not exceeding the streak wins. Bonuses do not stack.
var defaultStreakBonuses = []StreakBonus{
	{MinDays: 30, Multiplier: 1.5},
	{MinDays: 15, Multiplier: 1.3},
	{MinDays: 7, Multiplier: 1.2},
	{MinDays: 3, Multiplier: 1.1},
}

// NewCalculator creates a calculator from configuration. Zero-valued
// knobs fall back to the standard 10 points/$ and 1.5x on-time bonus.
func NewCalculator(cfg domain.RewardsConfig) *Calculator {
	base := cfg.BasePointsPerDollar
	if base <= 0 {
		base = 10
	}
	onTime := cfg.OnTimeMultiplier
	if onTime <= 0 {
		onTime = 1.5
	}
	return &Calculator{
		basePointsPerDollar: base,
		onTimeMultiplier:    onTime,
		categoryMultipliers: defaultCategoryMultipliers,
		streakBonuses:       defaultStreakBonuses,
	}
}

// CalculatePoints computes the points earned for a bill payment.
// Order matters: base, category multiplier, on-time bonus, streak bonus,
// then round half-up and floor at 1. Degenerate input degrades to the
// fallback formula; this never fails, because a confirmed bill payment
// must always be rewardable.
func (c *Calculator) CalculatePoints(billAmount decimal.Decimal, onTimePayment bool, category string, streakDays int) int {
	amount := billAmount.InexactFloat64()
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		slog.Warn("degenerate bill amount, using fallback points formula",
			"amount", billAmount.String(),
		)
		return c.fallbackPoints(amount)
	}

	points := amount * c.basePointsPerDollar
	points *= c.categoryMultiplier(category)

	if onTimePayment {
		points *= c.onTimeMultiplier
	}

	points *= c.streakMultiplier(streakDays)

	rounded := int(math.Round(points))
	if rounded < 1 {
		return 1
	}
	return rounded
}

// Breakdown is the step-by-step explanation of one calculation,
// served alongside recorded rewards.
type Breakdown struct {
	BillAmount         float64  `json:"billAmount"`
	Category           string   `json:"category"`
	OnTimePayment      bool     `json:"onTimePayment"`
	StreakDays         int      `json:"streakDays"`
	BasePoints         int      `json:"basePoints"`
	CategoryMultiplier float64  `json:"categoryMultiplier"`
	OnTimeMultiplier   float64  `json:"onTimeMultiplier"`
	StreakMultiplier   float64  `json:"streakMultiplier"`
	TotalPoints        int      `json:"totalPoints"`
	Steps              []string `json:"steps"`
}

// CalculateBreakdown returns the same result as CalculatePoints along
// with the per-step components.
func (c *Calculator) CalculateBreakdown(billAmount decimal.Decimal, onTimePayment bool, category string, streakDays int) *Breakdown {
	amount := billAmount.InexactFloat64()

	b := &Breakdown{
		BillAmount:         amount,
		Category:           category,
		OnTimePayment:      onTimePayment,
		StreakDays:         streakDays,
		CategoryMultiplier: c.categoryMultiplier(category),
		OnTimeMultiplier:   1.0,
		StreakMultiplier:   c.streakMultiplier(streakDays),
	}

	base := amount * c.basePointsPerDollar
	b.BasePoints = int(math.Round(base))
	b.Steps = append(b.Steps,
		stepf("base: $%.2f x %.0f points/$ = %d points", amount, c.basePointsPerDollar, b.BasePoints),
		stepf("category (%s): x %.2f = %d points", category, b.CategoryMultiplier, int(math.Round(base*b.CategoryMultiplier))),
	)

	if onTimePayment {
		b.OnTimeMultiplier = c.onTimeMultiplier
		b.Steps = append(b.Steps,
			stepf("on-time bonus: x %.2f = %d points", c.onTimeMultiplier, int(math.Round(base*b.CategoryMultiplier*c.onTimeMultiplier))))
	}

	b.TotalPoints = c.CalculatePoints(billAmount, onTimePayment, category, streakDays)
	if b.StreakMultiplier > 1.0 {
		b.Steps = append(b.Steps,
			stepf("streak bonus (%d days): x %.2f = %d points", streakDays, b.StreakMultiplier, b.TotalPoints))
	}

	return b
}

func (c *Calculator) categoryMultiplier(category string) float64 {
	if m, ok := c.categoryMultipliers[strings.ToLower(category)]; ok {
		return m
	}
	return 1.0
}

func (c *Calculator) streakMultiplier(streakDays int) float64 {
	for _, bonus := range c.streakBonuses {
		if streakDays >= bonus.MinDays {
			return bonus.Multiplier
		}
	}
	return 1.0
}

// fallbackPoints is the simplest formula, used when the amount cannot
// be treated as a positive number.
func (c *Calculator) fallbackPoints(amount float64) int {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		amount = 0
	}
	points := int(math.Round(amount * c.basePointsPerDollar))
	if points < 1 {
		return 1
	}
	return points
}

func stepf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}
