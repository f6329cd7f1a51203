package rewards

import (
	"github.com/opensource-finance/finch/internal/domain"
)

// tierTable is the static ordered tier configuration. The ranges
// partition the non-negative integers: no gaps, no overlaps. Versioned
// configuration data, never mutated at runtime.
var tierTable = []domain.TierInfo{
	{
		Tier:       domain.TierBronze,
		MinPoints:  0,
		MaxPoints:  intPtr(499),
		Multiplier: 1.0,
		Benefits:   []string{"Basic tracking", "Email support"},
		Color:      "#cd7f32",
	},
	{
		Tier:       domain.TierSilver,
		MinPoints:  500,
		MaxPoints:  intPtr(1999),
		Multiplier: 1.1,
		Benefits:   []string{"Priority support", "Advanced analytics", "Custom categories"},
		Color:      "#c0c0c0",
	},
	{
		Tier:       domain.TierGold,
		MinPoints:  2000,
		MaxPoints:  intPtr(4999),
		Multiplier: 1.25,
		Benefits:   []string{"All Silver benefits", "Early access to features", "Dedicated account manager"},
		Color:      "#ffd700",
	},
	{
		Tier:       domain.TierPlatinum,
		MinPoints:  5000,
		MaxPoints:  intPtr(9999),
		Multiplier: 1.5,
		Benefits:   []string{"All Gold benefits", "Custom integrations", "API access", "White-label reports"},
		Color:      "#e5e4e2",
	},
	{
		Tier:       domain.TierDiamond,
		MinPoints:  10000,
		MaxPoints:  nil, // no upper limit
		Multiplier: 2.0,
		Benefits:   []string{"All Platinum benefits", "24/7 phone support", "Custom development", "Enterprise features"},
		Color:      "#b9f2ff",
	},
}

// AllTiers returns a copy of the tier table.
func AllTiers() []domain.TierInfo {
	tiers := make([]domain.TierInfo, len(tierTable))
	copy(tiers, tierTable)
	return tiers
}

// CurrentTier returns the tier whose range contains totalPoints.
// Falls back to bronze; unreachable given the partition, but negative
// inputs land there too.
func CurrentTier(totalPoints int) domain.RewardTier {
	return currentTierInfo(totalPoints).Tier
}

func currentTierInfo(totalPoints int) *domain.TierInfo {
	for i := range tierTable {
		info := &tierTable[i]
		if info.MaxPoints == nil {
			if totalPoints >= info.MinPoints {
				return info
			}
			continue
		}
		if totalPoints >= info.MinPoints && totalPoints <= *info.MaxPoints {
			return info
		}
	}
	return &tierTable[0]
}

// NextTier returns the tier immediately above the current one, or nil
// when already at the top.
func NextTier(totalPoints int) *domain.TierInfo {
	current := currentTierInfo(totalPoints)
	for i := range tierTable {
		if tierTable[i].Tier == current.Tier {
			if i+1 < len(tierTable) {
				return &tierTable[i+1]
			}
			return nil
		}
	}
	return nil
}

// PointsToNextTier returns points still needed for the next tier,
// floored at 0; nil when there is no next tier.
func PointsToNextTier(totalPoints int) *int {
	next := NextTier(totalPoints)
	if next == nil {
		return nil
	}
	needed := next.MinPoints - totalPoints
	if needed < 0 {
		needed = 0
	}
	return &needed
}

// Progress reports where a point total sits within its tier.
// The unbounded top tier always reports 100%.
func Progress(totalPoints int) domain.TierProgress {
	current := currentTierInfo(totalPoints)
	next := NextTier(totalPoints)

	progress := domain.TierProgress{
		CurrentTier:     current.Tier,
		CurrentTierInfo: current,
		PointsInTier:    totalPoints - current.MinPoints,
		Multiplier:      current.Multiplier,
	}

	if next != nil {
		tier := next.Tier
		progress.NextTier = &tier
		progress.NextTierInfo = next
		progress.PointsToNext = PointsToNextTier(totalPoints)
	}

	if current.MaxPoints == nil {
		progress.ProgressPercentage = 100
		return progress
	}

	tierRange := *current.MaxPoints - current.MinPoints
	if tierRange <= 0 {
		progress.ProgressPercentage = 100
		return progress
	}

	pct := float64(totalPoints-current.MinPoints) / float64(tierRange) * 100
	if pct > 100 {
		pct = 100
	}
	progress.ProgressPercentage = pct
	return progress
}

func intPtr(v int) *int { return &v }
