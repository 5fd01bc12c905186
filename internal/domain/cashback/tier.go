// Package cashback resolves tiered cashback percentages and decides whether a
// player's paid rounds earn a cashback payout.
package cashback

import (
	"math"

	"github.com/shopspring/decimal"
)

// Unbounded marks the upper bound of the open-ended final tier.
const Unbounded = math.MaxInt

// Tier maps an inclusive range of qualifying rounds to a percentage in [0,1].
type Tier struct {
	MinRounds  int             `json:"min_rounds"`
	MaxRounds  int             `json:"max_rounds"`
	Percentage decimal.Decimal `json:"percentage"`
}

// Open reports whether the tier has no upper bound.
func (t Tier) Open() bool {
	return t.MaxRounds == Unbounded
}

// Contains reports whether rounds falls inside the tier.
func (t Tier) Contains(rounds int) bool {
	return rounds >= t.MinRounds && rounds <= t.MaxRounds
}

// DefaultTiers is the production tier table: 5% from 25 rounds, one more
// percent every 35 rounds, capped at 17% from 445 rounds on.
func DefaultTiers() []Tier {
	tiers := make([]Tier, 0, 13)
	for i := 0; i < 12; i++ {
		lo := 25 + i*35
		tiers = append(tiers, Tier{
			MinRounds:  lo,
			MaxRounds:  lo + 34,
			Percentage: decimal.New(int64(5+i), -2),
		})
	}
	tiers = append(tiers, Tier{
		MinRounds:  445,
		MaxRounds:  Unbounded,
		Percentage: decimal.New(17, -2),
	})
	return tiers
}

// lookupTier scans tiers in ascending order; the first inclusive match wins.
func lookupTier(tiers []Tier, rounds int) (Tier, bool) {
	for _, t := range tiers {
		if t.Contains(rounds) {
			return t, true
		}
	}
	return Tier{}, false
}
