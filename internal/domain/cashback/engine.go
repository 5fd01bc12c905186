package cashback

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Reasons reported for an ineligible result, in evaluation order.
const (
	ReasonInsufficientRounds = "insufficient rounds"
	ReasonPlayerProfit       = "player had profit"
	ReasonAmountBelowMinimum = "amount below minimum payout"
)

// Result is the outcome of a single cashback computation.
type Result struct {
	RoundCount  int             `json:"round_count"`
	TotalBet    decimal.Decimal `json:"total_bet"`
	TotalPayout decimal.Decimal `json:"total_payout"`
	Difference  decimal.Decimal `json:"difference"`
	Percentage  decimal.Decimal `json:"percentage"`
	Amount      decimal.Decimal `json:"amount"`
	Eligible    bool            `json:"eligible"`
	Reasons     []string        `json:"reasons"`
}

// Engine computes cashback for a fixed policy. It holds no mutable state and
// is safe for concurrent use.
type Engine struct {
	policy Policy
}

// NewEngine validates policy and returns an engine bound to it.
func NewEngine(policy Policy) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	tiers := make([]Tier, len(policy.Tiers))
	copy(tiers, policy.Tiers)
	policy.Tiers = tiers
	return &Engine{policy: policy}, nil
}

var defaultEngine = &Engine{policy: DefaultPolicy()}

// Default returns the engine for the production policy.
func Default() *Engine {
	return defaultEngine
}

// Compute runs the default policy.
func Compute(roundCount int, totalBet, totalPayout decimal.Decimal) Result {
	return defaultEngine.Compute(roundCount, totalBet, totalPayout)
}

// TierPercentage resolves the default policy's percentage for rounds.
func TierPercentage(rounds int) decimal.Decimal {
	return defaultEngine.TierPercentage(rounds)
}

// Policy returns a copy of the engine's policy.
func (e *Engine) Policy() Policy {
	p := e.policy
	p.Tiers = make([]Tier, len(e.policy.Tiers))
	copy(p.Tiers, e.policy.Tiers)
	return p
}

// TierPercentage returns the percentage of the tier containing rounds, or zero
// below the first tier.
func (e *Engine) TierPercentage(rounds int) decimal.Decimal {
	t, ok := lookupTier(e.policy.Tiers, rounds)
	if !ok {
		return decimal.Zero
	}
	return t.Percentage
}

// Compute resolves the tier, the cashback amount and the eligibility verdict.
// The differential is taken from the house's side: bet minus payout.
func (e *Engine) Compute(roundCount int, totalBet, totalPayout decimal.Decimal) Result {
	pct := e.TierPercentage(roundCount)
	diff := totalBet.Sub(totalPayout)
	amount := diff.Mul(pct)

	reasons := make([]string, 0, 4)
	if roundCount < e.policy.MinRounds() {
		reasons = append(reasons, ReasonInsufficientRounds)
	}
	if pct.LessThan(e.policy.MinPercentage) {
		reasons = append(reasons, fmt.Sprintf("percentage below %s%%", e.policy.MinPercentage.Shift(2).String()))
	}
	if amount.LessThan(e.policy.MinAmount) {
		reasons = append(reasons, ReasonAmountBelowMinimum)
	}
	if !diff.IsPositive() {
		reasons = append(reasons, ReasonPlayerProfit)
	}

	return Result{
		RoundCount:  roundCount,
		TotalBet:    totalBet,
		TotalPayout: totalPayout,
		Difference:  diff,
		Percentage:  pct,
		Amount:      amount,
		Eligible:    len(reasons) == 0,
		Reasons:     reasons,
	}
}
