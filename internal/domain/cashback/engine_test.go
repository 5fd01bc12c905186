package cashback

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestTierPercentage_Boundaries(t *testing.T) {
	tests := []struct {
		rounds   int
		expected string
	}{
		{0, "0"},
		{24, "0"},
		{25, "0.05"},
		{59, "0.05"},
		{60, "0.06"},
		{94, "0.06"},
		{95, "0.07"},
		{200, "0.10"},
		{304, "0.12"},
		{305, "0.13"},
		{444, "0.16"},
		{445, "0.17"},
		{100000, "0.17"},
	}

	for _, tc := range tests {
		got := TierPercentage(tc.rounds)
		if !got.Equal(dec(tc.expected)) {
			t.Errorf("TierPercentage(%d) = %s, want %s", tc.rounds, got, tc.expected)
		}
	}
}

func TestTierPercentage_Monotonic(t *testing.T) {
	prev := TierPercentage(25)
	for r := 26; r <= 1000; r++ {
		cur := TierPercentage(r)
		if cur.LessThan(prev) {
			t.Fatalf("TierPercentage(%d) = %s is below TierPercentage(%d) = %s", r, cur, r-1, prev)
		}
		prev = cur
	}
}

func TestDefaultTiers_Contiguous(t *testing.T) {
	tiers := DefaultTiers()
	require.Len(t, tiers, 13)
	assert.Equal(t, 25, tiers[0].MinRounds)
	assert.True(t, tiers[len(tiers)-1].Open())
	for i := 1; i < len(tiers); i++ {
		assert.Equal(t, tiers[i-1].MaxRounds+1, tiers[i].MinRounds, "tier %d", i)
	}
	require.NoError(t, DefaultPolicy().Validate())
}

func TestCompute_EligibleScenario(t *testing.T) {
	res := Compute(30, dec("1000"), dec("400"))

	assert.True(t, res.Difference.Equal(dec("600")), "difference = %s", res.Difference)
	assert.True(t, res.Percentage.Equal(dec("0.05")), "percentage = %s", res.Percentage)
	assert.True(t, res.Amount.Equal(dec("30")), "amount = %s", res.Amount)
	assert.True(t, res.Eligible)
	assert.Empty(t, res.Reasons)
}

func TestCompute_BelowFirstTier(t *testing.T) {
	res := Compute(10, dec("500"), dec("100"))

	assert.True(t, res.Percentage.IsZero())
	assert.False(t, res.Eligible)
	assert.Contains(t, res.Reasons, ReasonInsufficientRounds)
	assert.Contains(t, res.Reasons, "percentage below 5%")
	assert.Equal(t, ReasonInsufficientRounds, res.Reasons[0])
	assert.NotContains(t, res.Reasons, ReasonPlayerProfit)
}

func TestCompute_PlayerNetWon(t *testing.T) {
	res := Compute(300, dec("1000"), dec("1200"))

	assert.True(t, res.Difference.Equal(dec("-200")))
	assert.True(t, res.Percentage.Equal(dec("0.12")))
	assert.False(t, res.Eligible)
	assert.Contains(t, res.Reasons, ReasonPlayerProfit)
	assert.Equal(t, ReasonPlayerProfit, res.Reasons[len(res.Reasons)-1])
}

func TestCompute_AmountBelowFloor(t *testing.T) {
	// 5% of 150 is 7.50, under the 10 unit floor.
	res := Compute(40, dec("250"), dec("100"))

	assert.False(t, res.Eligible)
	assert.Equal(t, []string{ReasonAmountBelowMinimum}, res.Reasons)
	assert.Equal(t, "7.50", res.Amount.StringFixed(2))
}

func TestCompute_ZeroRounds(t *testing.T) {
	res := Compute(0, decimal.Zero, decimal.Zero)

	assert.False(t, res.Eligible)
	assert.True(t, res.Percentage.IsZero())
	assert.Equal(t, []string{
		ReasonInsufficientRounds,
		"percentage below 5%",
		ReasonAmountBelowMinimum,
		ReasonPlayerProfit,
	}, res.Reasons)
}

func TestCompute_ExactAtTwoDecimals(t *testing.T) {
	bet := decimal.NewFromFloat(1234.56)
	payout := decimal.NewFromFloat(1000.1)

	res := Compute(445, bet, payout)

	assert.Equal(t, "234.46", res.Difference.String())
	assert.Equal(t, "39.8582", res.Amount.String())
	assert.Equal(t, "39.86", res.Amount.StringFixed(2))
	assert.True(t, res.Eligible)
}

func TestCompute_Idempotent(t *testing.T) {
	first := Compute(123, dec("987.65"), dec("432.1"))
	second := Compute(123, dec("987.65"), dec("432.1"))

	assert.Equal(t, first, second)
}

func TestNewEngine_CustomPolicy(t *testing.T) {
	policy := Policy{
		Tiers: []Tier{
			{MinRounds: 10, MaxRounds: 19, Percentage: dec("0.02")},
			{MinRounds: 20, MaxRounds: Unbounded, Percentage: dec("0.04")},
		},
		MinPercentage: dec("0.02"),
		MinAmount:     dec("1"),
	}

	engine, err := NewEngine(policy)
	require.NoError(t, err)

	res := engine.Compute(12, dec("100"), dec("40"))
	assert.True(t, res.Eligible, "reasons: %v", res.Reasons)
	assert.Equal(t, "1.2", res.Amount.String())

	res = engine.Compute(9, dec("100"), dec("40"))
	assert.Equal(t, []string{ReasonInsufficientRounds, "percentage below 2%", ReasonAmountBelowMinimum}, res.Reasons)

	// Mutating the caller's slice must not leak into the engine.
	policy.Tiers[0].Percentage = dec("0.5")
	assert.True(t, engine.TierPercentage(12).Equal(dec("0.02")))
}

func TestNewEngine_RejectsInvalidPolicy(t *testing.T) {
	policy := DefaultPolicy()
	policy.Tiers[3].MinRounds++

	_, err := NewEngine(policy)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}
