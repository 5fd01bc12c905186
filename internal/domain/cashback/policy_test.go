package cashback

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePolicyYAML = `
min_percentage: 0.03
min_amount: 5
tiers:
  - {min_rounds: 10, max_rounds: 49, percentage: 0.03}
  - {min_rounds: 50, max_rounds: 99, percentage: 0.045}
  - {min_rounds: 100, percentage: 0.08}
`

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy([]byte(samplePolicyYAML))
	require.NoError(t, err)

	require.Len(t, p.Tiers, 3)
	assert.Equal(t, 10, p.MinRounds())
	assert.True(t, p.Tiers[2].Open())
	assert.True(t, p.Tiers[1].Percentage.Equal(dec("0.045")))
	assert.True(t, p.MinPercentage.Equal(dec("0.03")))
	assert.True(t, p.MinAmount.Equal(dec("5")))
}

func TestParsePolicy_DefaultsWhenOmitted(t *testing.T) {
	p, err := ParsePolicy([]byte("min_amount: 20\n"))
	require.NoError(t, err)

	assert.Len(t, p.Tiers, len(DefaultTiers()))
	assert.True(t, p.MinPercentage.Equal(dec("0.05")))
	assert.True(t, p.MinAmount.Equal(dec("20")))
}

func TestParsePolicy_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"gap", "tiers:\n  - {min_rounds: 10, max_rounds: 19, percentage: 0.01}\n  - {min_rounds: 25, percentage: 0.02}\n"},
		{"overlap", "tiers:\n  - {min_rounds: 10, max_rounds: 19, percentage: 0.01}\n  - {min_rounds: 15, percentage: 0.02}\n"},
		{"open middle", "tiers:\n  - {min_rounds: 10, percentage: 0.01}\n  - {min_rounds: 20, percentage: 0.02}\n"},
		{"over one", "tiers:\n  - {min_rounds: 10, percentage: 1.5}\n"},
		{"decreasing", "tiers:\n  - {min_rounds: 10, max_rounds: 19, percentage: 0.05}\n  - {min_rounds: 20, percentage: 0.02}\n"},
		{"negative floor", "min_amount: -1\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePolicy([]byte(tc.yaml))
			assert.ErrorIs(t, err, ErrInvalidPolicy)
		})
	}
}

func TestParsePolicy_Malformed(t *testing.T) {
	_, err := ParsePolicy([]byte("tiers: [oops"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidPolicy)
}

func TestLoadPolicy(t *testing.T) {
	p, err := LoadPolicy("")
	require.NoError(t, err)
	assert.Equal(t, 25, p.MinRounds())

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePolicyYAML), 0o600))

	p, err = LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, 10, p.MinRounds())

	_, err = LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
