package cashback

import (
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidPolicy = errors.New("invalid cashback policy")
)

// Policy bundles the tier table with the eligibility thresholds.
type Policy struct {
	Tiers         []Tier          `json:"tiers"`
	MinPercentage decimal.Decimal `json:"min_percentage"`
	MinAmount     decimal.Decimal `json:"min_amount"`
}

// DefaultPolicy returns the production tiers, a 5% percentage floor and a
// payout floor of 10 currency units.
func DefaultPolicy() Policy {
	return Policy{
		Tiers:         DefaultTiers(),
		MinPercentage: decimal.New(5, -2),
		MinAmount:     decimal.NewFromInt(10),
	}
}

// MinRounds is the first tier's lower bound.
func (p Policy) MinRounds() int {
	if len(p.Tiers) == 0 {
		return 0
	}
	return p.Tiers[0].MinRounds
}

// Validate checks that tiers are ascending, contiguous and non-overlapping,
// that only the last tier is open-ended and that percentages lie in [0,1]
// without decreasing.
func (p Policy) Validate() error {
	if len(p.Tiers) == 0 {
		return fmt.Errorf("%w: no tiers", ErrInvalidPolicy)
	}
	one := decimal.NewFromInt(1)
	for i, t := range p.Tiers {
		if t.MinRounds < 0 {
			return fmt.Errorf("%w: tier %d starts below zero", ErrInvalidPolicy, i)
		}
		if t.MaxRounds < t.MinRounds {
			return fmt.Errorf("%w: tier %d has max %d below min %d", ErrInvalidPolicy, i, t.MaxRounds, t.MinRounds)
		}
		if t.Percentage.IsNegative() || t.Percentage.GreaterThan(one) {
			return fmt.Errorf("%w: tier %d percentage %s outside [0,1]", ErrInvalidPolicy, i, t.Percentage)
		}
		if t.Open() && i != len(p.Tiers)-1 {
			return fmt.Errorf("%w: only the last tier may be open-ended", ErrInvalidPolicy)
		}
		if i == 0 {
			continue
		}
		prev := p.Tiers[i-1]
		if t.MinRounds != prev.MaxRounds+1 {
			return fmt.Errorf("%w: tier %d starts at %d, want %d", ErrInvalidPolicy, i, t.MinRounds, prev.MaxRounds+1)
		}
		if t.Percentage.LessThan(prev.Percentage) {
			return fmt.Errorf("%w: tier %d percentage decreases", ErrInvalidPolicy, i)
		}
	}
	if p.MinPercentage.IsNegative() || p.MinAmount.IsNegative() {
		return fmt.Errorf("%w: negative threshold", ErrInvalidPolicy)
	}
	return nil
}

type policyFile struct {
	MinPercentage *float64 `yaml:"min_percentage"`
	MinAmount     *float64 `yaml:"min_amount"`
	Tiers         []struct {
		MinRounds  int     `yaml:"min_rounds"`
		MaxRounds  *int    `yaml:"max_rounds"`
		Percentage float64 `yaml:"percentage"`
	} `yaml:"tiers"`
}

// ParsePolicy decodes a YAML policy. Omitted thresholds keep their defaults;
// a tier without max_rounds is open-ended.
//
//	min_percentage: 0.05
//	min_amount: 10
//	tiers:
//	  - {min_rounds: 25, max_rounds: 59, percentage: 0.05}
//	  - {min_rounds: 60, percentage: 0.06}
func ParsePolicy(data []byte) (Policy, error) {
	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Policy{}, fmt.Errorf("decode policy: %w", err)
	}

	p := DefaultPolicy()
	if f.MinPercentage != nil {
		p.MinPercentage = decimal.NewFromFloat(*f.MinPercentage)
	}
	if f.MinAmount != nil {
		p.MinAmount = decimal.NewFromFloat(*f.MinAmount)
	}
	if len(f.Tiers) > 0 {
		p.Tiers = make([]Tier, 0, len(f.Tiers))
		for _, t := range f.Tiers {
			maxRounds := Unbounded
			if t.MaxRounds != nil {
				maxRounds = *t.MaxRounds
			}
			p.Tiers = append(p.Tiers, Tier{
				MinRounds:  t.MinRounds,
				MaxRounds:  maxRounds,
				Percentage: decimal.NewFromFloat(t.Percentage),
			})
		}
	}

	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// LoadPolicy reads a YAML policy file. An empty path yields the default policy.
func LoadPolicy(path string) (Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(data)
}
