package split

import (
	"errors"
	"fmt"
	"math"
)

// MaxAmount is the largest amount whose percentage shares fit in int64.
const MaxAmount = math.MaxInt64 / 100

var (
	// ErrInvalidRule is returned when a split rule does not sum to 100 or a
	// component falls outside [0, 100].
	ErrInvalidRule = errors.New("split: invalid rule")
	// ErrInvalidAmount is returned for non-positive amounts and amounts
	// above MaxAmount.
	ErrInvalidAmount = errors.New("split: amount out of range")
	// ErrRuleNotFound indicates no rule is stored for the requested scope.
	ErrRuleNotFound = errors.New("split: rule not found")
)

// Rule assigns whole percentages of a booking amount to each party.
type Rule struct {
	StorePct      int `json:"storePct" validate:"gte=0,lte=100"`
	FreelancerPct int `json:"freelancerPct" validate:"gte=0,lte=100"`
	PlatformPct   int `json:"platformPct" validate:"gte=0,lte=100"`
}

// Sum returns the total of all components.
func (r Rule) Sum() int {
	return r.StorePct + r.FreelancerPct + r.PlatformPct
}

// Validate returns an *InvalidRuleError when the rule cannot be applied.
func (r Rule) Validate() error {
	for _, pct := range []int{r.StorePct, r.FreelancerPct, r.PlatformPct} {
		if pct < 0 || pct > 100 {
			return &InvalidRuleError{Rule: r, Reason: "each percentage must be between 0 and 100"}
		}
	}
	if r.Sum() != 100 {
		return &InvalidRuleError{Rule: r, Reason: fmt.Sprintf("percentages sum to %d, want 100", r.Sum())}
	}
	return nil
}

// InvalidRuleError describes why a rule was refused.
type InvalidRuleError struct {
	Rule   Rule
	Reason string
}

func (e *InvalidRuleError) Error() string {
	return fmt.Sprintf("split: invalid rule %d/%d/%d: %s", e.Rule.StorePct, e.Rule.FreelancerPct, e.Rule.PlatformPct, e.Reason)
}

func (e *InvalidRuleError) Unwrap() error { return ErrInvalidRule }

// Shares holds the minor-unit amount owed to each party.
type Shares struct {
	Store      int64 `json:"store"`
	Freelancer int64 `json:"freelancer"`
	Platform   int64 `json:"platform"`
}

// Total returns the sum of all shares.
func (s Shares) Total() int64 {
	return s.Store + s.Freelancer + s.Platform
}

// Split pairs a rule with the shares it produced for one amount.
type Split struct {
	Rule   Rule   `json:"rule"`
	Shares Shares `json:"shares"`
}

// Compute divides amount according to rule. Store and freelancer shares are
// rounded half-up; the platform receives the remainder so the shares always
// sum to amount. When both rounded shares overshoot a zero platform share the
// freelancer share absorbs the difference.
func Compute(amount int64, rule Rule) (Split, error) {
	if amount <= 0 || amount > MaxAmount {
		return Split{}, ErrInvalidAmount
	}
	if err := rule.Validate(); err != nil {
		return Split{}, err
	}
	store := percentOf(amount, rule.StorePct)
	freelancer := percentOf(amount, rule.FreelancerPct)
	platform := amount - store - freelancer
	if platform < 0 {
		freelancer += platform
		platform = 0
	}
	return Split{
		Rule: rule,
		Shares: Shares{
			Store:      store,
			Freelancer: freelancer,
			Platform:   platform,
		},
	}, nil
}

func percentOf(amount int64, pct int) int64 {
	return (amount*int64(pct) + 50) / 100
}
