package split

import (
	"context"
	"errors"
	"strings"
)

// Calculator resolves the active rule for a service and applies it.
type Calculator struct {
	Rules RuleStore
	// Fallback applies when no default has been stored yet.
	Fallback Rule
}

// Calculate splits amount using the override for serviceID when one exists,
// otherwise the global default.
func (c *Calculator) Calculate(ctx context.Context, amount int64, serviceID string) (Split, error) {
	if amount <= 0 || amount > MaxAmount {
		return Split{}, ErrInvalidAmount
	}
	rule, err := c.ActiveRule(ctx, serviceID)
	if err != nil {
		return Split{}, err
	}
	return Compute(amount, rule)
}

// ActiveRule returns the rule Calculate would use for serviceID.
func (c *Calculator) ActiveRule(ctx context.Context, serviceID string) (Rule, error) {
	if c == nil {
		return Rule{}, errors.New("split: calculator not configured")
	}
	if c.Rules != nil {
		if id := strings.TrimSpace(serviceID); id != "" {
			rule, err := c.Rules.Override(ctx, id)
			if err == nil {
				return rule, nil
			}
			if !errors.Is(err, ErrRuleNotFound) {
				return Rule{}, err
			}
		}
	}
	return c.defaultRule(ctx)
}

func (c *Calculator) defaultRule(ctx context.Context) (Rule, error) {
	if c.Rules == nil {
		return c.Fallback, nil
	}
	rule, err := c.Rules.Default(ctx)
	if errors.Is(err, ErrRuleNotFound) {
		return c.Fallback, nil
	}
	return rule, err
}
