package split_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/salon-escrow/internal/split"
)

func TestComputeRemainderLandsOnPlatform(t *testing.T) {
	got, err := split.Compute(799, split.Rule{StorePct: 40, FreelancerPct: 40, PlatformPct: 20})
	require.NoError(t, err)
	require.Equal(t, split.Shares{Store: 320, Freelancer: 320, Platform: 159}, got.Shares)
	require.EqualValues(t, 799, got.Shares.Total())
}

func TestComputeSharesAlwaysSumToAmount(t *testing.T) {
	rules := []split.Rule{
		{StorePct: 40, FreelancerPct: 40, PlatformPct: 20},
		{StorePct: 33, FreelancerPct: 33, PlatformPct: 34},
		{StorePct: 0, FreelancerPct: 100, PlatformPct: 0},
		{StorePct: 15, FreelancerPct: 70, PlatformPct: 15},
		{StorePct: 50, FreelancerPct: 50, PlatformPct: 0},
	}
	for _, rule := range rules {
		for _, amount := range []int64{1, 2, 3, 99, 100, 101, 499, 500, 799, 123457} {
			got, err := split.Compute(amount, rule)
			require.NoError(t, err)
			require.Equal(t, amount, got.Shares.Total(), "rule %+v amount %d", rule, amount)
			require.GreaterOrEqual(t, got.Shares.Store, int64(0))
			require.GreaterOrEqual(t, got.Shares.Freelancer, int64(0))
			require.GreaterOrEqual(t, got.Shares.Platform, int64(0))
		}
	}
}

func TestComputeRoundsHalfUp(t *testing.T) {
	got, err := split.Compute(5, split.Rule{StorePct: 50, FreelancerPct: 50, PlatformPct: 0})
	require.NoError(t, err)
	require.EqualValues(t, 3, got.Shares.Store)
	require.EqualValues(t, 2, got.Shares.Freelancer)
	require.EqualValues(t, 0, got.Shares.Platform)
}

func TestComputeFreelancerAbsorbsRoundingDeficit(t *testing.T) {
	cases := []struct {
		amount                      int64
		rule                        split.Rule
		store, freelancer, platform int64
	}{
		{1, split.Rule{StorePct: 50, FreelancerPct: 50}, 1, 0, 0},
		{15, split.Rule{StorePct: 50, FreelancerPct: 50}, 8, 7, 0},
		{7, split.Rule{StorePct: 10, FreelancerPct: 90}, 1, 6, 0},
		{1, split.Rule{StorePct: 45, FreelancerPct: 45, PlatformPct: 10}, 0, 0, 1},
	}
	for _, tc := range cases {
		got, err := split.Compute(tc.amount, tc.rule)
		require.NoError(t, err)
		require.Equal(t, split.Shares{Store: tc.store, Freelancer: tc.freelancer, Platform: tc.platform}, got.Shares, "amount %d rule %+v", tc.amount, tc.rule)
		require.Equal(t, tc.amount, got.Shares.Total())
	}
}

func TestComputeRejectsInvalidInput(t *testing.T) {
	_, err := split.Compute(0, split.Rule{StorePct: 40, FreelancerPct: 40, PlatformPct: 20})
	require.ErrorIs(t, err, split.ErrInvalidAmount)

	_, err = split.Compute(500, split.Rule{StorePct: 50, FreelancerPct: 40, PlatformPct: 20})
	require.ErrorIs(t, err, split.ErrInvalidRule)
	var ruleErr *split.InvalidRuleError
	require.True(t, errors.As(err, &ruleErr))
	require.Equal(t, 110, ruleErr.Rule.Sum())

	_, err = split.Compute(500, split.Rule{StorePct: 120, FreelancerPct: -10, PlatformPct: -10})
	require.ErrorIs(t, err, split.ErrInvalidRule)
}

func TestComputeRejectsAmountsThatWouldOverflow(t *testing.T) {
	rule := split.Rule{StorePct: 40, FreelancerPct: 40, PlatformPct: 20}
	for _, amount := range []int64{math.MaxInt64 / 40, split.MaxAmount + 1, math.MaxInt64} {
		_, err := split.Compute(amount, rule)
		require.ErrorIs(t, err, split.ErrInvalidAmount, "amount %d", amount)
	}

	got, err := split.Compute(split.MaxAmount, rule)
	require.NoError(t, err)
	require.Equal(t, int64(split.MaxAmount), got.Shares.Total())
	require.Positive(t, got.Shares.Store)
	require.Positive(t, got.Shares.Freelancer)
	require.Positive(t, got.Shares.Platform)
}
