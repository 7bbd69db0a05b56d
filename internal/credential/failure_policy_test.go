package credential

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newCred() *Credential {
	return &Credential{ID: 1, RefreshToken: "r1"}
}

func TestApplyFailureAuthRejectedDisablesImmediately(t *testing.T) {
	c := newCred()
	applyFailure(c, FailureAuthRejected, DefaultFailurePolicyConfig)

	require.True(t, c.Disabled)
	require.True(t, c.CooldownUntil.IsZero())
	require.Equal(t, "upstream_auth_rejected", c.FailureReason)
	require.Equal(t, 1, c.FailureCount)
}

func TestApplyFailureRateLimitedSetsShortCooldown(t *testing.T) {
	c := newCred()
	applyFailure(c, FailureRateLimited, DefaultFailurePolicyConfig)

	require.False(t, c.Disabled)
	require.WithinDuration(t, time.Now().Add(60*time.Second), c.CooldownUntil, 2*time.Second)
	require.Equal(t, "rate_limited", c.FailureReason)
}

func TestApplyFailureQuotaExceededSetsLongCooldown(t *testing.T) {
	c := newCred()
	applyFailure(c, FailureQuotaExceeded, DefaultFailurePolicyConfig)

	require.False(t, c.Disabled)
	require.WithinDuration(t, time.Now().Add(30*time.Minute), c.CooldownUntil, 2*time.Second)
	require.Equal(t, "quota_exhausted", c.FailureReason)
}

func TestApplyFailureTransientStreakTriggersCooldownThenResets(t *testing.T) {
	cfg := FailurePolicyConfig{StreakThreshold: 3, HardDisableThreshold: 100}
	c := newCred()

	applyFailure(c, FailureTransient, cfg)
	applyFailure(c, FailureTransient, cfg)
	require.True(t, c.CooldownUntil.IsZero())

	applyFailure(c, FailureTransient, cfg)
	require.False(t, c.CooldownUntil.IsZero())
	require.Equal(t, "failure_streak_cooldown", c.FailureReason)
	require.Equal(t, 0, c.failureStreak)
	require.False(t, c.Disabled)
}

func TestApplyFailureHardDisableThresholdDisablesRegardlessOfStreak(t *testing.T) {
	cfg := FailurePolicyConfig{StreakThreshold: 1000, HardDisableThreshold: 3}
	c := newCred()

	applyFailure(c, FailureTransient, cfg)
	applyFailure(c, FailureTransient, cfg)
	require.False(t, c.Disabled)

	applyFailure(c, FailureTransient, cfg)
	require.True(t, c.Disabled)
	require.True(t, c.CooldownUntil.IsZero())
	require.Equal(t, "auto_disabled_failure_threshold", c.FailureReason)
}

func TestFailurePolicyConfigNormalizedFillsZeroValues(t *testing.T) {
	cfg := FailurePolicyConfig{}.normalized()
	require.Equal(t, DefaultFailurePolicyConfig.StreakThreshold, cfg.StreakThreshold)
	require.Equal(t, DefaultFailurePolicyConfig.HardDisableThreshold, cfg.HardDisableThreshold)
}
