package credential

import "time"

// FailurePolicyConfig carries the two configurable thresholds the failure
// policy needs: the trailing-failure streak length that triggers a
// cooldown, and the hard failure count that triggers a permanent
// auto-disable.
type FailurePolicyConfig struct {
	StreakThreshold     int
	HardDisableThreshold int
}

// DefaultFailurePolicyConfig is used when a deployment leaves these
// thresholds unset in config.
var DefaultFailurePolicyConfig = FailurePolicyConfig{
	StreakThreshold:      5,
	HardDisableThreshold: 20,
}

func (cfg FailurePolicyConfig) normalized() FailurePolicyConfig {
	out := cfg
	if out.StreakThreshold <= 0 {
		out.StreakThreshold = DefaultFailurePolicyConfig.StreakThreshold
	}
	if out.HardDisableThreshold <= 0 {
		out.HardDisableThreshold = DefaultFailurePolicyConfig.HardDisableThreshold
	}
	return out
}

// applyFailure turns a reported failure into cooldown/disable effects on
// the credential. It runs while the Store's exclusive lock is held, on the
// canonical *Credential (not a clone), and never returns an error: it is a
// pure sink for whatever report_failure hands it.
func applyFailure(c *Credential, class FailureClass, cfg FailurePolicyConfig) {
	cfg = cfg.normalized()
	now := time.Now()

	switch class {
	case FailureAuthRejected:
		c.Disabled = true
		c.CooldownUntil = time.Time{}
		c.FailureReason = "upstream_auth_rejected"
		c.FailureCount++
		c.failureStreak = 0
		return

	case FailureQuotaExceeded:
		c.CooldownUntil = now.Add(30 * time.Minute)
		c.FailureReason = "quota_exhausted"
		c.FailureCount++
		c.failureStreak++
		return

	case FailureRateLimited:
		c.CooldownUntil = now.Add(60 * time.Second)
		c.FailureReason = "rate_limited"
		c.FailureCount++
		c.failureStreak++
		return

	case FailureTransient, FailureUnknown, "":
		c.FailureCount++
		c.failureStreak++

		if c.FailureCount >= cfg.StreakThreshold && c.failureStreak >= cfg.StreakThreshold {
			c.CooldownUntil = now.Add(5 * time.Minute)
			c.FailureReason = "failure_streak_cooldown"
			c.failureStreak = 0
		}
		if c.FailureCount >= cfg.HardDisableThreshold {
			c.Disabled = true
			c.CooldownUntil = time.Time{}
			c.FailureReason = "auto_disabled_failure_threshold"
		}
		return
	}
}
