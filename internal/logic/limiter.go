package logic

import "time"

// Verdict is the result of a limiter check.
type Verdict string

const (
	VerdictPermit      Verdict = "PERMIT"
	VerdictCooldown    Verdict = "COOLDOWN"
	VerdictRateLimited Verdict = "RATE_LIMITED"
)

// Limiter enforces a minimum spacing between actions and a maximum number
// of actions per rolling window, per location.
type Limiter struct {
	Cooldown time.Duration
	// Limit of zero disables rate limiting.
	Limit  int
	Window time.Duration
}

// Permit checks whether a location may act at now. It returns the verdict and
// the pruned action history; on permit, now is appended. The caller persists
// the returned history and sets LastActionAt only when the action is taken.
func (l Limiter) Permit(lastActionAt time.Time, actions []time.Time, now time.Time) (Verdict, []time.Time) {
	pruned := l.prune(actions, now)

	if !lastActionAt.IsZero() && now.Sub(lastActionAt) < l.Cooldown {
		return VerdictCooldown, pruned
	}
	if l.Limit > 0 && len(pruned) >= l.Limit {
		return VerdictRateLimited, pruned
	}
	return VerdictPermit, append(pruned, now)
}

// InCooldown reports whether now falls inside the cooldown after lastActionAt.
func (l Limiter) InCooldown(lastActionAt, now time.Time) bool {
	return !lastActionAt.IsZero() && now.Sub(lastActionAt) < l.Cooldown
}

// CooldownRemaining returns how long until the cooldown ends (0 if over).
func (l Limiter) CooldownRemaining(lastActionAt, now time.Time) time.Duration {
	if !l.InCooldown(lastActionAt, now) {
		return 0
	}
	return l.Cooldown - now.Sub(lastActionAt)
}

// prune drops actions older than now-Window; one exactly Window old still
// counts. The input slice is not modified.
func (l Limiter) prune(actions []time.Time, now time.Time) []time.Time {
	if l.Limit <= 0 {
		return nil
	}
	cutoff := now.Add(-l.Window)
	out := make([]time.Time, 0, len(actions)+1)
	for _, ts := range actions {
		if !ts.Before(cutoff) {
			out = append(out, ts)
		}
	}
	return out
}
