package entitlements

import "time"

// Snapshot is the read-only view of a subscription record the evaluator works on.
type Snapshot struct {
	Plan               PlanTier
	Status             Status
	Features           FeatureSet
	Usage              Usage
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	TrialEndsAt        *time.Time
}

// IsExpired reports whether the subscription must be treated as expired at now.
// Boundaries are evaluated on read, so a stored "active" or "trial" status that has
// silently passed its period or trial end is expired here before any sweep rewrites it.
func IsExpired(s Snapshot, now time.Time) bool {
	if s.Status == StatusExpired {
		return true
	}
	if s.CurrentPeriodEnd != nil && now.After(*s.CurrentPeriodEnd) {
		return true
	}
	if s.Status == StatusTrial && s.TrialEndsAt != nil && now.After(*s.TrialEndsAt) {
		return true
	}
	return false
}

// IsActive reports whether the subscription currently entitles its owner.
// A cancelled subscription stays active until the end of its paid period.
func IsActive(s Snapshot, now time.Time) bool {
	switch s.Status {
	case StatusActive, StatusTrial:
	case StatusCancelled:
		if s.CurrentPeriodEnd == nil {
			return false
		}
	default:
		return false
	}
	return !IsExpired(s, now)
}

// HasFeature looks up a boolean feature. Unknown feature names return false.
func HasFeature(s Snapshot, feature string) bool {
	return s.Features.Enabled(feature)
}

// RemainingQuota returns limit minus usage clamped at zero, or Unlimited.
func RemainingQuota(s Snapshot, c Counter) int {
	limit := s.Features.Limit(c)
	if IsUnlimited(limit) {
		return Unlimited
	}
	remaining := limit - s.Usage.Get(c)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CanConsume reports whether one more unit of the counter may be used at now.
func CanConsume(s Snapshot, c Counter, now time.Time) bool {
	return CanConsumeN(s, c, 1, now)
}

// CanConsumeN reports whether amount more units of the counter may be used at now.
func CanConsumeN(s Snapshot, c Counter, amount int, now time.Time) bool {
	if amount < 1 || !IsActive(s, now) || IsExpired(s, now) {
		return false
	}
	remaining := RemainingQuota(s, c)
	return IsUnlimited(remaining) || remaining >= amount
}

// Quota describes one counter for API responses.
type Quota struct {
	Used      int  `json:"used"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
	Unlimited bool `json:"unlimited"`
}

// Quotas returns the state of every counter.
func Quotas(s Snapshot) map[Counter]Quota {
	out := make(map[Counter]Quota, 3)
	for _, c := range []Counter{CounterReports, CounterTeamMembers, CounterAPICalls} {
		limit := s.Features.Limit(c)
		out[c] = Quota{
			Used:      s.Usage.Get(c),
			Limit:     limit,
			Remaining: RemainingQuota(s, c),
			Unlimited: IsUnlimited(limit),
		}
	}
	return out
}
