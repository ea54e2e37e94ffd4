package entitlements

import (
	"strings"
)

// PlanTier identifies a subscription plan. Tiers are totally ordered by Rank.
type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanPro        PlanTier = "pro"
	PlanBusiness   PlanTier = "business"
	PlanEnterprise PlanTier = "enterprise"
)

var tiers = []PlanTier{PlanFree, PlanPro, PlanBusiness, PlanEnterprise}

// Tiers returns every plan tier, cheapest first.
func Tiers() []PlanTier {
	out := make([]PlanTier, len(tiers))
	copy(out, tiers)
	return out
}

// ParsePlanTier resolves a plan name case-insensitively.
func ParsePlanTier(raw string) (PlanTier, bool) {
	switch PlanTier(strings.ToLower(strings.TrimSpace(raw))) {
	case PlanFree:
		return PlanFree, true
	case PlanPro:
		return PlanPro, true
	case PlanBusiness:
		return PlanBusiness, true
	case PlanEnterprise:
		return PlanEnterprise, true
	default:
		return "", false
	}
}

// Valid reports whether p is one of the known tiers.
func (p PlanTier) Valid() bool {
	return p.Rank() >= 0
}

// Rank returns the position of the tier in the plan order. Unknown tiers rank below Free.
func (p PlanTier) Rank() int {
	for i, t := range tiers {
		if t == p {
			return i
		}
	}
	return -1
}

// AtLeast reports whether p is the same as or above floor.
func (p PlanTier) AtLeast(floor PlanTier) bool {
	return p.Rank() >= 0 && p.Rank() >= floor.Rank()
}

// IsPaid reports whether the tier carries a billing period.
func (p PlanTier) IsPaid() bool {
	return p.Rank() > 0
}

// Status is the lifecycle state of a subscription record.
type Status string

const (
	StatusTrial     Status = "trial"
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusInactive  Status = "inactive"
)

// ParseStatus resolves a status name case-insensitively.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatusTrial, StatusActive, StatusCancelled, StatusExpired, StatusInactive:
		return s, true
	default:
		return "", false
	}
}
