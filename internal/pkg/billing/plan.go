package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/ManuelReschke/ReportFox/internal/pkg/entitlements"
)

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

// planFromName finds a tier name inside a provider product or variant name,
// e.g. "ReportFox Business (monthly)". The highest matching tier wins.
func planFromName(name string) (entitlements.PlanTier, bool) {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r)
	})

	best := entitlements.PlanTier("")
	for _, w := range words {
		tier, ok := entitlements.ParsePlanTier(w)
		if !ok {
			continue
		}
		if best == "" || tier.Rank() > best.Rank() {
			best = tier
		}
	}
	return best, best != ""
}

// ResolvePlan maps a provider plan reference to an internal tier. Configured
// mappings take precedence; the plan name is used as a fallback.
func (s *Service) ResolvePlan(ctx context.Context, provider, planRef, planName string) (entitlements.PlanTier, error) {
	p := normalizeProvider(provider)
	ref := strings.TrimSpace(planRef)

	if p != "" && ref != "" {
		m, err := s.repo.FindActivePlanMapping(ctx, p, ref)
		switch {
		case err == nil:
			if !m.InternalPlan.Valid() {
				return "", fmt.Errorf("%w: mapping %s/%s points to %q", ErrInvalidPlan, p, ref, m.InternalPlan)
			}
			return m.InternalPlan, nil
		case !errors.Is(err, ErrNotFound):
			return "", err
		}
	}

	if tier, ok := planFromName(planName); ok {
		return tier, nil
	}
	if tier, ok := planFromName(ref); ok {
		return tier, nil
	}
	return "", fmt.Errorf("%w: cannot resolve %s plan %q (%s)", ErrInvalidPlan, p, ref, planName)
}
