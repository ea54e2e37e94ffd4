package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/ReportFox/app/models"
	"github.com/ManuelReschke/ReportFox/internal/pkg/entitlements"
)

// auditState is the part of a subscription captured in override audit rows.
type auditState struct {
	Plan               entitlements.PlanTier   `json:"plan"`
	Status             entitlements.Status     `json:"status"`
	Features           entitlements.FeatureSet `json:"features"`
	FeaturesOverridden bool                    `json:"features_overridden"`
	CurrentPeriodEnd   *time.Time              `json:"current_period_end"`
}

func auditJSON(sub *models.Subscription) string {
	b, err := json.Marshal(auditState{
		Plan:               sub.Plan,
		Status:             sub.Status,
		Features:           sub.Features,
		FeaturesOverridden: sub.FeaturesOverridden,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
	})
	if err != nil {
		return "{}"
	}
	return string(b)
}

func validateFeatures(f entitlements.FeatureSet) error {
	if f.ReportsPerMonth < entitlements.Unlimited || f.TeamMembers < entitlements.Unlimited {
		return fmt.Errorf("%w: limits must be >= 0 or %d for unlimited", ErrInvalidEvent, entitlements.Unlimited)
	}
	return nil
}

// adminChange runs fn and the audit insert in one transaction.
func (s *Service) adminChange(ctx context.Context, userID, adminID uint, action, reason string, fn mutateFunc) (*models.Subscription, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrInvalidEvent)
	}

	var (
		sub *models.Subscription
		t   *transition
	)
	err := s.inTx(ctx, func(repo Repository) error {
		var before string
		load := func() (*models.Subscription, error) {
			current, err := s.getOrCreate(ctx, repo, userID)
			if err == nil {
				before = auditJSON(current)
			}
			return current, err
		}

		var err error
		sub, t, err = s.mutate(ctx, repo, load, fn)
		if err != nil || t == nil {
			return err
		}

		return repo.CreateOverride(ctx, &models.SubscriptionOverride{
			SubscriptionID: sub.ID,
			UserID:         userID,
			AdminID:        adminID,
			Action:         action,
			BeforeJSON:     before,
			AfterJSON:      auditJSON(sub),
			Reason:         reason,
		})
	})
	if err != nil {
		return nil, err
	}
	s.observe(ctx, t)
	return sub, nil
}

// Override sets the plan and/or a custom feature set. Custom features are
// flagged so later plan changes leave them alone until the override is cleared.
func (s *Service) Override(ctx context.Context, userID, adminID uint, in OverrideInput) (*models.Subscription, error) {
	if in.Plan == nil && in.Features == nil {
		return nil, fmt.Errorf("%w: plan or features required", ErrInvalidEvent)
	}
	if in.Plan != nil && !in.Plan.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlan, *in.Plan)
	}
	if in.Features != nil {
		if err := validateFeatures(*in.Features); err != nil {
			return nil, err
		}
	}

	action := models.OverrideActionSetPlan
	if in.Features != nil {
		action = models.OverrideActionSetFeatures
	}

	return s.adminChange(ctx, userID, adminID, action, in.Reason, func(sub *models.Subscription, now time.Time) (string, error) {
		if in.Features != nil {
			sub.Features = *in.Features
			sub.FeaturesOverridden = true
		}
		if in.Plan != nil {
			if sub.Status == entitlements.StatusInactive {
				sub.Plan = *in.Plan
				if !sub.FeaturesOverridden {
					sub.Features = entitlements.FeaturesFor(*in.Plan)
				}
			} else {
				s.activate(sub, *in.Plan, models.PaymentProviderManual, fmt.Sprintf("admin:%d", adminID), "", now)
			}
		}
		return EventAdminOverride, nil
	})
}

// ClearOverride drops custom features and restores the plan's feature set.
func (s *Service) ClearOverride(ctx context.Context, userID, adminID uint, reason string) (*models.Subscription, error) {
	return s.adminChange(ctx, userID, adminID, models.OverrideActionClear, reason, func(sub *models.Subscription, now time.Time) (string, error) {
		if !sub.FeaturesOverridden {
			return "", nil
		}
		sub.FeaturesOverridden = false
		sub.Features = entitlements.FeaturesFor(sub.Plan)
		return EventAdminClearOverride, nil
	})
}

// SetAdministrativeStatus disables a subscription (inactive) or enables it
// again. Re-enabling restores the status the record had when it was disabled
// and expires it if its trial or period ended meanwhile.
func (s *Service) SetAdministrativeStatus(ctx context.Context, userID, adminID uint, status entitlements.Status, reason string) (*models.Subscription, error) {
	if status != entitlements.StatusInactive && status != entitlements.StatusActive {
		return nil, fmt.Errorf("%w: status must be %s or %s", ErrInvalidEvent, entitlements.StatusActive, entitlements.StatusInactive)
	}

	var previous entitlements.Status
	if status == entitlements.StatusActive {
		var err error
		if previous, err = s.statusBeforeDisable(ctx, userID); err != nil {
			return nil, err
		}
	}

	return s.adminChange(ctx, userID, adminID, models.OverrideActionSetStatus, reason, func(sub *models.Subscription, now time.Time) (string, error) {
		if status == entitlements.StatusInactive {
			if sub.Status == entitlements.StatusInactive {
				return "", nil
			}
			sub.Status = entitlements.StatusInactive
			return EventAdminStatusChange, nil
		}

		if sub.Status != entitlements.StatusInactive {
			return "", invalidTransition(EventAdminStatusChange, sub.Status)
		}
		switch {
		case previous != "":
			sub.Status = previous
		case sub.TrialEndsAt != nil && sub.CurrentPeriodEnd == nil:
			sub.Status = entitlements.StatusTrial
		default:
			sub.Status = entitlements.StatusActive
		}
		if sub.Status != entitlements.StatusExpired && entitlements.IsExpired(sub.Snapshot(), now) {
			expire(sub)
		}
		return EventAdminStatusChange, nil
	})
}

// statusBeforeDisable reads the status recorded by the latest disable in the
// audit trail, or "" when there is none.
func (s *Service) statusBeforeDisable(ctx context.Context, userID uint) (entitlements.Status, error) {
	overrides, err := s.repo.ListOverrides(ctx, userID)
	if err != nil {
		return "", err
	}
	for _, o := range overrides {
		if o.Action != models.OverrideActionSetStatus {
			continue
		}
		var before, after auditState
		if json.Unmarshal([]byte(o.AfterJSON), &after) != nil || after.Status != entitlements.StatusInactive {
			continue
		}
		if json.Unmarshal([]byte(o.BeforeJSON), &before) != nil {
			return "", nil
		}
		switch before.Status {
		case entitlements.StatusTrial, entitlements.StatusActive, entitlements.StatusCancelled, entitlements.StatusExpired:
			return before.Status, nil
		}
		return "", nil
	}
	return "", nil
}

func (s *Service) ListOverrides(ctx context.Context, userID uint) ([]models.SubscriptionOverride, error) {
	return s.repo.ListOverrides(ctx, userID)
}
