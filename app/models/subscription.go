package models

import (
	"time"

	"github.com/ManuelReschke/ReportFox/internal/pkg/entitlements"
)

const (
	PaymentProviderNone         = "none"
	PaymentProviderPayPal       = "paypal"
	PaymentProviderLemonSqueezy = "lemon_squeezy"
	PaymentProviderManual       = "manual"
)

// Subscription is the single source of truth for a user's entitlement.
// Exactly one row per user; rows are never hard-deleted.
type Subscription struct {
	ID                     uint                    `gorm:"primaryKey" json:"id"`
	UserID                 uint                    `gorm:"not null;uniqueIndex" json:"user_id"`
	Plan                   entitlements.PlanTier   `gorm:"type:varchar(20);not null;default:'free';index" json:"plan"`
	Status                 entitlements.Status     `gorm:"type:varchar(20);not null;default:'trial';index" json:"status"`
	Features               entitlements.FeatureSet `gorm:"embedded;embeddedPrefix:feature_" json:"features"`
	FeaturesOverridden     bool                    `gorm:"not null;default:false" json:"features_overridden"`
	Usage                  entitlements.Usage      `gorm:"embedded" json:"usage"`
	CurrentPeriodStart     *time.Time              `gorm:"type:timestamp;default:null" json:"current_period_start"`
	CurrentPeriodEnd       *time.Time              `gorm:"type:timestamp;default:null;index" json:"current_period_end"`
	TrialEndsAt            *time.Time              `gorm:"type:timestamp;default:null" json:"trial_ends_at"`
	CancelledAt            *time.Time              `gorm:"type:timestamp;default:null" json:"cancelled_at"`
	RenewalSignalAt        *time.Time              `gorm:"type:timestamp;default:null" json:"renewal_signal_at"`
	PaymentProvider        string                  `gorm:"type:varchar(20);not null;default:'none';index:idx_subscriptions_provider_ext,priority:1" json:"payment_provider"`
	PaymentID              string                  `gorm:"type:varchar(191);default:''" json:"payment_id"`
	ExternalSubscriptionID string                  `gorm:"type:varchar(191);default:'';index:idx_subscriptions_provider_ext,priority:2" json:"external_subscription_id"`
	Version                uint                    `gorm:"not null;default:1" json:"-"`
	CreatedAt              time.Time               `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time               `gorm:"autoUpdateTime" json:"updated_at"`
}

// Snapshot returns the evaluator view of the record.
func (s *Subscription) Snapshot() entitlements.Snapshot {
	return entitlements.Snapshot{
		Plan:               s.Plan,
		Status:             s.Status,
		Features:           s.Features,
		Usage:              s.Usage,
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		TrialEndsAt:        s.TrialEndsAt,
	}
}

// NewTrialSubscription builds the lazily created record for a user seen for the first time.
func NewTrialSubscription(userID uint, now time.Time, trial time.Duration) *Subscription {
	trialEnd := now.Add(trial)
	return &Subscription{
		UserID:          userID,
		Plan:            entitlements.PlanFree,
		Status:          entitlements.StatusTrial,
		Features:        entitlements.FeaturesFor(entitlements.PlanFree),
		TrialEndsAt:     &trialEnd,
		PaymentProvider: PaymentProviderNone,
		Version:         1,
	}
}
