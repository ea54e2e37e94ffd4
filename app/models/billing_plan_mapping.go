package models

import (
	"time"

	"github.com/ManuelReschke/ReportFox/internal/pkg/entitlements"
)

// BillingPlanMapping maps a provider plan reference (Lemon Squeezy variant id,
// PayPal plan id) to an internal plan tier.
type BillingPlanMapping struct {
	ID              uint                  `gorm:"primaryKey" json:"id"`
	Provider        string                `gorm:"type:varchar(20);not null;index:ux_billing_plan_mappings_ref,unique,priority:1" json:"provider"`
	ProviderPlanRef string                `gorm:"type:varchar(191);not null;index:ux_billing_plan_mappings_ref,unique,priority:2" json:"provider_plan_ref"`
	InternalPlan    entitlements.PlanTier `gorm:"type:varchar(20);not null;default:'free'" json:"internal_plan"`
	IsActive        bool                  `gorm:"default:true;index" json:"is_active"`
	CreatedAt       time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}
