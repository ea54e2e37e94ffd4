package models

import "time"

const (
	OverrideActionSetPlan     = "set_plan"
	OverrideActionSetFeatures = "set_features"
	OverrideActionClear       = "clear_override"
	OverrideActionSetStatus   = "set_status"
)

// SubscriptionOverride is the audit row written for every manual admin change
// to a subscription. Before/after values are stored as JSON snapshots.
type SubscriptionOverride struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	SubscriptionID uint      `gorm:"not null;index" json:"subscription_id"`
	UserID         uint      `gorm:"not null;index" json:"user_id"`
	AdminID        uint      `gorm:"not null;index" json:"admin_id"`
	Action         string    `gorm:"type:varchar(30);not null" json:"action"`
	BeforeJSON     string    `gorm:"type:text" json:"before"`
	AfterJSON      string    `gorm:"type:text" json:"after"`
	Reason         string    `gorm:"type:text;not null" json:"reason"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
