package models

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/ReportFox/internal/pkg/entitlements"
)

const (
	PaymentRequestPending= "pending"
	PaymentRequestApproved= "approved"
	PaymentRequestRejected= "rejected"
)

// PaymentRequest is the audit trail of a manual payment claim and the admin decision on it.
type PaymentRequest struct {
	ID                   uint                  `gorm:"primaryKey" json:"id"`
	UserID               uint                  `gorm:"not null;index:idx_payment_requests_user_status,priority:1" json:"user_id"`
	Plan                 entitlements.PlanTier `gorm:"type:varchar(20);not null" json:"plan" validate:"required,oneof=pro business enterprise"`
	AmountCents          int64                 `gorm:"not null" json:"amount_cents" validate:"gt=0"`
	Currency             string                `gorm:"type:varchar(3);not null;default:'USD'" json:"currency" validate:"required,len=3"`
	Method               string                `gorm:"type:varchar(50);not null" json:"method" validate:"required,max=50"`
	TransactionIDClaimed string                `gorm:"type:varchar(191);not null;default:''" json:"transaction_id" validate:"max=191"`
	ProofRef             string                `gorm:"type:varchar(512);default:''" json:"proof_ref" validate:"max=512"`
	Status               string                `gorm:"type:varchar(20);not null;default:'pending';index:idx_payment_requests_user_status,priority:2;index" json:"status"`
	SubmittedAt          time.Time             `gorm:"not null" json:"submitted_at"`
	DecidedAt            *time.Time            `gorm:"type:timestamp;default:null" json:"decided_at"`
	DecidedBy            *uint                 `gorm:"default:null" json:"decided_by"`
	RejectionReason      string                `gorm:"type:text" json:"rejection_reason"`
	CreatedAt            time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *PaymentRequest) Validate() error {
	v := validator.New()

	return v.Struct(p)
}

// IsPending reports whether the request still awaits a decision.
func (p *PaymentRequest) IsPending() bool {
	return p.Status == PaymentRequestPending
}
