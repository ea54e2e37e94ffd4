package billing

import "github.com/ManuelReschke/ReportFox/internal/pkg/entitlements"

// Event names used for logging, metrics and audit.
const (
	EventPlanChangeRequested = "plan_change_requested"
	EventCancellation        = "cancellation_requested"
	EventPaymentApproved     = "payment_approved"
	EventProviderActivated   = "provider_subscription_activated"
	EventProviderCancelled   = "provider_subscription_cancelled"
	EventProviderExpired     = "provider_subscription_expired"
	EventProviderRenewed     = "provider_subscription_renewed"
	EventPeriodRenewed       = "period_renewed"
	EventPeriodExpired       = "period_expired"
	EventTrialExpired        = "trial_expired"
	EventAdminOverride       = "admin_override"
	EventAdminClearOverride  = "admin_clear_override"
	EventAdminStatusChange   = "admin_status_change"
)

// PlanChangeRequested is a direct plan change. Paid tiers need a payment reference.
type PlanChangeRequested struct {
	Plan                   entitlements.PlanTier
	PaymentProvider        string
	PaymentID              string
	ExternalSubscriptionID string
}

// PaymentRequestInput is a manual payment claim submitted by a user.
type PaymentRequestInput struct {
	Plan          entitlements.PlanTier
	AmountCents   int64
	Currency      string
	Method        string
	TransactionID string
	ProofRef      string
}

// PaymentRequestFilter narrows payment request listings. Zero values match all.
type PaymentRequestFilter struct {
	UserID uint
	Status string
	Limit  int
	Offset int
}

type ProviderEventKind string

const (
	ProviderSubscriptionActivated ProviderEventKind = "activated"
	ProviderSubscriptionCancelled ProviderEventKind = "cancelled"
	ProviderSubscriptionExpired   ProviderEventKind = "expired"
	ProviderSubscriptionRenewed   ProviderEventKind = "renewed"
	ProviderEventIgnored          ProviderEventKind = "ignored"
)

// ProviderEvent is a provider webhook normalized into the engine's vocabulary.
// Plan is resolved by the engine from PlanRef and PlanName for activations.
type ProviderEvent struct {
	Kind                   ProviderEventKind
	Provider               string
	EventID                string
	EventType              string
	ExternalSubscriptionID string
	PlanRef                string
	PlanName               string
	Email                  string
	UserID                 uint
}

// OverrideInput is a manual admin change. Nil fields are left untouched.
type OverrideInput struct {
	Plan     *entitlements.PlanTier
	Features *entitlements.FeatureSet
	Reason   string
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider               string
	ProviderEventID        string
	EventType              string
	ExternalSubscriptionID string
	PayloadJSON            string
	SignatureValid         bool
}
