package billing

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReportFox/internal/pkg/entitlements"
)

type NotificationKind string

const (
	NotifyPlanActivated         NotificationKind = "plan_activated"
	NotifySubscriptionCancelled NotificationKind = "subscription_cancelled"
	NotifySubscriptionExpired   NotificationKind = "subscription_expired"
	NotifySubscriptionRenewed   NotificationKind = "subscription_renewed"
	NotifyPaymentApproved       NotificationKind = "payment_approved"
	NotifyPaymentRejected       NotificationKind = "payment_rejected"
)

// Notification describes a user-facing message about a billing change.
type Notification struct {
	Kind             NotificationKind
	UserID           uint
	Email            string
	Plan             entitlements.PlanTier
	PeriodEnd        *time.Time
	PaymentRequestID uint
	Reason           string
}

// Notifier delivers notifications out of band. Implementations must not block
// on slow I/O; failures are logged and never undo the change that caused them.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

func (s *Service) notify(ctx context.Context, n Notification) {
	if s.notifier == nil {
		return
	}
	if n.Email == "" {
		email, err := s.repo.GetUserEmail(ctx, n.UserID)
		if err != nil || email == "" {
			log.Debugf("[Billing] No email for user %d, skipping %s notification", n.UserID, n.Kind)
			return
		}
		n.Email = email
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		log.Warnf("[Billing] Failed to enqueue %s notification for user %d: %v", n.Kind, n.UserID, err)
	}
}

func notificationFor(event string) (NotificationKind, bool) {
	switch event {
	case EventPlanChangeRequested, EventProviderActivated:
		return NotifyPlanActivated, true
	case EventCancellation, EventProviderCancelled:
		return NotifySubscriptionCancelled, true
	case EventProviderExpired, EventPeriodExpired, EventTrialExpired:
		return NotifySubscriptionExpired, true
	case EventPeriodRenewed:
		return NotifySubscriptionRenewed, true
	default:
		return "", false
	}
}
