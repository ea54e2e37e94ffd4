package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReportFox/app/models"
	"github.com/ManuelReschke/ReportFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/ReportFox/internal/pkg/metrics"
)

// Webhook outcomes used as metric labels.
const (
	WebhookResultApplied          = "applied"
	WebhookResultIgnored          = "ignored"
	WebhookResultDuplicate        = "duplicate"
	WebhookResultFailed           = "failed"
	WebhookResultSignatureInvalid = "signature_invalid"
)

// WebhookOutcome is the result of handling one verified provider delivery.
type WebhookOutcome struct {
	WebhookEventID uint
	Duplicate      bool
	Applied        bool
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	provider := normalizeProvider(in.Provider)
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}
	eventType := strings.TrimSpace(in.EventType)
	if eventType == "" {
		eventType = "unknown"
	}

	event := &models.BillingWebhookEvent{
		Provider:               provider,
		ProviderEventID:        eventID,
		EventType:              eventType,
		ExternalSubscriptionID: strings.TrimSpace(in.ExternalSubscriptionID),
		PayloadJSON:            in.PayloadJSON,
		SignatureValid:         in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(ctx, event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(ctx, webhookEventID, errMsg)
}

// PruneWebhookEvents removes applied events older than retention.
func (s *Service) PruneWebhookEvents(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.repo.PruneWebhookEvents(ctx, s.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Infof("[Billing] Pruned %d webhook events older than %s", n, retention)
	}
	return n, nil
}

// ProcessWebhook logs a verified delivery and applies its event. The signature
// must have been checked by the caller. A delivery that was already applied
// is reported as a duplicate; one whose earlier attempt failed is retried.
func (s *Service) ProcessWebhook(ctx context.Context, provider string, payload []byte, ev *ProviderEvent, parseErr error) (*WebhookOutcome, error) {
	in := WebhookEventInput{
		Provider:       provider,
		PayloadJSON:    string(payload),
		SignatureValid: true,
	}
	if ev != nil {
		in.ProviderEventID = ev.EventID
		in.EventType = ev.EventType
		in.ExternalSubscriptionID = ev.ExternalSubscriptionID
	}

	_, stored, err := s.RecordWebhookEvent(ctx, in)
	if err != nil {
		metrics.RecordWebhook(provider, WebhookResultFailed)
		return nil, err
	}

	out := &WebhookOutcome{WebhookEventID: stored.ID}
	if stored.IsApplied() {
		out.Duplicate = true
		metrics.RecordWebhook(provider, WebhookResultDuplicate)
		log.Infof("[Webhook] Duplicate %s event %s ignored", provider, stored.ProviderEventID)
		return out, nil
	}

	err = parseErr
	if err == nil && ev == nil {
		err = fmt.Errorf("%w: empty event", ErrInvalidEvent)
	}
	if err == nil {
		_, out.Applied, err = s.ApplyProviderEvent(ctx, ev)
	}

	if markErr := s.MarkWebhookProcessed(ctx, stored.ID, err); markErr != nil {
		log.Errorf("[Webhook] Failed to mark %s event %d processed: %v", provider, stored.ID, markErr)
		if err == nil {
			err = markErr
		}
	}

	switch {
	case err != nil:
		metrics.RecordWebhook(provider, WebhookResultFailed)
	case out.Applied:
		metrics.RecordWebhook(provider, WebhookResultApplied)
	default:
		metrics.RecordWebhook(provider, WebhookResultIgnored)
	}
	return out, err
}

// resolveEventUser finds the local user for a first activation that has no
// correlation id yet: the user id carried in custom data, then the email.
func (s *Service) resolveEventUser(ctx context.Context, ev *ProviderEvent) (uint, error) {
	if ev.UserID != 0 {
		ok, err := s.repo.UserExists(ctx, ev.UserID)
		if err != nil {
			return 0, err
		}
		if ok {
			return ev.UserID, nil
		}
	}
	if email := strings.TrimSpace(ev.Email); email != "" {
		return s.repo.FindUserIDByEmail(ctx, email)
	}
	return 0, ErrNotFound
}

func (s *Service) loadByExternalID(ctx context.Context, provider, externalID string) (*models.Subscription, error) {
	sub, err := s.repo.FindSubscriptionByExternalID(ctx, provider, externalID)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: no subscription for %s %s", ErrNotFound, provider, externalID)
	}
	return sub, err
}

// ApplyProviderEvent applies a normalized webhook event. It reports whether
// the record changed; redeliveries and events that do not apply to the
// current state leave the record as it is.
func (s *Service) ApplyProviderEvent(ctx context.Context, ev *ProviderEvent) (*models.Subscription, bool, error) {
	if ev == nil {
		return nil, false, fmt.Errorf("%w: empty event", ErrInvalidEvent)
	}
	if ev.Kind == ProviderEventIgnored {
		log.Debugf("[Billing] Ignoring %s event %s", ev.Provider, ev.EventType)
		return nil, false, nil
	}

	provider := normalizeProvider(ev.Provider)
	externalID := strings.TrimSpace(ev.ExternalSubscriptionID)
	if provider == "" || externalID == "" {
		return nil, false, fmt.Errorf("%w: provider and external subscription id are required", ErrInvalidEvent)
	}
	byExternalID := func() (*models.Subscription, error) {
		return s.loadByExternalID(ctx, provider, externalID)
	}

	switch ev.Kind {
	case ProviderSubscriptionActivated:
		plan, err := s.ResolvePlan(ctx, provider, ev.PlanRef, ev.PlanName)
		if err != nil {
			return nil, false, err
		}
		load := func() (*models.Subscription, error) {
			sub, err := s.repo.FindSubscriptionByExternalID(ctx, provider, externalID)
			if !errors.Is(err, ErrNotFound) {
				return sub, err
			}
			userID, err := s.resolveEventUser(ctx, ev)
			if err != nil {
				return nil, fmt.Errorf("%w: no user for %s subscription %s", ErrNotFound, provider, externalID)
			}
			return s.getOrCreate(ctx, s.repo, userID)
		}
		return s.update(ctx, load, func(sub *models.Subscription, now time.Time) (string, error) {
			return s.applyActivation(sub, plan, provider, externalID, now), nil
		})

	case ProviderSubscriptionCancelled:
		return s.update(ctx, byExternalID, func(sub *models.Subscription, now time.Time) (string, error) {
			if sub.Status != entitlements.StatusActive {
				return "", nil
			}
			sub.Status = entitlements.StatusCancelled
			sub.CancelledAt = &now
			return EventProviderCancelled, nil
		})

	case ProviderSubscriptionExpired:
		return s.update(ctx, byExternalID, func(sub *models.Subscription, now time.Time) (string, error) {
			switch sub.Status {
			case entitlements.StatusActive, entitlements.StatusCancelled, entitlements.StatusTrial:
				expire(sub)
				return EventProviderExpired, nil
			default:
				return "", nil
			}
		})

	case ProviderSubscriptionRenewed:
		return s.update(ctx, byExternalID, func(sub *models.Subscription, now time.Time) (string, error) {
			return s.applyRenewalSignal(sub, now), nil
		})

	default:
		return nil, false, fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, ev.Kind)
	}
}

func (s *Service) applyActivation(sub *models.Subscription, plan entitlements.PlanTier, provider, externalID string, now time.Time) string {
	if sub.Status == entitlements.StatusInactive {
		log.Warnf("[Billing] Ignoring %s activation for inactive subscription of user %d", provider, sub.UserID)
		return ""
	}

	sameSubscription := sub.PaymentProvider == provider && sub.ExternalSubscriptionID == externalID && sub.Plan == plan
	if sameSubscription && !entitlements.IsExpired(sub.Snapshot(), now) {
		switch sub.Status {
		case entitlements.StatusActive:
			return ""
		case entitlements.StatusCancelled:
			// Resumed before the period ended: keep the period and usage.
			sub.Status = entitlements.StatusActive
			sub.CancelledAt = nil
			return EventProviderActivated
		}
	}

	s.activate(sub, plan, provider, "", externalID, now)
	return EventProviderActivated
}

// applyRenewalSignal records a provider payment. Payments outside the renewal
// window before the period end are the initial charge and do not count.
func (s *Service) applyRenewalSignal(sub *models.Subscription, now time.Time) string {
	if sub.Status != entitlements.StatusActive || sub.CurrentPeriodEnd == nil {
		return ""
	}
	if now.Before(sub.CurrentPeriodEnd.Add(-s.cfg.RenewalWindow)) {
		return ""
	}

	if sub.RenewalSignalAt == nil {
		sub.RenewalSignalAt = &now
	}
	if event := s.rollover(sub, now); event != "" {
		return event
	}
	if sub.RenewalSignalAt.Equal(now) {
		return EventProviderRenewed
	}
	return ""
}
