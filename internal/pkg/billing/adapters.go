package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ManuelReschke/ReportFox/app/models"
)

// flexString accepts JSON strings and numbers; providers are not consistent
// about ids.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func (f flexString) uint() uint {
	n, err := strconv.ParseUint(string(f), 10, 64)
	if err != nil {
		return 0
	}
	return uint(n)
}

// ParseLemonSqueezyWebhook maps a Lemon Squeezy subscription or invoice
// webhook to a provider event.
func ParseLemonSqueezyWebhook(payload []byte) (*ProviderEvent, error) {
	type rawPayload struct {
		Meta struct {
			EventName  string `json:"event_name"`
			CustomData struct {
				UserID flexString `json:"user_id"`
			} `json:"custom_data"`
		} `json:"meta"`
		Data struct {
			Type       string     `json:"type"`
			ID         flexString `json:"id"`
			Attributes struct {
				SubscriptionID flexString `json:"subscription_id"`
				VariantID      flexString `json:"variant_id"`
				VariantName    string     `json:"variant_name"`
				ProductName    string     `json:"product_name"`
				UserEmail      string     `json:"user_email"`
				Status         string     `json:"status"`
			} `json:"attributes"`
		} `json:"data"`
	}

	var raw rawPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	eventName := strings.ToLower(strings.TrimSpace(raw.Meta.EventName))
	if eventName == "" {
		return nil, fmt.Errorf("%w: lemon squeezy payload missing event name", ErrInvalidEvent)
	}

	attrs := raw.Data.Attributes
	ev := &ProviderEvent{
		Kind:                   ProviderEventIgnored,
		Provider:               models.PaymentProviderLemonSqueezy,
		EventType:              eventName,
		ExternalSubscriptionID: string(raw.Data.ID),
		PlanRef:                string(attrs.VariantID),
		PlanName:               strings.TrimSpace(attrs.ProductName + " " + attrs.VariantName),
		Email:                  strings.TrimSpace(attrs.UserEmail),
		UserID:                 raw.Meta.CustomData.UserID.uint(),
	}

	switch eventName {
	case "subscription_created", "subscription_updated", "subscription_resumed", "subscription_unpaused":
		ev.Kind = lemonSqueezyStatusKind(attrs.Status)
	case "subscription_cancelled":
		ev.Kind = ProviderSubscriptionCancelled
	case "subscription_expired":
		ev.Kind = ProviderSubscriptionExpired
	case "subscription_payment_success":
		ev.Kind = ProviderSubscriptionRenewed
		ev.ExternalSubscriptionID = string(attrs.SubscriptionID)
	}

	if ev.Kind != ProviderEventIgnored && ev.ExternalSubscriptionID == "" {
		return nil, fmt.Errorf("%w: lemon squeezy %s missing subscription id", ErrInvalidEvent, eventName)
	}
	return ev, nil
}

func lemonSqueezyStatusKind(status string) ProviderEventKind {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active", "on_trial":
		return ProviderSubscriptionActivated
	case "cancelled":
		return ProviderSubscriptionCancelled
	case "expired":
		return ProviderSubscriptionExpired
	default:
		// past_due, unpaid and paused keep the current state until the
		// provider decides the outcome.
		return ProviderEventIgnored
	}
}

// ParsePayPalWebhook maps a PayPal subscription or sale webhook to a provider event.
func ParsePayPalWebhook(payload []byte) (*ProviderEvent, error) {
	type rawPayload struct {
		ID        string `json:"id"`
		EventType string `json:"event_type"`
		Resource  struct {
			ID                 string `json:"id"`
			PlanID             string `json:"plan_id"`
			Status             string `json:"status"`
			CustomID           string `json:"custom_id"`
			BillingAgreementID string `json:"billing_agreement_id"`
			Subscriber         struct {
				EmailAddress string `json:"email_address"`
			} `json:"subscriber"`
		} `json:"resource"`
	}

	var raw rawPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	eventType := strings.ToUpper(strings.TrimSpace(raw.EventType))
	if eventType == "" {
		return nil, fmt.Errorf("%w: paypal payload missing event_type", ErrInvalidEvent)
	}

	res := raw.Resource
	ev := &ProviderEvent{
		Kind:                   ProviderEventIgnored,
		Provider:               models.PaymentProviderPayPal,
		EventID:                strings.TrimSpace(raw.ID),
		EventType:              eventType,
		ExternalSubscriptionID: strings.TrimSpace(res.ID),
		PlanRef:                strings.TrimSpace(res.PlanID),
		Email:                  strings.TrimSpace(res.Subscriber.EmailAddress),
		UserID:                 flexString(strings.TrimSpace(res.CustomID)).uint(),
	}

	switch eventType {
	case "BILLING.SUBSCRIPTION.ACTIVATED", "BILLING.SUBSCRIPTION.RE-ACTIVATED", "BILLING.SUBSCRIPTION.UPDATED":
		if strings.EqualFold(res.Status, "ACTIVE") || res.Status == "" {
			ev.Kind = ProviderSubscriptionActivated
		}
	case "BILLING.SUBSCRIPTION.CANCELLED", "BILLING.SUBSCRIPTION.SUSPENDED":
		ev.Kind = ProviderSubscriptionCancelled
	case "BILLING.SUBSCRIPTION.EXPIRED":
		ev.Kind = ProviderSubscriptionExpired
	case "PAYMENT.SALE.COMPLETED":
		ev.ExternalSubscriptionID = strings.TrimSpace(res.BillingAgreementID)
		if ev.ExternalSubscriptionID != "" {
			ev.Kind = ProviderSubscriptionRenewed
		}
	}

	if ev.Kind != ProviderEventIgnored && ev.ExternalSubscriptionID == "" {
		return nil, fmt.Errorf("%w: paypal %s missing subscription id", ErrInvalidEvent, eventType)
	}
	return ev, nil
}
