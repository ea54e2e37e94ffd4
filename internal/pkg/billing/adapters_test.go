package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ReportFox/app/models"
)

func TestParseLemonSqueezyWebhook(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantKind ProviderEventKind
		wantExt  string
	}{
		{
			name:     "created active",
			payload:  `{"meta":{"event_name":"subscription_created","custom_data":{"user_id":"42"}},"data":{"type":"subscriptions","id":"101","attributes":{"status":"active","variant_id":555,"product_name":"ReportFox","variant_name":"Business"}}}`,
			wantKind: ProviderSubscriptionActivated,
			wantExt:  "101",
		},
		{
			name:     "updated on trial",
			payload:  `{"meta":{"event_name":"subscription_updated"},"data":{"id":101,"attributes":{"status":"on_trial"}}}`,
			wantKind: ProviderSubscriptionActivated,
			wantExt:  "101",
		},
		{
			name:     "updated past due is ignored",
			payload:  `{"meta":{"event_name":"subscription_updated"},"data":{"id":"101","attributes":{"status":"past_due"}}}`,
			wantKind: ProviderEventIgnored,
			wantExt:  "101",
		},
		{
			name:     "cancelled",
			payload:  `{"meta":{"event_name":"subscription_cancelled"},"data":{"id":"101","attributes":{"status":"cancelled"}}}`,
			wantKind: ProviderSubscriptionCancelled,
			wantExt:  "101",
		},
		{
			name:     "expired",
			payload:  `{"meta":{"event_name":"subscription_expired"},"data":{"id":"101","attributes":{"status":"expired"}}}`,
			wantKind: ProviderSubscriptionExpired,
			wantExt:  "101",
		},
		{
			name:     "payment success uses the invoice subscription id",
			payload:  `{"meta":{"event_name":"subscription_payment_success"},"data":{"type":"subscription-invoices","id":"9001","attributes":{"subscription_id":101}}}`,
			wantKind: ProviderSubscriptionRenewed,
			wantExt:  "101",
		},
		{
			name:     "order events are ignored",
			payload:  `{"meta":{"event_name":"order_created"},"data":{"id":"5","attributes":{}}}`,
			wantKind: ProviderEventIgnored,
			wantExt:  "5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseLemonSqueezyWebhook([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, ev.Kind)
			assert.Equal(t, tt.wantExt, ev.ExternalSubscriptionID)
			assert.Equal(t, models.PaymentProviderLemonSqueezy, ev.Provider)
		})
	}
}

func TestParseLemonSqueezyWebhookFields(t *testing.T) {
	ev, err := ParseLemonSqueezyWebhook([]byte(`{"meta":{"event_name":"subscription_created","custom_data":{"user_id":42}},"data":{"id":"101","attributes":{"status":"active","variant_id":"555","product_name":"ReportFox","variant_name":"Pro Monthly","user_email":"a@b.io"}}}`))
	require.NoError(t, err)

	assert.Equal(t, "555", ev.PlanRef)
	assert.Equal(t, "ReportFox Pro Monthly", ev.PlanName)
	assert.Equal(t, "a@b.io", ev.Email)
	assert.Equal(t, uint(42), ev.UserID)
	assert.Empty(t, ev.EventID, "lemon squeezy deliveries are deduplicated by payload hash")
}

func TestParseLemonSqueezyWebhookRejectsBrokenPayloads(t *testing.T) {
	for _, payload := range []string{
		`not json`,
		`{"meta":{},"data":{"id":"1"}}`,
		`{"meta":{"event_name":"subscription_cancelled"},"data":{"attributes":{}}}`,
	} {
		_, err := ParseLemonSqueezyWebhook([]byte(payload))
		assert.ErrorIs(t, err, ErrInvalidEvent, payload)
	}
}

func TestParsePayPalWebhook(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantKind ProviderEventKind
		wantExt  string
	}{
		{
			name:     "activated",
			payload:  `{"id":"WH-1","event_type":"BILLING.SUBSCRIPTION.ACTIVATED","resource":{"id":"I-1","plan_id":"P-PRO","status":"ACTIVE","custom_id":"7","subscriber":{"email_address":"x@y.io"}}}`,
			wantKind: ProviderSubscriptionActivated,
			wantExt:  "I-1",
		},
		{
			name:     "updated while suspended is ignored",
			payload:  `{"id":"WH-2","event_type":"BILLING.SUBSCRIPTION.UPDATED","resource":{"id":"I-1","status":"SUSPENDED"}}`,
			wantKind: ProviderEventIgnored,
			wantExt:  "I-1",
		},
		{
			name:     "suspended",
			payload:  `{"id":"WH-3","event_type":"BILLING.SUBSCRIPTION.SUSPENDED","resource":{"id":"I-1"}}`,
			wantKind: ProviderSubscriptionCancelled,
			wantExt:  "I-1",
		},
		{
			name:     "expired",
			payload:  `{"id":"WH-4","event_type":"BILLING.SUBSCRIPTION.EXPIRED","resource":{"id":"I-1"}}`,
			wantKind: ProviderSubscriptionExpired,
			wantExt:  "I-1",
		},
		{
			name:     "sale completed",
			payload:  `{"id":"WH-5","event_type":"PAYMENT.SALE.COMPLETED","resource":{"id":"SALE-1","billing_agreement_id":"I-1"}}`,
			wantKind: ProviderSubscriptionRenewed,
			wantExt:  "I-1",
		},
		{
			name:     "one-off sale is ignored",
			payload:  `{"id":"WH-6","event_type":"PAYMENT.SALE.COMPLETED","resource":{"id":"SALE-2"}}`,
			wantKind: ProviderEventIgnored,
			wantExt:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParsePayPalWebhook([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, ev.Kind)
			assert.Equal(t, tt.wantExt, ev.ExternalSubscriptionID)
			assert.NotEmpty(t, ev.EventID)
		})
	}
}

func TestParsePayPalWebhookFields(t *testing.T) {
	ev, err := ParsePayPalWebhook([]byte(`{"id":"WH-1","event_type":"billing.subscription.activated","resource":{"id":"I-1","plan_id":"P-PRO","status":"ACTIVE","custom_id":"7","subscriber":{"email_address":"x@y.io"}}}`))
	require.NoError(t, err)

	assert.Equal(t, "BILLING.SUBSCRIPTION.ACTIVATED", ev.EventType)
	assert.Equal(t, "P-PRO", ev.PlanRef)
	assert.Equal(t, uint(7), ev.UserID)
	assert.Equal(t, "x@y.io", ev.Email)
}
