package jobqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ReportFox/internal/pkg/billing"
	"github.com/ManuelReschke/ReportFox/internal/pkg/entitlements"
)

type recordingEnqueuer struct {
	jobs []map[string]interface{}
}

func (r *recordingEnqueuer) EnqueueJob(ctx context.Context, jobType JobType, payload map[string]interface{}) (*Job, error) {
	r.jobs = append(r.jobs, payload)
	return &Job{ID: "job-1", Type: jobType, Payload: payload}, nil
}

func TestEmailNotifierEnqueuesSendEmail(t *testing.T) {
	q := &recordingEnqueuer{}
	end := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	err := NewEmailNotifier(q).Notify(context.Background(), billing.Notification{
		Kind:      billing.NotifyPlanActivated,
		UserID:    3,
		Email:     "user@example.com",
		Plan:      entitlements.PlanBusiness,
		PeriodEnd: &end,
	})
	require.NoError(t, err)
	require.Len(t, q.jobs, 1)

	payload, err := SendEmailJobPayloadFromMap(q.jobs[0])
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", payload.To)
	assert.Equal(t, "Your Business plan is active", payload.Subject)
	assert.Contains(t, payload.HTMLBody, "April 1, 2026")
	assert.Equal(t, "plan_activated", payload.Kind)
}

func TestEmailNotifierRequiresRecipient(t *testing.T) {
	q := &recordingEnqueuer{}
	err := NewEmailNotifier(q).Notify(context.Background(), billing.Notification{Kind: billing.NotifySubscriptionExpired})
	assert.Error(t, err)
	assert.Empty(t, q.jobs)
}

func TestRenderNotificationEscapesReason(t *testing.T) {
	_, body := RenderNotification(billing.Notification{
		Kind:             billing.NotifyPaymentRejected,
		PaymentRequestID: 9,
		Reason:           "<b>amount</b> mismatch",
	})
	assert.Contains(t, body, "#9")
	assert.Contains(t, body, "&lt;b&gt;amount&lt;/b&gt;")
}
