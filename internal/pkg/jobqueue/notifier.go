package jobqueue

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/ManuelReschke/ReportFox/internal/pkg/billing"
)

// Enqueuer accepts jobs for background processing.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, jobType JobType, payload map[string]interface{}) (*Job, error)
}

// EmailNotifier turns billing notifications into send_email jobs.
type EmailNotifier struct {
	queue Enqueuer
}

func NewEmailNotifier(queue Enqueuer) *EmailNotifier {
	return &EmailNotifier{queue: queue}
}

func (n *EmailNotifier) Notify(ctx context.Context, note billing.Notification) error {
	if strings.TrimSpace(note.Email) == "" {
		return fmt.Errorf("no recipient for %s notification", note.Kind)
	}
	subject, body := RenderNotification(note)
	_, err := n.queue.EnqueueJob(ctx, JobTypeSendEmail, SendEmailJobPayload{
		To:       note.Email,
		Subject:  subject,
		HTMLBody: body,
		Kind:     string(note.Kind),
		UserID:   note.UserID,
	}.ToMap())
	return err
}

// RenderNotification builds the subject and HTML body for a notification.
func RenderNotification(n billing.Notification) (string, string) {
	plan := html.EscapeString(displayPlan(string(n.Plan)))
	until := ""
	if n.PeriodEnd != nil {
		until = n.PeriodEnd.UTC().Format("January 2, 2006")
	}

	var subject, text string
	switch n.Kind {
	case billing.NotifyPlanActivated:
		subject = fmt.Sprintf("Your %s plan is active", plan)
		text = fmt.Sprintf("Your ReportFox %s plan is now active.", plan)
		if until != "" {
			text += fmt.Sprintf(" The current billing period runs until %s.", until)
		}
	case billing.NotifySubscriptionCancelled:
		subject = "Your subscription was cancelled"
		text = "Your ReportFox subscription was cancelled."
		if until != "" {
			text += fmt.Sprintf(" You keep your %s features until %s.", plan, until)
		}
	case billing.NotifySubscriptionExpired:
		subject = "Your subscription has expired"
		text = "Your ReportFox subscription has expired and your account is back on the Free plan."
	case billing.NotifySubscriptionRenewed:
		subject = "Your subscription was renewed"
		text = fmt.Sprintf("Your ReportFox %s plan was renewed.", plan)
		if until != "" {
			text += fmt.Sprintf(" The new period ends on %s.", until)
		}
	case billing.NotifyPaymentApproved:
		subject = "Your payment was approved"
		text = fmt.Sprintf("Payment request #%d was approved and your %s plan is active.", n.PaymentRequestID, plan)
	case billing.NotifyPaymentRejected:
		subject = "Your payment request was rejected"
		text = fmt.Sprintf("Payment request #%d was rejected.", n.PaymentRequestID)
		if n.Reason != "" {
			text += " Reason: " + html.EscapeString(n.Reason)
		}
	default:
		subject = "Your ReportFox subscription changed"
		text = "Your ReportFox subscription changed."
	}
	return subject, "<p>" + text + "</p>"
}

func displayPlan(plan string) string {
	if plan == "" {
		return "Free"
	}
	return strings.ToUpper(plan[:1]) + plan[1:]
}
