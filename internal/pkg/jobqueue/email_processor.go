package jobqueue

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReportFox/internal/pkg/mail"
)

// EmailHandler returns the send_email job handler.
func EmailHandler(sender mail.Sender) Handler {
	return func(ctx context.Context, job *Job) error {
		payload, err := SendEmailJobPayloadFromMap(job.Payload)
		if err != nil {
			return fmt.Errorf("invalid send_email payload: %w", err)
		}
		if payload.To == "" {
			return fmt.Errorf("send_email job %s has no recipient", job.ID)
		}

		if err := sender.Send(payload.To, payload.Subject, payload.HTMLBody); err != nil {
			return fmt.Errorf("send %s email to user %d: %w", payload.Kind, payload.UserID, err)
		}
		log.Infof("[JobQueue] Sent %s email to user %d", payload.Kind, payload.UserID)
		return nil
	}
}
