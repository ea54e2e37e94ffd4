package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReportFox/app/models"
	"github.com/ManuelReschke/ReportFox/internal/pkg/billing"
	"github.com/ManuelReschke/ReportFox/internal/pkg/env"
	"github.com/ManuelReschke/ReportFox/internal/pkg/metrics"
)

func HandleLemonSqueezyWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get(billing.LemonSqueezySignatureHeader)
	secret := env.GetEnv("LEMONSQUEEZY_WEBHOOK_SECRET", "")

	if !billing.VerifyLemonSqueezySignature(rawBody, signature, secret) {
		metrics.RecordWebhook(models.PaymentProviderLemonSqueezy, billing.WebhookResultSignatureInvalid)
		log.Warnf("[Webhook] Rejected lemon_squeezy delivery %q with invalid signature", c.Get(billing.LemonSqueezyEventHeader))
		return jsonError(c, fiber.StatusUnauthorized, "invalid_signature", "webhook signature could not be verified")
	}

	ev, parseErr := billing.ParseLemonSqueezyWebhook(rawBody)
	return processWebhook(c, models.PaymentProviderLemonSqueezy, rawBody, ev, parseErr)
}

func HandlePayPalWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	headers := billing.PayPalHeaders{
		TransmissionID:   c.Get(billing.PayPalTransmissionIDHeader),
		TransmissionTime: c.Get(billing.PayPalTransmissionTimeHeader),
		TransmissionSig:  c.Get(billing.PayPalTransmissionSigHeader),
		CertURL:          c.Get(billing.PayPalCertURLHeader),
		AuthAlgo:         c.Get(billing.PayPalAuthAlgoHeader),
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := payPalVerifier().Verify(ctx, headers, rawBody); err != nil {
		metrics.RecordWebhook(models.PaymentProviderPayPal, billing.WebhookResultSignatureInvalid)
		log.Warnf("[Webhook] Rejected paypal delivery %s: %v", headers.TransmissionID, err)
		return jsonError(c, fiber.StatusUnauthorized, "invalid_signature", "webhook signature could not be verified")
	}

	ev, parseErr := billing.ParsePayPalWebhook(rawBody)
	return processWebhook(c, models.PaymentProviderPayPal, rawBody, ev, parseErr)
}

// processWebhook answers 2xx only once the delivery is durably applied or
// known as a duplicate. Anything the provider should redeliver gets 5xx.
func processWebhook(c *fiber.Ctx, provider string, rawBody []byte, ev *billing.ProviderEvent, parseErr error) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	out, err := billingService().ProcessWebhook(ctx, provider, rawBody, ev, parseErr)
	if err != nil {
		log.Errorf("[Webhook] %s delivery failed: %v", provider, err)
		switch {
		case errors.Is(err, billing.ErrInvalidEvent):
			return jsonError(c, fiber.StatusBadRequest, "invalid_payload", err.Error())
		case errors.Is(err, billing.ErrInvalidPlan):
			return jsonError(c, fiber.StatusUnprocessableEntity, "unknown_plan", err.Error())
		case errors.Is(err, billing.ErrNotFound):
			return jsonError(c, fiber.StatusNotFound, "subscription_not_found", err.Error())
		default:
			return jsonError(c, fiber.StatusInternalServerError, "webhook_processing_failed", "delivery could not be applied")
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ok":        true,
		"duplicate": out.Duplicate,
		"applied":   out.Applied,
	})
}
