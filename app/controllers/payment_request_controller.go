package controllers

import (
	"errors"
	"mime/multipart"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/ReportFox/internal/pkg/billing"
	"github.com/ManuelReschke/ReportFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/ReportFox/internal/pkg/proofstore"
	"github.com/ManuelReschke/ReportFox/internal/pkg/usercontext"
)

type paymentRequestBody struct {
	Plan          string `json:"plan" form:"plan"`
	AmountCents   int64  `json:"amount_cents" form:"amount_cents"`
	Currency      string `json:"currency" form:"currency"`
	Method        string `json:"method" form:"method"`
	TransactionID string `json:"transaction_id" form:"transaction_id"`
	ProofRef      string `json:"proof_ref" form:"proof_ref"`
}

// HandleSubmitPaymentRequest accepts a manual payment claim as JSON or as a
// multipart form with an optional "proof" file.
func HandleSubmitPaymentRequest(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var body paymentRequestBody
	if err := c.BodyParser(&body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
	}

	plan, ok := entitlements.ParsePlanTier(body.Plan)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid_plan", "unknown plan "+body.Plan)
	}
	in := billing.PaymentRequestInput{
		Plan:          plan,
		AmountCents:   body.AmountCents,
		Currency:      body.Currency,
		Method:        body.Method,
		TransactionID: body.TransactionID,
		ProofRef:      body.ProofRef,
	}

	svc := billingService()
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := svc.CheckPaymentRequest(ctx, userCtx.UserID, in); err != nil {
		return billingError(c, err)
	}

	var uploaded string
	if fh := proofFile(c); fh != nil {
		store := proofStore()
		if store == nil {
			return jsonError(c, fiber.StatusServiceUnavailable, "proof_uploads_disabled", "proof uploads are not enabled, send a proof_ref instead")
		}
		contentType := fh.Header.Get(fiber.HeaderContentType)
		ext, err := proofstore.Extension(contentType, fh.Size)
		if err != nil {
			return jsonError(c, fiber.StatusBadRequest, "invalid_proof", err.Error())
		}
		f, err := fh.Open()
		if err != nil {
			return jsonError(c, fiber.StatusBadRequest, "invalid_proof", "proof file could not be read")
		}
		defer f.Close()

		key := proofstore.ObjectKey(userCtx.UserID, uuid.NewString(), ext, svc.Now())
		if err := store.Put(ctx, key, contentType, f, fh.Size); err != nil {
			log.Errorf("[Billing] Proof upload for user %d failed: %v", userCtx.UserID, err)
			return jsonError(c, fiber.StatusBadGateway, "proof_upload_failed", "proof could not be stored")
		}
		uploaded = key
		in.ProofRef = key
	}

	pr, err := svc.SubmitPaymentRequest(ctx, userCtx.UserID, in)
	if err != nil {
		if uploaded != "" {
			if delErr := proofStore().Delete(ctx, uploaded); delErr != nil {
				log.Warnf("[Billing] Orphaned proof %s of user %d: %v", uploaded, userCtx.UserID, delErr)
			}
		}
		if isValidationError(err) {
			return jsonError(c, fiber.StatusBadRequest, "validation_failed", err.Error())
		}
		return billingError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"payment_request": pr})
}

// HandleListOwnPaymentRequests lists the caller's requests, newest first.
func HandleListOwnPaymentRequests(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	limit, offset := pagination(c)

	ctx, cancel := requestContext(c)
	defer cancel()

	list, err := billingService().ListPaymentRequests(ctx, billing.PaymentRequestFilter{
		UserID: userCtx.UserID,
		Status: strings.ToLower(strings.TrimSpace(c.Query("status"))),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return billingError(c, err)
	}
	return c.JSON(fiber.Map{"payment_requests": list})
}

func proofFile(c *fiber.Ctx) *multipart.FileHeader {
	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		return nil
	}
	form, err := c.MultipartForm()
	if err != nil || len(form.File["proof"]) == 0 {
		return nil
	}
	return form.File["proof"][0]
}

func isValidationError(err error) bool {
	var ve validator.ValidationErrors
	return errors.As(err, &ve)
}
