package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ReportFox/internal/pkg/billing"
	"github.com/ManuelReschke/ReportFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/ReportFox/internal/pkg/usercontext"
)

type decisionBody struct {
	Reason string `json:"reason"`
}

type overrideBody struct {
	Plan     *string                  `json:"plan"`
	Features *entitlements.FeatureSet `json:"features"`
	Reason   string                   `json:"reason"`
}

type statusBody struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func HandleAdminListPaymentRequests(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	filter := billing.PaymentRequestFilter{
		Status: strings.ToLower(strings.TrimSpace(c.Query("status"))),
		Limit:  limit,
		Offset: offset,
	}
	if uid := c.QueryInt("user_id", 0); uid > 0 {
		filter.UserID = uint(uid)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	list, err := billingService().ListPaymentRequests(ctx, filter)
	if err != nil {
		return billingError(c, err)
	}
	return c.JSON(fiber.Map{"payment_requests": list})
}

// HandleAdminApprovePaymentRequest grants the requested plan. Approving a
// request twice answers 409 and changes nothing.
func HandleAdminApprovePaymentRequest(c *fiber.Ctx) error {
	id, ok := paramUint(c, "id")
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid payment request id")
	}
	admin := usercontext.GetUserContext(c)

	svc := billingService()
	ctx, cancel := requestContext(c)
	defer cancel()

	pr, sub, err := svc.ApprovePaymentRequest(ctx, id, admin.UserID)
	if err != nil {
		return billingError(c, err)
	}
	return c.JSON(fiber.Map{"payment_request": pr, "subscription": sub})
}

func HandleAdminRejectPaymentRequest(c *fiber.Ctx) error {
	id, ok := paramUint(c, "id")
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid payment request id")
	}
	var body decisionBody
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
		}
	}
	admin := usercontext.GetUserContext(c)

	ctx, cancel := requestContext(c)
	defer cancel()

	pr, err := billingService().RejectPaymentRequest(ctx, id, admin.UserID, body.Reason)
	if err != nil {
		return billingError(c, err)
	}
	return c.JSON(fiber.Map{"payment_request": pr})
}

// HandleAdminGetSubscription returns a user's subscription and its override history.
func HandleAdminGetSubscription(c *fiber.Ctx) error {
	userID, ok := paramUint(c, "userId")
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid user id")
	}

	svc := billingService()
	ctx, cancel := requestContext(c)
	defer cancel()

	sub, err := svc.Current(ctx, userID)
	if err != nil {
		return billingError(c, err)
	}
	overrides, err := svc.ListOverrides(ctx, userID)
	if err != nil {
		return billingError(c, err)
	}

	view := subscriptionView(sub, svc.Now())
	view["overrides"] = overrides
	return c.JSON(view)
}

func HandleAdminOverride(c *fiber.Ctx) error {
	userID, ok := paramUint(c, "userId")
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid user id")
	}
	var body overrideBody
	if err := c.BodyParser(&body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
	}

	in := billing.OverrideInput{Features: body.Features, Reason: body.Reason}
	if body.Plan != nil {
		plan, ok := entitlements.ParsePlanTier(*body.Plan)
		if !ok {
			return jsonError(c, fiber.StatusBadRequest, "invalid_plan", "unknown plan "+*body.Plan)
		}
		in.Plan = &plan
	}
	admin := usercontext.GetUserContext(c)

	svc := billingService()
	ctx, cancel := requestContext(c)
	defer cancel()

	sub, err := svc.Override(ctx, userID, admin.UserID, in)
	if err != nil {
		return billingError(c, err)
	}
	return c.JSON(subscriptionView(sub, svc.Now()))
}

// HandleAdminClearOverride takes the reason from the body or from ?reason=.
func HandleAdminClearOverride(c *fiber.Ctx) error {
	userID, ok := paramUint(c, "userId")
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid user id")
	}
	body := decisionBody{Reason: c.Query("reason")}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
		}
	}
	admin := usercontext.GetUserContext(c)

	svc := billingService()
	ctx, cancel := requestContext(c)
	defer cancel()

	sub, err := svc.ClearOverride(ctx, userID, admin.UserID, body.Reason)
	if err != nil {
		return billingError(c, err)
	}
	return c.JSON(subscriptionView(sub, svc.Now()))
}

func HandleAdminSetStatus(c *fiber.Ctx) error {
	userID, ok := paramUint(c, "userId")
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid user id")
	}
	var body statusBody
	if err := c.BodyParser(&body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
	}
	status, ok := entitlements.ParseStatus(body.Status)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "validation_failed", "unknown status "+body.Status)
	}
	admin := usercontext.GetUserContext(c)

	svc := billingService()
	ctx, cancel := requestContext(c)
	defer cancel()

	sub, err := svc.SetAdministrativeStatus(ctx, userID, admin.UserID, status, body.Reason)
	if err != nil {
		return billingError(c, err)
	}
	return c.JSON(subscriptionView(sub, svc.Now()))
}
