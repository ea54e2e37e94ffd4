package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ReportFox/app/models"
	"github.com/ManuelReschke/ReportFox/internal/pkg/billing"
	"github.com/ManuelReschke/ReportFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/ReportFox/internal/pkg/usercontext"
)

type planChangeBody struct {
	Plan                   string `json:"plan"`
	PaymentProvider        string `json:"payment_provider"`
	PaymentID              string `json:"payment_id"`
	ExternalSubscriptionID string `json:"external_subscription_id"`
}

// HandleListPlans returns the plan catalog.
func HandleListPlans(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"plans": entitlements.Catalog()})
}

// subscriptionView is the subscription plus what the evaluator says about it right now.
func subscriptionView(sub *models.Subscription, now time.Time) fiber.Map {
	snap := sub.Snapshot()
	return fiber.Map{
		"subscription": sub,
		"is_active":    entitlements.IsActive(snap, now),
		"is_expired":   entitlements.IsExpired(snap, now),
		"quotas":       entitlements.Quotas(snap),
	}
}

// HandleGetSubscription returns the caller's subscription, creating the Free
// trial on first access.
func HandleGetSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	svc := billingService()
	ctx, cancel := requestContext(c)
	defer cancel()

	sub, err := svc.Current(ctx, userCtx.UserID)
	if err != nil {
		return billingError(c, err)
	}
	return c.JSON(subscriptionView(sub, svc.Now()))
}

func HandleChangePlan(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var body planChangeBody
	if err := c.BodyParser(&body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
	}
	plan, ok := entitlements.ParsePlanTier(body.Plan)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid_plan", "unknown plan "+body.Plan)
	}

	svc := billingService()
	ctx, cancel := requestContext(c)
	defer cancel()

	sub, err := svc.ChangePlan(ctx, userCtx.UserID, billing.PlanChangeRequested{
		Plan:                   plan,
		PaymentProvider:        body.PaymentProvider,
		PaymentID:              body.PaymentID,
		ExternalSubscriptionID: body.ExternalSubscriptionID,
	})
	if err != nil {
		return billingError(c, err)
	}
	return c.JSON(subscriptionView(sub, svc.Now()))
}

func HandleCancelSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	svc := billingService()
	ctx, cancel := requestContext(c)
	defer cancel()

	sub, err := svc.Cancel(ctx, userCtx.UserID)
	if err != nil {
		return billingError(c, err)
	}
	return c.JSON(subscriptionView(sub, svc.Now()))
}
