package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReportFox/app/models"
	"github.com/ManuelReschke/ReportFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/ReportFox/internal/pkg/usercontext"
)

type reportBody struct {
	Title      string `json:"title"`
	TemplateID string `json:"template_id"`
}

// HandleCreateReport consumes one reports unit and records the report. The
// unit is taken with a guarded increment before the insert, so concurrent
// requests can never create more reports than the plan allows.
func HandleCreateReport(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var body reportBody
	if err := c.BodyParser(&body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
	}
	report := &models.Report{
		UserID:     userCtx.UserID,
		Title:      strings.TrimSpace(body.Title),
		TemplateID: strings.TrimSpace(body.TemplateID),
		Status:     models.ReportStatusDraft,
	}
	if err := report.Validate(); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "validation_failed", err.Error())
	}

	svc := billingService()
	ctx, cancel := requestContext(c)
	defer cancel()

	sub, err := svc.IncrementUsage(ctx, userCtx.UserID, entitlements.CounterReports, 1)
	if err != nil {
		return billingError(c, err)
	}

	if err := reportRepository().Create(report); err != nil {
		log.Errorf("[Billing] Report insert for user %d failed after consuming quota: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to create report")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"report": report,
		"quota":  entitlements.Quotas(sub.Snapshot())[entitlements.CounterReports],
	})
}

func HandleListReports(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	limit, offset := pagination(c)

	repo := reportRepository()
	reports, err := repo.ListByUserID(userCtx.UserID, offset, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load reports")
	}
	total, err := repo.CountByUserID(userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load reports")
	}
	return c.JSON(fiber.Map{"reports": reports, "total": total})
}
