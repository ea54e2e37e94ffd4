package controllers

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReportFox/app/repository"
	"github.com/ManuelReschke/ReportFox/internal/pkg/billing"
	"github.com/ManuelReschke/ReportFox/internal/pkg/database"
	"github.com/ManuelReschke/ReportFox/internal/pkg/proofstore"
)

const requestTimeout = 15 * time.Second

// Dependencies are the collaborators shared by the handlers. Nil fields fall
// back to instances built over the global database and environment.
type Dependencies struct {
	Billing *billing.Service
	Reports repository.ReportRepository
	Proofs  proofstore.Store
	PayPal  *billing.PayPalVerifier
}

var (
	depsMu sync.RWMutex
	deps   Dependencies
)

// Configure installs the handler dependencies. Call it before serving.
func Configure(d Dependencies) {
	depsMu.Lock()
	deps = d
	depsMu.Unlock()
}

func current() Dependencies {
	depsMu.RLock()
	defer depsMu.RUnlock()
	return deps
}

func billingService() *billing.Service {
	if svc := current().Billing; svc != nil {
		return svc
	}
	return billing.NewServiceFromDB(database.GetDB())
}

func reportRepository() repository.ReportRepository {
	if repo := current().Reports; repo != nil {
		return repo
	}
	return repository.GetGlobalFactory().GetReportRepository()
}

func proofStore() proofstore.Store {
	return current().Proofs
}

func payPalVerifier() *billing.PayPalVerifier {
	if v := current().PayPal; v != nil {
		return v
	}
	depsMu.Lock()
	defer depsMu.Unlock()
	if deps.PayPal == nil {
		deps.PayPal = billing.NewPayPalVerifierFromEnv()
	}
	return deps.PayPal
}

func requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), requestTimeout)
}

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

// billingError maps engine errors to the JSON error shape.
func billingError(c *fiber.Ctx, err error) error {
	var quota *billing.QuotaExceededError
	if errors.As(err, &quota) {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":   "quota_exceeded",
			"message": err.Error(),
			"counter": quota.Counter,
			"used":    quota.Used,
			"limit":   quota.Limit,
		})
	}
	var downgrade *billing.DowngradeBlockedError
	if errors.As(err, &downgrade) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":   "downgrade_blocked",
			"message": err.Error(),
			"counter": downgrade.Counter,
			"used":    downgrade.Used,
			"limit":   downgrade.Limit,
		})
	}

	switch {
	case errors.Is(err, billing.ErrNotFound):
		return jsonError(c, fiber.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, billing.ErrInvalidTransition):
		return jsonError(c, fiber.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, billing.ErrConcurrentModification):
		return jsonError(c, fiber.StatusConflict, "retry", "the subscription changed concurrently, please retry")
	case errors.Is(err, billing.ErrPendingRequestExists):
		return jsonError(c, fiber.StatusConflict, "pending_request_exists", err.Error())
	case errors.Is(err, billing.ErrSignatureInvalid):
		return jsonError(c, fiber.StatusUnauthorized, "invalid_signature", "webhook signature could not be verified")
	case errors.Is(err, billing.ErrPaymentRequired):
		return jsonError(c, fiber.StatusPaymentRequired, "payment_required", err.Error())
	case errors.Is(err, billing.ErrInvalidPlan):
		return jsonError(c, fiber.StatusBadRequest, "invalid_plan", err.Error())
	case errors.Is(err, billing.ErrInvalidAmount):
		return jsonError(c, fiber.StatusBadRequest, "invalid_amount", err.Error())
	case errors.Is(err, billing.ErrInvalidEvent):
		return jsonError(c, fiber.StatusBadRequest, "validation_failed", err.Error())
	}

	log.Errorf("[Billing] %s %s failed: %v", c.Method(), c.Path(), err)
	return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Internal server error")
}

func paramUint(c *fiber.Ctx, name string) (uint, bool) {
	n, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

// pagination reads ?limit= and ?offset= with a capped page size.
func pagination(c *fiber.Ctx) (limit, offset int) {
	limit = c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset = c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
