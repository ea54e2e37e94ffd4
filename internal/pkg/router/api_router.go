package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ReportFox/app/controllers"
	"github.com/ManuelReschke/ReportFox/app/repository"
	"github.com/ManuelReschke/ReportFox/internal/pkg/middleware"
	"github.com/ManuelReschke/ReportFox/internal/pkg/ratelimit"
)

const (
	apiRequestsPerMinute   = 120
	writeRequestsPerMinute = 20
	rateLimitWindow        = time.Minute
)

type ApiRouter struct {
	verifier middleware.TokenVerifier
	users    repository.UserRepository
	limits   fiber.Storage
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api",
		middleware.IdentityMiddleware(h.verifier, h.users),
		ratelimit.New(apiRequestsPerMinute, rateLimitWindow, h.limits),
	)
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")
	v1.Get("/plans", controllers.HandleListPlans)

	// Payment claims and report creation get a tighter budget.
	writes := ratelimit.New(writeRequestsPerMinute, rateLimitWindow, h.limits)

	auth := middleware.RequireAuth
	v1.Get("/subscription", auth, controllers.HandleGetSubscription)
	v1.Put("/subscription/plan", auth, controllers.HandleChangePlan)
	v1.Put("/subscription/cancel", auth, controllers.HandleCancelSubscription)
	v1.Get("/payment-requests", auth, controllers.HandleListOwnPaymentRequests)
	v1.Post("/payment-requests", auth, writes, controllers.HandleSubmitPaymentRequest)
	v1.Get("/reports", auth, controllers.HandleListReports)
	v1.Post("/reports", auth, writes, controllers.HandleCreateReport)

	admin := middleware.RequireAdmin
	v1.Put("/payment-requests/:id/approve", admin, controllers.HandleAdminApprovePaymentRequest)
	v1.Put("/payment-requests/:id/reject", admin, controllers.HandleAdminRejectPaymentRequest)
	v1.Get("/admin/payment-requests", admin, controllers.HandleAdminListPaymentRequests)
	v1.Get("/admin/subscriptions/:userId", admin, controllers.HandleAdminGetSubscription)
	v1.Put("/admin/subscriptions/:userId/override", admin, controllers.HandleAdminOverride)
	v1.Delete("/admin/subscriptions/:userId/override", admin, controllers.HandleAdminClearOverride)
	v1.Put("/admin/subscriptions/:userId/status", admin, controllers.HandleAdminSetStatus)
}

// NewApiRouter builds the JSON API. A nil limits store keeps rate-limit
// counters in process memory.
func NewApiRouter(verifier middleware.TokenVerifier, users repository.UserRepository, limits fiber.Storage) *ApiRouter {
	return &ApiRouter{verifier: verifier, users: users, limits: limits}
}
