package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ReportFox/app/controllers"
)

type WebhookRouter struct {
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	webhooks := app.Group("/webhooks")
	webhooks.Post("/lemonsqueezy", controllers.HandleLemonSqueezyWebhook)
	webhooks.Post("/paypal", controllers.HandlePayPalWebhook)
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{}
}
