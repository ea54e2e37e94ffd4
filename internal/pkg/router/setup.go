package router

import (
	"github.com/gofiber/fiber/v2"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

func InstallRouter(app *fiber.App, api *ApiRouter) {
	// Webhooks are registered first: they are signature-verified and must
	// not pass through identity or rate limiting.
	setup(app, NewWebhookRouter(), api)
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
