package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReportFox/app/models"
	"github.com/ManuelReschke/ReportFox/app/repository"
	"github.com/ManuelReschke/ReportFox/internal/pkg/identity"
	"github.com/ManuelReschke/ReportFox/internal/pkg/usercontext"
)

// TokenVerifier turns a bearer token into a verified identity.
type TokenVerifier interface {
	Verify(raw string) (*identity.Identity, error)
}

// IdentityMiddleware resolves the bearer token to a local user. Requests
// without a token continue anonymously; an invalid token is rejected. Users
// are created on first sight.
func IdentityMiddleware(verifier TokenVerifier, users repository.UserRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := identity.BearerToken(c.Get(fiber.HeaderAuthorization))
		if raw == "" {
			usercontext.Set(c, usercontext.UserContext{})
			return c.Next()
		}

		id, err := verifier.Verify(raw)
		if err != nil {
			log.Debugf("[Identity] Rejected token: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "Invalid or expired token",
			})
		}

		user, created, err := users.FindOrCreateByIdentity(id.UID, id.Email, id.Name)
		if err != nil {
			log.Errorf("[Identity] Failed to load user for uid %s: %v", id.UID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "internal_server_error",
				"message": "User lookup failed",
			})
		}
		if created {
			log.Infof("[Identity] Created user %d for uid %s", user.ID, id.UID)
		}
		if user.Status != models.STATUS_ACTIVE {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "User inactive"})
		}

		usercontext.Set(c, usercontext.UserContext{
			UserID:      user.ID,
			ExternalUID: user.ExternalUID,
			Email:       user.Email,
			IsLoggedIn:  true,
			IsAdmin:     user.IsAdmin(),
		})
		return c.Next()
	}
}
