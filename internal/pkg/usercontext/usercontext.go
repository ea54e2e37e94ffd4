package usercontext

import "github.com/gofiber/fiber/v2"

// UserContext is the verified caller of a request, resolved to a local user.
type UserContext struct {
	UserID      uint   `json:"user_id"`
	ExternalUID string `json:"external_uid"`
	Email       string `json:"email"`
	IsLoggedIn  bool   `json:"is_logged_in"`
	IsAdmin     bool   `json:"is_admin"`
}

func Set(c *fiber.Ctx, uc UserContext) {
	c.Locals(KeyUserContext, uc)
}

// GetUserContext returns the anonymous context when none was set.
func GetUserContext(c *fiber.Ctx) UserContext {
	if uc, ok := c.Locals(KeyUserContext).(UserContext); ok {
		return uc
	}
	return UserContext{}
}

func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// GetUserID returns 0 for anonymous callers.
func GetUserID(c *fiber.Ctx) uint {
	return GetUserContext(c).UserID
}
