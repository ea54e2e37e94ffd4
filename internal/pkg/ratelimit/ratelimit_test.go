package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ReportFox/internal/pkg/usercontext"
)

func TestLimiterCountsPerUser(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if c.Get("X-User") == "1" {
			usercontext.Set(c, usercontext.UserContext{UserID: 1, IsLoggedIn: true})
		}
		return c.Next()
	})
	app.Use(New(2, time.Minute, nil))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	do := func(user string) int {
		req := httptest.NewRequest("GET", "/", nil)
		if user != "" {
			req.Header.Set("X-User", user)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusNoContent, do("1"))
	assert.Equal(t, fiber.StatusNoContent, do("1"))
	assert.Equal(t, fiber.StatusTooManyRequests, do("1"))

	// Anonymous callers have their own bucket.
	assert.Equal(t, fiber.StatusNoContent, do(""))
}
