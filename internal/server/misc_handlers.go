package server

import "github.com/gofiber/fiber/v2"

// GetQuote handles GET /api/quote
// @Summary Travel quote of the day
// @Description Falls back to a fixed quote when the quote service is down
// @Tags misc
// @Produce json
// @Success 200 {object} quotes.Quote
// @Router /quote [get]
func (s *Server) GetQuote(c *fiber.Ctx) error {
	return c.JSON(s.quotes.Today(c.UserContext()))
}

// GetFeatureFlags returns configured feature flags and evaluated state for current user.
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	userID := viewerID(c)
	return c.JSON(fiber.Map{
		"raw":       s.featureFlags.Raw(),
		"evaluated": s.featureFlags.Snapshot(userID),
	})
}
