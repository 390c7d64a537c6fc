package server

import (
	"context"
	"errors"

	"roamio/internal/middleware"
	"roamio/internal/models"

	"github.com/gofiber/fiber/v2"
)

var errTokenRevoked = errors.New("token has been revoked")

// claimsLocal holds the *middleware.TokenClaims of the authenticated request.
const claimsLocal = "tokenClaims"

// authenticate validates the bearer access token and checks the revocation list.
func (s *Server) authenticate(c *fiber.Ctx) (*middleware.TokenClaims, error) {
	tokenString, err := middleware.BearerToken(c)
	if err != nil {
		return nil, err
	}
	claims, err := middleware.ParseToken(s.config.JWTSecret, tokenString, middleware.TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	revoked, err := s.authService.IsRevoked(c.UserContext(), claims.JTI)
	if err != nil {
		// Redis outages should not lock every user out.
		middleware.Logger.WarnContext(c.UserContext(), "revocation check failed", "error", err.Error())
	}
	if revoked {
		return nil, errTokenRevoked
	}
	return claims, nil
}

func setIdentity(c *fiber.Ctx, claims *middleware.TokenClaims) {
	c.Locals("userID", claims.UserID)
	c.Locals(claimsLocal, claims)
	// Sync to UserContext for logging and downstream services
	ctx := context.WithValue(c.UserContext(), middleware.UserIDKey, claims.UserID)
	c.SetUserContext(ctx)
}

// AuthRequired rejects requests without a valid, unrevoked access token with 401.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := s.authenticate(c)
		if err != nil {
			msg := "Invalid or expired token"
			switch {
			case errors.Is(err, middleware.ErrMissingToken):
				msg = "Authorization required"
			case errors.Is(err, errTokenRevoked):
				msg = "Token has been revoked"
			}
			return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthenticatedError(msg))
		}
		setIdentity(c, claims)
		return c.Next()
	}
}

// OptionalAuth identifies the caller when a valid token is present and lets
// anonymous requests through otherwise.
func (s *Server) OptionalAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if claims, err := s.authenticate(c); err == nil {
			setIdentity(c, claims)
		}
		return c.Next()
	}
}

// AdminRequired returns middleware that rejects non-admin users with 403.
// Must be placed after AuthRequired so that userID is available in locals.
func (s *Server) AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := c.Locals("userID").(uint)
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthenticatedError("Authorization required"))
		}

		admin, err := s.userRepo.IsAdmin(c.UserContext(), userID)
		if err != nil {
			return respondServiceError(c, err)
		}
		if !admin {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewUnauthorizedError("Admin access required"))
		}

		return c.Next()
	}
}

// viewerID is the authenticated caller, or 0 for anonymous requests.
func viewerID(c *fiber.Ctx) uint {
	id, _ := c.Locals("userID").(uint)
	return id
}

func tokenClaims(c *fiber.Ctx) *middleware.TokenClaims {
	claims, _ := c.Locals(claimsLocal).(*middleware.TokenClaims)
	return claims
}
