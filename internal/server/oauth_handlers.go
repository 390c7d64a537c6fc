package server

import (
	"roamio/internal/service"

	"github.com/gofiber/fiber/v2"
)

type qqCodeRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

type qqBindRequest struct {
	Code              string `json:"code"`
	State             string `json:"state"`
	Email             string `json:"email"`
	VerificationToken string `json:"verification_token"`
}

// QQLoginURL handles GET /api/auth/qq_login_url
// @Summary QQ authorization URL with a fresh state
// @Tags oauth
// @Produce json
// @Success 200 {object} service.LoginURLResult
// @Failure 400 {object} models.ErrorResponse
// @Router /auth/qq_login_url [get]
func (s *Server) QQLoginURL(c *fiber.Ctx) error {
	res, err := s.oauthService.LoginURL(c.UserContext())
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(res)
}

// QQCallback handles POST /api/auth/qq_callback
// @Summary Sign in with QQ
// @Description Unknown identities get a new account; email_optional is then true
// @Tags oauth
// @Accept json
// @Produce json
// @Param request body qqCodeRequest true "Code and state"
// @Success 200 {object} service.AuthResult
// @Failure 502 {object} models.ErrorResponse
// @Router /auth/qq_callback [post]
func (s *Server) QQCallback(c *fiber.Ctx) error {
	var req qqCodeRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	res, err := s.oauthService.Callback(c.UserContext(), req.Code, req.State)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(res)
}

// QQBind handles POST /api/auth/qq_bind
// @Summary Bind QQ to the account of a verified email
// @Tags oauth
// @Accept json
// @Produce json
// @Param request body qqBindRequest true "Code, state and verified email"
// @Success 200 {object} service.AuthResult
// @Failure 409 {object} models.ErrorResponse
// @Router /auth/qq_bind [post]
func (s *Server) QQBind(c *fiber.Ctx) error {
	var req qqBindRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	res, err := s.oauthService.Bind(c.UserContext(), service.QQBindInput{
		Code:              req.Code,
		State:             req.State,
		Email:             req.Email,
		VerificationToken: req.VerificationToken,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(res)
}

// QQBindExisting handles POST /api/auth/qq_bind_existing
// @Summary Bind QQ to the signed-in account
// @Tags oauth
// @Accept json
// @Produce json
// @Param request body qqCodeRequest true "Code and state"
// @Success 200 {object} models.UserView
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /auth/qq_bind_existing [post]
func (s *Server) QQBindExisting(c *fiber.Ctx) error {
	var req qqCodeRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	user, err := s.oauthService.BindExisting(c.UserContext(), viewerID(c), req.Code, req.State)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(user)
}

// QQUnbind handles DELETE /api/auth/qq_unbind
// @Summary Remove the QQ binding of the signed-in account
// @Tags oauth
// @Produce json
// @Success 200 {object} messageResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /auth/qq_unbind [delete]
func (s *Server) QQUnbind(c *fiber.Ctx) error {
	if err := s.oauthService.Unbind(c.UserContext(), viewerID(c)); err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(messageResponse{Message: "QQ account unbound"})
}
