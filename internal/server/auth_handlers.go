package server

import (
	"roamio/internal/models"
	"roamio/internal/service"

	"github.com/gofiber/fiber/v2"
)

type registerRequest struct {
	Username          string `json:"username"`
	Email             string `json:"email"`
	Password          string `json:"password"`
	VerificationToken string `json:"verification_token"`
}

// loginRequest takes the identifier as username, email or identifier.
type loginRequest struct {
	Identifier string `json:"identifier"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

func (r loginRequest) identifier() string {
	for _, v := range []string{r.Identifier, r.Username, r.Email} {
		if v != "" {
			return v
		}
	}
	return ""
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type sendCodeRequest struct {
	Email string                  `json:"email"`
	Type  models.VerificationType `json:"type"`
}

type verifyCodeRequest struct {
	Email string                  `json:"email"`
	Code  string                  `json:"code"`
	Type  models.VerificationType `json:"type"`
}

type resetPasswordRequest struct {
	Email             string `json:"email"`
	VerificationToken string `json:"verification_token"`
	NewPassword       string `json:"new_password"`
}

// Register handles POST /api/auth/register
// @Summary Register an account
// @Description Email is optional; a verification_token proves it when given
// @Tags auth
// @Accept json
// @Produce json
// @Param request body registerRequest true "Registration"
// @Success 201 {object} service.AuthResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /auth/register [post]
func (s *Server) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	res, err := s.authService.Register(c.UserContext(), service.RegisterInput{
		Username:          req.Username,
		Email:             req.Email,
		Password:          req.Password,
		VerificationToken: req.VerificationToken,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// Login handles POST /api/auth/login
// @Summary Log in with username or email
// @Tags auth
// @Accept json
// @Produce json
// @Param request body loginRequest true "Credentials"
// @Success 200 {object} service.AuthResult
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	res, err := s.authService.Login(c.UserContext(), req.identifier(), req.Password)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(res)
}

// Refresh handles POST /api/auth/refresh
// @Summary Rotate a refresh token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body refreshRequest true "Refresh token"
// @Success 200 {object} service.TokenPair
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/refresh [post]
func (s *Server) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	pair, err := s.authService.Refresh(c.UserContext(), req.Refresh)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(pair)
}

// Logout handles POST /api/auth/logout
// @Summary Revoke the access token and, when given, the refresh token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body refreshRequest false "Refresh token"
// @Success 200 {object} messageResponse
// @Security BearerAuth
// @Router /auth/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	var req refreshRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return nil
		}
	}
	if err := s.authService.Logout(c.UserContext(), tokenClaims(c), req.Refresh); err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(messageResponse{Message: "Logged out"})
}

// Me handles GET /api/auth/me
// @Summary Current user
// @Tags auth
// @Produce json
// @Success 200 {object} models.UserView
// @Security BearerAuth
// @Router /auth/me [get]
func (s *Server) Me(c *fiber.Ctx) error {
	me, err := s.authService.Me(c.UserContext(), viewerID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(me)
}

// SendVerificationCode handles POST /api/auth/send_verification_code
// @Summary Mail a six digit code
// @Description Limited to 3 per 5 minutes per email and 10 per hour per IP
// @Tags auth
// @Accept json
// @Produce json
// @Param request body sendCodeRequest true "Email and code type"
// @Success 200 {object} service.SendCodeResult
// @Failure 429 {object} models.ErrorResponse
// @Router /auth/send_verification_code [post]
func (s *Server) SendVerificationCode(c *fiber.Ctx) error {
	var req sendCodeRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	res, err := s.verificationService.SendCode(c.UserContext(), service.SendCodeInput{
		Email:  req.Email,
		Type:   req.Type,
		IP:     c.IP(),
		UserID: viewerID(c),
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(res)
}

// VerifyCode handles POST /api/auth/verify_code
// @Summary Exchange a code for a one-time verification token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body verifyCodeRequest true "Code"
// @Success 200 {object} service.VerifyCodeResult
// @Failure 400 {object} models.ErrorResponse
// @Router /auth/verify_code [post]
func (s *Server) VerifyCode(c *fiber.Ctx) error {
	var req verifyCodeRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	res, err := s.verificationService.VerifyCode(c.UserContext(), req.Email, req.Code, req.Type)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(res)
}

// ResetPassword handles POST /api/auth/reset_password
// @Summary Set a new password with a reset_password verification token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body resetPasswordRequest true "Reset"
// @Success 200 {object} messageResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /auth/reset_password [post]
func (s *Server) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	err := s.authService.ResetPassword(c.UserContext(), service.ResetPasswordInput{
		Email:             req.Email,
		VerificationToken: req.VerificationToken,
		NewPassword:       req.NewPassword,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(messageResponse{Message: "Password has been reset"})
}
