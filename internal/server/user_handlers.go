package server

import (
	"roamio/internal/service"

	"github.com/gofiber/fiber/v2"
)

type updateProfileRequest struct {
	Username         *string `json:"username"`
	Bio              *string `json:"bio"`
	Tags             *string `json:"tags"`
	VisitedCountries *string `json:"visited_countries"`
}

type bindEmailRequest struct {
	Email             string `json:"email"`
	VerificationToken string `json:"verification_token"`
}

type avatarResponse struct {
	Avatar string `json:"avatar"`
}

// GetUser handles GET /api/users/:id
// @Summary Get a user profile
// @Description Email and QQ binding are shown to the user and admins only
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} models.UserView
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{id} [get]
func (s *Server) GetUser(c *fiber.Ctx) error {
	id, err := s.parseID(c)
	if err != nil {
		return nil
	}
	user, err := s.userService.GetProfile(c.UserContext(), id, viewerID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(user)
}

// GetUserStats handles GET /api/users/:id/stats
// @Summary Trip and comment counters with the level they give
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} models.UserStats
// @Router /users/{id}/stats [get]
func (s *Server) GetUserStats(c *fiber.Ctx) error {
	id, err := s.parseID(c)
	if err != nil {
		return nil
	}
	stats, err := s.userService.Stats(c.UserContext(), id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(stats)
}

// UploadAvatar handles POST /api/users/:id/upload_avatar
// @Summary Replace a user's avatar
// @Tags users
// @Accept mpfd
// @Produce json
// @Param id path int true "User ID"
// @Param avatar formData file true "Image"
// @Success 200 {object} avatarResponse
// @Failure 403 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /users/{id}/upload_avatar [post]
func (s *Server) UploadAvatar(c *fiber.Ctx) error {
	id, err := s.parseID(c)
	if err != nil {
		return nil
	}
	requester := viewerID(c)
	file, err := formUpload(c, "avatar", requester)
	if err != nil {
		return respondServiceError(c, err)
	}
	if file == nil {
		return respondServiceError(c, errNoFile)
	}
	url, err := s.userService.UploadAvatar(c.UserContext(), requester, id, *file)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(avatarResponse{Avatar: url})
}

// UpdateProfile handles PATCH /api/users/update_profile
// @Summary Edit the caller's profile
// @Tags users
// @Accept json
// @Produce json
// @Param request body updateProfileRequest true "Changes"
// @Success 200 {object} models.UserView
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /users/update_profile [patch]
func (s *Server) UpdateProfile(c *fiber.Ctx) error {
	var req updateProfileRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	user, err := s.userService.UpdateProfile(c.UserContext(), service.UpdateProfileInput{
		UserID:           viewerID(c),
		Username:         req.Username,
		Bio:              req.Bio,
		Tags:             req.Tags,
		VisitedCountries: req.VisitedCountries,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(user)
}

// BindEmail handles POST /api/users/bind_email
// @Summary Set the caller's email with a bind_email verification token
// @Tags users
// @Accept json
// @Produce json
// @Param request body bindEmailRequest true "Email"
// @Success 200 {object} models.UserView
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /users/bind_email [post]
func (s *Server) BindEmail(c *fiber.Ctx) error {
	var req bindEmailRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	user, err := s.userService.BindEmail(c.UserContext(), service.BindEmailInput{
		UserID:            viewerID(c),
		Email:             req.Email,
		VerificationToken: req.VerificationToken,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(user)
}
