package server

import (
	"encoding/json"

	"roamio/internal/models"
	"roamio/internal/service"

	"github.com/gofiber/fiber/v2"
)

type createTripRequest struct {
	Slug            string                `json:"slug"`
	Title           string                `json:"title"`
	Description     string                `json:"description"`
	Icon            string                `json:"icon"`
	StartDate       string                `json:"start_date"`
	EndDate         string                `json:"end_date"`
	Status          models.TripStatus     `json:"status"`
	Visibility      models.TripVisibility `json:"visibility"`
	Config          json.RawMessage       `json:"config" swaggertype:"object"`
	Overview        json.RawMessage       `json:"overview" swaggertype:"object"`
	ThemeColor      string                `json:"theme_color"`
	BackgroundMusic string                `json:"background_music"`
}

// updateTripRequest changes only the fields present in the body.
type updateTripRequest struct {
	Title           *string                `json:"title"`
	Description     *string                `json:"description"`
	Icon            *string                `json:"icon"`
	StartDate       *string                `json:"start_date"`
	EndDate         *string                `json:"end_date"`
	Status          *models.TripStatus     `json:"status"`
	Visibility      *models.TripVisibility `json:"visibility"`
	Config          json.RawMessage        `json:"config" swaggertype:"object"`
	Overview        json.RawMessage        `json:"overview" swaggertype:"object"`
	ThemeColor      *string                `json:"theme_color"`
	BackgroundMusic *string                `json:"background_music"`
}

// CreateTrip handles POST /api/trips
// @Summary Create a trip plan
// @Description The slug is generated from the title when omitted
// @Tags trips
// @Accept json
// @Produce json
// @Param request body createTripRequest true "Trip"
// @Success 201 {object} models.TripView
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /trips [post]
func (s *Server) CreateTrip(c *fiber.Ctx) error {
	var req createTripRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	start, err := parseDate(req.StartDate, "start_date")
	if err != nil {
		return respondServiceError(c, err)
	}
	end, err := parseDate(req.EndDate, "end_date")
	if err != nil {
		return respondServiceError(c, err)
	}

	trip, err := s.tripService.CreateTrip(c.UserContext(), service.CreateTripInput{
		UserID:          viewerID(c),
		Slug:            req.Slug,
		Title:           req.Title,
		Description:     req.Description,
		Icon:            req.Icon,
		StartDate:       start,
		EndDate:         end,
		Status:          req.Status,
		Visibility:      req.Visibility,
		Config:          req.Config,
		Overview:        req.Overview,
		ThemeColor:      req.ThemeColor,
		BackgroundMusic: req.BackgroundMusic,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(trip)
}

// ListTrips handles GET /api/trips
// @Summary List readable trips
// @Description Public trips plus the caller's own
// @Tags trips
// @Produce json
// @Param author query int false "Author ID"
// @Param status query string false "draft or published"
// @Param search query string false "Title search"
// @Success 200 {object} pagedResponse{results=[]models.TripView}
// @Router /trips [get]
func (s *Server) ListTrips(c *fiber.Ctx) error {
	p := parsePagination(c, defaultPaginationLimit)
	trips, total, err := s.tripService.ListTrips(c.UserContext(), service.ListTripsInput{
		ViewerID: viewerID(c),
		AuthorID: uint(c.QueryInt("author", 0)),
		Status:   models.TripStatus(c.Query("status")),
		Search:   c.Query("search"),
		Limit:    p.Limit,
		Offset:   p.Offset,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return paged(c, trips, total, p)
}

// MyTrips handles GET /api/trips/my_trips
// @Summary List every trip of the caller
// @Tags trips
// @Produce json
// @Success 200 {array} models.TripView
// @Security BearerAuth
// @Router /trips/my_trips [get]
func (s *Server) MyTrips(c *fiber.Ctx) error {
	trips, err := s.tripService.MyTrips(c.UserContext(), viewerID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(trips)
}

// GetTrip handles GET /api/trips/:slug
// @Summary Get a trip
// @Description Private trips answer 404 to everyone but the author and admins
// @Tags trips
// @Produce json
// @Param slug path string true "Trip slug"
// @Success 200 {object} models.TripView
// @Failure 404 {object} models.ErrorResponse
// @Router /trips/{slug} [get]
func (s *Server) GetTrip(c *fiber.Ctx) error {
	trip, err := s.tripService.GetTrip(c.UserContext(), c.Params("slug"), viewerID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(trip)
}

// UpdateTrip handles PATCH /api/trips/:slug
// @Summary Edit a trip
// @Tags trips
// @Accept json
// @Produce json
// @Param slug path string true "Trip slug"
// @Param request body updateTripRequest true "Changes"
// @Success 200 {object} models.TripView
// @Failure 403 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /trips/{slug} [patch]
func (s *Server) UpdateTrip(c *fiber.Ctx) error {
	var req updateTripRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	in := service.UpdateTripInput{
		UserID:          viewerID(c),
		Slug:            c.Params("slug"),
		Title:           req.Title,
		Description:     req.Description,
		Icon:            req.Icon,
		Status:          req.Status,
		Visibility:      req.Visibility,
		Config:          req.Config,
		Overview:        req.Overview,
		ThemeColor:      req.ThemeColor,
		BackgroundMusic: req.BackgroundMusic,
	}
	var err error
	if req.StartDate != nil {
		if in.StartDate, err = parseDate(*req.StartDate, "start_date"); err != nil {
			return respondServiceError(c, err)
		}
	}
	if req.EndDate != nil {
		if in.EndDate, err = parseDate(*req.EndDate, "end_date"); err != nil {
			return respondServiceError(c, err)
		}
	}

	trip, err := s.tripService.UpdateTrip(c.UserContext(), in)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(trip)
}

// DeleteTrip handles DELETE /api/trips/:slug
// @Summary Delete a trip with its comments and statistics
// @Tags trips
// @Param slug path string true "Trip slug"
// @Success 204
// @Security BearerAuth
// @Router /trips/{slug} [delete]
func (s *Server) DeleteTrip(c *fiber.Ctx) error {
	if err := s.tripService.DeleteTrip(c.UserContext(), viewerID(c), c.Params("slug")); err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// CloneTrip handles POST /api/trips/:slug/clone
// @Summary Copy a readable trip into a private draft of the caller
// @Tags trips
// @Produce json
// @Param slug path string true "Trip slug"
// @Success 201 {object} models.TripView
// @Security BearerAuth
// @Router /trips/{slug}/clone [post]
func (s *Server) CloneTrip(c *fiber.Ctx) error {
	trip, err := s.tripService.CloneTrip(c.UserContext(), viewerID(c), c.Params("slug"))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(trip)
}

// AddTripToTree handles POST /api/trips/:slug/add_to_tree
// @Summary List a public trip in the trip tree
// @Description 201 when newly listed, 200 when it already was
// @Tags trips
// @Produce json
// @Param slug path string true "Trip slug"
// @Success 200 {object} models.TripView
// @Success 201 {object} models.TripView
// @Failure 403 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /trips/{slug}/add_to_tree [post]
func (s *Server) AddTripToTree(c *fiber.Ctx) error {
	trip, created, err := s.tripService.AttachToTree(c.UserContext(), viewerID(c), c.Params("slug"))
	if err != nil {
		return respondServiceError(c, err)
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(trip)
}

// RemoveTripFromTree handles POST /api/trips/:slug/remove_from_tree
// @Summary Remove a trip from the trip tree, keeping its counters
// @Tags trips
// @Produce json
// @Param slug path string true "Trip slug"
// @Success 200 {object} models.TripView
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /trips/{slug}/remove_from_tree [post]
func (s *Server) RemoveTripFromTree(c *fiber.Ctx) error {
	trip, err := s.tripService.DetachFromTree(c.UserContext(), viewerID(c), c.Params("slug"))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(trip)
}
