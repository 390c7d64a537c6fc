package server

import (
	"roamio/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ListPages handles GET /api/pages
// @Summary List discoverable pages
// @Description Pages in the trip tree, most liked first
// @Tags pages
// @Produce json
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Offset"
// @Success 200 {object} pagedResponse{results=[]models.PageView}
// @Router /pages [get]
func (s *Server) ListPages(c *fiber.Ctx) error {
	p := parsePagination(c, defaultPaginationLimit)
	pages, total, err := s.pageService.List(c.UserContext(), p.Limit, p.Offset)
	if err != nil {
		return respondServiceError(c, err)
	}
	return paged(c, pages, total, p)
}

// GetPage handles GET /api/pages/:page and counts one view.
// @Summary Get a page
// @Tags pages
// @Produce json
// @Param page path string true "Page key"
// @Success 200 {object} models.PageView
// @Failure 400 {object} models.ErrorResponse
// @Router /pages/{page} [get]
func (s *Server) GetPage(c *fiber.Ctx) error {
	view, err := s.pageService.Get(c.UserContext(), c.Params("page"), viewerID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(view)
}

// GetPageStats handles GET /api/pages/:page/stats
// @Summary Get page counters without counting a view
// @Tags pages
// @Produce json
// @Param page path string true "Page key"
// @Success 200 {object} models.PageView
// @Router /pages/{page}/stats [get]
func (s *Server) GetPageStats(c *fiber.Ctx) error {
	view, err := s.pageService.Stats(c.UserContext(), c.Params("page"), viewerID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(view)
}

// GetPageComments handles GET /api/pages/:page/comments
// @Summary List the threads of a page
// @Tags pages
// @Produce json
// @Param page path string true "Page key"
// @Success 200 {object} pagedResponse{results=[]models.CommentView}
// @Router /pages/{page}/comments [get]
func (s *Server) GetPageComments(c *fiber.Ctx) error {
	p := parsePagination(c, defaultPaginationLimit)
	comments, total, err := s.commentService.ListComments(c.UserContext(), service.ListCommentsInput{
		ViewerID: viewerID(c),
		Page:     c.Params("page"),
		Limit:    p.Limit,
		Offset:   p.Offset,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return paged(c, comments, total, p)
}

// LikePage handles POST /api/pages/:page/like
// @Summary Like a page
// @Tags pages
// @Produce json
// @Param page path string true "Page key"
// @Success 200 {object} models.PageView
// @Failure 429 {object} models.ErrorResponse
// @Router /pages/{page}/like [post]
func (s *Server) LikePage(c *fiber.Ctx) error {
	view, err := s.pageService.Like(c.UserContext(), c.Params("page"), viewerID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(view)
}

// CheckInPage handles POST /api/pages/:page/checkin
// @Summary Mark a page as visited
// @Tags pages
// @Produce json
// @Param page path string true "Page key"
// @Success 200 {object} models.PageView
// @Router /pages/{page}/checkin [post]
func (s *Server) CheckInPage(c *fiber.Ctx) error {
	view, err := s.pageService.CheckIn(c.UserContext(), c.Params("page"), viewerID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(view)
}
