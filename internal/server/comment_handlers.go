package server

import (
	"roamio/internal/service"

	"github.com/gofiber/fiber/v2"
)

// createCommentRequest is accepted as JSON or multipart form. Multipart
// requests may carry "image" and "video" files.
type createCommentRequest struct {
	Page     string `json:"page" form:"page"`
	ParentID uint   `json:"parent_id" form:"parent_id"`
	Content  string `json:"content" form:"content"`
}

type updateCommentRequest struct {
	Content *string `json:"content" form:"content"`
}

// attachments reads the optional image and video files of a comment request.
func attachments(c *fiber.Ctx, userID uint) (image, video *service.UploadMediaInput, err error) {
	if image, err = formUpload(c, "image", userID); err != nil {
		return nil, nil, err
	}
	if video, err = formUpload(c, "video", userID); err != nil {
		return nil, nil, err
	}
	return image, video, nil
}

// ListComments handles GET /api/comments
// @Summary List comments
// @Description Top-level comments filtered by page (or trip slug) and author
// @Tags comments
// @Produce json
// @Param page query string false "Page key"
// @Param trip query string false "Trip slug"
// @Param user query int false "Author ID"
// @Param include_replies query bool false "Include replies"
// @Success 200 {object} pagedResponse{results=[]models.CommentView}
// @Router /comments [get]
func (s *Server) ListComments(c *fiber.Ctx) error {
	p := parsePagination(c, defaultPaginationLimit)
	page := c.Query("page")
	if page == "" {
		page = c.Query("trip")
	}
	comments, total, err := s.commentService.ListComments(c.UserContext(), service.ListCommentsInput{
		ViewerID:       viewerID(c),
		Page:           page,
		AuthorID:       uint(c.QueryInt("user", 0)),
		IncludeReplies: c.QueryBool("include_replies", false),
		Limit:          p.Limit,
		Offset:         p.Offset,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return paged(c, comments, total, p)
}

// CreateComment handles POST /api/comments
// @Summary Create a comment or reply
// @Description A reply is stored on its parent's page. Only the page owner may start a thread on an owned page.
// @Tags comments
// @Accept json,mpfd
// @Produce json
// @Param request body createCommentRequest true "Comment"
// @Success 201 {object} models.CommentView
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /comments [post]
func (s *Server) CreateComment(c *fiber.Ctx) error {
	userID := viewerID(c)

	var req createCommentRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	image, video, err := attachments(c, userID)
	if err != nil {
		return respondServiceError(c, err)
	}

	in := service.CreateCommentInput{
		UserID:  userID,
		Page:    req.Page,
		Content: req.Content,
		Image:   image,
		Video:   video,
	}
	if req.ParentID != 0 {
		in.ParentID = &req.ParentID
	}

	created, err := s.commentService.CreateComment(c.UserContext(), in)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

// GetComment handles GET /api/comments/:id
// @Summary Get a comment
// @Tags comments
// @Produce json
// @Param id path int true "Comment ID"
// @Success 200 {object} models.CommentView
// @Failure 404 {object} models.ErrorResponse
// @Router /comments/{id} [get]
func (s *Server) GetComment(c *fiber.Ctx) error {
	id, err := s.parseID(c)
	if err != nil {
		return nil
	}
	comment, err := s.commentService.GetComment(c.UserContext(), id, viewerID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(comment)
}

// GetCommentReplies handles GET /api/comments/:id/replies
// @Summary List the replies of a comment, oldest first
// @Tags comments
// @Produce json
// @Param id path int true "Comment ID"
// @Success 200 {array} models.CommentView
// @Router /comments/{id}/replies [get]
func (s *Server) GetCommentReplies(c *fiber.Ctx) error {
	id, err := s.parseID(c)
	if err != nil {
		return nil
	}
	replies, err := s.commentService.ListReplies(c.UserContext(), id, viewerID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(replies)
}

// UpdateComment handles PATCH /api/comments/:id (author only)
// @Summary Edit a comment
// @Tags comments
// @Accept json,mpfd
// @Produce json
// @Param id path int true "Comment ID"
// @Param request body updateCommentRequest true "Changes"
// @Success 200 {object} models.CommentView
// @Failure 403 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /comments/{id} [patch]
func (s *Server) UpdateComment(c *fiber.Ctx) error {
	userID := viewerID(c)
	id, err := s.parseID(c)
	if err != nil {
		return nil
	}

	var req updateCommentRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	image, video, err := attachments(c, userID)
	if err != nil {
		return respondServiceError(c, err)
	}

	updated, err := s.commentService.UpdateComment(c.UserContext(), service.UpdateCommentInput{
		UserID:    userID,
		CommentID: id,
		Content:   req.Content,
		Image:     image,
		Video:     video,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(updated)
}

// AddCommentImage handles POST /api/comments/:id/add_image
// @Summary Attach an image to the caller's comment
// @Tags comments
// @Accept mpfd
// @Produce json
// @Param id path int true "Comment ID"
// @Param image formData file true "Image"
// @Success 200 {object} models.CommentView
// @Security BearerAuth
// @Router /comments/{id}/add_image [post]
func (s *Server) AddCommentImage(c *fiber.Ctx) error {
	userID := viewerID(c)
	id, err := s.parseID(c)
	if err != nil {
		return nil
	}
	image, err := formUpload(c, "image", userID)
	if err != nil {
		return respondServiceError(c, err)
	}
	if image == nil {
		return respondServiceError(c, errNoFile)
	}
	updated, err := s.commentService.AddImage(c.UserContext(), userID, id, *image)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(updated)
}

// PinComment handles POST /api/comments/:id/pin
// @Summary Toggle the pin of a thread
// @Description Page owner or admin only
// @Tags comments
// @Produce json
// @Param id path int true "Comment ID"
// @Success 200 {object} models.CommentView
// @Security BearerAuth
// @Router /comments/{id}/pin [post]
func (s *Server) PinComment(c *fiber.Ctx) error {
	id, err := s.parseID(c)
	if err != nil {
		return nil
	}
	pinned, err := s.commentService.TogglePin(c.UserContext(), viewerID(c), id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(pinned)
}

// DeleteComment handles DELETE /api/comments/:id
// @Summary Delete a comment and its replies
// @Description Author, page owner or admin
// @Tags comments
// @Param id path int true "Comment ID"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /comments/{id} [delete]
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	id, err := s.parseID(c)
	if err != nil {
		return nil
	}
	if _, err := s.commentService.DeleteComment(c.UserContext(), viewerID(c), id); err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
