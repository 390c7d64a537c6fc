package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"roamio/internal/models"
	"roamio/internal/observability"
	"roamio/internal/repository"
	"roamio/internal/validation"

	"gorm.io/gorm"
)

const maxCommentLen = 10000

type CommentService struct {
	commentRepo repository.CommentRepository
	tripRepo    repository.TripRepository
	statRepo    repository.PageStatRepository
	media       *MediaService
	isAdmin     AdminChecker
}

type CreateCommentInput struct {
	UserID   uint
	Page     string
	ParentID *uint
	Content  string
	Image    *UploadMediaInput
	Video    *UploadMediaInput
}

// UpdateCommentInput replaces only the fields that are set.
type UpdateCommentInput struct {
	UserID    uint
	CommentID uint
	Content   *string
	Image     *UploadMediaInput
	Video     *UploadMediaInput
}

type ListCommentsInput struct {
	ViewerID       uint
	Page           string
	AuthorID       uint
	IncludeReplies bool
	Limit          int
	Offset         int
}

func NewCommentService(
	commentRepo repository.CommentRepository,
	tripRepo repository.TripRepository,
	statRepo repository.PageStatRepository,
	media *MediaService,
	isAdmin AdminChecker,
) *CommentService {
	return &CommentService{
		commentRepo: commentRepo,
		tripRepo:    tripRepo,
		statRepo:    statRepo,
		media:       media,
		isAdmin:     isAdmin,
	}
}

func (s *CommentService) CreateComment(ctx context.Context, in CreateCommentInput) (*models.CommentView, error) {
	if in.UserID == 0 {
		return nil, models.NewUnauthenticatedError("Authentication required")
	}
	content := strings.TrimSpace(in.Content)
	if content == "" && in.Image == nil && in.Video == nil {
		return nil, models.NewValidationError("Content, image or video is required")
	}
	if utf8.RuneCountInString(content) > maxCommentLen {
		return nil, models.NewValidationError(fmt.Sprintf("Comment too long (max %d characters)", maxCommentLen))
	}

	comment := &models.Comment{UserID: in.UserID, Content: content}
	claim := false
	if in.ParentID != nil {
		parent, err := s.commentRepo.GetByID(ctx, *in.ParentID)
		if err != nil {
			return nil, translateRepoError(err, "Comment", *in.ParentID)
		}
		// Threads are one level deep: answering a reply answers its parent.
		parentID := parent.ID
		if parent.ParentID != nil {
			parentID = *parent.ParentID
		}
		comment.ParentID = &parentID
		comment.Page = parent.Page
	} else {
		if err := validation.ValidatePageKey(in.Page); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		decision, err := s.topLevelDecision(ctx, in.Page, in.UserID)
		if err != nil {
			return nil, err
		}
		if decision == TopLevelDenied {
			return nil, models.NewUnauthorizedError("Only the page owner can start a thread; others may reply")
		}
		claim = decision == TopLevelClaim
		comment.Page = in.Page
	}

	uploaded, err := s.uploadAttachments(ctx, comment, in.Image, in.Video)
	if err != nil {
		return nil, err
	}

	create := s.commentRepo.Create
	if claim {
		create = s.commentRepo.CreateClaiming
	}
	if err := create(ctx, comment); err != nil {
		s.media.DeleteAsync(ctx, uploaded...)
		if errors.Is(err, repository.ErrPageOwned) {
			return nil, models.NewUnauthorizedError("Only the page owner can start a thread; others may reply")
		}
		return nil, models.NewInternalError(err)
	}
	kind := "top_level"
	if comment.IsReply() {
		kind = "reply"
	}
	observability.CommentsCreated.WithLabelValues(kind).Inc()

	return s.GetComment(ctx, comment.ID, in.UserID)
}

func (s *CommentService) GetComment(ctx context.Context, id, viewerID uint) (*models.CommentView, error) {
	comment, err := s.commentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(err, "Comment", id)
	}
	views, err := s.views(ctx, []models.Comment{*comment}, viewerID)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *CommentService) ListComments(ctx context.Context, in ListCommentsInput) ([]models.CommentView, int64, error) {
	if in.Page != "" {
		if err := validation.ValidatePageKey(in.Page); err != nil {
			return nil, 0, models.NewValidationError(err.Error())
		}
	}
	comments, total, err := s.commentRepo.List(ctx, repository.CommentFilter{
		Page:           in.Page,
		UserID:         in.AuthorID,
		IncludeReplies: in.IncludeReplies,
		Limit:          in.Limit,
		Offset:         in.Offset,
	})
	if err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	views, err := s.views(ctx, comments, in.ViewerID)
	if err != nil {
		return nil, 0, err
	}
	return views, total, nil
}

// ListReplies returns the replies of a comment, oldest first.
func (s *CommentService) ListReplies(ctx context.Context, id, viewerID uint) ([]models.CommentView, error) {
	if _, err := s.commentRepo.GetByID(ctx, id); err != nil {
		return nil, translateRepoError(err, "Comment", id)
	}
	replies, err := s.commentRepo.ListReplies(ctx, id)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return s.views(ctx, replies, viewerID)
}

func (s *CommentService) UpdateComment(ctx context.Context, in UpdateCommentInput) (*models.CommentView, error) {
	comment, err := s.commentRepo.GetByID(ctx, in.CommentID)
	if err != nil {
		return nil, translateRepoError(err, "Comment", in.CommentID)
	}
	if !CanEditComment(comment, in.UserID) {
		return nil, models.NewUnauthorizedError("You can only update your own comments")
	}
	if in.Content != nil {
		content := strings.TrimSpace(*in.Content)
		if content == "" {
			return nil, models.NewValidationError("Content is required")
		}
		if utf8.RuneCountInString(content) > maxCommentLen {
			return nil, models.NewValidationError(fmt.Sprintf("Comment too long (max %d characters)", maxCommentLen))
		}
		comment.Content = content
	}

	oldImage, oldVideo := comment.Image, comment.Video
	uploaded, err := s.uploadAttachments(ctx, comment, in.Image, in.Video)
	if err != nil {
		return nil, err
	}
	if err := s.commentRepo.Update(ctx, comment); err != nil {
		s.media.DeleteAsync(ctx, uploaded...)
		return nil, models.NewInternalError(err)
	}

	var replaced []string
	if in.Image != nil && oldImage != nil {
		replaced = append(replaced, *oldImage)
	}
	if in.Video != nil && oldVideo != nil {
		replaced = append(replaced, *oldVideo)
	}
	s.media.DeleteAsync(ctx, replaced...)

	return s.GetComment(ctx, comment.ID, in.UserID)
}

// AddImage attaches or replaces the image of the caller's comment.
func (s *CommentService) AddImage(ctx context.Context, userID, commentID uint, image UploadMediaInput) (*models.CommentView, error) {
	return s.UpdateComment(ctx, UpdateCommentInput{UserID: userID, CommentID: commentID, Image: &image})
}

// TogglePin flips is_pinned on a top-level comment.
func (s *CommentService) TogglePin(ctx context.Context, userID, commentID uint) (*models.CommentView, error) {
	comment, err := s.commentRepo.GetByID(ctx, commentID)
	if err != nil {
		return nil, translateRepoError(err, "Comment", commentID)
	}
	if comment.IsReply() {
		return nil, models.NewValidationError("Replies cannot be pinned")
	}
	admin, err := checkAdmin(ctx, s.isAdmin, userID)
	if err != nil {
		return nil, err
	}
	trip, stat, err := s.pageContext(ctx, comment.Page)
	if err != nil {
		return nil, err
	}
	if !CanPinComment(comment, userID, admin, PageOwnerID(trip, stat)) {
		return nil, models.NewUnauthorizedError("Only the page owner can pin comments")
	}
	if err := s.commentRepo.SetPinned(ctx, commentID, !comment.IsPinned); err != nil {
		return nil, translateRepoError(err, "Comment", commentID)
	}
	return s.GetComment(ctx, commentID, userID)
}

// DeleteComment removes the comment with its replies and schedules removal of their media.
func (s *CommentService) DeleteComment(ctx context.Context, userID, commentID uint) (*models.Comment, error) {
	comment, err := s.commentRepo.GetByID(ctx, commentID)
	if err != nil {
		return nil, translateRepoError(err, "Comment", commentID)
	}
	admin, err := checkAdmin(ctx, s.isAdmin, userID)
	if err != nil {
		return nil, err
	}
	var tripAuthorID *uint
	if comment.IsReply() {
		trip, err := s.tripForPage(ctx, comment.Page)
		if err != nil {
			return nil, err
		}
		if trip != nil {
			tripAuthorID = &trip.AuthorID
		}
	}
	if !CanDeleteComment(comment, userID, admin, tripAuthorID) {
		if comment.IsReply() {
			return nil, models.NewUnauthorizedError("Only the reply author or the trip owner can delete this reply")
		}
		return nil, models.NewUnauthorizedError("You can only delete your own comments")
	}

	urls, err := s.commentRepo.MediaURLs(ctx, comment.Page, comment.ID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := s.commentRepo.Delete(ctx, commentID); err != nil {
		return nil, translateRepoError(err, "Comment", commentID)
	}
	s.media.DeleteAsync(ctx, urls...)
	return comment, nil
}

func (s *CommentService) topLevelDecision(ctx context.Context, page string, userID uint) (TopLevelDecision, error) {
	admin, err := checkAdmin(ctx, s.isAdmin, userID)
	if err != nil {
		return TopLevelDenied, err
	}
	trip, stat, err := s.pageContext(ctx, page)
	if err != nil {
		return TopLevelDenied, err
	}
	return TopLevelGate(userID, admin, trip, stat), nil
}

func (s *CommentService) uploadAttachments(ctx context.Context, comment *models.Comment, image, video *UploadMediaInput) ([]string, error) {
	if image == nil && video == nil {
		return nil, nil
	}
	if s.media == nil {
		return nil, models.NewInternalError(errors.New("media service not configured"))
	}
	var uploaded []string
	if image != nil {
		url, err := s.media.UploadCommentImage(ctx, *image)
		if err != nil {
			return nil, err
		}
		comment.Image = &url
		uploaded = append(uploaded, url)
	}
	if video != nil {
		url, err := s.media.UploadCommentVideo(ctx, *video)
		if err != nil {
			s.media.DeleteAsync(ctx, uploaded...)
			return nil, err
		}
		comment.Video = &url
		uploaded = append(uploaded, url)
	}
	return uploaded, nil
}

// pageContext loads the trip owning page and its statistics row; either may be nil.
func (s *CommentService) pageContext(ctx context.Context, page string) (*models.Trip, *models.PageStat, error) {
	trip, err := s.tripForPage(ctx, page)
	if err != nil {
		return nil, nil, err
	}
	stat, err := s.statRepo.Get(ctx, page)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, models.NewInternalError(err)
		}
		stat = nil
	}
	return trip, stat, nil
}

func (s *CommentService) tripForPage(ctx context.Context, page string) (*models.Trip, error) {
	trip, err := s.tripRepo.GetBySlug(ctx, page)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return trip, nil
}

// views adds replies_count and can_delete for viewerID.
func (s *CommentService) views(ctx context.Context, comments []models.Comment, viewerID uint) ([]models.CommentView, error) {
	out := make([]models.CommentView, 0, len(comments))
	if len(comments) == 0 {
		return out, nil
	}

	var topLevel []uint
	for _, c := range comments {
		if !c.IsReply() {
			topLevel = append(topLevel, c.ID)
		}
	}
	counts, err := s.commentRepo.CountReplies(ctx, topLevel)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	admin, err := checkAdmin(ctx, s.isAdmin, viewerID)
	if err != nil {
		return nil, err
	}
	tripAuthors := make(map[string]*uint)
	for i := range comments {
		c := &comments[i]
		canDelete := false
		if viewerID != 0 {
			authorID, seen := tripAuthors[c.Page]
			if !seen && c.IsReply() {
				trip, err := s.tripForPage(ctx, c.Page)
				if err != nil {
					return nil, err
				}
				if trip != nil {
					authorID = &trip.AuthorID
				}
				tripAuthors[c.Page] = authorID
			}
			canDelete = CanDeleteComment(c, viewerID, admin, authorID)
		}
		out = append(out, models.CommentView{
			ID:           c.ID,
			User:         c.User.Public(),
			ParentID:     c.ParentID,
			Content:      c.Content,
			Image:        c.Image,
			Video:        c.Video,
			Page:         c.Page,
			IsPinned:     c.IsPinned,
			Timestamp:    c.Timestamp,
			RepliesCount: counts[c.ID],
			CanDelete:    canDelete,
		})
	}
	return out, nil
}
