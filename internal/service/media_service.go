package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif" // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png" // Register PNG decoder
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"roamio/internal/config"
	"roamio/internal/models"
	"roamio/internal/observability"
	"roamio/internal/storage"

	"github.com/chai2010/webp"
	"github.com/google/uuid"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	DefaultImageMaxUploadSizeMB  = 10
	DefaultVideoMaxUploadSizeMB  = 100
	DefaultAvatarMaxUploadSizeMB = 5
	MasterMaxSize                = 2048
	AvatarSize                   = 256
	WebPQuality                  = 70

	mediaDeleteTimeout = 30 * time.Second
)

// MediaKind selects the storage prefix and the size limit of an upload.
type MediaKind string

const (
	MediaAvatar       MediaKind = "avatar"
	MediaCommentImage MediaKind = "image"
	MediaCommentVideo MediaKind = "video"
)

func (k MediaKind) prefix() string {
	switch k {
	case MediaAvatar:
		return "media/avatars"
	case MediaCommentVideo:
		return "media/comments/videos"
	default:
		return "media/comments/images"
	}
}

// UploadMediaInput is a file received from a multipart form.
type UploadMediaInput struct {
	UserID      uint
	Filename    string
	ContentType string
	Content     []byte
}

// MediaService validates uploads, normalises images and hands the bytes to the object store.
type MediaService struct {
	store          storage.Store
	maxImageBytes  int64
	maxVideoBytes  int64
	maxAvatarBytes int64
	now            func() time.Time
}

func NewMediaService(store storage.Store, cfg *config.Config) *MediaService {
	imageMB, videoMB, avatarMB := DefaultImageMaxUploadSizeMB, DefaultVideoMaxUploadSizeMB, DefaultAvatarMaxUploadSizeMB
	if cfg != nil {
		if cfg.ImageMaxUploadMB > 0 {
			imageMB = cfg.ImageMaxUploadMB
		}
		if cfg.VideoMaxUploadMB > 0 {
			videoMB = cfg.VideoMaxUploadMB
		}
		if cfg.AvatarMaxUploadMB > 0 {
			avatarMB = cfg.AvatarMaxUploadMB
		}
	}
	return &MediaService{
		store:          store,
		maxImageBytes:  int64(imageMB) << 20,
		maxVideoBytes:  int64(videoMB) << 20,
		maxAvatarBytes: int64(avatarMB) << 20,
		now:            time.Now,
	}
}

// MaxBytes returns the limit applied to uploads of kind.
func (s *MediaService) MaxBytes(kind MediaKind) int64 {
	switch kind {
	case MediaAvatar:
		return s.maxAvatarBytes
	case MediaCommentVideo:
		return s.maxVideoBytes
	default:
		return s.maxImageBytes
	}
}

// UploadCommentImage re-encodes the image as WebP, bounded to MasterMaxSize, and stores it.
func (s *MediaService) UploadCommentImage(ctx context.Context, in UploadMediaInput) (string, error) {
	decoded, err := s.decodeImage(in, MediaCommentImage)
	if err != nil {
		return "", err
	}
	master := resizeToFit(decoded, MasterMaxSize, MasterMaxSize)
	encoded, err := encodeWebP(master, WebPQuality)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	return s.put(ctx, MediaCommentImage, in.UserID, ".webp", "image/webp", encoded)
}

// UploadAvatar center-crops the image to a square AvatarSize WebP thumbnail.
func (s *MediaService) UploadAvatar(ctx context.Context, in UploadMediaInput) (string, error) {
	decoded, err := s.decodeImage(in, MediaAvatar)
	if err != nil {
		return "", err
	}
	b := decoded.Bounds()
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}
	square := cropToRect(decoded, b.Min.X+(b.Dx()-side)/2, b.Min.Y+(b.Dy()-side)/2, side, side)
	thumb := resizeToFit(square, AvatarSize, AvatarSize)
	encoded, err := encodeWebP(thumb, WebPQuality)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	return s.put(ctx, MediaAvatar, in.UserID, ".webp", "image/webp", encoded)
}

// UploadCommentVideo stores an MP4, WebM or QuickTime file as is.
func (s *MediaService) UploadCommentVideo(ctx context.Context, in UploadMediaInput) (string, error) {
	if err := s.checkSize(in, MediaCommentVideo); err != nil {
		return "", err
	}
	contentType, ext := sniffVideo(in.Content)
	if contentType == "" {
		s.countRejected(MediaCommentVideo)
		return "", models.NewValidationError("Invalid video type (mp4, webm or mov)")
	}
	return s.put(ctx, MediaCommentVideo, in.UserID, ext, contentType, in.Content)
}

// DeleteAsync removes stored objects without blocking the caller. Failures are
// logged and counted, never returned.
func (s *MediaService) DeleteAsync(ctx context.Context, urls ...string) {
	var targets []string
	for _, u := range urls {
		if strings.TrimSpace(u) != "" {
			targets = append(targets, u)
		}
	}
	if len(targets) == 0 || s == nil || s.store == nil {
		return
	}

	bg, cancel := observability.Detach(ctx, mediaDeleteTimeout)
	go func() {
		defer cancel()
		for _, u := range targets {
			op := observability.StartAsyncOperation(bg, "media.delete", slog.String("url", u))
			if _, err := s.store.Delete(bg, u); err != nil {
				op.Fail(bg, err)
				continue
			}
			op.Done(bg)
		}
	}()
}

func (s *MediaService) checkSize(in UploadMediaInput, kind MediaKind) error {
	if in.UserID == 0 {
		return models.NewValidationError("Invalid user")
	}
	if len(in.Content) == 0 {
		return models.NewValidationError("No file uploaded")
	}
	if limit := s.MaxBytes(kind); int64(len(in.Content)) > limit {
		s.countRejected(kind)
		return models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", limit>>20))
	}
	return nil
}

func (s *MediaService) decodeImage(in UploadMediaInput, kind MediaKind) (image.Image, error) {
	if err := s.checkSize(in, kind); err != nil {
		return nil, err
	}

	detectedType := http.DetectContentType(in.Content)
	if !isAllowedImageMIME(detectedType) {
		s.countRejected(kind)
		return nil, models.NewValidationError("Invalid image type")
	}

	decoded, format, err := image.Decode(bytes.NewReader(in.Content))
	if err != nil || !isSupportedDecodedFormat(format) {
		s.countRejected(kind)
		return nil, models.NewValidationError("Invalid image file")
	}

	if provided := normalizeContentType(in.ContentType); strings.HasPrefix(provided, "image/") &&
		!isMatchingContentType(provided, decodedFormatToMime(format)) {
		s.countRejected(kind)
		return nil, models.NewValidationError("Image content type mismatch")
	}
	return decoded, nil
}

func (s *MediaService) put(ctx context.Context, kind MediaKind, userID uint, ext, contentType string, data []byte) (string, error) {
	if s.store == nil {
		return "", models.NewInternalError(fmt.Errorf("object store not configured"))
	}
	key := s.objectKey(kind, userID, ext)
	url, err := s.store.Upload(ctx, key, contentType, bytes.NewReader(data), int64(len(data)))
	observability.MediaUploads.WithLabelValues(string(kind), observability.ResultLabel(err)).Inc()
	if err != nil {
		return "", models.NewExternalError("Failed to store media", err)
	}
	return url, nil
}

// objectKey builds "<prefix>/user<id>_<unix>_<uuid8><ext>".
func (s *MediaService) objectKey(kind MediaKind, userID uint, ext string) string {
	return fmt.Sprintf("%s/user%d_%d_%s%s", kind.prefix(), userID, s.now().Unix(), uuid.NewString()[:8], ext)
}

func (s *MediaService) countRejected(kind MediaKind) {
	observability.MediaUploads.WithLabelValues(string(kind), "rejected").Inc()
}

func sniffVideo(content []byte) (contentType, ext string) {
	switch normalizeContentType(http.DetectContentType(content)) {
	case "video/mp4":
		return "video/mp4", ".mp4"
	case "video/webm":
		return "video/webm", ".webm"
	}
	// QuickTime files share the ISO box layout but are not sniffed by net/http.
	if len(content) >= 12 && string(content[4:8]) == "ftyp" && string(content[8:12]) == "qt  " {
		return "video/quicktime", ".mov"
	}
	return "", ""
}

func cropToRect(src image.Image, x, y, w, h int) image.Image {
	if w <= 0 || h <= 0 {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), src, image.Point{X: x, Y: y}, draw.Src)
	return dst
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= 0 || h <= 0 {
		return src
	}
	if w <= maxWidth && h <= maxHeight {
		return src
	}

	scale := float64(maxWidth) / float64(w)
	if s := float64(maxHeight) / float64(h); s < scale {
		scale = s
	}
	newW := max(int(float64(w)*scale), 1)
	newH := max(int(float64(h)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isAllowedImageMIME(contentType string) bool {
	switch normalizeContentType(contentType) {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func normalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func isMatchingContentType(provided, detected string) bool {
	p := normalizeContentType(provided)
	d := normalizeContentType(detected)
	if p == d {
		return true
	}
	return (p == "image/jpg" && d == "image/jpeg") || (p == "image/jpeg" && d == "image/jpg")
}

func isSupportedDecodedFormat(format string) bool {
	return decodedFormatToMime(format) != ""
}

func decodedFormatToMime(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return ""
	}
}
