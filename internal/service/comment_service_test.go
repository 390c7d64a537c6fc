package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"roamio/internal/models"
	"roamio/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommentService_CreateComment_Validation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")
	ctx := context.Background()
	user := testutil.CreateUser(t, env.db, "writer", false)

	t.Run("empty content and no media", func(t *testing.T) {
		_, err := env.comment.CreateComment(ctx, CreateCommentInput{UserID: user.ID, Page: "trip1", Content: "   "})
		assertValidationError(t, err)
	})

	t.Run("content too long", func(t *testing.T) {
		_, err := env.comment.CreateComment(ctx, CreateCommentInput{
			UserID:  user.ID,
			Page:    "trip1",
			Content: strings.Repeat("x", maxCommentLen+1),
		})
		assertValidationError(t, err)
	})

	t.Run("bad page key", func(t *testing.T) {
		_, err := env.comment.CreateComment(ctx, CreateCommentInput{UserID: user.ID, Page: "no spaces", Content: "hi"})
		assertValidationError(t, err)
	})

	t.Run("anonymous", func(t *testing.T) {
		_, err := env.comment.CreateComment(ctx, CreateCommentInput{Page: "trip1", Content: "hi"})
		assertAppCode(t, err, models.CodeUnauthenticated)
	})

	t.Run("missing parent", func(t *testing.T) {
		_, err := env.comment.CreateComment(ctx, CreateCommentInput{UserID: user.ID, ParentID: ptr(uint(999)), Content: "hi"})
		assertNotFoundError(t, err)
	})
}

func TestCommentService_TopLevelOnTripPage(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")
	ctx := context.Background()

	owner := testutil.CreateUser(t, env.db, "owner", false)
	visitor := testutil.CreateUser(t, env.db, "visitor", false)
	admin := testutil.CreateUser(t, env.db, "admin", true)
	trip := testutil.CreateTrip(t, env.db, owner.ID, "tripowned", models.TripVisibilityPublic)

	_, err := env.comment.CreateComment(ctx, CreateCommentInput{UserID: visitor.ID, Page: trip.Slug, Content: "first!"})
	assertUnauthorizedError(t, err)

	var count int64
	require.NoError(t, env.db.Model(&models.Comment{}).Where("page = ?", trip.Slug).Count(&count).Error)
	assert.Zero(t, count, "forbidden create must not leave a row")

	mine, err := env.comment.CreateComment(ctx, CreateCommentInput{UserID: owner.ID, Page: trip.Slug, Content: "day one"})
	require.NoError(t, err)
	assert.Nil(t, mine.ParentID)
	assert.Equal(t, owner.Username, mine.User.Username)
	assert.True(t, mine.CanDelete)

	_, err = env.comment.CreateComment(ctx, CreateCommentInput{UserID: admin.ID, Page: trip.Slug, Content: "admin note"})
	require.NoError(t, err)
}

func TestCommentService_ReplyInheritsPage(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")
	ctx := context.Background()

	owner := testutil.CreateUser(t, env.db, "owner", false)
	visitor := testutil.CreateUser(t, env.db, "visitor", false)
	trip := testutil.CreateTrip(t, env.db, owner.ID, "tripreply", models.TripVisibilityPublic)

	root, err := env.comment.CreateComment(ctx, CreateCommentInput{UserID: owner.ID, Page: trip.Slug, Content: "root"})
	require.NoError(t, err)

	reply, err := env.comment.CreateComment(ctx, CreateCommentInput{
		UserID:   visitor.ID,
		Page:     "somewhere-else",
		ParentID: &root.ID,
		Content:  "nice",
	})
	require.NoError(t, err)
	assert.Equal(t, root.Page, reply.Page)
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, root.ID, *reply.ParentID)

	nested, err := env.comment.CreateComment(ctx, CreateCommentInput{UserID: owner.ID, ParentID: &reply.ID, Content: "thanks"})
	require.NoError(t, err)
	assert.Equal(t, root.Page, nested.Page)
	require.NotNil(t, nested.ParentID)
	assert.Equal(t, root.ID, *nested.ParentID, "threads stay one level deep")

	got, err := env.comment.GetComment(ctx, root.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.RepliesCount)

	replies, err := env.comment.ListReplies(ctx, root.ID, visitor.ID)
	require.NoError(t, err)
	require.Len(t, replies, 2)
	assert.Equal(t, "nice", replies[0].Content)
	assert.True(t, replies[0].CanDelete)
	assert.False(t, replies[1].CanDelete)
}

func TestCommentService_LegacyPageClaim(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")
	ctx := context.Background()

	first := testutil.CreateUser(t, env.db, "first", false)
	second := testutil.CreateUser(t, env.db, "second", false)

	_, err := env.comment.CreateComment(ctx, CreateCommentInput{UserID: first.ID, Page: "trip4", Content: "mine now"})
	require.NoError(t, err)

	stat, err := env.stats.Get(ctx, "trip4")
	require.NoError(t, err)
	assert.True(t, stat.IsOwnedBy(first.ID))

	_, err = env.comment.CreateComment(ctx, CreateCommentInput{UserID: second.ID, Page: "trip4", Content: "me too"})
	assertUnauthorizedError(t, err)

	_, err = env.comment.CreateComment(ctx, CreateCommentInput{UserID: first.ID, Page: "trip4", Content: "again"})
	require.NoError(t, err)
}

func TestCommentService_DeleteReplyPermissions(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")
	ctx := context.Background()

	owner := testutil.CreateUser(t, env.db, "owner", false)
	replier := testutil.CreateUser(t, env.db, "replier", false)
	stranger := testutil.CreateUser(t, env.db, "stranger", false)
	trip := testutil.CreateTrip(t, env.db, owner.ID, "tripdelete", models.TripVisibilityPublic)

	root, err := env.comment.CreateComment(ctx, CreateCommentInput{UserID: owner.ID, Page: trip.Slug, Content: "root"})
	require.NoError(t, err)
	r1, err := env.comment.CreateComment(ctx, CreateCommentInput{UserID: replier.ID, ParentID: &root.ID, Content: "r1"})
	require.NoError(t, err)
	r2, err := env.comment.CreateComment(ctx, CreateCommentInput{UserID: replier.ID, ParentID: &root.ID, Content: "r2"})
	require.NoError(t, err)

	_, err = env.comment.DeleteComment(ctx, stranger.ID, r1.ID)
	assertUnauthorizedError(t, err)

	_, err = env.comment.DeleteComment(ctx, owner.ID, r1.ID)
	require.NoError(t, err, "trip owner may remove replies")

	_, err = env.comment.DeleteComment(ctx, replier.ID, r2.ID)
	require.NoError(t, err)

	_, err = env.comment.DeleteComment(ctx, replier.ID, root.ID)
	assertUnauthorizedError(t, err)

	_, err = env.comment.GetComment(ctx, r1.ID, 0)
	assertNotFoundError(t, err)
}

func TestCommentService_DeleteRemovesMedia(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")
	ctx := context.Background()

	user := testutil.CreateUser(t, env.db, "photographer", false)
	created, err := env.comment.CreateComment(ctx, CreateCommentInput{
		UserID: user.ID,
		Page:   "trip",
		Image:  &UploadMediaInput{UserID: user.ID, Filename: "a.png", ContentType: "image/png", Content: testutil.TinyPNG(t, 8, 8)},
	})
	require.NoError(t, err)
	require.NotNil(t, created.Image)
	assert.Empty(t, created.Content)
	require.Len(t, env.store.Keys(), 1)

	_, err = env.comment.DeleteComment(ctx, user.ID, created.ID)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	url, err := env.store.WaitDeleted(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, *created.Image, url)
}

func TestCommentService_UpdateAndPin(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")
	ctx := context.Background()

	owner := testutil.CreateUser(t, env.db, "owner", false)
	visitor := testutil.CreateUser(t, env.db, "visitor", false)
	trip := testutil.CreateTrip(t, env.db, owner.ID, "trippin", models.TripVisibilityPublic)

	root, err := env.comment.CreateComment(ctx, CreateCommentInput{UserID: owner.ID, Page: trip.Slug, Content: "root"})
	require.NoError(t, err)
	reply, err := env.comment.CreateComment(ctx, CreateCommentInput{UserID: visitor.ID, ParentID: &root.ID, Content: "hi"})
	require.NoError(t, err)

	_, err = env.comment.UpdateComment(ctx, UpdateCommentInput{UserID: owner.ID, CommentID: reply.ID, Content: ptr("hijack")})
	assertUnauthorizedError(t, err)

	_, err = env.comment.UpdateComment(ctx, UpdateCommentInput{UserID: visitor.ID, CommentID: reply.ID, Content: ptr("  ")})
	assertValidationError(t, err)

	edited, err := env.comment.UpdateComment(ctx, UpdateCommentInput{UserID: visitor.ID, CommentID: reply.ID, Content: ptr("hello")})
	require.NoError(t, err)
	assert.Equal(t, "hello", edited.Content)

	_, err = env.comment.TogglePin(ctx, owner.ID, reply.ID)
	assertValidationError(t, err)

	_, err = env.comment.TogglePin(ctx, visitor.ID, root.ID)
	assertUnauthorizedError(t, err)

	pinned, err := env.comment.TogglePin(ctx, owner.ID, root.ID)
	require.NoError(t, err)
	assert.True(t, pinned.IsPinned)

	unpinned, err := env.comment.TogglePin(ctx, owner.ID, root.ID)
	require.NoError(t, err)
	assert.False(t, unpinned.IsPinned)
}

func TestCommentService_ListPinnedFirst(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")
	ctx := context.Background()

	owner := testutil.CreateUser(t, env.db, "owner", false)
	trip := testutil.CreateTrip(t, env.db, owner.ID, "triplist", models.TripVisibilityPublic)

	older, err := env.comment.CreateComment(ctx, CreateCommentInput{UserID: owner.ID, Page: trip.Slug, Content: "older"})
	require.NoError(t, err)
	_, err = env.comment.CreateComment(ctx, CreateCommentInput{UserID: owner.ID, Page: trip.Slug, Content: "newer"})
	require.NoError(t, err)
	_, err = env.comment.CreateComment(ctx, CreateCommentInput{UserID: owner.ID, ParentID: &older.ID, Content: "reply"})
	require.NoError(t, err)
	_, err = env.comment.TogglePin(ctx, owner.ID, older.ID)
	require.NoError(t, err)

	list, total, err := env.comment.ListComments(ctx, ListCommentsInput{Page: trip.Slug, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total, "replies are excluded by default")
	require.Len(t, list, 2)
	assert.Equal(t, older.ID, list[0].ID)
	assert.Equal(t, int64(1), list[0].RepliesCount)
	assert.False(t, list[0].CanDelete, "anonymous viewers cannot delete")

	_, total, err = env.comment.ListComments(ctx, ListCommentsInput{AuthorID: owner.ID, IncludeReplies: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}
