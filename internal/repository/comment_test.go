package repository

import (
	"context"
	"regexp"
	"testing"

	"roamio/internal/models"
	"roamio/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCommentRepository_Create(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCommentRepository(db)
	ctx := context.Background()

	comment := &models.Comment{Content: "Lovely view", Page: "trip1", UserID: 1}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "comments"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	err := repo.Create(ctx, comment)
	assert.NoError(t, err)
	assert.Equal(t, uint(1), comment.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentRepository_Delete_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCommentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "comments" WHERE parent_id = $1`)).
		WithArgs(42).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "comments" WHERE "comments"."id" = $1`)).
		WithArgs(42).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), 42)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentRepository_ListAndReplies(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewCommentRepository(db)
	ctx := context.Background()
	alice := testutil.CreateUser(t, db, "alice", false)
	bob := testutil.CreateUser(t, db, "bob", false)

	first := &models.Comment{UserID: alice.ID, Page: "trip1", Content: "first"}
	require.NoError(t, repo.Create(ctx, first))
	pinned := &models.Comment{UserID: alice.ID, Page: "trip1", Content: "pinned"}
	require.NoError(t, repo.Create(ctx, pinned))
	require.NoError(t, repo.SetPinned(ctx, pinned.ID, true))
	other := &models.Comment{UserID: bob.ID, Page: "trip2", Content: "elsewhere"}
	require.NoError(t, repo.Create(ctx, other))

	for _, text := range []string{"r1", "r2"} {
		require.NoError(t, repo.Create(ctx, &models.Comment{UserID: bob.ID, Page: "trip1", Content: text, ParentID: &first.ID}))
	}

	t.Run("top level only", func(t *testing.T) {
		comments, total, err := repo.List(ctx, CommentFilter{Page: "trip1"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		require.Len(t, comments, 2)
		assert.Equal(t, "pinned", comments[0].Content)
		require.NotNil(t, comments[0].User)
		assert.Equal(t, "alice", comments[0].User.Username)
	})

	t.Run("include replies", func(t *testing.T) {
		_, total, err := repo.List(ctx, CommentFilter{Page: "trip1", IncludeReplies: true})
		require.NoError(t, err)
		assert.Equal(t, int64(4), total)
	})

	t.Run("filter by user", func(t *testing.T) {
		_, total, err := repo.List(ctx, CommentFilter{UserID: bob.ID, IncludeReplies: true})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
	})

	t.Run("replies oldest first", func(t *testing.T) {
		replies, err := repo.ListReplies(ctx, first.ID)
		require.NoError(t, err)
		require.Len(t, replies, 2)
		assert.Equal(t, "r1", replies[0].Content)
		assert.Equal(t, "r2", replies[1].Content)
	})

	t.Run("reply counts", func(t *testing.T) {
		counts, err := repo.CountReplies(ctx, []uint{first.ID, pinned.ID})
		require.NoError(t, err)
		assert.Equal(t, int64(2), counts[first.ID])
		assert.Equal(t, int64(0), counts[pinned.ID])
	})

	t.Run("deleting parent removes replies", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, first.ID))
		replies, err := repo.ListReplies(ctx, first.ID)
		require.NoError(t, err)
		assert.Empty(t, replies)
	})
}

func TestCommentRepository_UpdateOnlyEditableFields(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewCommentRepository(db)
	ctx := context.Background()
	alice := testutil.CreateUser(t, db, "alice", false)

	c := &models.Comment{UserID: alice.ID, Page: "trip1", Content: "before"}
	require.NoError(t, repo.Create(ctx, c))

	c.Content = "after"
	c.Page = "hijacked"
	require.NoError(t, repo.Update(ctx, c))

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Content)
	assert.Equal(t, "trip1", got.Page)
}

func TestCommentRepository_CreateClaiming(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewCommentRepository(db)
	stats := NewPageStatRepository(db)
	ctx := context.Background()
	alice := testutil.CreateUser(t, db, "alice", false)
	bob := testutil.CreateUser(t, db, "bob", false)

	require.NoError(t, repo.CreateClaiming(ctx, &models.Comment{Page: "legacy1", UserID: alice.ID, Content: "first"}))
	stat, err := stats.Get(ctx, "legacy1")
	require.NoError(t, err)
	assert.True(t, stat.IsOwnedBy(alice.ID))

	// The owner can keep starting threads.
	require.NoError(t, repo.CreateClaiming(ctx, &models.Comment{Page: "legacy1", UserID: alice.ID, Content: "second"}))

	err = repo.CreateClaiming(ctx, &models.Comment{Page: "legacy1", UserID: bob.ID, Content: "mine now"})
	assert.ErrorIs(t, err, ErrPageOwned)
	n, err := repo.CountByUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCommentRepository_CreateClaiming_FailedInsertKeepsPageUnclaimed(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewCommentRepository(db)
	stats := NewPageStatRepository(db)
	ctx := context.Background()
	alice := testutil.CreateUser(t, db, "alice", false)

	existing := &models.Comment{Page: "elsewhere", UserID: alice.ID, Content: "taken id"}
	require.NoError(t, repo.Create(ctx, existing))

	// Reusing the primary key makes the insert fail after the claim.
	err := repo.CreateClaiming(ctx, &models.Comment{ID: existing.ID, Page: "legacy2", UserID: alice.ID, Content: "dup"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPageOwned)

	_, err = stats.Get(ctx, "legacy2")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
