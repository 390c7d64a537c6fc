package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"roamio/internal/models"
	"roamio/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTripService_CreateTrip_Validation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")
	ctx := context.Background()
	user := testutil.CreateUser(t, env.db, "planner", false)
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   CreateTripInput
	}{
		{"missing title", CreateTripInput{UserID: user.ID, Title: "  "}},
		{"bad status", CreateTripInput{UserID: user.ID, Title: "t", Status: "archived"}},
		{"bad visibility", CreateTripInput{UserID: user.ID, Title: "t", Visibility: "friends"}},
		{"end before start", CreateTripInput{UserID: user.ID, Title: "t", StartDate: &start, EndDate: ptr(start.AddDate(0, 0, -1))}},
		{"config not an object", CreateTripInput{UserID: user.ID, Title: "t", Config: json.RawMessage(`[1,2]`)}},
		{"bad slug", CreateTripInput{UserID: user.ID, Title: "t", Slug: "Has Spaces"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.trip.CreateTrip(ctx, tt.in)
			assertValidationError(t, err)
		})
	}
}

func TestTripService_CreateTrip_Defaults(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")
	ctx := context.Background()
	user := testutil.CreateUser(t, env.db, "planner", false)

	trip, err := env.trip.CreateTrip(ctx, CreateTripInput{UserID: user.ID, Title: "Kunming"})
	require.NoError(t, err)
	assert.Len(t, trip.Slug, slugLength)
	assert.Equal(t, models.TripStatusDraft, trip.Status)
	assert.Equal(t, models.TripVisibilityPrivate, trip.Visibility)
	assert.JSONEq(t, `{}`, string(trip.Config))
	assert.True(t, trip.IsOwner)
	assert.Equal(t, user.Username, trip.AuthorInfo.Username)

	stat, err := env.stats.Get(ctx, trip.Slug)
	require.NoError(t, err)
	assert.True(t, stat.IsOwnedBy(user.ID), "the author owns the trip page")
}

func TestTripService_DistinctSlugsForSameTitle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")
	ctx := context.Background()
	user := testutil.CreateUser(t, env.db, "planner", false)

	a, err := env.trip.CreateTrip(ctx, CreateTripInput{UserID: user.ID, Title: "Weekend"})
	require.NoError(t, err)
	b, err := env.trip.CreateTrip(ctx, CreateTripInput{UserID: user.ID, Title: "Weekend"})
	require.NoError(t, err)

	assert.NotEmpty(t, a.Slug)
	assert.NotEmpty(t, b.Slug)
	assert.NotEqual(t, a.Slug, b.Slug)
}

func TestTripService_CustomSlugConflicts(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")
	ctx := context.Background()
	alice := testutil.CreateUser(t, env.db, "alice", false)
	bob := testutil.CreateUser(t, env.db, "bob", false)

	_, err := env.trip.CreateTrip(ctx, CreateTripInput{UserID: alice.ID, Title: "Lijiang", Slug: "lijiang"})
	require.NoError(t, err)

	_, err = env.trip.CreateTrip(ctx, CreateTripInput{UserID: bob.ID, Title: "Lijiang", Slug: "lijiang"})
	assertConflictError(t, err)

	_, err = env.stats.ClaimOwner(ctx, "dali", alice.ID)
	require.NoError(t, err)
	_, err = env.trip.CreateTrip(ctx, CreateTripInput{UserID: bob.ID, Title: "Dali", Slug: "dali"})
	assertConflictError(t, err)

	_, err = env.trip.CreateTrip(ctx, CreateTripInput{UserID: alice.ID, Title: "Dali", Slug: "dali"})
	require.NoError(t, err, "the page owner may turn a legacy page into a trip")
}

func TestTripService_VisibilityGate(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")
	ctx := context.Background()
	author := testutil.CreateUser(t, env.db, "author", false)
	stranger := testutil.CreateUser(t, env.db, "stranger", false)
	admin := testutil.CreateUser(t, env.db, "admin", true)

	private, err := env.trip.CreateTrip(ctx, CreateTripInput{UserID: author.ID, Title: "Private"})
	require.NoError(t, err)
	public, err := env.trip.CreateTrip(ctx, CreateTripInput{
		UserID: author.ID, Title: "Public", Visibility: models.TripVisibilityPublic, Status: models.TripStatusPublished,
	})
	require.NoError(t, err)

	slugs := func(views []models.TripView) []string {
		out := make([]string, 0, len(views))
		for _, v := range views {
			out = append(out, v.Slug)
		}
		return out
	}

	anon, total, err := env.trip.ListTrips(ctx, ListTripsInput{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, []string{public.Slug}, slugs(anon))

	own, _, err := env.trip.ListTrips(ctx, ListTripsInput{ViewerID: author.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{public.Slug, private.Slug}, slugs(own))

	all, _, err := env.trip.ListTrips(ctx, ListTripsInput{ViewerID: admin.ID})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = env.trip.GetTrip(ctx, private.Slug, stranger.ID)
	assertNotFoundError(t, err)
	_, err = env.trip.GetTrip(ctx, private.Slug, 0)
	assertNotFoundError(t, err)

	mine, err := env.trip.MyTrips(ctx, author.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestTripService_UpdateAndDelete(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")
	ctx := context.Background()
	author := testutil.CreateUser(t, env.db, "author", false)
	other := testutil.CreateUser(t, env.db, "other", false)

	trip, err := env.trip.CreateTrip(ctx, CreateTripInput{UserID: author.ID, Title: "Before", Visibility: models.TripVisibilityPublic})
	require.NoError(t, err)

	_, err = env.trip.UpdateTrip(ctx, UpdateTripInput{UserID: other.ID, Slug: trip.Slug, Title: ptr("Hijacked")})
	assertUnauthorizedError(t, err)

	updated, err := env.trip.UpdateTrip(ctx, UpdateTripInput{
		UserID:   author.ID,
		Slug:     trip.Slug,
		Title:    ptr("After"),
		Overview: json.RawMessage(`{"days":3}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "After", updated.Title)
	assert.JSONEq(t, `{"days":3}`, string(updated.Overview))
	assert.Equal(t, trip.Slug, updated.Slug)

	_, err = env.comment.CreateComment(ctx, CreateCommentInput{UserID: author.ID, Page: trip.Slug, Content: "log"})
	require.NoError(t, err)

	assertUnauthorizedError(t, env.trip.DeleteTrip(ctx, other.ID, trip.Slug))
	require.NoError(t, env.trip.DeleteTrip(ctx, author.ID, trip.Slug))

	_, err = env.trip.GetTrip(ctx, trip.Slug, author.ID)
	assertNotFoundError(t, err)
	var count int64
	require.NoError(t, env.db.Model(&models.Comment{}).Where("page = ?", trip.Slug).Count(&count).Error)
	assert.Zero(t, count)
}

func TestTripService_CloneTrip(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")
	ctx := context.Background()
	author := testutil.CreateUser(t, env.db, "author", false)
	fan := testutil.CreateUser(t, env.db, "fan", false)

	src, err := env.trip.CreateTrip(ctx, CreateTripInput{
		UserID:     author.ID,
		Title:      "Changsha",
		Visibility: models.TripVisibilityPublic,
		Status:     models.TripStatusPublished,
		Config:     json.RawMessage(`{"theme":"red"}`),
	})
	require.NoError(t, err)
	_, err = env.comment.CreateComment(ctx, CreateCommentInput{UserID: author.ID, Page: src.Slug, Content: "day 1"})
	require.NoError(t, err)

	clone, err := env.trip.CloneTrip(ctx, fan.ID, src.Slug)
	require.NoError(t, err)
	assert.NotEqual(t, src.Slug, clone.Slug)
	assert.Equal(t, "Changsha"+cloneSuffix, clone.Title)
	assert.Equal(t, fan.ID, clone.AuthorID)
	assert.Equal(t, models.TripStatusDraft, clone.Status)
	assert.Equal(t, models.TripVisibilityPrivate, clone.Visibility)
	assert.JSONEq(t, `{"theme":"red"}`, string(clone.Config))

	comments, _, err := env.comment.ListComments(ctx, ListCommentsInput{Page: clone.Slug})
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestTripService_TreeRequiresAdminWithoutFlag(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")
	ctx := context.Background()
	author := testutil.CreateUser(t, env.db, "author", false)
	admin := testutil.CreateUser(t, env.db, "admin", true)

	trip, err := env.trip.CreateTrip(ctx, CreateTripInput{UserID: author.ID, Title: "Qujing", Visibility: models.TripVisibilityPublic})
	require.NoError(t, err)

	_, _, err = env.trip.AttachToTree(ctx, author.ID, trip.Slug)
	assertUnauthorizedError(t, err)

	view, created, err := env.trip.AttachToTree(ctx, admin.ID, trip.Slug)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, view.InTree)

	_, created, err = env.trip.AttachToTree(ctx, admin.ID, trip.Slug)
	require.NoError(t, err)
	assert.False(t, created, "attaching twice is a no-op")

	view, err = env.trip.DetachFromTree(ctx, admin.ID, trip.Slug)
	require.NoError(t, err)
	assert.False(t, view.InTree)

	_, err = env.trip.DetachFromTree(ctx, admin.ID, trip.Slug)
	assertNotFoundError(t, err)
}

func TestTripService_TreeOpenFlag(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, FlagOpenTripTree+"=on")
	ctx := context.Background()
	author := testutil.CreateUser(t, env.db, "author", false)
	other := testutil.CreateUser(t, env.db, "other", false)

	private, err := env.trip.CreateTrip(ctx, CreateTripInput{UserID: author.ID, Title: "Hidden"})
	require.NoError(t, err)
	_, _, err = env.trip.AttachToTree(ctx, author.ID, private.Slug)
	assertValidationError(t, err)

	public, err := env.trip.CreateTrip(ctx, CreateTripInput{UserID: author.ID, Title: "Shown", Visibility: models.TripVisibilityPublic})
	require.NoError(t, err)

	_, _, err = env.trip.AttachToTree(ctx, other.ID, public.Slug)
	assertUnauthorizedError(t, err)

	_, created, err := env.trip.AttachToTree(ctx, author.ID, public.Slug)
	require.NoError(t, err)
	assert.True(t, created)

	pages, _, err := env.pageSvc.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "Shown", pages[0].Name)
}
