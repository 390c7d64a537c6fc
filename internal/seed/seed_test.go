package seed

import (
	"context"
	"testing"

	"roamio/internal/models"
	"roamio/internal/service"
	"roamio/internal/testutil"
	"roamio/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

func TestSlugPart(t *testing.T) {
	cases := map[string]string{
		"San Francisco": "san-francisco",
		"  Ōsaka ":      "saka",
		"!!!":           "trip",
		"New_York-2":    "new-york-2",
	}
	for in, want := range cases {
		if got := slugPart(in); got != want {
			t.Fatalf("slugPart(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFactory_BuildTripHasValidSlug(t *testing.T) {
	f := NewFactory(nil, SeedOptions{DryRun: true, RandSeed: 42})
	author := &models.User{ID: 1}
	for i := 0; i < 20; i++ {
		trip := f.BuildTrip(author)
		if err := validation.ValidateSlug(trip.Slug); err != nil {
			t.Fatalf("generated slug %q is invalid: %v", trip.Slug, err)
		}
		if trip.StartDate == nil || trip.EndDate == nil || trip.EndDate.Before(*trip.StartDate) {
			t.Fatalf("trip dates out of order: %v %v", trip.StartDate, trip.EndDate)
		}
		if len(trip.Overview) == 0 || len(trip.Config) == 0 {
			t.Fatalf("trip %s missing overview or config", trip.Slug)
		}
	}
}

func TestSeeder_DryRunWritesNothing(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	s := NewSeeder(db, SeedOptions{DryRun: true, SkipBcrypt: true, RandSeed: 7})

	res, err := s.Seed(context.Background(), Options{NumUsers: 3, NumTrips: 4, CommentsPerPage: 2})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if res.Users != 3 || res.Trips != 4 {
		t.Fatalf("unexpected result: %+v", res)
	}
	var users int64
	db.Model(&models.User{}).Count(&users)
	if users != 0 {
		t.Fatalf("dry run wrote %d users", users)
	}
}

func TestSeeder_Seed(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	s := NewSeeder(db, SeedOptions{SkipBcrypt: true, RandSeed: 99})
	ctx := context.Background()

	res, err := s.Seed(ctx, Options{NumUsers: 4, NumTrips: 6, CommentsPerPage: 3})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}

	var users, trips, comments, pages int64
	db.Model(&models.User{}).Count(&users)
	db.Model(&models.Trip{}).Count(&trips)
	db.Model(&models.Comment{}).Count(&comments)
	db.Model(&models.PageStat{}).Count(&pages)
	if users != 4 || trips != 6 {
		t.Fatalf("expected 4 users and 6 trips, got %d and %d", users, trips)
	}
	if comments != int64(res.Comments) || comments < 15 {
		t.Fatalf("expected at least the legacy page comments, got %d (result %d)", comments, res.Comments)
	}
	if pages != 5 {
		t.Fatalf("expected 5 legacy page rows, got %d", pages)
	}

	var replies []models.Comment
	db.Where("parent_id IS NOT NULL").Find(&replies)
	for _, r := range replies {
		var parent models.Comment
		if err := db.First(&parent, *r.ParentID).Error; err != nil {
			t.Fatalf("reply %d points at missing parent: %v", r.ID, err)
		}
		if parent.ParentID != nil || parent.Page != r.Page {
			t.Fatalf("reply %d must answer a top-level comment on the same page", r.ID)
		}
	}

	var threads []models.Comment
	db.Where("parent_id IS NULL").Find(&threads)
	for _, c := range threads {
		var trip *models.Trip
		var found models.Trip
		if err := db.Where("slug = ?", c.Page).First(&found).Error; err == nil {
			trip = &found
		}
		var stat models.PageStat
		if err := db.Where("page = ?", c.Page).First(&stat).Error; err != nil && trip == nil {
			t.Fatalf("top-level comment %d on unknown page %s", c.ID, c.Page)
		}
		owner := service.PageOwnerID(trip, &stat)
		if owner == nil || *owner != c.UserID {
			t.Fatalf("top-level comment %d on %s by user %d, page owner %v", c.ID, c.Page, c.UserID, owner)
		}
	}

	var user models.User
	db.Preload("Profile").First(&user)
	if user.Profile == nil || user.Profile.Avatar == "" {
		t.Fatalf("seeded user %s has no profile", user.Username)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(DemoPassword)); err != nil {
		t.Fatalf("seeded password does not match: %v", err)
	}

	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	db.Model(&models.User{}).Count(&users)
	db.Model(&models.Comment{}).Count(&comments)
	if users != 0 || comments != 0 {
		t.Fatalf("ClearAll left %d users and %d comments", users, comments)
	}
}
