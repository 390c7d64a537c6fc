package service

import (
	"testing"

	"roamio/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestTopLevelGate(t *testing.T) {
	t.Parallel()

	const owner, other uint = 1, 2
	trip := &models.Trip{Slug: "abc", AuthorID: owner}
	owned := &models.PageStat{Page: "trip1", OwnerID: ptr(owner)}
	ownerless := &models.PageStat{Page: "trip1"}

	tests := []struct {
		name      string
		requester uint
		admin     bool
		trip      *models.Trip
		stat      *models.PageStat
		want      TopLevelDecision
	}{
		{"anonymous", 0, false, nil, nil, TopLevelDenied},
		{"admin on foreign trip", other, true, trip, nil, TopLevelAllowed},
		{"trip author", owner, false, trip, nil, TopLevelAllowed},
		{"non-owner on trip page", other, false, trip, nil, TopLevelDenied},
		{"trip wins over stat owner", other, false, trip, &models.PageStat{OwnerID: ptr(other)}, TopLevelDenied},
		{"legacy page without stats", other, false, nil, nil, TopLevelClaim},
		{"ownerless legacy page", other, false, nil, ownerless, TopLevelClaim},
		{"legacy page owner", owner, false, nil, owned, TopLevelAllowed},
		{"legacy page non-owner", other, false, nil, owned, TopLevelDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, TopLevelGate(tt.requester, tt.admin, tt.trip, tt.stat))
		})
	}
}

func TestCanDeleteComment(t *testing.T) {
	t.Parallel()

	const author, tripOwner, stranger uint = 1, 2, 3
	top := &models.Comment{ID: 1, UserID: author}
	reply := &models.Comment{ID: 2, UserID: author, ParentID: ptr(uint(1))}

	tests := []struct {
		name       string
		comment    *models.Comment
		requester  uint
		admin      bool
		tripAuthor *uint
		want       bool
	}{
		{"author deletes top-level", top, author, false, nil, true},
		{"author deletes reply", reply, author, false, ptr(tripOwner), true},
		{"admin deletes anything", reply, stranger, true, nil, true},
		{"trip owner deletes reply", reply, tripOwner, false, ptr(tripOwner), true},
		{"trip owner cannot delete top-level", top, tripOwner, false, ptr(tripOwner), false},
		{"stranger cannot delete reply", reply, stranger, false, ptr(tripOwner), false},
		{"reply on legacy page", reply, tripOwner, false, nil, false},
		{"anonymous", top, 0, false, nil, false},
		{"nil comment", nil, author, true, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CanDeleteComment(tt.comment, tt.requester, tt.admin, tt.tripAuthor))
		})
	}
}

func TestCanPinComment(t *testing.T) {
	t.Parallel()

	top := &models.Comment{ID: 1, UserID: 5}
	reply := &models.Comment{ID: 2, UserID: 5, ParentID: ptr(uint(1))}

	assert.True(t, CanPinComment(top, 1, false, ptr(uint(1))))
	assert.True(t, CanPinComment(top, 9, true, nil))
	assert.False(t, CanPinComment(top, 5, false, ptr(uint(1))), "comment author is not the page owner")
	assert.False(t, CanPinComment(reply, 1, true, ptr(uint(1))), "replies are never pinned")
	assert.False(t, CanPinComment(top, 1, false, nil))
}

func TestPageOwnerID(t *testing.T) {
	t.Parallel()

	assert.Nil(t, PageOwnerID(nil, nil))
	assert.Equal(t, uint(4), *PageOwnerID(nil, &models.PageStat{OwnerID: ptr(uint(4))}))
	assert.Equal(t, uint(7), *PageOwnerID(&models.Trip{AuthorID: 7}, &models.PageStat{OwnerID: ptr(uint(4))}))
}

func TestTripPermissions(t *testing.T) {
	t.Parallel()

	private := &models.Trip{AuthorID: 1, Visibility: models.TripVisibilityPrivate}
	public := &models.Trip{AuthorID: 1, Visibility: models.TripVisibilityPublic}

	assert.True(t, CanViewTrip(public, 0, false))
	assert.False(t, CanViewTrip(private, 0, false))
	assert.False(t, CanViewTrip(private, 2, false))
	assert.True(t, CanViewTrip(private, 1, false))
	assert.True(t, CanViewTrip(private, 2, true))

	assert.True(t, CanModifyTrip(public, 1, false))
	assert.False(t, CanModifyTrip(public, 2, false))
	assert.True(t, CanModifyTrip(public, 2, true))

	assert.False(t, CanManageTree(public, 1, false, false), "authors need the flag")
	assert.True(t, CanManageTree(public, 1, false, true))
	assert.False(t, CanManageTree(public, 2, false, true), "flag does not cover other authors")
	assert.True(t, CanManageTree(public, 2, true, false))
	assert.False(t, CanManageTree(nil, 1, true, true))
}

func TestCanEditComment(t *testing.T) {
	t.Parallel()

	c := &models.Comment{UserID: 3}
	assert.True(t, CanEditComment(c, 3))
	assert.False(t, CanEditComment(c, 4))
	assert.False(t, CanEditComment(c, 0))
}
