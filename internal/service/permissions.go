package service

import "roamio/internal/models"

// TopLevelDecision is the outcome of the top-level comment gate.
type TopLevelDecision int

const (
	TopLevelDenied TopLevelDecision = iota
	TopLevelAllowed
	// TopLevelClaim allows the comment once the requester has been recorded as
	// owner of an ownerless legacy page.
	TopLevelClaim
)

// TopLevelGate decides whether requester may open a thread on a page. trip is the
// trip whose slug equals the page key, or nil for legacy pages. stat may be nil
// when the page has no statistics row yet.
func TopLevelGate(requesterID uint, isAdmin bool, trip *models.Trip, stat *models.PageStat) TopLevelDecision {
	if requesterID == 0 {
		return TopLevelDenied
	}
	if isAdmin {
		return TopLevelAllowed
	}
	if trip != nil {
		if trip.AuthorID == requesterID {
			return TopLevelAllowed
		}
		return TopLevelDenied
	}
	if stat == nil || stat.OwnerID == nil {
		return TopLevelClaim
	}
	if stat.IsOwnedBy(requesterID) {
		return TopLevelAllowed
	}
	return TopLevelDenied
}

// CanDeleteComment: authors and admins always; the trip owner of the page may
// also remove replies. tripAuthorID is nil on legacy pages.
func CanDeleteComment(comment *models.Comment, requesterID uint, isAdmin bool, tripAuthorID *uint) bool {
	if comment == nil || requesterID == 0 {
		return false
	}
	if isAdmin || comment.UserID == requesterID {
		return true
	}
	return comment.IsReply() && tripAuthorID != nil && *tripAuthorID == requesterID
}

// CanEditComment allows only the author.
func CanEditComment(comment *models.Comment, requesterID uint) bool {
	return comment != nil && requesterID != 0 && comment.UserID == requesterID
}

// PageOwnerID is the trip author when a trip owns the page, else the explicit owner.
func PageOwnerID(trip *models.Trip, stat *models.PageStat) *uint {
	if trip != nil {
		id := trip.AuthorID
		return &id
	}
	if stat != nil {
		return stat.OwnerID
	}
	return nil
}

// CanPinComment allows the page owner and admins to pin top-level comments.
func CanPinComment(comment *models.Comment, requesterID uint, isAdmin bool, pageOwnerID *uint) bool {
	if comment == nil || requesterID == 0 || comment.IsReply() {
		return false
	}
	if isAdmin {
		return true
	}
	return pageOwnerID != nil && *pageOwnerID == requesterID
}

// CanViewTrip hides private trips from everyone but the author and admins.
func CanViewTrip(trip *models.Trip, requesterID uint, isAdmin bool) bool {
	if trip == nil {
		return false
	}
	if trip.IsPublic() || isAdmin {
		return true
	}
	return requesterID != 0 && trip.AuthorID == requesterID
}

// CanModifyTrip allows the author and admins to edit or delete.
func CanModifyTrip(trip *models.Trip, requesterID uint, isAdmin bool) bool {
	if trip == nil || requesterID == 0 {
		return false
	}
	return isAdmin || trip.AuthorID == requesterID
}

// CanManageTree gates attach and detach. Authors qualify only while the
// open_trip_tree flag is on for them.
func CanManageTree(trip *models.Trip, requesterID uint, isAdmin, openTree bool) bool {
	if trip == nil || requesterID == 0 {
		return false
	}
	if isAdmin {
		return true
	}
	return openTree && trip.AuthorID == requesterID
}
