package models

import (
	"encoding/json"
	"time"
)

// TripStatus is the editorial state of a trip plan.
type TripStatus string

const (
	TripStatusDraft     TripStatus = "draft"
	TripStatusPublished TripStatus = "published"
)

// Valid reports whether s is a known status.
func (s TripStatus) Valid() bool {
	return s == TripStatusDraft || s == TripStatusPublished
}

// TripVisibility controls who may read a trip plan.
type TripVisibility string

const (
	TripVisibilityPrivate TripVisibility = "private"
	TripVisibilityPublic  TripVisibility = "public"
)

// Valid reports whether v is a known visibility.
func (v TripVisibility) Valid() bool {
	return v == TripVisibilityPrivate || v == TripVisibilityPublic
}

// Trip is a user-authored itinerary. Slug doubles as the page key of its comments and stats.
type Trip struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	Slug            string          `gorm:"size:100;uniqueIndex;not null" json:"slug"`
	Title           string          `gorm:"size:200;not null" json:"title"`
	Description     string          `gorm:"type:text" json:"description"`
	Icon            string          `gorm:"size:50" json:"icon"`
	AuthorID        uint            `gorm:"not null;index" json:"author_id"`
	Author          *User           `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE" json:"-"`
	StartDate       *time.Time      `json:"start_date"`
	EndDate         *time.Time      `json:"end_date"`
	Status          TripStatus      `gorm:"size:20;not null;default:'draft'" json:"status"`
	Visibility      TripVisibility  `gorm:"size:20;not null;default:'private';index" json:"visibility"`
	Config          json.RawMessage `gorm:"type:jsonb" json:"config"`
	Overview        json.RawMessage `gorm:"type:jsonb" json:"overview"`
	ThemeColor      string          `gorm:"size:20" json:"theme_color"`
	BackgroundMusic string          `gorm:"size:500" json:"background_music"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// IsPublic reports whether anonymous visitors may read the trip.
func (t *Trip) IsPublic() bool {
	return t.Visibility == TripVisibilityPublic
}

// TripView is the API representation of a trip.
type TripView struct {
	*Trip
	AuthorInfo PublicUser `json:"author"`
	InTree     bool       `json:"in_trip_tree"`
	IsOwner    bool       `json:"is_owner"`
}
