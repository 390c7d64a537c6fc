package models

import "time"

// PageStat holds the counters of a page key. One row per page.
type PageStat struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Page      string    `gorm:"size:100;uniqueIndex;not null" json:"page"`
	Views     int64     `gorm:"not null;default:0" json:"views"`
	Likes     int64     `gorm:"not null;default:0" json:"likes"`
	CheckedIn bool      `gorm:"not null;default:false" json:"checked_in"`
	OwnerID   *uint     `gorm:"index" json:"owner_id"`
	Owner     *User     `gorm:"foreignKey:OwnerID;constraint:OnDelete:SET NULL" json:"-"`
	Listed    bool      `gorm:"not null;default:false;index" json:"listed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOwnedBy reports whether userID is the explicit owner of the page.
func (p *PageStat) IsOwnedBy(userID uint) bool {
	return p != nil && p.OwnerID != nil && *p.OwnerID == userID
}

// PageView is the API representation of a page.
type PageView struct {
	Page        string `json:"page"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Views       int64  `json:"views"`
	Likes       int64  `json:"likes"`
	CheckedIn   bool   `json:"checked_in"`
	Listed      bool   `json:"listed"`
	OwnerID     *uint  `json:"owner_id"`
	TripSlug    string `json:"trip_slug,omitempty"`
}

// ListedPage is a row of the publicly_listed_pages view.
type ListedPage struct {
	ID              uint      `json:"id"`
	Page            string    `json:"page"`
	Views           int64     `json:"views"`
	Likes           int64     `json:"likes"`
	CheckedIn       bool      `json:"checked_in"`
	OwnerID         *uint     `json:"owner_id"`
	Listed          bool      `json:"listed"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	TripID          *uint     `json:"trip_id"`
	TripTitle       *string   `json:"trip_title"`
	TripDescription *string   `json:"trip_description"`
}

// TableName maps the view.
func (ListedPage) TableName() string {
	return "publicly_listed_pages"
}
