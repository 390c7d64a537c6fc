package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents an account. Email is optional because QQ sign-ups may not have one.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"uniqueIndex;size:150;not null" json:"username"`
	Email     *string        `gorm:"uniqueIndex;size:254" json:"email,omitempty"`
	Password  string         `gorm:"not null" json:"-"`
	IsAdmin   bool           `gorm:"default:false;not null" json:"is_admin"`
	IsActive  bool           `gorm:"default:true;not null" json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Profile *UserProfile `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"profile,omitempty"`
}

// EmailValue returns the email or an empty string.
func (u *User) EmailValue() string {
	if u == nil || u.Email == nil {
		return ""
	}
	return *u.Email
}

// UserProfile holds the editable public profile of a user.
type UserProfile struct {
	ID               uint      `gorm:"primaryKey" json:"-"`
	UserID           uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	Avatar           string    `gorm:"size:500" json:"avatar"`
	Bio              string    `gorm:"type:text" json:"bio"`
	Tags             string    `gorm:"size:500" json:"tags"`
	VisitedCountries string    `gorm:"size:1000" json:"visited_countries"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName pins the profile table name.
func (UserProfile) TableName() string {
	return "user_profiles"
}

// PublicUser is the author summary embedded in comment and trip responses.
type PublicUser struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// Public returns the author summary for u.
func (u *User) Public() PublicUser {
	if u == nil {
		return PublicUser{}
	}
	p := PublicUser{ID: u.ID, Username: u.Username}
	if u.Profile != nil {
		p.Avatar = u.Profile.Avatar
	}
	return p
}

// UserStats are the counters behind a user's level.
type UserStats struct {
	TripsCount       int64 `json:"trips_count"`
	PublicTripsCount int64 `json:"public_trips_count"`
	CommentsCount    int64 `json:"comments_count"`
	Level            Level `json:"level"`
}

// ProfileView is the API representation of a profile with its computed level.
type ProfileView struct {
	Avatar           string `json:"avatar"`
	Bio              string `json:"bio"`
	Tags             string `json:"tags"`
	VisitedCountries string `json:"visited_countries"`
	Level            Level  `json:"level"`
}

// UserView is the API representation of an account. Email and QQBound are
// only filled for the account owner and administrators.
type UserView struct {
	ID         uint        `json:"id"`
	Username   string      `json:"username"`
	Email      string      `json:"email,omitempty"`
	IsAdmin    bool        `json:"is_admin"`
	DateJoined time.Time   `json:"date_joined"`
	Profile    ProfileView `json:"profile"`
	QQBound    *bool       `json:"qq_bound,omitempty"`
}
