package models

import "time"

// ProviderQQ identifies QQ social accounts.
const ProviderQQ = "qq"

// SocialAccount links a third-party identity to a local user.
type SocialAccount struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Provider  string    `gorm:"size:20;not null;uniqueIndex:idx_social_provider_uid;uniqueIndex:idx_social_user_provider" json:"provider"`
	UID       string    `gorm:"size:100;not null;uniqueIndex:idx_social_provider_uid" json:"uid"`
	UnionID   string    `gorm:"size:100" json:"-"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_social_user_provider" json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Nickname  string    `gorm:"size:100" json:"nickname"`
	AvatarURL string    `gorm:"size:500" json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
