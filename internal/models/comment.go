package models

import "time"

// Comment is a message posted on a page. ParentID nil marks a top-level comment.
type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	ParentID  *uint     `gorm:"index" json:"parent_id"`
	Parent    *Comment  `gorm:"foreignKey:ParentID;constraint:OnDelete:CASCADE" json:"-"`
	Content   string    `gorm:"type:text;not null;default:''" json:"content"`
	Image     *string   `gorm:"size:500" json:"image"`
	Video     *string   `gorm:"size:500" json:"video"`
	Page      string    `gorm:"size:100;not null;index" json:"page"`
	IsPinned  bool      `gorm:"default:false;not null" json:"is_pinned"`
	Timestamp time.Time `gorm:"autoCreateTime;index" json:"timestamp"`
}

// IsReply reports whether the comment answers another comment.
func (c *Comment) IsReply() bool {
	return c.ParentID != nil
}

// HasMedia reports whether an image or a video is attached.
func (c *Comment) HasMedia() bool {
	return (c.Image != nil && *c.Image != "") || (c.Video != nil && *c.Video != "")
}

// CommentView is the API representation of a comment.
type CommentView struct {
	ID           uint       `json:"id"`
	User         PublicUser `json:"user"`
	ParentID     *uint      `json:"parent_id"`
	Content      string     `json:"content"`
	Image        *string    `json:"image"`
	Video        *string    `json:"video"`
	Page         string     `json:"page"`
	IsPinned     bool       `json:"is_pinned"`
	Timestamp    time.Time  `json:"timestamp"`
	RepliesCount int64      `json:"replies_count"`
	CanDelete    bool       `json:"can_delete"`
}
