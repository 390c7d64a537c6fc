package models

import "time"

// VerificationType scopes what an email code may be used for.
type VerificationType string

const (
	VerificationRegister      VerificationType = "register"
	VerificationLogin         VerificationType = "login"
	VerificationResetPassword VerificationType = "reset_password"
	VerificationBindEmail     VerificationType = "bind_email"
)

// Valid reports whether t is a known verification type.
func (t VerificationType) Valid() bool {
	switch t {
	case VerificationRegister, VerificationLogin, VerificationResetPassword, VerificationBindEmail:
		return true
	}
	return false
}

// EmailVerificationCode is a six digit code mailed to an address.
type EmailVerificationCode struct {
	ID        uint             `gorm:"primaryKey" json:"id"`
	Email     string           `gorm:"size:254;not null;index:idx_verification_lookup" json:"email"`
	Code      string           `gorm:"size:6;not null;index:idx_verification_lookup" json:"-"`
	Type      VerificationType `gorm:"size:20;not null;index:idx_verification_lookup" json:"type"`
	IsUsed    bool             `gorm:"not null;default:false" json:"is_used"`
	ExpiresAt time.Time        `gorm:"not null" json:"expires_at"`
	UserID    *uint            `gorm:"index" json:"user_id"`
	IPAddress string           `gorm:"size:64" json:"-"`
	CreatedAt time.Time        `json:"created_at"`
	UsedAt    *time.Time       `json:"used_at"`
}

// TableName pins the verification code table name.
func (EmailVerificationCode) TableName() string {
	return "email_verification_codes"
}

// Usable reports whether the code is unused and not expired at now.
func (c *EmailVerificationCode) Usable(now time.Time) bool {
	return !c.IsUsed && now.Before(c.ExpiresAt)
}
