package database

import "roamio/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
// Order matters for AutoMigrate: referenced tables come first.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.UserProfile{},
		&models.Trip{},
		&models.PageStat{},
		&models.Comment{},
		&models.SocialAccount{},
		&models.EmailVerificationCode{},
	}
}
