package testutil

import (
	"context"
	"fmt"
	"testing"

	"roamio/internal/config"
	"roamio/internal/database"
	"roamio/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewSQLiteDB opens a private in-memory database with the full schema applied.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	// One connection keeps every query on the same in-memory database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	cfg := &config.Config{Env: "test", DBDriver: "sqlite", DBSchemaMode: database.SchemaModeAuto}
	if err := database.ApplySchema(context.Background(), db, cfg); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}

// CreateUser inserts a user with a profile and the password "password123".
func CreateUser(t *testing.T, db *gorm.DB, username string, admin bool) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	email := fmt.Sprintf("%s@example.com", username)
	user := &models.User{
		Username: username,
		Email:    &email,
		Password: string(hash),
		IsAdmin:  admin,
		IsActive: true,
		Profile:  &models.UserProfile{},
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

// CreateTrip inserts a trip authored by authorID whose slug is also its page key.
func CreateTrip(t *testing.T, db *gorm.DB, authorID uint, slug string, visibility models.TripVisibility) *models.Trip {
	t.Helper()
	trip := &models.Trip{
		Slug:       slug,
		Title:      "Trip " + slug,
		AuthorID:   authorID,
		Status:     models.TripStatusPublished,
		Visibility: visibility,
		Config:     []byte(`{}`),
		Overview:   []byte(`{}`),
	}
	if err := db.Omit("Author").Create(trip).Error; err != nil {
		t.Fatalf("create trip %s: %v", slug, err)
	}
	return trip
}
