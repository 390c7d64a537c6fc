// Package seed loads the legacy page fixture and builds demo data for
// development databases.
package seed

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"roamio/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DemoPassword is the password of every generated user.
const DemoPassword = "password123"

// SeedOptions tune how the Factory builds rows.
type SeedOptions struct {
	// DryRun assigns synthetic IDs instead of writing to the database.
	DryRun bool
	// SkipBcrypt stores DemoPassword hashed with the minimum cost.
	SkipBcrypt bool
	// MaxDays bounds how far back generated timestamps go.
	MaxDays int
	// RandSeed makes gofakeit output reproducible when non-zero.
	RandSeed int64
}

// Factory builds domain entities and persists them to the database.
type Factory struct {
	db   *gorm.DB
	opts SeedOptions
	rng  *rand.Rand
	// synthetic ID counter when running in DryRun mode
	nextID uint
}

// NewFactory creates a new Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB, opts SeedOptions) *Factory {
	seed := opts.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gofakeit.Seed(seed)
	return &Factory{db: db, opts: opts, rng: rand.New(rand.NewSource(seed)), nextID: 1000}
}

func (f *Factory) assignID() uint {
	f.nextID++
	return f.nextID
}

// pastTime spreads creation dates over the configured window.
func (f *Factory) pastTime() time.Time {
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 90
	}
	back := time.Duration(f.rng.Intn(maxDays))*24*time.Hour +
		time.Duration(f.rng.Intn(24))*time.Hour +
		time.Duration(f.rng.Intn(60))*time.Minute
	return time.Now().Add(-back)
}

func (f *Factory) hashPassword() (string, error) {
	cost := bcrypt.DefaultCost
	if f.opts.SkipBcrypt {
		cost = bcrypt.MinCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// CreateUser constructs and persists a user with a travel profile.
// Optional override functions may modify the generated user before saving.
func (f *Factory) CreateUser(overrides ...func(*models.User)) (*models.User, error) {
	hashed, err := f.hashPassword()
	if err != nil {
		return nil, err
	}
	email := strings.ToLower(gofakeit.Email())
	countries := make([]string, 0, 3)
	for i := 0; i < 1+f.rng.Intn(3); i++ {
		countries = append(countries, gofakeit.CountryAbr())
	}
	user := &models.User{
		Username: gofakeit.Username() + fmt.Sprintf("%d", gofakeit.Number(100, 999)),
		Email:    &email,
		Password: hashed,
		IsActive: true,
		Profile: &models.UserProfile{
			Avatar:           fmt.Sprintf("https://i.pravatar.cc/150?u=%s", gofakeit.UUID()),
			Bio:              gofakeit.Sentence(10),
			Tags:             strings.Join([]string{gofakeit.Hobby(), gofakeit.Hobby()}, ","),
			VisitedCountries: strings.Join(countries, ","),
		},
	}
	user.CreatedAt = f.pastTime()

	for _, override := range overrides {
		override(user)
	}

	if f.opts.DryRun {
		user.ID = f.assignID()
		log.Printf("[dry-run] CreateUser: %s", user.Username)
		return user, nil
	}
	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

type dayPlan struct {
	Day   int      `json:"day"`
	Title string   `json:"title"`
	Stops []string `json:"stops"`
}

// BuildTrip constructs a trip for author without persisting it.
func (f *Factory) BuildTrip(author *models.User, overrides ...func(*models.Trip)) *models.Trip {
	city := gofakeit.City()
	days := 1 + f.rng.Intn(4)
	plans := make([]dayPlan, days)
	for i := range plans {
		plans[i] = dayPlan{Day: i + 1, Title: gofakeit.Phrase(), Stops: []string{gofakeit.Street(), gofakeit.Street()}}
	}
	overview, _ := json.Marshal(map[string]any{"city": city, "days": plans})
	cfg, _ := json.Marshal(map[string]any{"currency": gofakeit.CurrencyShort(), "budget": gofakeit.Number(500, 8000)})

	start := f.pastTime()
	end := start.Add(time.Duration(days-1) * 24 * time.Hour)
	visibility := models.TripVisibilityPublic
	if f.rng.Intn(4) == 0 {
		visibility = models.TripVisibilityPrivate
	}

	trip := &models.Trip{
		Slug:        fmt.Sprintf("%s-%s", slugPart(city), strings.ToLower(gofakeit.LetterN(6))),
		Title:       fmt.Sprintf("%d days in %s", days, city),
		Description: gofakeit.Paragraph(1, 3, 8, " "),
		Icon:        gofakeit.RandomString([]string{"🏔", "🏖", "🏯", "🚆", "🍜"}),
		AuthorID:    author.ID,
		StartDate:   &start,
		EndDate:     &end,
		Status:      models.TripStatusPublished,
		Visibility:  visibility,
		Config:      cfg,
		Overview:    overview,
		ThemeColor:  gofakeit.HexColor(),
	}
	trip.CreatedAt = start

	for _, override := range overrides {
		override(trip)
	}
	return trip
}

// CreateTrip builds and persists a trip for author.
func (f *Factory) CreateTrip(author *models.User, overrides ...func(*models.Trip)) (*models.Trip, error) {
	trip := f.BuildTrip(author, overrides...)
	if f.opts.DryRun {
		trip.ID = f.assignID()
		log.Printf("[dry-run] CreateTrip: author=%d slug=%s", trip.AuthorID, trip.Slug)
		return trip, nil
	}
	if err := f.db.Omit("Author").Create(trip).Error; err != nil {
		return nil, err
	}
	return trip, nil
}

// CreateComment persists a comment by user on page. A non-nil parent makes it a reply.
func (f *Factory) CreateComment(user *models.User, page string, parent *models.Comment, overrides ...func(*models.Comment)) (*models.Comment, error) {
	comment := &models.Comment{
		UserID:    user.ID,
		Page:      page,
		Content:   gofakeit.Sentence(12),
		Timestamp: f.pastTime(),
	}
	if parent != nil {
		comment.ParentID = &parent.ID
	}
	for _, override := range overrides {
		override(comment)
	}

	if f.opts.DryRun {
		comment.ID = f.assignID()
		return comment, nil
	}
	if err := f.db.Omit("User", "Parent").Create(comment).Error; err != nil {
		return nil, err
	}
	return comment, nil
}

// slugPart lower-cases s and keeps only slug-safe runes.
func slugPart(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "trip"
	}
	if len(out) > 40 {
		out = out[:40]
	}
	return out
}
