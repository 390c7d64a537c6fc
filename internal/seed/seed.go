package seed

import (
	"context"
	"fmt"
	"log"

	"roamio/internal/models"
	"roamio/internal/repository"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumUsers        int
	NumTrips        int
	CommentsPerPage int
	ShouldClean     bool
	ResetLegacy     bool
}

// Seeder populates a database with legacy pages and demo content.
type Seeder struct {
	db      *gorm.DB
	factory *Factory
}

// NewSeeder creates a Seeder bound to db.
func NewSeeder(db *gorm.DB, opts SeedOptions) *Seeder {
	return &Seeder{db: db, factory: NewFactory(db, opts)}
}

// Result counts what a Seed run created.
type Result struct {
	Users    int
	Trips    int
	Comments int
}

// Seed ensures the legacy pages and then generates demo data.
func (s *Seeder) Seed(ctx context.Context, opts Options) (Result, error) {
	var res Result
	log.Printf("🌱 Starting database seeding with %d users and %d trips...", opts.NumUsers, opts.NumTrips)

	if opts.ShouldClean && !s.factory.opts.DryRun {
		if err := s.ClearAll(ctx); err != nil {
			return res, fmt.Errorf("clear data: %w", err)
		}
	}
	if !s.factory.opts.DryRun {
		if err := SeedLegacyPages(ctx, s.db, opts.ResetLegacy); err != nil {
			return res, err
		}
	}

	users := make([]*models.User, 0, opts.NumUsers)
	for i := 0; i < opts.NumUsers; i++ {
		user, err := s.factory.CreateUser()
		if err != nil {
			return res, fmt.Errorf("create user: %w", err)
		}
		users = append(users, user)
	}
	res.Users = len(users)
	log.Printf("✓ %d users created (password %q)", res.Users, DemoPassword)
	if len(users) == 0 {
		return res, nil
	}

	// Only the page owner may start threads, so each page remembers who that is.
	type ownedPage struct {
		key   string
		owner *models.User
	}
	pages := make([]ownedPage, 0, opts.NumTrips)
	for i := 0; i < opts.NumTrips; i++ {
		author := users[s.factory.rng.Intn(len(users))]
		trip, err := s.factory.CreateTrip(author)
		if err != nil {
			return res, fmt.Errorf("create trip: %w", err)
		}
		if trip.IsPublic() {
			pages = append(pages, ownedPage{key: trip.Slug, owner: author})
		}
		res.Trips++
	}
	log.Printf("✓ %d trips created", res.Trips)

	legacy, err := LegacyPages()
	if err != nil {
		return res, err
	}
	for _, p := range legacy {
		owner, err := s.claimLegacyPage(ctx, p.Key, users[s.factory.rng.Intn(len(users))])
		if err != nil {
			return res, fmt.Errorf("claim %s: %w", p.Key, err)
		}
		pages = append(pages, ownedPage{key: p.Key, owner: owner})
	}

	for _, page := range pages {
		var root *models.Comment
		for i := 0; i < opts.CommentsPerPage; i++ {
			// Every third comment answers the first one on the page; the rest
			// are threads started by the owner.
			author := page.owner
			var parent *models.Comment
			if root != nil && i%3 == 2 {
				parent = root
				author = users[s.factory.rng.Intn(len(users))]
			}
			c, err := s.factory.CreateComment(author, page.key, parent)
			if err != nil {
				return res, fmt.Errorf("create comment on %s: %w", page.key, err)
			}
			if root == nil {
				root = c
			}
			res.Comments++
		}
	}
	log.Printf("✓ %d comments created", res.Comments)
	return res, nil
}

// claimLegacyPage makes candidate the owner of an unowned legacy page and
// returns whoever owns it afterwards.
func (s *Seeder) claimLegacyPage(ctx context.Context, page string, candidate *models.User) (*models.User, error) {
	if s.factory.opts.DryRun {
		return candidate, nil
	}
	stats := repository.NewPageStatRepository(s.db)
	claimed, err := stats.ClaimOwner(ctx, page, candidate.ID)
	if err != nil {
		return nil, err
	}
	if claimed {
		return candidate, nil
	}
	stat, err := stats.Get(ctx, page)
	if err != nil {
		return nil, err
	}
	if stat.OwnerID == nil {
		return nil, fmt.Errorf("page %s has no owner after claim", page)
	}
	return &models.User{ID: *stat.OwnerID}, nil
}

// ClearAll deletes every content and account row.
func (s *Seeder) ClearAll(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if db.Dialector.Name() == "postgres" {
		return db.Exec(`TRUNCATE TABLE comments, trips, page_stats, social_accounts, email_verification_codes, user_profiles, users RESTART IDENTITY CASCADE`).Error
	}
	return db.Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{
			&models.Comment{}, &models.Trip{}, &models.PageStat{}, &models.SocialAccount{},
			&models.EmailVerificationCode{}, &models.UserProfile{},
		} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(&models.User{}).Error
	})
}
