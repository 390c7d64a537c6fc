// Command seed loads the legacy pages and fills a development database with demo data.
package main

import (
	"context"
	"flag"
	"log"

	"roamio/internal/config"
	"roamio/internal/database"
	"roamio/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 20, "Number of users to create")
	numTrips := flag.Int("trips", 40, "Number of trips to create")
	comments := flag.Int("comments", 4, "Comments per page")
	shouldClean := flag.Bool("clean", false, "Delete existing accounts and content before seeding")
	legacyOnly := flag.Bool("legacy-only", false, "Only ensure the legacy pages")
	resetLegacy := flag.Bool("reset-legacy", false, "Zero the counters of the legacy pages")
	dryRun := flag.Bool("dry-run", false, "Generate data without writing it")
	fast := flag.Bool("fast", true, "Hash demo passwords with the minimum bcrypt cost")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	ctx := context.Background()

	if *legacyOnly {
		if err := seed.SeedLegacyPages(ctx, db, *resetLegacy); err != nil {
			log.Fatalf("❌ Legacy page seeding failed: %v", err)
		}
		return
	}

	log.Printf("Target: %d users, %d trips, clean=%v\n", *numUsers, *numTrips, *shouldClean)
	s := seed.NewSeeder(db, seed.SeedOptions{DryRun: *dryRun, SkipBcrypt: *fast})
	res, err := s.Seed(ctx, seed.Options{
		NumUsers:        *numUsers,
		NumTrips:        *numTrips,
		CommentsPerPage: *comments,
		ShouldClean:     *shouldClean,
		ResetLegacy:     *resetLegacy,
	})
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Printf("✨ All done! %d users, %d trips, %d comments.", res.Users, res.Trips, res.Comments)
	log.Printf("📧 All demo users have the password: %s", seed.DemoPassword)
}
