package seed

import (
	"context"
	_ "embed"
	"fmt"
	"log"

	"roamio/internal/models"
	"roamio/internal/repository"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

//go:embed legacy_pages.yaml
var legacyPagesYAML []byte

// LegacyPage is a fixed page that exists without a backing trip.
type LegacyPage struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

type legacyFixture struct {
	Pages []LegacyPage `yaml:"pages"`
}

// LegacyPages returns the embedded legacy pages in fixture order.
func LegacyPages() ([]LegacyPage, error) {
	return parseLegacyPages(legacyPagesYAML)
}

func parseLegacyPages(raw []byte) ([]LegacyPage, error) {
	var fixture legacyFixture
	if err := yaml.Unmarshal(raw, &fixture); err != nil {
		return nil, fmt.Errorf("parse legacy pages: %w", err)
	}
	seen := make(map[string]bool, len(fixture.Pages))
	for _, p := range fixture.Pages {
		if p.Key == "" {
			return nil, fmt.Errorf("legacy page without key")
		}
		if seen[p.Key] {
			return nil, fmt.Errorf("duplicate legacy page %q", p.Key)
		}
		seen[p.Key] = true
	}
	return fixture.Pages, nil
}

// LegacyNames maps legacy page keys to their display names.
func LegacyNames() (map[string]string, error) {
	pages, err := LegacyPages()
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(pages))
	for _, p := range pages {
		names[p.Key] = p.Name
	}
	return names, nil
}

// SeedLegacyPages makes sure every legacy page has a stats row. With reset
// the counters and check-in flag of existing rows go back to zero.
func SeedLegacyPages(ctx context.Context, db *gorm.DB, reset bool) error {
	pages, err := LegacyPages()
	if err != nil {
		return err
	}
	stats := repository.NewPageStatRepository(db)
	for _, p := range pages {
		if _, err := stats.GetOrCreate(ctx, p.Key); err != nil {
			return fmt.Errorf("seed page %s: %w", p.Key, err)
		}
		if !reset {
			continue
		}
		if err := db.WithContext(ctx).Model(&models.PageStat{}).
			Where("page = ?", p.Key).
			Updates(map[string]any{"views": 0, "likes": 0, "checked_in": false}).Error; err != nil {
			return fmt.Errorf("reset page %s: %w", p.Key, err)
		}
	}
	log.Printf("✓ %d legacy pages ensured", len(pages))
	return nil
}
