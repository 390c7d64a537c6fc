// Package validation provides input validation utilities
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	usernameRegex = regexp.MustCompile(`^[\p{L}\p{N}_-]+$`)
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	slugRegex     = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	pageKeyRegex  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)
	codeRegex     = regexp.MustCompile(`^[0-9]{6}$`)
)

// MaxSlugLength bounds trip slugs and page keys.
const MaxSlugLength = 100

// ValidatePassword checks if a password meets security requirements
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	// Check maximum length (prevent unreasonable inputs)
	if len(password) > 128 {
		return fmt.Errorf("password must not exceed 128 characters")
	}

	allDigits := true
	for _, r := range password {
		if !unicode.IsDigit(r) {
			allDigits = false
			break
		}
	}
	if allDigits {
		return fmt.Errorf("password cannot be entirely numeric")
	}

	return nil
}

// ValidateUsername checks if a username meets requirements
func ValidateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < 3 {
		return fmt.Errorf("username must be at least 3 characters long")
	}

	if n > 150 {
		return fmt.Errorf("username must not exceed 150 characters")
	}

	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("username can only contain letters, numbers, underscores, and hyphens")
	}

	// Cannot start or end with underscore/hyphen
	if strings.HasPrefix(username, "_") || strings.HasPrefix(username, "-") ||
		strings.HasSuffix(username, "_") || strings.HasSuffix(username, "-") {
		return fmt.Errorf("username cannot start or end with underscore or hyphen")
	}

	return nil
}

// ValidateEmail checks basic email format
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}

	if len(email) > 254 {
		return fmt.Errorf("email must not exceed 254 characters")
	}

	return nil
}

// NormalizeEmail trims and lower-cases an address before lookups and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateSlug checks a client-supplied trip slug.
func ValidateSlug(slug string) error {
	if len(slug) > MaxSlugLength {
		return fmt.Errorf("slug must not exceed %d characters", MaxSlugLength)
	}
	if !slugRegex.MatchString(slug) {
		return fmt.Errorf("slug can only contain lowercase letters, numbers, underscores, and hyphens")
	}
	return nil
}

// ValidatePageKey checks a page key taken from a URL or request body. Legacy
// keys such as "trip1" and generated trip slugs both pass.
func ValidatePageKey(page string) error {
	if page == "" {
		return fmt.Errorf("page is required")
	}
	if len(page) > MaxSlugLength {
		return fmt.Errorf("page must not exceed %d characters", MaxSlugLength)
	}
	if !pageKeyRegex.MatchString(page) {
		return fmt.Errorf("page can only contain letters, numbers, underscores, and hyphens")
	}
	return nil
}

// ValidateCode checks the shape of an emailed verification code.
func ValidateCode(code string) error {
	if !codeRegex.MatchString(code) {
		return fmt.Errorf("verification code must be 6 digits")
	}
	return nil
}

// NormalizeTags trims each comma-separated tag and drops empty and duplicate entries.
func NormalizeTags(raw string) string {
	seen := make(map[string]struct{})
	var out []string
	for _, tag := range strings.Split(raw, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return strings.Join(out, ",")
}
