// Command admin grants and revokes administrator rights.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"roamio/internal/config"
	"roamio/internal/database"
	"roamio/internal/models"
	"roamio/internal/repository"
)

func usage() {
	fmt.Println("Usage:")
	fmt.Println("  go run ./cmd/admin promote <user_id|username>   - Grant admin rights")
	fmt.Println("  go run ./cmd/admin demote <user_id|username>    - Revoke admin rights")
	fmt.Println("  go run ./cmd/admin list-admins                  - List all admins")
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	users := repository.NewUserRepository(db)
	ctx := context.Background()

	switch command := os.Args[1]; command {
	case "promote", "demote":
		if len(os.Args) < 3 {
			usage()
		}
		user, err := lookup(ctx, users, os.Args[2])
		if err != nil {
			log.Fatalf("%v", err)
		}
		admin := command == "promote"
		if user.IsAdmin == admin {
			fmt.Printf("User %s (ID: %d) already has is_admin=%t\n", user.Username, user.ID, admin)
			return
		}
		if err := users.SetAdmin(ctx, user.ID, admin); err != nil {
			log.Fatalf("Failed to update user: %v", err)
		}
		fmt.Printf("User %s (ID: %d) now has is_admin=%t\n", user.Username, user.ID, admin)

	case "list-admins":
		admins, err := users.ListAdmins(ctx)
		if err != nil {
			log.Fatalf("Database error: %v", err)
		}
		if len(admins) == 0 {
			fmt.Println("No admins found")
			return
		}
		fmt.Printf("Found %d admin(s):\n", len(admins))
		for _, a := range admins {
			email := ""
			if a.Email != nil {
				email = *a.Email
			}
			fmt.Printf("  - ID: %d, Username: %s, Email: %s\n", a.ID, a.Username, email)
		}

	default:
		fmt.Printf("Unknown command: %s\n", command)
		usage()
	}
}

// lookup accepts a numeric ID or a username.
func lookup(ctx context.Context, users repository.UserRepository, ref string) (*models.User, error) {
	if id, err := strconv.ParseUint(ref, 10, 32); err == nil {
		user, err := users.GetByID(ctx, uint(id))
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", ref, err)
		}
		return user, nil
	}
	user, err := users.GetByUsername(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", ref, err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s not found", ref)
	}
	return user, nil
}
