// Command migrate manages the roamio database and its schema.
//
//	migrate [-dir path] <command> [args]
//
// Commands: create (database), new <name> (scaffold SQL files), up, auto,
// status, down <version>.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"roamio/internal/config"
	"roamio/internal/database"

	"gorm.io/gorm"
)

var errUsage = errors.New("usage: migrate <create|new|up|auto|status|down> [args]")

// command runs against an open connection. Commands with needsDB false get a nil db.
type command struct {
	needsDB bool
	run     func(ctx context.Context, cfg *config.Config, db *gorm.DB, args []string) error
}

var commands = map[string]command{
	"create": {run: createDatabase},
	"new":    {run: scaffold},
	"up":     {needsDB: true, run: up},
	"auto":   {needsDB: true, run: auto},
	"status": {needsDB: true, run: status},
	"down":   {needsDB: true, run: down},
}

var migrationsDir = flag.String("dir", filepath.Join("internal", "database", "migrations"), "directory for new migration files")

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	flag.Parse()
	if flag.NArg() < 1 {
		return errUsage
	}
	name := strings.ToLower(strings.TrimSpace(flag.Arg(0)))
	cmd, ok := commands[name]
	if !ok {
		return errUsage
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var db *gorm.DB
	if cmd.needsDB {
		db, err = database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
	}
	return cmd.run(context.Background(), cfg, db, flag.Args()[1:])
}

func createDatabase(ctx context.Context, cfg *config.Config, _ *gorm.DB, _ []string) error {
	created, err := database.EnsureDatabase(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	if created {
		log.Printf("database %q created", cfg.DBName)
	} else {
		log.Printf("database %q already exists or driver is not postgres", cfg.DBName)
	}
	return nil
}

var migrationName = regexp.MustCompile(`^[a-z0-9_]+$`)

// scaffold writes an empty up/down pair numbered after the last embedded migration.
func scaffold(_ context.Context, _ *config.Config, _ *gorm.DB, args []string) error {
	if len(args) < 1 || !migrationName.MatchString(args[0]) {
		return errors.New("usage: migrate new <snake_case_name>")
	}
	next := 1
	if set := database.GetMigrations(); len(set) > 0 {
		next = set[len(set)-1].Version + 1
	}
	m := database.Migration{Version: next, Name: args[0]}
	for _, dir := range []string{"up", "down"} {
		path := filepath.Join(*migrationsDir, fmt.Sprintf("%s.%s.sql", m, dir))
		body := fmt.Sprintf("-- %s %s\n", m, dir)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		log.Printf("created %s", path)
	}
	return nil
}

func up(ctx context.Context, _ *config.Config, db *gorm.DB, _ []string) error {
	n, err := database.NewMigrator(db).Up(ctx)
	if err != nil {
		return fmt.Errorf("sql migrations failed: %w", err)
	}
	log.Printf("%d sql migrations applied", n)
	return nil
}

func auto(ctx context.Context, cfg *config.Config, db *gorm.DB, _ []string) error {
	cfg.DBSchemaMode = database.SchemaModeAuto
	if err := database.ApplySchema(ctx, db, cfg); err != nil {
		return fmt.Errorf("auto schema apply failed: %w", err)
	}
	log.Println("automigrations applied")
	return nil
}

func status(ctx context.Context, cfg *config.Config, db *gorm.DB, _ []string) error {
	st, err := database.GetSchemaStatus(ctx, db, cfg)
	if err != nil {
		return fmt.Errorf("schema status failed: %w", err)
	}
	log.Printf("mode=%s env=%s run_sql=%t run_auto=%t applied=%v",
		st.Mode, st.Environment, st.WillRunSQL, st.WillRunAutoMigrate, st.AppliedVersions)
	for _, m := range st.PendingMigrations {
		log.Printf("pending: %s", m)
	}
	return nil
}

func down(ctx context.Context, _ *config.Config, db *gorm.DB, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: migrate down <version>")
	}
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", args[0], err)
	}
	if err := database.NewMigrator(db).Down(ctx, version); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	log.Printf("rolled back migration %d", version)
	return nil
}
