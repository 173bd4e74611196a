package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	dbfs "github.com/garnizeh/fixbuddy/db"
	"github.com/garnizeh/fixbuddy/internal/config"
	"github.com/garnizeh/fixbuddy/internal/db"
)

func main() {
	configPath := flag.String("config", "", "Path to config YAML file")
	flag.Parse()
	_ = godotenv.Load()

	ctx := context.Background()
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	database, err := db.New(ctx, cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DB init error: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	// migrations are idempotent; seeds upsert the stored schemas and prompt templates
	if err := db.Migrate(ctx, database, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		fmt.Fprintf(os.Stderr, "Migration runner error: %v\n", err)
		os.Exit(1)
	}

	var schemas, templates int
	if err := database.QueryRow(ctx, `SELECT (SELECT COUNT(*) FROM ai_schemas), (SELECT COUNT(*) FROM ai_templates)`).Scan(&schemas, &templates); err != nil {
		fmt.Fprintf(os.Stderr, "Seed check error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Database %s initialized (%d schemas, %d templates).\n", cfg.DatabasePath, schemas, templates)
}
