package db_test

import (
	"context"
	"testing"

	dbfs "github.com/garnizeh/fixbuddy/db"
	"github.com/garnizeh/fixbuddy/internal/db"
)

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()

	d, err := db.New(ctx, ":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory db: %v", err)
	}
	defer d.Close()

	if err := db.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if err := db.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}

	var count int
	if err := d.QueryRow(ctx, `SELECT COUNT(1) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("scan schema_migrations count: %v", err)
	}
	if count < 1 {
		t.Fatalf("expected at least 1 migration recorded, got %d", count)
	}

	for _, table := range []string{"users", "user_profiles", "diagnoses", "conversation_messages", "jobs", "dead_letter_jobs"} {
		var name string
		if err := d.QueryRow(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name); err != nil {
			t.Fatalf("expected %s table exists: %v", table, err)
		}
	}
}

func TestMigrate_SeedsSchemasAndTemplates(t *testing.T) {
	ctx := context.Background()

	d, err := db.New(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer d.Close()

	if err := db.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	tests := []struct {
		table, name string
	}{
		{"ai_schemas", "diagnosis"},
		{"ai_schemas", "guidance"},
		{"ai_schemas", "analysis"},
		{"ai_templates", "diagnose"},
		{"ai_templates", "guide"},
		{"ai_templates", "analyze"},
	}
	for _, tc := range tests {
		t.Run(tc.table+"/"+tc.name, func(t *testing.T) {
			var version string
			row := d.QueryRow(ctx, `SELECT version FROM `+tc.table+` WHERE name = ?`, tc.name)
			if err := row.Scan(&version); err != nil {
				t.Fatalf("expected seeded row: %v", err)
			}
			if version != "v1" {
				t.Fatalf("expected version v1, got %q", version)
			}
		})
	}

	// reseeding must not duplicate rows
	if err := db.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		t.Fatalf("re-migrate: %v", err)
	}
	var n int
	if err := d.QueryRow(ctx, `SELECT COUNT(1) FROM ai_schemas`).Scan(&n); err != nil {
		t.Fatalf("count schemas: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 schemas, got %d", n)
	}
}
