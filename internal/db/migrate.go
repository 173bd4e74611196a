package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

const (
	migrationDir = "migrations"
	seedDir      = "seed"
)

// Migrate applies migrations and seed files found in the repository.
// It creates a `schema_migrations` table to track applied migrations and applies
// any SQL files in `migrations/` that have not yet been recorded.
//
// Seed files follow a naming convention and are upserted on every run:
//
//	schema_<name>_<version>.json   -> ai_schemas
//	template_<name>_<version>.txt  -> ai_templates
func Migrate(ctx context.Context, d *DB, migrationFS embed.FS, seedFS embed.FS) error {
	if _, err := d.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	files, err := listFiles(migrationFS, migrationDir, ".sql")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for _, fname := range files {
		version := strings.TrimSuffix(fname, path.Ext(fname))

		var count int
		if err := d.QueryRow(ctx, `SELECT COUNT(1) FROM schema_migrations WHERE version = ?`, version).Scan(&count); err != nil {
			return fmt.Errorf("scan migration applied count: %w", err)
		}
		if count > 0 {
			continue
		}

		b, err := fs.ReadFile(migrationFS, path.Join(migrationDir, fname))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", fname, err)
		}
		if _, err := d.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("exec migration %s: %w", fname, err)
		}
		if _, err := d.Exec(ctx, `INSERT INTO schema_migrations (version, applied) VALUES (?, strftime('%s','now'))`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", fname, err)
		}
	}

	return seed(ctx, d, seedFS)
}

func seed(ctx context.Context, d *DB, seedFS embed.FS) error {
	entries, err := listFiles(seedFS, seedDir, "")
	if err != nil {
		// seeds are optional
		return nil
	}

	for _, fname := range entries {
		b, err := fs.ReadFile(seedFS, path.Join(seedDir, fname))
		if err != nil {
			return fmt.Errorf("read seed %s: %w", fname, err)
		}

		switch {
		case strings.HasPrefix(fname, "schema_") && path.Ext(fname) == ".json":
			name, version, ok := splitSeedName(fname, "schema_")
			if !ok {
				return fmt.Errorf("seed %s: expected schema_<name>_<version>.json", fname)
			}
			if _, err := d.Exec(ctx, `INSERT OR REPLACE INTO ai_schemas (name, version, description, schema_json, created, updated) VALUES (?, ?, ?, ?, strftime('%s','now'), strftime('%s','now'))`,
				name, version, "seeded "+name+" schema", string(b)); err != nil {
				return fmt.Errorf("seed schema %s: %w", fname, err)
			}
		case strings.HasPrefix(fname, "template_") && path.Ext(fname) == ".txt":
			name, version, ok := splitSeedName(fname, "template_")
			if !ok {
				return fmt.Errorf("seed %s: expected template_<name>_<version>.txt", fname)
			}
			if _, err := d.Exec(ctx, `INSERT OR REPLACE INTO ai_templates (name, version, template_text, created, updated) VALUES (?, ?, ?, strftime('%s','now'), strftime('%s','now'))`,
				name, version, string(b)); err != nil {
				return fmt.Errorf("seed template %s: %w", fname, err)
			}
		}
	}

	return nil
}

// splitSeedName turns "schema_diagnosis_v1.json" into ("diagnosis", "v1").
func splitSeedName(fname, prefix string) (string, string, bool) {
	base := strings.TrimSuffix(strings.TrimPrefix(fname, prefix), path.Ext(fname))
	i := strings.LastIndex(base, "_")
	if i <= 0 || i == len(base)-1 {
		return "", "", false
	}
	return base[:i], base[i+1:], true
}

func listFiles(fsys fs.FS, dir, ext string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext != "" && !strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}
