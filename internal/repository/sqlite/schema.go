package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/garnizeh/fixbuddy/internal/models"
)

func (r *SQLiteRepo) ListSchemas(ctx context.Context) ([]models.Schema, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT name, version, COALESCE(description, ''), schema_json, created, updated FROM ai_schemas ORDER BY name, version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Schema
	for rows.Next() {
		var s models.Schema
		if err := rows.Scan(&s.Name, &s.Version, &s.Description, &s.SchemaJSON, &s.Created, &s.Updated); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) GetSchema(ctx context.Context, name, version string) (*models.Schema, error) {
	row := r.conn.QueryRow(ctx, `SELECT name, version, COALESCE(description, ''), schema_json, created, updated FROM ai_schemas WHERE name = ? AND version = ?`, name, version)
	var s models.Schema
	if err := row.Scan(&s.Name, &s.Version, &s.Description, &s.SchemaJSON, &s.Created, &s.Updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
