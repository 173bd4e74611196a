package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/garnizeh/fixbuddy/pkg/models"
)

// CreateDiagnosis stores a result for its owner and returns the generated id.
func (r *SQLiteRepo) CreateDiagnosis(ctx context.Context, d *models.Diagnosis) (string, error) {
	if d == nil {
		return "", fmt.Errorf("diagnosis is nil")
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Created == 0 {
		d.Created = now()
	}

	stored := d.Result
	stored.ID = ""
	stored.CreatedAt = 0
	b, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("encode diagnosis result: %w", err)
	}

	var itemName any
	if stored.ItemName != nil {
		itemName = *stored.ItemName
	}

	if _, err := r.conn.Exec(ctx, `INSERT INTO diagnoses (id, user_id, item_name, blocked, result_json, created) VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserID, itemName, stored.Blocked, string(b), d.Created); err != nil {
		return "", err
	}

	return d.ID, nil
}

// ListRecentDiagnoses returns the caller's newest diagnoses first.
func (r *SQLiteRepo) ListRecentDiagnoses(ctx context.Context, userID int64, limit int) ([]models.Diagnosis, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.conn.QueryRows(ctx, `SELECT id, user_id, result_json, created FROM diagnoses WHERE user_id = ? ORDER BY created DESC, rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Diagnosis{}
	for rows.Next() {
		d, err := scanDiagnosis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}

	return out, rows.Err()
}

func (r *SQLiteRepo) GetDiagnosis(ctx context.Context, id string, userID int64) (*models.Diagnosis, error) {
	row := r.conn.QueryRow(ctx, `SELECT id, user_id, result_json, created FROM diagnoses WHERE id = ? AND user_id = ?`, id, userID)
	d, err := scanDiagnosis(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return d, nil
}

// DeleteDiagnosis reports whether a row owned by userID was removed.
func (r *SQLiteRepo) DeleteDiagnosis(ctx context.Context, id string, userID int64) (bool, error) {
	res, err := r.conn.Exec(ctx, `DELETE FROM diagnoses WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// PruneDiagnoses keeps the newest keep entries for the user and deletes the rest.
func (r *SQLiteRepo) PruneDiagnoses(ctx context.Context, userID int64, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}

	res, err := r.conn.Exec(ctx, `DELETE FROM diagnoses WHERE user_id = ? AND id NOT IN (
		SELECT id FROM diagnoses WHERE user_id = ? ORDER BY created DESC, rowid DESC LIMIT ?)`, userID, userID, keep)
	if err != nil {
		return 0, fmt.Errorf("prune diagnoses: %w", err)
	}

	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDiagnosis(s rowScanner) (*models.Diagnosis, error) {
	var (
		d   models.Diagnosis
		raw string
	)
	if err := s.Scan(&d.ID, &d.UserID, &raw, &d.Created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &d.Result); err != nil {
		return nil, fmt.Errorf("decode diagnosis %s: %w", d.ID, err)
	}
	d.Result.ID = d.ID
	d.Result.CreatedAt = d.Created

	return &d, nil
}
