package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/garnizeh/fixbuddy/pkg/models"
)

func (r *SQLiteRepo) CreateProfile(ctx context.Context, p *models.Profile) (int64, error) {
	if p == nil {
		return 0, fmt.Errorf("profile is nil")
	}
	applyProfileDefaults(p)

	tools, err := json.Marshal(p.ToolsOwned)
	if err != nil {
		return 0, fmt.Errorf("encode tools: %w", err)
	}

	res, err := r.conn.Exec(ctx, `INSERT INTO user_profiles (user_id, experience, tools_owned, language, risk_tolerance, updated) VALUES (?, ?, ?, ?, ?, ?)`,
		p.UserID, string(p.Experience), string(tools), p.Language, p.RiskTolerance, now())
	if err != nil {
		return 0, err
	}

	return res.LastInsertId()
}

func (r *SQLiteRepo) GetProfileByUserID(ctx context.Context, userID int64) (*models.Profile, error) {
	row := r.conn.QueryRow(ctx, `SELECT id, user_id, experience, tools_owned, language, risk_tolerance, updated FROM user_profiles WHERE user_id = ?`, userID)
	var (
		p     models.Profile
		exp   string
		tools string
	)
	if err := row.Scan(&p.ID, &p.UserID, &exp, &tools, &p.Language, &p.RiskTolerance, &p.Updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, err
	}
	p.Experience = models.Experience(exp)

	if err := json.Unmarshal([]byte(tools), &p.ToolsOwned); err != nil {
		r.logger.Warn("profile tools_owned is not valid JSON", "user_id", userID, "error", err)
	}
	if p.ToolsOwned == nil {
		p.ToolsOwned = []string{}
	}

	return &p, nil
}

func (r *SQLiteRepo) UpdateProfile(ctx context.Context, p *models.Profile) error {
	if p == nil {
		return fmt.Errorf("profile is nil")
	}
	applyProfileDefaults(p)

	tools, err := json.Marshal(p.ToolsOwned)
	if err != nil {
		return fmt.Errorf("encode tools: %w", err)
	}

	_, err = r.conn.Exec(ctx, `UPDATE user_profiles SET experience = ?, tools_owned = ?, language = ?, risk_tolerance = ?, updated = ? WHERE user_id = ?`,
		string(p.Experience), string(tools), p.Language, p.RiskTolerance, now(), p.UserID)
	return err
}

func applyProfileDefaults(p *models.Profile) {
	if p.Experience == "" {
		p.Experience = models.ExperienceBeginner
	}
	if p.ToolsOwned == nil {
		p.ToolsOwned = []string{}
	}
	if p.Language == "" {
		p.Language = "en"
	}
	if p.RiskTolerance == "" {
		p.RiskTolerance = "low"
	}
}
