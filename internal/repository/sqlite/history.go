package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garnizeh/fixbuddy/pkg/models"
)

// RecentMessages returns the last limit messages for a user in chronological order.
func (r *SQLiteRepo) RecentMessages(ctx context.Context, userID int64, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return []models.Message{}, nil
	}

	rows, err := r.conn.QueryRows(ctx, `SELECT id, user_id, role, type, content, diagnosis_id, created FROM conversation_messages WHERE user_id = ? ORDER BY id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Message{}
	for rows.Next() {
		var (
			m      models.Message
			role   string
			diagID sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.UserID, &role, &m.Type, &m.Content, &diagID, &m.Created); err != nil {
			return nil, err
		}
		m.Role = models.Role(role)
		if diagID.Valid {
			m.DiagnosisID = diagID.String
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	return out, nil
}

// AppendMessages inserts msgs and trims the user's history to the newest cap
// messages inside one transaction. A cap <= 0 disables trimming.
func (r *SQLiteRepo) AppendMessages(ctx context.Context, userID int64, msgs []models.Message, cap int) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return err
	}

	ts := now()
	for _, m := range msgs {
		typ := m.Type
		if typ == "" {
			typ = models.MessageTypeText
		}
		var diagID any
		if m.DiagnosisID != "" {
			diagID = m.DiagnosisID
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO conversation_messages (user_id, role, type, content, diagnosis_id, created) VALUES (?, ?, ?, ?, ?, ?)`,
			userID, string(m.Role), typ, m.Content, diagID, ts); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append message: %w", err)
		}
	}

	if cap > 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_messages WHERE user_id = ? AND id NOT IN (
			SELECT id FROM conversation_messages WHERE user_id = ? ORDER BY id DESC LIMIT ?)`, userID, userID, cap); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("trim history: %w", err)
		}
	}

	return tx.Commit()
}
