package assistant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"motivechat/internal/apperr"
	"motivechat/internal/models"
	"motivechat/internal/storage"
)

// AppendExchange persists one message/response pair. The timestamp is assigned
// here and is strictly greater than every earlier timestamp of the same user.
func (s *Service) AppendExchange(ctx context.Context, userID int64, message, response string) (*models.ChatMessage, error) {
	if userID <= 0 {
		return nil, apperr.ErrInvalidToken
	}
	if response == "" {
		return nil, apperr.Validation("response cannot be empty")
	}

	latest := `SELECT created_at FROM chat_messages WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`
	if s.driver == "mysql" {
		latest += ` FOR UPDATE`
	}

	msg := &models.ChatMessage{UserID: userID, Message: message, Response: response}
	err := storage.WithTx(ctx, s.db, func(ctx context.Context, tx storage.DBTX) error {
		ts := s.now().UTC().Truncate(time.Microsecond)

		var last time.Time
		switch err := tx.QueryRowContext(ctx, latest, userID).Scan(&last); {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("latest timestamp: %w", err)
		default:
			if last = last.UTC(); !ts.After(last) {
				ts = last.Add(time.Microsecond)
			}
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO chat_messages (user_id, message, response, created_at) VALUES (?, ?, ?, ?)`,
			userID, message, response, ts,
		)
		if err != nil {
			return fmt.Errorf("insert chat message: %w", err)
		}
		if msg.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("chat message id: %w", err)
		}
		msg.Timestamp = ts
		return nil
	})
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return msg, nil
}

// ListHistory returns the user's exchanges oldest first. A positive limit keeps
// only the most recent limit records, still in chronological order.
func (s *Service) ListHistory(ctx context.Context, userID int64, limit int) ([]models.ChatMessage, error) {
	query := `SELECT id, user_id, message, response, created_at FROM chat_messages
		WHERE user_id = ? ORDER BY created_at ASC, id ASC`
	args := []any{userID}
	if limit > 0 {
		query = `SELECT id, user_id, message, response, created_at FROM chat_messages
			WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage(fmt.Errorf("list history: %w", err))
	}
	defer rows.Close()

	messages := make([]models.ChatMessage, 0)
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.Message, &m.Response, &m.Timestamp); err != nil {
			return nil, apperr.Storage(fmt.Errorf("scan chat message: %w", err))
		}
		m.Timestamp = m.Timestamp.UTC()
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(fmt.Errorf("iterate history: %w", err))
	}
	if limit > 0 {
		slices.Reverse(messages)
	}
	return messages, nil
}
