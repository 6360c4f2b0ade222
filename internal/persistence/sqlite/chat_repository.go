package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/shiftline/internal/persistence"
)

// ChatRepository implements persistence.ChatRepository using SQLite
type ChatRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewChatRepository creates a new SQLite chat repository
func NewChatRepository(pool *ConnectionPool) *ChatRepository {
	return &ChatRepository{pool: pool, mapper: NewErrorMapper()}
}

// CreateChat stores the chat and its participant rows in one transaction
func (r *ChatRepository) CreateChat(ctx context.Context, chat persistence.Chat, participantIDs []string) error {
	if chat.ID == "" || chat.CompanyID == "" {
		return persistence.ErrConstraintViolation
	}

	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chats (id, company_id, name, is_group, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			chat.ID, chat.CompanyID, chat.Name, chat.IsGroup,
			formatTime(chat.CreatedAt), formatTime(chat.UpdatedAt),
		); err != nil {
			return err
		}
		for _, userID := range participantIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO chat_participants (chat_id, user_id, joined_at)
				VALUES (?, ?, ?)`,
				chat.ID, userID, formatTime(chat.CreatedAt),
			); err != nil {
				return err
			}
		}
		return nil
	})
	return r.mapper.MapError(err)
}

// GetChat retrieves a chat by ID
func (r *ChatRepository) GetChat(ctx context.Context, id string) (persistence.Chat, error) {
	row := r.pool.db.QueryRowContext(ctx, `
		SELECT id, company_id, name, is_group, created_at, updated_at
		FROM chats WHERE id = ?`, id)

	var (
		chat                 persistence.Chat
		createdAt, updatedAt string
	)
	if err := row.Scan(&chat.ID, &chat.CompanyID, &chat.Name, &chat.IsGroup, &createdAt, &updatedAt); err != nil {
		return persistence.Chat{}, r.mapper.MapError(err)
	}
	return chatWithTimes(chat, createdAt, updatedAt)
}

// FindChatParticipants returns the chat's tenant and durable participant ids
func (r *ChatRepository) FindChatParticipants(ctx context.Context, chatID string) (persistence.ChatParticipants, error) {
	result := persistence.ChatParticipants{ChatID: chatID}

	err := r.pool.WithReadOnlyTransaction(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT company_id FROM chats WHERE id = ?`, chatID).Scan(&result.CompanyID); err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT user_id FROM chat_participants
			WHERE chat_id = ?
			ORDER BY joined_at, user_id`, chatID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var userID string
			if err := rows.Scan(&userID); err != nil {
				return err
			}
			result.ParticipantIDs = append(result.ParticipantIDs, userID)
		}
		return rows.Err()
	})
	if err != nil {
		return persistence.ChatParticipants{}, r.mapper.MapError(err)
	}
	return result, nil
}

// ListChatsForUser returns chats the user participates in, most recently active first
func (r *ChatRepository) ListChatsForUser(ctx context.Context, userID string) ([]persistence.Chat, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT c.id, c.company_id, c.name, c.is_group, c.created_at, c.updated_at
		FROM chats c
		JOIN chat_participants p ON p.chat_id = c.id
		WHERE p.user_id = ?
		ORDER BY c.updated_at DESC, c.id`, userID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var chats []persistence.Chat
	for rows.Next() {
		var (
			chat                 persistence.Chat
			createdAt, updatedAt string
		)
		if err := rows.Scan(&chat.ID, &chat.CompanyID, &chat.Name, &chat.IsGroup, &createdAt, &updatedAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		chat, err := chatWithTimes(chat, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return chats, nil
}

// TouchChatUpdatedAt records chat activity
func (r *ChatRepository) TouchChatUpdatedAt(ctx context.Context, chatID string, at time.Time) error {
	result, err := r.pool.db.ExecContext(ctx, `UPDATE chats SET updated_at = ? WHERE id = ?`, formatTime(at), chatID)
	if err != nil {
		return r.mapper.MapError(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func chatWithTimes(chat persistence.Chat, createdAt, updatedAt string) (persistence.Chat, error) {
	var err error
	if chat.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Chat{}, err
	}
	if chat.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Chat{}, err
	}
	return chat, nil
}
