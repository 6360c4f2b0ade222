package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/example/shiftline/internal/persistence"
)

const defaultMessagePageSize = 50

// MessageRepository implements persistence.MessageRepository using SQLite.
// Read receipts live in the message_readers side table.
type MessageRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewMessageRepository creates a new SQLite message repository
func NewMessageRepository(pool *ConnectionPool) *MessageRepository {
	return &MessageRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

// InsertMessage stores the message and its initial reader set atomically
func (r *MessageRepository) InsertMessage(ctx context.Context, message persistence.Message) error {
	if message.ID == "" || message.ChatID == "" || message.SenderID == "" {
		return persistence.ErrConstraintViolation
	}
	attachments := message.Attachments
	if attachments == "" {
		attachments = "[]"
	}

	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO messages (id, chat_id, sender_id, content, type, attachments, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				message.ID, message.ChatID, message.SenderID, message.Content, message.Type,
				attachments, formatTime(message.CreatedAt),
			); err != nil {
				return err
			}
			for _, readerID := range message.ReaderIDs {
				if _, err := tx.ExecContext(ctx, `
					INSERT OR IGNORE INTO message_readers (message_id, user_id, read_at)
					VALUES (?, ?, ?)`,
					message.ID, readerID, formatTime(message.CreatedAt),
				); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// GetMessage retrieves a message with its reader set
func (r *MessageRepository) GetMessage(ctx context.Context, id string) (persistence.Message, error) {
	var message persistence.Message
	err := r.pool.WithReadOnlyTransaction(ctx, func(tx *sql.Tx) error {
		var createdAt string
		if err := tx.QueryRowContext(ctx, `
			SELECT id, chat_id, sender_id, content, type, attachments, created_at
			FROM messages WHERE id = ?`, id,
		).Scan(&message.ID, &message.ChatID, &message.SenderID, &message.Content, &message.Type, &message.Attachments, &createdAt); err != nil {
			return err
		}
		var err error
		if message.CreatedAt, err = parseTime(createdAt); err != nil {
			return err
		}

		readers, err := loadReaders(ctx, tx, []string{message.ID})
		if err != nil {
			return err
		}
		message.ReaderIDs = readers[message.ID]
		return nil
	})
	if err != nil {
		return persistence.Message{}, r.mapper.MapError(err)
	}
	return message, nil
}

// AppendMessageReader adds userID to the message's reader set. A user
// already in the set is left untouched.
func (r *MessageRepository) AppendMessageReader(ctx context.Context, messageID, userID string, at time.Time) error {
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE id = ?`, messageID).Scan(&exists); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO message_readers (message_id, user_id, read_at)
			VALUES (?, ?, ?)`,
			messageID, userID, formatTime(at),
		)
		return err
	})
	return r.mapper.MapError(err)
}

// ListMessages returns one page of a chat's history, newest first
func (r *MessageRepository) ListMessages(ctx context.Context, filter persistence.MessageFilter) ([]persistence.Message, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultMessagePageSize
	}

	query := `
		SELECT id, chat_id, sender_id, content, type, attachments, created_at
		FROM messages
		WHERE chat_id = ?`
	args := []any{filter.ChatID}
	switch {
	case filter.Before != nil && filter.BeforeID != "":
		query += ` AND (created_at, id) < (?, ?)`
		args = append(args, formatTime(*filter.Before), filter.BeforeID)
	case filter.Before != nil:
		query += ` AND created_at < ?`
		args = append(args, formatTime(*filter.Before))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	var messages []persistence.Message
	err := r.pool.WithReadOnlyTransaction(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				message   persistence.Message
				createdAt string
			)
			if err := rows.Scan(&message.ID, &message.ChatID, &message.SenderID, &message.Content, &message.Type, &message.Attachments, &createdAt); err != nil {
				return err
			}
			if message.CreatedAt, err = parseTime(createdAt); err != nil {
				return err
			}
			messages = append(messages, message)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()

		if len(messages) == 0 {
			return nil
		}
		ids := make([]string, len(messages))
		for i, m := range messages {
			ids[i] = m.ID
		}
		readers, err := loadReaders(ctx, tx, ids)
		if err != nil {
			return err
		}
		for i := range messages {
			messages[i].ReaderIDs = readers[messages[i].ID]
		}
		return nil
	})
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	return messages, nil
}

func loadReaders(ctx context.Context, tx *sql.Tx, messageIDs []string) (map[string][]string, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(messageIDs)), ",")
	args := make([]any, len(messageIDs))
	for i, id := range messageIDs {
		args[i] = id
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT message_id, user_id FROM message_readers
		WHERE message_id IN (`+placeholders+`)
		ORDER BY read_at, user_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	readers := make(map[string][]string, len(messageIDs))
	for rows.Next() {
		var messageID, userID string
		if err := rows.Scan(&messageID, &userID); err != nil {
			return nil, err
		}
		readers[messageID] = append(readers[messageID], userID)
	}
	return readers, rows.Err()
}
