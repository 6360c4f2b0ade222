package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/shiftline/internal/persistence"
)

const defaultNotificationPageSize = 50

// NotificationRepository implements persistence.NotificationRepository using SQLite
type NotificationRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewNotificationRepository creates a new SQLite notification repository
func NewNotificationRepository(pool *ConnectionPool) *NotificationRepository {
	return &NotificationRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

// InsertNotification stores one inbox entry
func (r *NotificationRepository) InsertNotification(ctx context.Context, n persistence.Notification) error {
	if n.ID == "" || n.RecipientID == "" {
		return persistence.ErrConstraintViolation
	}
	payload := n.Payload
	if payload == "" {
		payload = "{}"
	}

	return r.retry.WithRetry(ctx, func() error {
		_, err := r.pool.db.ExecContext(ctx, `
			INSERT INTO notifications (id, recipient_id, company_id, type, title, body, payload, read, created_at, read_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			n.ID, n.RecipientID, n.CompanyID, n.Type, n.Title, n.Body, payload,
			n.Read, formatTime(n.CreatedAt), nullableTime(n.ReadAt),
		)
		return err
	})
}

// ListNotifications returns the recipient's inbox newest first
func (r *NotificationRepository) ListNotifications(ctx context.Context, filter persistence.NotificationFilter) ([]persistence.Notification, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultNotificationPageSize
	}

	query := `
		SELECT id, recipient_id, company_id, type, title, body, payload, read, created_at, read_at
		FROM notifications
		WHERE recipient_id = ?`
	if filter.UnreadOnly {
		query += ` AND read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := r.pool.db.QueryContext(ctx, query, filter.RecipientID, limit)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var notifications []persistence.Notification
	for rows.Next() {
		var (
			n         persistence.Notification
			createdAt string
			readAt    sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.CompanyID, &n.Type, &n.Title, &n.Body, &n.Payload, &n.Read, &createdAt, &readAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if n.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if readAt.Valid {
			t, err := parseTime(readAt.String)
			if err != nil {
				return nil, err
			}
			n.ReadAt = &t
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return notifications, nil
}

// CountUnreadNotifications returns the number of unread entries for the recipient
func (r *NotificationRepository) CountUnreadNotifications(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := r.pool.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND read = 0`, recipientID,
	).Scan(&count)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	return count, nil
}

// MarkNotificationRead flips the read flag. Marking an already read
// notification keeps its original read_at.
func (r *NotificationRepository) MarkNotificationRead(ctx context.Context, recipientID, notificationID string, at time.Time) error {
	result, err := r.pool.db.ExecContext(ctx, `
		UPDATE notifications
		SET read = 1, read_at = COALESCE(read_at, ?)
		WHERE id = ? AND recipient_id = ?`,
		formatTime(at), notificationID, recipientID,
	)
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

// MarkAllNotificationsRead marks every unread entry of the recipient as read
func (r *NotificationRepository) MarkAllNotificationsRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	result, err := r.pool.db.ExecContext(ctx, `
		UPDATE notifications SET read = 1, read_at = ?
		WHERE recipient_id = ? AND read = 0`,
		formatTime(at), recipientID,
	)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	return result.RowsAffected()
}

// DeleteReadNotificationsBefore removes read notifications created before cutoff
func (r *NotificationRepository) DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := r.retry.WithRetry(ctx, func() error {
		result, err := r.pool.db.ExecContext(ctx,
			`DELETE FROM notifications WHERE read = 1 AND created_at < ?`, formatTime(cutoff))
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return deleted, err
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
