package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	defaultInboxLimit = 50
	maxInboxLimit     = 200
	// DefaultNotificationRetention is how long read notifications are kept.
	DefaultNotificationRetention = 30 * 24 * time.Hour
)

// NotificationService exposes the recipient's inbox and prunes old entries.
type NotificationService struct {
	notifications NotificationStore
	retention     time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

// NewNotificationService constructs a notification service with the provided dependencies.
func NewNotificationService(notifications NotificationStore, retention time.Duration, now func() time.Time) *NotificationService {
	return NewNotificationServiceWithLogger(notifications, retention, now, nil)
}

// NewNotificationServiceWithLogger constructs a notification service with a specified logger.
func NewNotificationServiceWithLogger(notifications NotificationStore, retention time.Duration, now func() time.Time, logger *slog.Logger) *NotificationService {
	if retention <= 0 {
		retention = DefaultNotificationRetention
	}
	if now == nil {
		now = time.Now
	}
	return &NotificationService{
		notifications: notifications,
		retention:     retention,
		now:           now,
		logger:        defaultLogger(logger),
	}
}

func (s *NotificationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "NotificationService", operation, attrs...)
}

// ListNotifications returns the principal's notifications newest first.
func (s *NotificationService) ListNotifications(ctx context.Context, params ListNotificationsParams) (notifications []Notification, err error) {
	if err = s.ready(); err != nil {
		return
	}

	limit := params.Limit
	if limit <= 0 {
		limit = defaultInboxLimit
	}
	if limit > maxInboxLimit {
		limit = maxInboxLimit
	}

	notifications, err = s.notifications.ListNotifications(ctx, params.Principal.UserID, params.UnreadOnly, limit)
	if err != nil {
		s.loggerWith(ctx, "ListNotifications", "principal_id", params.Principal.UserID).
			ErrorContext(ctx, "failed to list notifications", "error", err, "error_kind", ErrorKind(err))
		return nil, mapStoreError(err)
	}
	return notifications, nil
}

// UnreadCount returns the number of unread notifications of the principal.
func (s *NotificationService) UnreadCount(ctx context.Context, principal Principal) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	count, err := s.notifications.CountUnreadNotifications(ctx, principal.UserID)
	if err != nil {
		s.loggerWith(ctx, "UnreadCount", "principal_id", principal.UserID).
			ErrorContext(ctx, "failed to count unread notifications", "error", err, "error_kind", ErrorKind(err))
		return 0, mapStoreError(err)
	}
	return count, nil
}

// MarkRead flips the read flag of one of the principal's notifications.
// Notifications of other users are reported as missing.
func (s *NotificationService) MarkRead(ctx context.Context, principal Principal, notificationID string) (err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "MarkRead",
		"principal_id", principal.UserID,
		"notification_id", notificationID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to mark notification read", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	id := strings.TrimSpace(notificationID)
	if id == "" {
		err = ErrNotFound
		return
	}
	err = mapStoreError(s.notifications.MarkNotificationRead(ctx, principal.UserID, id, s.now()))
	return
}

// MarkAllRead marks every unread notification of the principal as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, principal Principal) (updated int64, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "MarkAllRead", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to mark notifications read", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "notifications marked read", "updated", updated)
	}()

	updated, err = s.notifications.MarkAllNotificationsRead(ctx, principal.UserID, s.now())
	err = mapStoreError(err)
	return
}

// PruneRead deletes read notifications older than the retention window.
func (s *NotificationService) PruneRead(ctx context.Context) (deleted int64, err error) {
	if err = s.ready(); err != nil {
		return
	}

	cutoff := s.now().Add(-s.retention)
	logger := s.loggerWith(ctx, "PruneRead", "cutoff", cutoff)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to prune notifications", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "notifications pruned", "deleted", deleted)
	}()

	deleted, err = s.notifications.DeleteReadNotificationsBefore(ctx, cutoff)
	return
}

func (s *NotificationService) ready() error {
	if s == nil {
		return fmt.Errorf("NotificationService is nil")
	}
	if s.notifications == nil {
		return fmt.Errorf("notification store not configured")
	}
	return nil
}
