package persistence

import (
	"context"
	"time"
)

// UserRepository exposes the user lookups needed for sign-in and token verification.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	SetUserActive(ctx context.Context, id string, active bool) error
}

// ChatRepository stores chats and their durable participants.
type ChatRepository interface {
	CreateChat(ctx context.Context, chat Chat, participantIDs []string) error
	GetChat(ctx context.Context, id string) (Chat, error)
	FindChatParticipants(ctx context.Context, chatID string) (ChatParticipants, error)
	ListChatsForUser(ctx context.Context, userID string) ([]Chat, error)
	TouchChatUpdatedAt(ctx context.Context, chatID string, at time.Time) error
}

// MessageRepository stores messages and their reader sets.
type MessageRepository interface {
	// InsertMessage stores the message and its initial readers in a single transaction.
	InsertMessage(ctx context.Context, message Message) error
	GetMessage(ctx context.Context, id string) (Message, error)
	// AppendMessageReader adds the user to the reader set. Repeated calls are no-ops.
	AppendMessageReader(ctx context.Context, messageID, userID string, at time.Time) error
	// ListMessages returns messages newest-first.
	ListMessages(ctx context.Context, filter MessageFilter) ([]Message, error)
}

// NotificationRepository stores per-recipient notifications.
type NotificationRepository interface {
	InsertNotification(ctx context.Context, notification Notification) error
	ListNotifications(ctx context.Context, filter NotificationFilter) ([]Notification, error)
	CountUnreadNotifications(ctx context.Context, recipientID string) (int, error)
	MarkNotificationRead(ctx context.Context, recipientID, notificationID string, at time.Time) error
	MarkAllNotificationsRead(ctx context.Context, recipientID string, at time.Time) (int64, error)
	DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
