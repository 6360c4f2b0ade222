package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/shiftline/internal/persistence"
)

var (
	userCounter         uint64
	chatCounter         uint64
	messageCounter      uint64
	notificationCounter uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// DefaultCompanyID is the tenant fixtures belong to unless overridden.
const DefaultCompanyID = "company-a"

// ----------------------------- User fixtures -----------------------------

// UserOption configures a generated user.
type UserOption func(*persistence.User)

// NewUser returns an active employee with unique id and email.
func NewUser(opts ...UserOption) persistence.User {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	user := persistence.User{
		ID:           id,
		CompanyID:    DefaultCompanyID,
		Email:        id + "@example.com",
		DisplayName:  fmt.Sprintf("User %03d", idx),
		Role:         "EMPLOYEE",
		PasswordHash: fmt.Sprintf("hash-%03d", idx),
		Active:       true,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	for _, opt := range opts {
		opt(&user)
	}
	return user
}

func WithUserID(id string) UserOption {
	return func(u *persistence.User) { u.ID = id }
}

func WithUserCompany(companyID string) UserOption {
	return func(u *persistence.User) { u.CompanyID = companyID }
}

func WithUserEmail(email string) UserOption {
	return func(u *persistence.User) { u.Email = email }
}

func WithUserDisplayName(name string) UserOption {
	return func(u *persistence.User) { u.DisplayName = name }
}

func WithUserRole(role string) UserOption {
	return func(u *persistence.User) { u.Role = role }
}

func WithUserPasswordHash(hash string) UserOption {
	return func(u *persistence.User) { u.PasswordHash = hash }
}

func WithUserInactive() UserOption {
	return func(u *persistence.User) { u.Active = false }
}

// ----------------------------- Chat fixtures -----------------------------

// ChatOption configures a generated chat.
type ChatOption func(*persistence.Chat)

// NewChat returns a direct chat in DefaultCompanyID.
func NewChat(opts ...ChatOption) persistence.Chat {
	idx := atomic.AddUint64(&chatCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	chat := persistence.Chat{
		ID:        fmt.Sprintf("chat-%03d", idx),
		CompanyID: DefaultCompanyID,
		CreatedAt: created,
		UpdatedAt: created,
	}
	for _, opt := range opts {
		opt(&chat)
	}
	return chat
}

func WithChatID(id string) ChatOption {
	return func(c *persistence.Chat) { c.ID = id }
}

func WithChatCompany(companyID string) ChatOption {
	return func(c *persistence.Chat) { c.CompanyID = companyID }
}

// WithChatGroup marks the chat as a named group chat.
func WithChatGroup(name string) ChatOption {
	return func(c *persistence.Chat) {
		c.Name = name
		c.IsGroup = true
	}
}

func WithChatUpdatedAt(at time.Time) ChatOption {
	return func(c *persistence.Chat) { c.UpdatedAt = at }
}

// ---------------------------- Message fixtures ----------------------------

// MessageOption configures a generated message.
type MessageOption func(*persistence.Message)

// NewMessage returns a text message read by its sender.
func NewMessage(chatID, senderID string, opts ...MessageOption) persistence.Message {
	idx := atomic.AddUint64(&messageCounter, 1)
	msg := persistence.Message{
		ID:          fmt.Sprintf("msg-%03d", idx),
		ChatID:      chatID,
		SenderID:    senderID,
		Content:     fmt.Sprintf("message %03d", idx),
		Type:        "TEXT",
		Attachments: "[]",
		ReaderIDs:   []string{senderID},
		CreatedAt:   referenceTime.Add(time.Duration(idx) * time.Second),
	}
	for _, opt := range opts {
		opt(&msg)
	}
	return msg
}

func WithMessageID(id string) MessageOption {
	return func(m *persistence.Message) { m.ID = id }
}

func WithMessageContent(content string) MessageOption {
	return func(m *persistence.Message) { m.Content = content }
}

// WithMessageAttachment switches the message to the given type with a raw attachment list.
func WithMessageAttachment(messageType, attachments string) MessageOption {
	return func(m *persistence.Message) {
		m.Type = messageType
		m.Attachments = attachments
	}
}

func WithMessageCreatedAt(at time.Time) MessageOption {
	return func(m *persistence.Message) { m.CreatedAt = at }
}

// ------------------------- Notification fixtures -------------------------

// NotificationOption configures a generated notification.
type NotificationOption func(*persistence.Notification)

// NewNotification returns an unread system notification.
func NewNotification(recipientID, companyID string, opts ...NotificationOption) persistence.Notification {
	idx := atomic.AddUint64(&notificationCounter, 1)
	n := persistence.Notification{
		ID:          fmt.Sprintf("notif-%03d", idx),
		RecipientID: recipientID,
		CompanyID:   companyID,
		Type:        "SYSTEM",
		Title:       fmt.Sprintf("Notice %03d", idx),
		Payload:     "{}",
		CreatedAt:   referenceTime.Add(time.Duration(idx) * time.Second),
	}
	for _, opt := range opts {
		opt(&n)
	}
	return n
}

func WithNotificationID(id string) NotificationOption {
	return func(n *persistence.Notification) { n.ID = id }
}

func WithNotificationType(kind string) NotificationOption {
	return func(n *persistence.Notification) { n.Type = kind }
}

func WithNotificationPayload(payload string) NotificationOption {
	return func(n *persistence.Notification) { n.Payload = payload }
}

func WithNotificationCreatedAt(at time.Time) NotificationOption {
	return func(n *persistence.Notification) { n.CreatedAt = at }
}

// WithNotificationReadAt marks the notification read at the given time.
func WithNotificationReadAt(at time.Time) NotificationOption {
	return func(n *persistence.Notification) {
		n.Read = true
		n.ReadAt = &at
	}
}
