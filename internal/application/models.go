package application

import (
	"encoding/json"
	"time"
)

// Role is the authorization role of a company member.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleEmployee Role = "EMPLOYEE"
)

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID    string
	Name      string
	Role      Role
	CompanyID string
}

// IsAdmin reports whether the principal holds the administrator role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// User represents a company member exposed by the application services.
type User struct {
	ID          string
	CompanyID   string
	Email       string
	DisplayName string
	Role        Role
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Principal converts the user into the principal used for authorization.
func (u User) Principal() Principal {
	return Principal{UserID: u.ID, Name: u.DisplayName, Role: u.Role, CompanyID: u.CompanyID}
}

// UserCredentials models the authentication attributes persisted for a user.
type UserCredentials struct {
	User         User
	PasswordHash string
}

// Chat is a group or direct conversation owned by one company.
type Chat struct {
	ID        string
	CompanyID string
	Name      string
	IsGroup   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChatParticipants is the durable participant set of a chat.
type ChatParticipants struct {
	ChatID         string
	CompanyID      string
	ParticipantIDs []string
}

// Contains reports whether userID is a durable participant.
func (p ChatParticipants) Contains(userID string) bool {
	for _, id := range p.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// MessageType classifies the body of a message.
type MessageType string

const (
	MessageTypeText  MessageType = "TEXT"
	MessageTypeImage MessageType = "IMAGE"
	MessageTypeFile  MessageType = "FILE"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile:
		return true
	}
	return false
}

// Attachment references an uploaded file carried by a message.
type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Message is a persisted chat utterance together with its reader set.
type Message struct {
	ID          string
	ChatID      string
	SenderID    string
	Content     string
	Type        MessageType
	Attachments []Attachment
	ReaderIDs   []string
	CreatedAt   time.Time
}

// ReadBy reports whether userID is in the message's reader set.
func (m Message) ReadBy(userID string) bool {
	for _, id := range m.ReaderIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// MessageInput captures caller provided message fields.
type MessageInput struct {
	Content     string
	Type        MessageType
	Attachments []Attachment
}

// SendMessageParams wraps the data required to send a chat message.
type SendMessageParams struct {
	Principal Principal
	ChatID    string
	Input     MessageInput
}

// MarkReadParams identifies a read receipt to record.
type MarkReadParams struct {
	Principal Principal
	MessageID string
}

// ListMessagesParams wraps a history page request.
type ListMessagesParams struct {
	Principal Principal
	ChatID    string
	Before    *time.Time
	// BeforeID is the id of the oldest message already shown. Only used with Before.
	BeforeID string
	Limit    int
}

// NotificationType enumerates the kinds of inbox entries.
type NotificationType string

const (
	NotificationChatMessage    NotificationType = "CHAT_MESSAGE"
	NotificationShiftPublished NotificationType = "SHIFT_PUBLISHED"
	NotificationReportReminder NotificationType = "REPORT_REMINDER"
	NotificationShiftReminder  NotificationType = "SHIFT_REMINDER"
	NotificationSystem         NotificationType = "SYSTEM"
)

// Notification is one per-recipient inbox entry.
type Notification struct {
	ID          string
	RecipientID string
	CompanyID   string
	Type        NotificationType
	Title       string
	Body        string
	Payload     json.RawMessage
	Read        bool
	CreatedAt   time.Time
	ReadAt      *time.Time
}

// ChatMessagePayload is the structured payload of a CHAT_MESSAGE notification.
type ChatMessagePayload struct {
	ChatID     string `json:"chatId"`
	MessageID  string `json:"messageId"`
	SenderName string `json:"senderName"`
}

// ListNotificationsParams wraps an inbox page request.
type ListNotificationsParams struct {
	Principal  Principal
	UnreadOnly bool
	Limit      int
}

// LoginParams captures sign-in credentials.
type LoginParams struct {
	Email    string
	Password string
}

// LoginResult is returned on successful sign-in.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Principal Principal
}
