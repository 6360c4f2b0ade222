package application

import "strings"

// Live transport event names.
const (
	EventMessageReceived = "message-received"
	EventNotification    = "notification"
	EventUserOnline      = "user-online"
	EventUserOffline     = "user-offline"
	EventError           = "error"
)

const (
	companyChannelPrefix = "company:"
	userChannelPrefix    = "user:"
	chatChannelPrefix    = "chat:"
)

// CompanyChannel names the broadcast channel of a tenant.
func CompanyChannel(companyID string) string { return companyChannelPrefix + companyID }

// UserChannel names the direct channel of a user across all of their devices.
func UserChannel(userID string) string { return userChannelPrefix + userID }

// ChatChannel names the live subscription channel of a chat thread.
func ChatChannel(chatID string) string { return chatChannelPrefix + chatID }

// ChatIDFromChannel returns the chat id of a chat channel name.
func ChatIDFromChannel(channel string) (string, bool) {
	id, ok := strings.CutPrefix(channel, chatChannelPrefix)
	return id, ok && id != ""
}

// MessagePayload is the wire form of a message on the live transport.
type MessagePayload struct {
	ID          string       `json:"id"`
	ChatID      string       `json:"chatId"`
	SenderID    string       `json:"senderId"`
	Content     string       `json:"content"`
	Type        MessageType  `json:"type"`
	Attachments []Attachment `json:"attachments"`
	ReadBy      []string     `json:"readBy"`
	CreatedAt   string       `json:"createdAt"`
}

// MessageReceivedEvent is pushed after a message is persisted.
type MessageReceivedEvent struct {
	ChatID  string         `json:"chatId"`
	Message MessagePayload `json:"message"`
}

// NotificationEvent is pushed to the recipient's user channel.
type NotificationEvent struct {
	ID      string           `json:"id"`
	Type    NotificationType `json:"type"`
	Title   string           `json:"title"`
	Content string           `json:"content"`
	Data    any              `json:"data,omitempty"`
}

// PresenceEvent announces a user coming online or going offline.
type PresenceEvent struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// ErrorEvent reports a failed client request to the originating connection.
type ErrorEvent struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}
