package persistence

import "time"

// User represents a company member who can sign in and chat.
type User struct {
	ID           string
	CompanyID    string
	Email        string
	DisplayName  string
	Role         string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Chat represents a group or direct conversation owned by one company.
type Chat struct {
	ID        string
	CompanyID string
	Name      string
	IsGroup   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChatParticipants is the durable participant set of a chat together with its tenant.
type ChatParticipants struct {
	ChatID         string
	CompanyID      string
	ParticipantIDs []string
}

// Message is one stored chat utterance. Attachments holds the serialized attachment list.
type Message struct {
	ID          string
	ChatID      string
	SenderID    string
	Content     string
	Type        string
	Attachments string
	ReaderIDs   []string
	CreatedAt   time.Time
}

// MessageFilter narrows message history queries.
type MessageFilter struct {
	ChatID string
	// Before and BeforeID form the cursor of the last row already seen.
	// BeforeID breaks ties between messages created at the same instant.
	Before   *time.Time
	BeforeID string
	Limit    int
}

// Notification is one per-recipient inbox entry. Payload holds a JSON object.
type Notification struct {
	ID          string
	RecipientID string
	CompanyID   string
	Type        string
	Title       string
	Body        string
	Payload     string
	Read        bool
	CreatedAt   time.Time
	ReadAt      *time.Time
}

// NotificationFilter narrows inbox queries.
type NotificationFilter struct {
	RecipientID string
	UnreadOnly  bool
	Limit       int
}
