package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxMessageLength     = 4000
	maxAttachments       = 10
	defaultPreviewLength = 80
	defaultHistoryLimit  = 50
	maxHistoryLimit      = 100

	chatNotificationTitle = "新着メッセージ"
	attachmentPreview     = "ファイルが送信されました"
)

var tracer = otel.Tracer("github.com/example/shiftline/internal/application")

// ChatStore exposes the chat lookups required by the chat service.
type ChatStore interface {
	FindChatParticipants(ctx context.Context, chatID string) (ChatParticipants, error)
	TouchChatUpdatedAt(ctx context.Context, chatID string, at time.Time) error
	ListChatsForUser(ctx context.Context, userID string) ([]Chat, error)
}

// MessageStore captures the message persistence operations.
type MessageStore interface {
	// InsertMessage persists the message and its ReaderIDs as one durable write.
	InsertMessage(ctx context.Context, message Message) (Message, error)
	GetMessage(ctx context.Context, id string) (Message, error)
	AppendMessageReader(ctx context.Context, messageID, userID string, at time.Time) error
	// ListMessages returns messages newest-first.
	ListMessages(ctx context.Context, chatID string, before *time.Time, beforeID string, limit int) ([]Message, error)
}

// NotificationStore captures the notification persistence operations.
type NotificationStore interface {
	InsertNotification(ctx context.Context, notification Notification) (Notification, error)
	ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]Notification, error)
	CountUnreadNotifications(ctx context.Context, recipientID string) (int, error)
	MarkNotificationRead(ctx context.Context, recipientID, notificationID string, at time.Time) error
	MarkAllNotificationsRead(ctx context.Context, recipientID string, at time.Time) (int64, error)
	DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Broadcaster delivers events to live connections. Delivery is fire-and-forget.
type Broadcaster interface {
	Broadcast(ctx context.Context, channel, event string, payload any) int
	// Fanout delivers once to every connection subscribed to any of channels.
	Fanout(ctx context.Context, channels []string, event string, payload any) int
}

// FanoutRecorder observes the outcome of message sends.
type FanoutRecorder interface {
	MessagePersisted(messageType string)
	NotificationsCreated(notificationType string, created, failed int)
}

// ChatService turns inbound chat messages into durable writes and live pushes.
type ChatService struct {
	chats         ChatStore
	messages      MessageStore
	notifications NotificationStore
	broadcaster   Broadcaster
	recorder      FanoutRecorder
	previewLength int
	idGenerator   func() string
	now           func() time.Time
	logger        *slog.Logger
}

// NewChatService constructs a chat service with the provided dependencies.
func NewChatService(chats ChatStore, messages MessageStore, notifications NotificationStore, broadcaster Broadcaster, idGenerator func() string, now func() time.Time) *ChatService {
	return NewChatServiceWithLogger(chats, messages, notifications, broadcaster, idGenerator, now, nil)
}

// NewChatServiceWithLogger constructs a chat service with a specified logger.
func NewChatServiceWithLogger(chats ChatStore, messages MessageStore, notifications NotificationStore, broadcaster Broadcaster, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ChatService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &ChatService{
		chats:         chats,
		messages:      messages,
		notifications: notifications,
		broadcaster:   broadcaster,
		previewLength: defaultPreviewLength,
		idGenerator:   idGenerator,
		now:           now,
		logger:        defaultLogger(logger),
	}
}

// SetPreviewLength sets the rune length of notification previews.
func (s *ChatService) SetPreviewLength(n int) {
	if n > 0 {
		s.previewLength = n
	}
}

// SetRecorder installs an observer for send outcomes.
func (s *ChatService) SetRecorder(recorder FanoutRecorder) {
	s.recorder = recorder
}

func (s *ChatService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ChatService", operation, attrs...)
}

// SendMessage validates membership and content, persists the message with
// the sender as its first reader, then notifies every other participant.
// Once the message is stored the call succeeds; notification and broadcast
// failures are only logged. The caller's cancellation is ignored.
func (s *ChatService) SendMessage(ctx context.Context, params SendMessageParams) (message Message, err error) {
	if s == nil {
		err = fmt.Errorf("ChatService is nil")
		return
	}
	if s.chats == nil || s.messages == nil {
		err = fmt.Errorf("chat stores not configured")
		return
	}

	ctx = context.WithoutCancel(ctx)
	chatID := strings.TrimSpace(params.ChatID)
	ctx, span := tracer.Start(ctx, "ChatService.SendMessage", trace.WithAttributes(
		attribute.String("chat.id", chatID),
		attribute.String("user.id", params.Principal.UserID),
	))
	defer span.End()

	logger := s.loggerWith(ctx, "SendMessage",
		"principal_id", params.Principal.UserID,
		"chat_id", chatID,
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, ErrorKind(err))
			logger.ErrorContext(ctx, "failed to send message", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("message_id", message.ID).InfoContext(ctx, "message sent")
	}()

	if chatID == "" {
		vErr := &ValidationError{}
		vErr.add("chat_id", "チャットIDは必須です")
		err = vErr
		return
	}

	var participants ChatParticipants
	participants, err = s.authorizeParticipant(ctx, chatID, params.Principal)
	if err != nil {
		return
	}

	input, vErr := normalizeMessageInput(params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	message = Message{
		ID:          s.idGenerator(),
		ChatID:      chatID,
		SenderID:    params.Principal.UserID,
		Content:     input.Content,
		Type:        input.Type,
		Attachments: input.Attachments,
		ReaderIDs:   []string{params.Principal.UserID},
		CreatedAt:   s.now(),
	}

	var persisted Message
	persisted, err = s.messages.InsertMessage(ctx, message)
	if err != nil {
		err = fmt.Errorf("persist message: %w", mapStoreError(err))
		return
	}
	message = persisted
	if s.recorder != nil {
		s.recorder.MessagePersisted(string(message.Type))
	}

	if touchErr := s.chats.TouchChatUpdatedAt(ctx, chatID, message.CreatedAt); touchErr != nil {
		logger.WarnContext(ctx, "failed to touch chat activity", "error", touchErr)
	}

	created := s.createNotifications(ctx, logger, params.Principal, participants, message)
	s.broadcastMessage(ctx, message, created)
	return
}

// MarkRead adds the principal to the message's reader set. Repeated calls
// leave the set unchanged.
func (s *ChatService) MarkRead(ctx context.Context, params MarkReadParams) (message Message, err error) {
	if s == nil {
		err = fmt.Errorf("ChatService is nil")
		return
	}
	if s.chats == nil || s.messages == nil {
		err = fmt.Errorf("chat stores not configured")
		return
	}

	logger := s.loggerWith(ctx, "MarkRead",
		"principal_id", params.Principal.UserID,
		"message_id", params.MessageID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to mark message read", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "message marked read")
	}()

	message, err = s.messages.GetMessage(ctx, strings.TrimSpace(params.MessageID))
	if err != nil {
		err = mapStoreError(err)
		return
	}
	if _, err = s.authorizeParticipant(ctx, message.ChatID, params.Principal); err != nil {
		return
	}
	if message.ReadBy(params.Principal.UserID) {
		return
	}

	if err = s.messages.AppendMessageReader(ctx, message.ID, params.Principal.UserID, s.now()); err != nil {
		err = mapStoreError(err)
		return
	}
	message.ReaderIDs = append(message.ReaderIDs, params.Principal.UserID)
	return
}

// ListMessages returns one page of history, oldest first.
func (s *ChatService) ListMessages(ctx context.Context, params ListMessagesParams) (messages []Message, err error) {
	if s == nil {
		err = fmt.Errorf("ChatService is nil")
		return
	}
	if s.chats == nil || s.messages == nil {
		err = fmt.Errorf("chat stores not configured")
		return
	}

	logger := s.loggerWith(ctx, "ListMessages",
		"principal_id", params.Principal.UserID,
		"chat_id", params.ChatID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list messages", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if _, err = s.authorizeParticipant(ctx, params.ChatID, params.Principal); err != nil {
		return
	}

	limit := params.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	messages, err = s.messages.ListMessages(ctx, params.ChatID, params.Before, strings.TrimSpace(params.BeforeID), limit)
	if err != nil {
		err = mapStoreError(err)
		return
	}
	slices.Reverse(messages)
	return
}

// ListChats returns the chats the principal participates in.
func (s *ChatService) ListChats(ctx context.Context, principal Principal) (chats []Chat, err error) {
	if s == nil {
		err = fmt.Errorf("ChatService is nil")
		return
	}
	if s.chats == nil {
		err = fmt.Errorf("chat store not configured")
		return
	}

	chats, err = s.chats.ListChatsForUser(ctx, principal.UserID)
	if err != nil {
		s.loggerWith(ctx, "ListChats", "principal_id", principal.UserID).
			ErrorContext(ctx, "failed to list chats", "error", err, "error_kind", ErrorKind(err))
		return nil, mapStoreError(err)
	}
	return chats, nil
}

// authorizeParticipant loads the chat's participants. Chats of another
// tenant are reported as missing.
func (s *ChatService) authorizeParticipant(ctx context.Context, chatID string, principal Principal) (ChatParticipants, error) {
	participants, err := s.chats.FindChatParticipants(ctx, chatID)
	if err != nil {
		return ChatParticipants{}, mapStoreError(err)
	}
	if participants.CompanyID != principal.CompanyID {
		return ChatParticipants{}, ErrNotFound
	}
	if !participants.Contains(principal.UserID) {
		return ChatParticipants{}, ErrForbidden
	}
	return participants, nil
}

func (s *ChatService) createNotifications(ctx context.Context, logger *slog.Logger, sender Principal, participants ChatParticipants, message Message) []Notification {
	if s.notifications == nil {
		return nil
	}

	payload, err := json.Marshal(ChatMessagePayload{
		ChatID:     message.ChatID,
		MessageID:  message.ID,
		SenderName: sender.Name,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to encode notification payload", "error", err)
		return nil
	}
	body := s.preview(message)

	var (
		created []Notification
		failed  int
	)
	seen := map[string]struct{}{sender.UserID: {}}
	for _, recipientID := range participants.ParticipantIDs {
		if _, dup := seen[recipientID]; dup {
			continue
		}
		seen[recipientID] = struct{}{}

		notification, insertErr := s.notifications.InsertNotification(ctx, Notification{
			ID:          s.idGenerator(),
			RecipientID: recipientID,
			CompanyID:   participants.CompanyID,
			Type:        NotificationChatMessage,
			Title:       chatNotificationTitle,
			Body:        body,
			Payload:     payload,
			CreatedAt:   message.CreatedAt,
		})
		if insertErr != nil {
			failed++
			logger.WarnContext(ctx, "failed to create notification",
				"recipient_id", recipientID,
				"error", insertErr,
			)
			continue
		}
		created = append(created, notification)
	}

	if s.recorder != nil {
		s.recorder.NotificationsCreated(string(NotificationChatMessage), len(created), failed)
	}
	return created
}

func (s *ChatService) broadcastMessage(ctx context.Context, message Message, notifications []Notification) {
	if s.broadcaster == nil {
		return
	}

	channels := make([]string, 0, len(notifications)+1)
	channels = append(channels, ChatChannel(message.ChatID))
	for _, n := range notifications {
		channels = append(channels, UserChannel(n.RecipientID))
	}
	s.broadcaster.Fanout(ctx, channels, EventMessageReceived, MessageReceivedEvent{
		ChatID:  message.ChatID,
		Message: NewMessagePayload(message),
	})

	for _, n := range notifications {
		s.broadcaster.Broadcast(ctx, UserChannel(n.RecipientID), EventNotification, NewNotificationEvent(n))
	}
}

func (s *ChatService) preview(message Message) string {
	content := strings.TrimSpace(message.Content)
	if content == "" {
		return attachmentPreview
	}
	return truncateRunes(content, s.previewLength)
}

func truncateRunes(value string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit]) + "…"
}

func normalizeMessageInput(input MessageInput) (MessageInput, *ValidationError) {
	vErr := &ValidationError{}

	out := MessageInput{
		Content: strings.TrimSpace(input.Content),
		Type:    MessageType(strings.ToUpper(strings.TrimSpace(string(input.Type)))),
	}
	if out.Type == "" {
		out.Type = MessageTypeText
	}
	if !out.Type.Valid() {
		vErr.add("type", "メッセージ種別が不正です")
	}
	if utf8.RuneCountInString(out.Content) > maxMessageLength {
		vErr.add("content", fmt.Sprintf("メッセージは%d文字以内で入力してください", maxMessageLength))
	}

	if len(input.Attachments) > maxAttachments {
		vErr.add("attachments", fmt.Sprintf("添付ファイルは%d件までです", maxAttachments))
	}
	out.Attachments = make([]Attachment, 0, len(input.Attachments))
	for _, a := range input.Attachments {
		a.URL = strings.TrimSpace(a.URL)
		a.Name = strings.TrimSpace(a.Name)
		if a.URL == "" {
			vErr.add("attachments", "添付ファイルのURLは必須です")
			continue
		}
		out.Attachments = append(out.Attachments, a)
	}

	if out.Content == "" && len(input.Attachments) == 0 {
		vErr.add("content", "メッセージ本文または添付ファイルが必要です")
	}
	return out, vErr
}

// NewMessagePayload converts a message into its live transport form.
func NewMessagePayload(m Message) MessagePayload {
	attachments := m.Attachments
	if attachments == nil {
		attachments = []Attachment{}
	}
	readers := m.ReaderIDs
	if readers == nil {
		readers = []string{}
	}
	return MessagePayload{
		ID:          m.ID,
		ChatID:      m.ChatID,
		SenderID:    m.SenderID,
		Content:     m.Content,
		Type:        m.Type,
		Attachments: attachments,
		ReadBy:      readers,
		CreatedAt:   m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// NewNotificationEvent converts a notification into its live transport form.
func NewNotificationEvent(n Notification) NotificationEvent {
	event := NotificationEvent{ID: n.ID, Type: n.Type, Title: n.Title, Content: n.Body}
	if len(n.Payload) > 0 && json.Valid(n.Payload) {
		event.Data = json.RawMessage(n.Payload)
	}
	return event
}
