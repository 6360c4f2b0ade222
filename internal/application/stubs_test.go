package application

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

type chatStoreStub struct {
	participants map[string]ChatParticipants
	findErr      error
	touchErr     error
	touched      []string
	chats        []Chat
}

func (c *chatStoreStub) FindChatParticipants(ctx context.Context, chatID string) (ChatParticipants, error) {
	if c.findErr != nil {
		return ChatParticipants{}, c.findErr
	}
	p, ok := c.participants[chatID]
	if !ok {
		return ChatParticipants{}, ErrNotFound
	}
	return p, nil
}

func (c *chatStoreStub) TouchChatUpdatedAt(ctx context.Context, chatID string, at time.Time) error {
	if c.touchErr != nil {
		return c.touchErr
	}
	c.touched = append(c.touched, chatID)
	return nil
}

func (c *chatStoreStub) ListChatsForUser(ctx context.Context, userID string) ([]Chat, error) {
	return c.chats, nil
}

type messageStoreStub struct {
	mu        sync.Mutex
	messages  map[string]Message
	order     []string
	insertErr error
	appends   int
}

func newMessageStoreStub() *messageStoreStub {
	return &messageStoreStub{messages: map[string]Message{}}
}

func (m *messageStoreStub) InsertMessage(ctx context.Context, message Message) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return Message{}, m.insertErr
	}
	message.ReaderIDs = append([]string(nil), message.ReaderIDs...)
	m.messages[message.ID] = message
	m.order = append(m.order, message.ID)
	return message, nil
}

func (m *messageStoreStub) GetMessage(ctx context.Context, id string) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	message, ok := m.messages[id]
	if !ok {
		return Message{}, ErrNotFound
	}
	message.ReaderIDs = append([]string(nil), message.ReaderIDs...)
	return message, nil
}

func (m *messageStoreStub) AppendMessageReader(ctx context.Context, messageID, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appends++
	message, ok := m.messages[messageID]
	if !ok {
		return ErrNotFound
	}
	if !message.ReadBy(userID) {
		message.ReaderIDs = append(message.ReaderIDs, userID)
	}
	m.messages[messageID] = message
	return nil
}

func (m *messageStoreStub) ListMessages(ctx context.Context, chatID string, before *time.Time, beforeID string, limit int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Message
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		message := m.messages[m.order[i]]
		if message.ChatID != chatID {
			continue
		}
		if before != nil {
			older := message.CreatedAt.Before(*before) ||
				(beforeID != "" && message.CreatedAt.Equal(*before) && message.ID < beforeID)
			if !older {
				continue
			}
		}
		out = append(out, message)
	}
	return out, nil
}

type notificationStoreStub struct {
	mu       sync.Mutex
	rows     []Notification
	failFor  map[string]bool
	listErr  error
	marked   map[string]time.Time
	cutoff   time.Time
	pruneErr error
}

func (n *notificationStoreStub) InsertNotification(ctx context.Context, notification Notification) (Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failFor[notification.RecipientID] {
		return Notification{}, errors.New("insert failed")
	}
	n.rows = append(n.rows, notification)
	return notification, nil
}

func (n *notificationStoreStub) recipients() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.rows))
	for _, row := range n.rows {
		out = append(out, row.RecipientID)
	}
	sort.Strings(out)
	return out
}

func (n *notificationStoreStub) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]Notification, error) {
	if n.listErr != nil {
		return nil, n.listErr
	}
	var out []Notification
	for i := len(n.rows) - 1; i >= 0 && len(out) < limit; i-- {
		row := n.rows[i]
		if row.RecipientID != recipientID || (unreadOnly && row.Read) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (n *notificationStoreStub) CountUnreadNotifications(ctx context.Context, recipientID string) (int, error) {
	count := 0
	for _, row := range n.rows {
		if row.RecipientID == recipientID && !row.Read {
			count++
		}
	}
	return count, nil
}

func (n *notificationStoreStub) MarkNotificationRead(ctx context.Context, recipientID, notificationID string, at time.Time) error {
	for i, row := range n.rows {
		if row.ID == notificationID && row.RecipientID == recipientID {
			n.rows[i].Read = true
			if n.marked == nil {
				n.marked = map[string]time.Time{}
			}
			n.marked[notificationID] = at
			return nil
		}
	}
	return ErrNotFound
}

func (n *notificationStoreStub) MarkAllNotificationsRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	var updated int64
	for i, row := range n.rows {
		if row.RecipientID == recipientID && !row.Read {
			n.rows[i].Read = true
			updated++
		}
	}
	return updated, nil
}

func (n *notificationStoreStub) DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	n.cutoff = cutoff
	if n.pruneErr != nil {
		return 0, n.pruneErr
	}
	return 3, nil
}

type delivery struct {
	channels []string
	event    string
	payload  any
}

type broadcasterStub struct {
	mu         sync.Mutex
	deliveries []delivery
}

func (b *broadcasterStub) Broadcast(ctx context.Context, channel, event string, payload any) int {
	return b.Fanout(ctx, []string{channel}, event, payload)
}

func (b *broadcasterStub) Fanout(ctx context.Context, channels []string, event string, payload any) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliveries = append(b.deliveries, delivery{channels: append([]string(nil), channels...), event: event, payload: payload})
	return len(channels)
}

func (b *broadcasterStub) byEvent(event string) []delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []delivery
	for _, d := range b.deliveries {
		if d.event == event {
			out = append(out, d)
		}
	}
	return out
}

type recorderStub struct {
	persisted int
	created   int
	failed    int
}

func (r *recorderStub) MessagePersisted(string) { r.persisted++ }

func (r *recorderStub) NotificationsCreated(_ string, created, failed int) {
	r.created += created
	r.failed += failed
}
